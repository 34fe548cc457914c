// README: Order handlers for create, get, complete, status and rating.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fitdash/internal/apperr"
	"fitdash/internal/http/middleware"
	"fitdash/internal/modules/order"
	"fitdash/internal/modules/rating"
	"fitdash/internal/types"
)

type OrderHandler struct {
	order  OrderService
	rating RatingService
}

func NewOrderHandler(orders OrderService, ratings RatingService) *OrderHandler {
	return &OrderHandler{order: orders, rating: ratings}
}

type itemReq struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type createOrderReq struct {
	Items    []itemReq        `json:"items"`
	Address  string           `json:"address"`
	Shipping *pointReq        `json:"shipping"`
	StoreID  string           `json:"storeId"`
	Total    *decimal.Decimal `json:"total"`
}

type createOrderResp struct {
	OrderID     types.ID        `json:"orderId"`
	FinalAmount decimal.Decimal `json:"finalAmount"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if !bindJSON(c, &req) {
		return
	}
	cmd := order.CreateCommand{
		UserID:        middleware.CallerUID(c),
		Address:       req.Address,
		DeclaredTotal: req.Total,
	}
	for _, it := range req.Items {
		if !isValidID(it.ProductID) {
			writeError(c, apperr.InvalidArgument("invalid product id %q", it.ProductID))
			return
		}
		cmd.Items = append(cmd.Items, order.ItemInput{ProductID: types.ID(it.ProductID), Quantity: it.Quantity, Size: it.Size})
	}
	if req.Shipping != nil {
		p := req.Shipping.point()
		cmd.Shipping = &p
	}
	if req.StoreID != "" {
		if !isValidID(req.StoreID) {
			writeError(c, apperr.InvalidArgument("invalid store id %q", req.StoreID))
			return
		}
		id := types.ID(req.StoreID)
		cmd.StoreID = &id
	}

	res, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, createOrderResp{OrderID: res.OrderID, FinalAmount: res.FinalAmount})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	detail, err := h.order.Get(c.Request.Context(), middleware.CallerUID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, detail)
}

type completeReq struct {
	DeliveredItemIDs []string `json:"deliveredItemIds"`
	OTP              string   `json:"otp"`
}

func (h *OrderHandler) Complete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req completeReq
	if !bindJSON(c, &req) {
		return
	}
	delivered := make([]types.ID, len(req.DeliveredItemIDs))
	for i, v := range req.DeliveredItemIDs {
		delivered[i] = types.ID(v)
	}
	err := h.order.Complete(c.Request.Context(), order.CompleteCommand{
		OrderID:          id,
		DriverID:         middleware.CallerUID(c),
		DeliveredItemIDs: delivered,
		OTP:              req.OTP,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c)
}

type statusReq struct {
	Status      string `json:"status" binding:"required"`
	Description string `json:"description"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req statusReq
	if !bindJSON(c, &req) {
		return
	}
	err := h.order.UpdateStatus(c.Request.Context(), order.StatusCommand{
		OrderID:     id,
		CallerID:    middleware.CallerUID(c),
		Status:      req.Status,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, statusResp{Status: req.Status})
}

type ratingReq struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

func (h *OrderHandler) Rate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ratingReq
	if !bindJSON(c, &req) {
		return
	}
	err := h.rating.Submit(c.Request.Context(), rating.SubmitCommand{
		OrderID:  id,
		CallerID: middleware.CallerUID(c),
		Rating:   req.Rating,
		Review:   req.Review,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c)
}
