// README: Payment handlers bridging the client checkout to the gateway.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fitdash/internal/apperr"
	"fitdash/internal/http/middleware"
	"fitdash/internal/modules/payment"
	"fitdash/internal/types"
)

type PaymentHandler struct {
	payment PaymentService
}

func NewPaymentHandler(svc PaymentService) *PaymentHandler {
	return &PaymentHandler{payment: svc}
}

type createPaymentReq struct {
	OrderID string           `json:"orderId" binding:"required"`
	Amount  *decimal.Decimal `json:"amount"`
}

func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req createPaymentReq
	if !bindJSON(c, &req) {
		return
	}
	if !isValidID(req.OrderID) {
		writeError(c, apperr.InvalidArgument("invalid order id %q", req.OrderID))
		return
	}
	res, err := h.payment.CreatePaymentOrder(c.Request.Context(), payment.CreateCommand{
		OrderID:  types.ID(req.OrderID),
		CallerID: middleware.CallerUID(c),
		Amount:   req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}

type verifyPaymentReq struct {
	GatewayOrderID string `json:"gatewayOrderId" binding:"required"`
	PaymentID      string `json:"paymentId" binding:"required"`
	Signature      string `json:"signature" binding:"required"`
	OrderID        string `json:"orderId"`
}

func (h *PaymentHandler) Verify(c *gin.Context) {
	var req verifyPaymentReq
	if !bindJSON(c, &req) {
		return
	}
	cmd := payment.VerifyCommand{
		CallerID:       middleware.CallerUID(c),
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
	}
	if req.OrderID != "" {
		id := types.ID(req.OrderID)
		cmd.OrderID = &id
	}
	res, err := h.payment.VerifyPaymentSignature(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}
