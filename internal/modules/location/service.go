// README: Location service persists driver positions, mirrors them to the GEO index and live tracking, and toggles availability.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"fitdash/internal/apperr"
	"fitdash/internal/infra"
	"fitdash/internal/metrics"
	"fitdash/internal/modules/driver"
	"fitdash/internal/modules/order"
	"fitdash/internal/types"
)

const (
	defaultRadiusKm = 5.0
	maxRadiusKm     = 50.0
	defaultLimit    = 20
	maxLimit        = 100
)

type DB interface {
	infra.TxBeginner
	infra.Querier
}

// Tracker writes live tracking documents. *infra.RTDBWriter satisfies it.
type Tracker interface {
	Set(ctx context.Context, path string, v interface{}) error
}

type Service struct {
	db      DB
	drivers *driver.Store
	orders  *order.Store
	geo     GeoIndex
	tracker Tracker
	now     func() time.Time
}

// NewService builds the service. tracker may be nil when no realtime mirror is configured.
func NewService(db DB, geo GeoIndex, tracker Tracker) *Service {
	return &Service{
		db:      db,
		drivers: driver.NewStore(),
		orders:  order.NewStore(),
		geo:     geo,
		tracker: tracker,
		now:     time.Now,
	}
}

// UpdateDriverLocation stores the driver's position and copies it onto the
// order the driver currently holds.
func (s *Service) UpdateDriverLocation(ctx context.Context, driverID types.ID, p types.Point) (*UpdateResult, error) {
	if !validPoint(p) {
		return nil, s.fail("update_location", apperr.InvalidArgument("invalid coordinates"))
	}

	now := s.now()
	var online bool
	var held *types.ID
	err := infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		online, held = false, nil

		// Orders are locked before drivers everywhere else, so peek at the
		// current order first and lock it ahead of the driver row.
		peek, err := s.drivers.Get(ctx, tx, driverID)
		if errors.Is(err, driver.ErrNotFound) {
			return apperr.NotFound("driver %s not found", driverID)
		}
		if err != nil {
			return err
		}
		if peek.CurrentOrderID != nil {
			if _, err := s.orders.Lock(ctx, tx, *peek.CurrentOrderID); err != nil && !errors.Is(err, order.ErrNotFound) {
				return err
			}
		}

		d, err := s.drivers.Lock(ctx, tx, driverID)
		if errors.Is(err, driver.ErrNotFound) {
			return apperr.NotFound("driver %s not found", driverID)
		}
		if err != nil {
			return err
		}
		if err := s.drivers.SaveLocation(ctx, tx, driverID, p, now); err != nil {
			return err
		}
		online = d.Online
		// Skip the order write if the binding changed between peek and lock.
		if peek.CurrentOrderID != nil && d.Holds(*peek.CurrentOrderID) {
			held = d.CurrentOrderID
			return s.orders.SaveDriverLocation(ctx, tx, *held, p, now)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("update_location", err)
	}

	if online {
		if err := s.geo.Add(ctx, driverID, p); err != nil {
			log.Warn().Err(err).Str("driver_id", string(driverID)).Msg("geo index update failed")
		}
	}
	if held != nil && s.tracker != nil {
		doc := Tracking{DriverID: driverID, Lat: p.Lat, Lng: p.Lng, UpdatedAt: now.UnixMilli()}
		if err := s.tracker.Set(ctx, trackingPath(*held), doc); err != nil {
			log.Warn().Err(err).Str("order_id", string(*held)).Msg("tracking mirror update failed")
		}
	}
	return &UpdateResult{DriverID: driverID, OrderID: held}, nil
}

// SetAvailability toggles the driver's online flag. A driver holding an order
// cannot go offline.
func (s *Service) SetAvailability(ctx context.Context, driverID types.ID, online bool) (*driver.Driver, error) {
	var d *driver.Driver
	err := infra.RunTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		d, err = s.drivers.Lock(ctx, tx, driverID)
		if errors.Is(err, driver.ErrNotFound) {
			return apperr.NotFound("driver %s not found", driverID)
		}
		if err != nil {
			return err
		}
		if !online && d.CurrentOrderID != nil {
			return apperr.FailedPrecondition("driver has an active order %s", *d.CurrentOrderID)
		}
		if d.Online == online {
			return nil
		}
		d.Online = online
		return s.drivers.SetOnline(ctx, tx, driverID, online)
	})
	if err != nil {
		return nil, s.fail("set_availability", err)
	}

	switch {
	case !online:
		err = s.geo.Remove(ctx, driverID)
	case d.Location != nil:
		err = s.geo.Add(ctx, driverID, *d.Location)
	}
	if err != nil {
		log.Warn().Err(err).Str("driver_id", string(driverID)).Msg("geo index update failed")
	}

	log.Info().Str("driver_id", string(driverID)).Bool("online", online).Msg("driver availability changed")
	return d, nil
}

// NearbyDrivers lists indexed drivers around p, closest first.
func (s *Service) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	if !validPoint(p) {
		return nil, s.fail("nearby_drivers", apperr.InvalidArgument("invalid coordinates"))
	}
	if radiusKm <= 0 {
		radiusKm = defaultRadiusKm
	}
	if radiusKm > maxRadiusKm {
		return nil, s.fail("nearby_drivers", apperr.InvalidArgument("radius must be at most %.0f km", maxRadiusKm))
	}
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	out, err := s.geo.Nearby(ctx, p, radiusKm, limit)
	if err != nil {
		return nil, s.fail("nearby_drivers", err)
	}
	return out, nil
}

func (s *Service) fail(op string, err error) error {
	metrics.OperationErrors.WithLabelValues(op, string(apperr.KindOf(err))).Inc()
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return apperr.Internal(err, op+" failed")
	}
	return err
}
