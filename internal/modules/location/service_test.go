package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitdash/internal/apperr"
	"fitdash/internal/modules/driver"
	"fitdash/internal/testutil"
	"fitdash/internal/types"
)

type memGeo struct {
	mu  sync.Mutex
	pos map[types.ID]types.Point
}

func newMemGeo() *memGeo {
	return &memGeo{pos: make(map[types.ID]types.Point)}
}

func (g *memGeo) Add(_ context.Context, id types.ID, p types.Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pos[id] = p
	return nil
}

func (g *memGeo) Remove(_ context.Context, id types.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pos, id)
	return nil
}

func (g *memGeo) Nearby(_ context.Context, p types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []NearbyDriver
	for id, q := range g.pos {
		out = append(out, NearbyDriver{DriverID: id, Position: q})
	}
	return out, nil
}

func (g *memGeo) has(id types.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pos[id]
	return ok
}

type memTracker struct {
	mu   sync.Mutex
	docs map[string]interface{}
}

func (m *memTracker) Set(_ context.Context, path string, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = make(map[string]interface{})
	}
	m.docs[path] = v
	return nil
}

func TestValidPoint(t *testing.T) {
	assert.True(t, validPoint(types.Point{Lat: 12.97, Lng: 77.59}))
	assert.True(t, validPoint(types.Point{Lat: -90, Lng: 180}))
	assert.False(t, validPoint(types.Point{Lat: 91, Lng: 0}))
	assert.False(t, validPoint(types.Point{Lat: 0, Lng: -181}))
}

func TestTrackingPath(t *testing.T) {
	assert.Equal(t, "order_tracking/o-42", trackingPath("o-42"))
}

func TestNearbyDrivers_Validation(t *testing.T) {
	svc := NewService(nil, newMemGeo(), nil)
	ctx := context.Background()

	_, err := svc.NearbyDrivers(ctx, types.Point{Lat: 100, Lng: 0}, 1, 10)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = svc.NearbyDrivers(ctx, types.Point{Lat: 12.9, Lng: 77.5}, 80, 10)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	out, err := svc.NearbyDrivers(ctx, types.Point{Lat: 12.9, Lng: 77.5}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUpdateDriverLocation_InvalidCoordinates(t *testing.T) {
	svc := NewService(nil, newMemGeo(), nil)
	_, err := svc.UpdateDriverLocation(context.Background(), "d1", types.Point{Lat: 0, Lng: 200})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestUpdateDriverLocation_MirrorsToHeldOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupDB(t)
	testutil.SeedDriver(t, db, "d1", true, types.Point{Lat: 12.90, Lng: 77.50})
	_, err := db.Exec(ctx, `
		INSERT INTO orders (id, user_id, shipping_address, status, total, driver_id,
		                    estimated_delivery_at, created_at, updated_at)
		VALUES ('o1', 'u1', 'Jayanagar', 'assigned', 500, 'd1', NOW(), NOW(), NOW())`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `UPDATE drivers SET current_order_id = 'o1' WHERE id = 'd1'`)
	require.NoError(t, err)

	geo := newMemGeo()
	tracker := &memTracker{}
	svc := NewService(db, geo, tracker)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	p := types.Point{Lat: 12.93, Lng: 77.61}
	res, err := svc.UpdateDriverLocation(ctx, "d1", p)
	require.NoError(t, err)
	require.NotNil(t, res.OrderID)
	assert.Equal(t, types.ID("o1"), *res.OrderID)

	var lat, lng float64
	require.NoError(t, db.QueryRow(ctx, `SELECT driver_lat, driver_lng FROM orders WHERE id = 'o1'`).Scan(&lat, &lng))
	assert.Equal(t, p.Lat, lat)
	assert.Equal(t, p.Lng, lng)

	d, err := driver.NewStore().Get(ctx, db, "d1")
	require.NoError(t, err)
	require.NotNil(t, d.Location)
	assert.Equal(t, p, *d.Location)

	assert.True(t, geo.has("d1"))
	assert.Equal(t, Tracking{DriverID: "d1", Lat: p.Lat, Lng: p.Lng, UpdatedAt: at.UnixMilli()}, tracker.docs["order_tracking/o1"])
}

func TestUpdateDriverLocation_UnknownDriver(t *testing.T) {
	db := testutil.SetupDB(t)
	svc := NewService(db, newMemGeo(), nil)
	_, err := svc.UpdateDriverLocation(context.Background(), "ghost", types.Point{Lat: 1, Lng: 1})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSetAvailability(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupDB(t)
	testutil.SeedDriver(t, db, "d1", false, types.Point{Lat: 12.90, Lng: 77.50})
	testutil.SeedDriver(t, db, "d2", true, types.Point{Lat: 12.91, Lng: 77.51})
	_, err := db.Exec(ctx, `UPDATE drivers SET current_order_id = 'o9' WHERE id = 'd2'`)
	require.NoError(t, err)

	geo := newMemGeo()
	svc := NewService(db, geo, nil)

	d, err := svc.SetAvailability(ctx, "d1", true)
	require.NoError(t, err)
	assert.True(t, d.Online)
	assert.True(t, geo.has("d1"))

	_, err = svc.SetAvailability(ctx, "d1", false)
	require.NoError(t, err)
	assert.False(t, geo.has("d1"))

	_, err = svc.SetAvailability(ctx, "d2", false)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))
	d2, err := driver.NewStore().Get(ctx, db, "d2")
	require.NoError(t, err)
	assert.True(t, d2.Online)

	_, err = svc.SetAvailability(ctx, "ghost", true)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
