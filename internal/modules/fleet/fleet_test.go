package fleet

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/types"
)

func TestParseClass(t *testing.T) {
	tests := []struct {
		in      string
		want    Class
		wantErr bool
	}{
		{"", "", false},
		{"mini", ClassMini, false},
		{" SEDAN ", ClassSedan, false},
		{"suv", ClassSUV, false},
		{"limo", "", true},
	}
	for _, tt := range tests {
		got, err := ParseClass(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownClass, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestDemoUnits(t *testing.T) {
	units := DemoUnits()
	require.Len(t, units, 25)
	assert.Equal(t, types.ID("taxi_001"), units[0].ID)
	assert.Equal(t, "Driver A", units[0].DriverName)
	assert.Equal(t, types.ID("taxi_025"), units[24].ID)
	assert.Equal(t, ClassSUV, units[24].Class)

	perClass := map[Class]int{}
	for _, u := range units {
		_, ok := u.Position()
		assert.True(t, ok, u.ID)
		assert.Equal(t, StatusAvailable, u.Status)
		perClass[u.Class]++
	}
	assert.Equal(t, map[Class]int{ClassMini: 8, ClassSedan: 9, ClassSUV: 8}, perClass)
}

func TestMemoryStoreListAvailableFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DemoUnits()...)
	require.NoError(t, s.SetStatus(ctx, "taxi_002", StatusEnRouteToPickup))

	sedans, err := s.ListAvailable(ctx, ClassSedan)
	require.NoError(t, err)
	require.NotEmpty(t, sedans)
	for i, u := range sedans {
		assert.Equal(t, ClassSedan, u.Class)
		assert.NotEqual(t, types.ID("taxi_002"), u.ID)
		if i > 0 {
			assert.Less(t, string(sedans[i-1].ID), string(u.ID))
		}
	}

	all, err := s.ListAvailable(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 24)
}

func TestMemoryStoreCompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DemoUnits()...)

	ok, err := s.CompareAndSetStatus(ctx, "taxi_001", StatusAvailable, StatusEnRouteToPickup)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSetStatus(ctx, "taxi_001", StatusAvailable, StatusEnRouteToPickup)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.CompareAndSetStatus(ctx, "missing", StatusAvailable, StatusEnRouteToPickup)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DemoUnits()...)
	u, err := s.Get(ctx, "taxi_001")
	require.NoError(t, err)
	u.Location.Lat = 0

	again, err := s.Get(ctx, "taxi_001")
	require.NoError(t, err)
	assert.Equal(t, 15.8281, again.Location.Lat)
}

func TestMemoryStoreStatusAndSummary(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DemoUnits()...)
	require.NoError(t, s.SetStatus(ctx, "taxi_001", StatusEnRouteToPickup))
	require.NoError(t, s.SetStatus(ctx, "taxi_002", StatusArrivedAtPickup))
	require.ErrorIs(t, s.SetStatus(ctx, "nope", StatusAvailable), ErrNotFound)
	require.ErrorIs(t, s.SetLocation(ctx, "nope", types.Point{}), ErrNotFound)

	units, err := s.List(ctx)
	require.NoError(t, err)
	sum := Summary(units)
	assert.Equal(t, 23, sum[StatusAvailable])
	assert.Equal(t, 1, sum[StatusEnRouteToPickup])
	assert.Equal(t, 1, sum[StatusArrivedAtPickup])
	assert.Equal(t, 0, sum[StatusEnRouteToDropoff])
}

func TestPositionRejectsInvalidLocation(t *testing.T) {
	_, ok := Unit{}.Position()
	assert.False(t, ok)
	_, ok = Unit{Location: &types.Point{Lat: 200, Lng: 0}}.Position()
	assert.False(t, ok)
}

// TestPostgresStoreIntegration requires a migrated database. Set RIDE_TEST_DSN to run.
func TestPostgresStoreIntegration(t *testing.T) {
	dsn := os.Getenv("RIDE_TEST_DSN")
	if dsn == "" {
		t.Skip("RIDE_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	s := NewPostgresStore(pool)
	_, err = Seed(ctx, s)
	require.NoError(t, err)
	require.NoError(t, s.SetStatus(ctx, "taxi_003", StatusAvailable))

	ok, err := s.CompareAndSetStatus(ctx, "taxi_003", StatusAvailable, StatusEnRouteToPickup)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CompareAndSetStatus(ctx, "taxi_003", StatusAvailable, StatusEnRouteToPickup)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetLocation(ctx, "taxi_003", types.Point{Lat: 15.83, Lng: 78.04}))
	u, err := s.Get(ctx, "taxi_003")
	require.NoError(t, err)
	assert.Equal(t, StatusEnRouteToPickup, u.Status)
	assert.Equal(t, 15.83, u.Location.Lat)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetStatus(ctx, "taxi_003", StatusAvailable))
}
