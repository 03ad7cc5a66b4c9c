// README: Matching tests covering nearest selection, ties, invalid locations and class filters.
package matching

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/types"
)

func unitAt(id string, lat, lng float64) fleet.Unit {
	p := types.Point{Lat: lat, Lng: lng}
	return fleet.Unit{ID: types.ID(id), Class: fleet.ClassSedan, Location: &p, Status: fleet.StatusAvailable}
}

func TestNearestPicksClosest(t *testing.T) {
	candidates := []fleet.Unit{unitAt("a", 0, 0), unitAt("b", 1, 1)}
	got, d, ok := Nearest(types.Point{Lat: 0, Lng: 0}, candidates)
	require.True(t, ok)
	assert.Equal(t, types.ID("a"), got.ID)
	assert.Zero(t, d)
}

func TestNearestFirstOfTiesWins(t *testing.T) {
	candidates := []fleet.Unit{unitAt("east", 0, 1), unitAt("west", 0, -1), unitAt("north", 1, 0)}
	got, _, ok := Nearest(types.Point{}, candidates)
	require.True(t, ok)
	assert.Equal(t, types.ID("east"), got.ID)
}

func TestNearestSkipsUnresolvableLocations(t *testing.T) {
	bad := fleet.Unit{ID: "nil-loc", Status: fleet.StatusAvailable}
	nan := unitAt("nan", math.NaN(), 0)
	far := unitAt("far", 10, 10)
	got, _, ok := Nearest(types.Point{}, []fleet.Unit{bad, nan, far})
	require.True(t, ok)
	assert.Equal(t, types.ID("far"), got.ID)
}

func TestNearestNone(t *testing.T) {
	_, _, ok := Nearest(types.Point{}, nil)
	assert.False(t, ok)

	_, _, ok = Nearest(types.Point{}, []fleet.Unit{{ID: "x"}, unitAt("y", 95, 0)})
	assert.False(t, ok)
}

func TestNearestMinimisesDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		pickup := types.Point{Lat: 15 + rng.Float64(), Lng: 78 + rng.Float64()}
		var candidates []fleet.Unit
		for i := 0; i < 1+rng.Intn(20); i++ {
			candidates = append(candidates, unitAt(string(rune('a'+i)), 15+rng.Float64(), 78+rng.Float64()))
		}
		got, d, ok := Nearest(pickup, candidates)
		require.True(t, ok)
		for _, c := range candidates {
			assert.LessOrEqual(t, d, types.PlanarDistance(pickup, *c.Location), "round %d picked %s", round, got.ID)
		}
	}
}

type failingDirectory struct{ fleet.Directory }

func (failingDirectory) ListAvailable(context.Context, fleet.Class) ([]fleet.Unit, error) {
	return nil, errors.New("db down")
}

func TestServiceFindNearest(t *testing.T) {
	ctx := context.Background()
	dir := fleet.NewMemoryStore(fleet.DemoUnits()...)
	svc := NewService(dir)

	// Driver A sits exactly on this point.
	m, err := svc.FindNearest(ctx, types.Point{Lat: 15.8281, Lng: 78.0373}, "")
	require.NoError(t, err)
	assert.Equal(t, types.ID("taxi_001"), m.Unit.ID)
	assert.Equal(t, 25, m.Available)

	m, err = svc.FindNearest(ctx, types.Point{Lat: 15.8281, Lng: 78.0373}, fleet.ClassSUV)
	require.NoError(t, err)
	assert.Equal(t, fleet.ClassSUV, m.Unit.Class)
	assert.Equal(t, 8, m.Available)

	m, err = svc.FindNearest(ctx, types.Point{Lat: 15.8281, Lng: 78.0373}, "", "taxi_001")
	require.NoError(t, err)
	assert.NotEqual(t, types.ID("taxi_001"), m.Unit.ID)
	assert.Equal(t, 24, m.Available)
}

func TestServiceFindNearestNoUnit(t *testing.T) {
	ctx := context.Background()
	svc := NewService(fleet.NewMemoryStore())
	_, err := svc.FindNearest(ctx, types.Point{}, "")
	assert.ErrorIs(t, err, ErrNoUnit)

	_, err = NewService(failingDirectory{}).FindNearest(ctx, types.Point{}, "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoUnit)
}
