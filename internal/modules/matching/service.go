// README: Matching service pulls available units from the directory and picks the nearest.
package matching

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/types"
)

var ErrNoUnit = errors.New("no available unit")

type Service struct {
	units fleet.Directory
}

func NewService(units fleet.Directory) *Service {
	return &Service{units: units}
}

// FindNearest returns ErrNoUnit when no available unit of class has a usable
// location. An empty class matches every class. Units listed in exclude are
// ignored, which lets callers retry after losing a claim race.
func (s *Service) FindNearest(ctx context.Context, pickup types.Point, class fleet.Class, exclude ...types.ID) (Match, error) {
	candidates, err := s.units.ListAvailable(ctx, class)
	if err != nil {
		return Match{}, fmt.Errorf("list candidates: %w", err)
	}
	if len(exclude) > 0 {
		candidates = slices.DeleteFunc(candidates, func(u fleet.Unit) bool {
			return slices.Contains(exclude, u.ID)
		})
	}
	u, d, ok := Nearest(pickup, candidates)
	if !ok {
		return Match{Available: len(candidates)}, ErrNoUnit
	}
	return Match{Unit: u, Distance: d, Available: len(candidates)}, nil
}
