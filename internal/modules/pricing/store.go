// README: Pricing rate table backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/modules/fleet"
)

var ErrRateNotFound = errors.New("rate not found")

// RateSource resolves per-class rates.
type RateSource interface {
	GetRate(ctx context.Context, class fleet.Class) (Rate, error)
}

// StaticRates serves rates from a fixed table.
type StaticRates map[fleet.Class]Rate

func (s StaticRates) GetRate(_ context.Context, class fleet.Class) (Rate, error) {
	if r, ok := s[class]; ok {
		return r, nil
	}
	return Rate{}, ErrRateNotFound
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, class fleet.Class) (Rate, error) {
	r := Rate{Class: class}
	err := s.db.QueryRow(ctx, `
		SELECT base_fare, per_km FROM fare_rates WHERE class = $1`, string(class),
	).Scan(&r.BaseFare, &r.PerKm)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	if err != nil {
		return Rate{}, fmt.Errorf("get rate %s: %w", class, err)
	}
	return r, nil
}

// UpsertRate writes one row of the rate table.
func (s *Store) UpsertRate(ctx context.Context, r Rate) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO fare_rates (class, base_fare, per_km) VALUES ($1, $2, $3)
		ON CONFLICT (class) DO UPDATE SET base_fare = EXCLUDED.base_fare, per_km = EXCLUDED.per_km`,
		string(r.Class), r.BaseFare, r.PerKm,
	)
	return err
}
