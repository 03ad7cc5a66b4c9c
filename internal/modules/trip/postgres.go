// README: Trip store backed by PostgreSQL with an append-only state event log.
package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/types"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const tripColumns = `id, requester_id, unit_id, class, driver_name, status, status_version,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, unit_lat, unit_lng,
	fare, currency, fare_source, distance_m, distance_text, eta_s, eta_text,
	created_at, updated_at, completed_at, cancelled_at, cancel_reason`

func (s *PostgresStore) Create(ctx context.Context, t *Trip) error {
	var dLat, dLng *float64
	if t.Dropoff != nil {
		dLat, dLng = &t.Dropoff.Lat, &t.Dropoff.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO trips (`+tripColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20,
			$21, $22, NULL, NULL, ''
		)`,
		string(t.ID), string(t.RequesterID), string(t.UnitID), string(t.Class), t.DriverName,
		string(t.Status), t.Version,
		t.Pickup.Lat, t.Pickup.Lng, dLat, dLng, t.UnitStart.Lat, t.UnitStart.Lng,
		t.Fare.Amount, t.Fare.Currency, string(t.FareSource),
		t.Distance, t.DistanceText, t.ETA, t.ETAText,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Trip, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, string(id))
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trips
		SET status = $1,
		    status_version = status_version + 1,
		    updated_at = NOW(),
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END,
		    cancel_reason = CASE WHEN $1 = 'cancelled' THEN $5 ELSE cancel_reason END
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version, reason,
	)
	if err != nil {
		return false, fmt.Errorf("update trip status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FindActiveByUnit(ctx context.Context, unitID types.ID) (*Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE unit_id = $1 AND status IN ('requested','confirmed','en_route')
		ORDER BY created_at DESC
		LIMIT 1`, string(unitID),
	)
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Trip, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE status IN ('requested','confirmed','en_route')
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active trips: %w", err)
	}
	defer rows.Close()
	var out []*Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *Event) error {
	var actor *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actor = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_state_events (
			trip_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.TripID), string(e.FromStatus), string(e.ToStatus), e.ActorType, actor, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Events(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, trip_id, from_status, to_status, actor_type, actor_id, created_at
		FROM trip_state_events
		WHERE trip_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list trip events: %w", err)
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var actor *string
		if err := rows.Scan(&e.ID, &e.TripID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actor != nil {
			a := types.ID(*actor)
			e.ActorID = &a
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	var dLat, dLng *float64
	var completedAt, cancelledAt *time.Time
	err := row.Scan(
		&t.ID, &t.RequesterID, &t.UnitID, &t.Class, &t.DriverName, &t.Status, &t.Version,
		&t.Pickup.Lat, &t.Pickup.Lng, &dLat, &dLng, &t.UnitStart.Lat, &t.UnitStart.Lng,
		&t.Fare.Amount, &t.Fare.Currency, &t.FareSource,
		&t.Distance, &t.DistanceText, &t.ETA, &t.ETAText,
		&t.CreatedAt, &t.UpdatedAt, &completedAt, &cancelledAt, &t.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	if dLat != nil && dLng != nil {
		t.Dropoff = &types.Point{Lat: *dLat, Lng: *dLng}
	}
	t.CompletedAt, t.CancelledAt = completedAt, cancelledAt
	return &t, nil
}
