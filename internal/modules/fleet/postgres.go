// README: Unit directory backed by PostgreSQL.
package fleet

import (
	"context"
	"errors"
	"fmt"

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

const unitColumns = `id, driver_name, class, lat, lng, status, updated_at`

func (s *PostgresStore) ListAvailable(ctx context.Context, class Class) ([]Unit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+unitColumns+`
		FROM units
		WHERE status = 'available'
		  AND ($1 = '' OR class = $1)
		ORDER BY id`, string(class),
	)
	if err != nil {
		return nil, fmt.Errorf("list available units: %w", err)
	}
	return collectUnits(rows)
}

func (s *PostgresStore) List(ctx context.Context) ([]Unit, error) {
	rows, err := s.db.Query(ctx, `SELECT `+unitColumns+` FROM units ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return collectUnits(rows)
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (Unit, error) {
	row := s.db.QueryRow(ctx, `SELECT `+unitColumns+` FROM units WHERE id = $1`, string(id))
	u, err := scanUnit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, ErrNotFound
	}
	return u, err
}

func (s *PostgresStore) SetStatus(ctx context.Context, id types.ID, status Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE units SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), string(id),
	)
	if err != nil {
		return fmt.Errorf("set unit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetLocation(ctx context.Context, id types.ID, p types.Point) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE units SET lat = $1, lng = $2, updated_at = NOW() WHERE id = $3`,
		p.Lat, p.Lng, string(id),
	)
	if err != nil {
		return fmt.Errorf("set unit location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE units SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("claim unit: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, u Unit) error {
	var lat, lng *float64
	if u.Location != nil {
		lat, lng = &u.Location.Lat, &u.Location.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO units (id, driver_name, class, lat, lng, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			driver_name = EXCLUDED.driver_name,
			class = EXCLUDED.class,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			status = EXCLUDED.status,
			updated_at = NOW()`,
		string(u.ID), u.DriverName, string(u.Class), lat, lng, string(u.Status),
	)
	if err != nil {
		return fmt.Errorf("upsert unit %s: %w", u.ID, err)
	}
	return nil
}

func collectUnits(rows pgx.Rows) ([]Unit, error) {
	defer rows.Close()
	var out []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// scanUnit resolves the nullable coordinate pair into a single Point.
func scanUnit(row pgx.Row) (Unit, error) {
	var u Unit
	var id, class, status string
	var lat, lng *float64
	if err := row.Scan(&id, &u.DriverName, &class, &lat, &lng, &status, &u.UpdatedAt); err != nil {
		return Unit{}, err
	}
	u.ID = types.ID(id)
	u.Class = Class(class)
	u.Status = Status(status)
	if lat != nil && lng != nil {
		p := types.Point{Lat: *lat, Lng: *lng}
		if p.Valid() {
			u.Location = &p
		}
	}
	return u, nil
}
