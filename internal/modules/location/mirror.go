// Package location mirrors live unit positions into Firebase Realtime
// Database so map clients can follow simulated movement without polling the
// API.
package location

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/db"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/modules/movement"
	"ridedispatch/internal/types"
)

// Writer stores a value at an RTDB path.
type Writer interface {
	Set(ctx context.Context, path string, v any) error
}

type rtdbWriter struct {
	client *db.Client
}

// NewRTDBWriter writes through the Admin SDK database client.
func NewRTDBWriter(client *db.Client) Writer {
	return rtdbWriter{client: client}
}

func (w rtdbWriter) Set(ctx context.Context, path string, v any) error {
	return w.client.NewRef(path).Set(ctx, v)
}

// rtdbUnitEntry is the record kept under /<root>/<unitID>.
type rtdbUnitEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status,omitempty"`
	Class     string  `json:"carType,omitempty"`
	TripID    string  `json:"tripId,omitempty"`
	Phase     string  `json:"phase,omitempty"`
	Progress  float64 `json:"progress,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type Mirror struct {
	w       Writer
	root    string
	timeout time.Duration
	log     logger.Logger
}

func NewMirror(w Writer, root string, log logger.Logger) *Mirror {
	if root == "" {
		root = "unit_locations"
	}
	return &Mirror{w: w, root: root, timeout: 5 * time.Second, log: logger.OrNop(log)}
}

// Run writes every position event until ctx is done or events is closed.
// Write failures are logged and skipped.
func (m *Mirror) Run(ctx context.Context, events <-chan movement.PositionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := m.WritePosition(ctx, ev); err != nil {
				m.log.Warnf("mirror position for unit %s: %v", ev.UnitID, err)
			}
		}
	}
}

func (m *Mirror) WritePosition(ctx context.Context, ev movement.PositionEvent) error {
	entry := rtdbUnitEntry{
		Lat:       ev.Point.Lat,
		Lng:       ev.Point.Lng,
		TripID:    string(ev.TripID),
		Phase:     string(ev.Phase),
		Timestamp: ev.At.UnixMilli(),
	}
	if ev.Total > 0 {
		entry.Progress = float64(ev.Seq) / float64(ev.Total)
	}
	return m.set(ctx, ev.UnitID, entry)
}

// Snapshot writes the current record of every unit with a usable location.
func (m *Mirror) Snapshot(ctx context.Context, units []fleet.Unit) (int, error) {
	n := 0
	for _, u := range units {
		p, ok := u.Position()
		if !ok {
			continue
		}
		err := m.set(ctx, u.ID, rtdbUnitEntry{
			Lat:       p.Lat,
			Lng:       p.Lng,
			Status:    string(u.Status),
			Class:     string(u.Class),
			Timestamp: u.UpdatedAt.UnixMilli(),
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (m *Mirror) set(ctx context.Context, id types.ID, entry rtdbUnitEntry) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.w.Set(ctx, m.root+"/"+string(id), entry); err != nil {
		return fmt.Errorf("rtdb set %s: %w", id, err)
	}
	return nil
}
