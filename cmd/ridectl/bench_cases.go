// README: bench cases: environment, HTTP smoke, concurrent booking and fare load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

var kurnoolPickup = map[string]float64{"latitude": 15.8281, "longitude": 78.0373}

func benchCases() []benchCase {
	return []benchCase{
		{Name: "env: postgres connect", Run: checkPostgres},
		{Name: "env: migration tables", Run: checkTables},
		{Name: "env: redis ping", Run: checkRedis},
		httpCase("api: health", http.MethodGet, "/health", nil, http.StatusOK),
		httpCase("api: list units", http.MethodGet, "/api/units", nil, http.StatusOK),
		httpCase("api: units status", http.MethodGet, "/api/admin/units-status", nil, http.StatusOK),
		httpCase("api: book without pickup", http.MethodPost, "/api/book", map[string]any{"carType": "sedan"}, http.StatusBadRequest),
		httpCase("api: fare predict", http.MethodPost, "/api/fare/predict", farePayload(), http.StatusOK),
		httpCase("api: distance", http.MethodGet, "/api/distance?originLat=15.8281&originLng=78.0373&destLat=15.80&destLng=78.05", nil, http.StatusOK),
		{Name: "flow: book then cancel", Run: bookThenCancel},
		{Name: "race: concurrent bookings get distinct units", Run: concurrentBookings},
		{Name: "perf: fare predict load", Run: fareLoad},
	}
}

func farePayload() map[string]any {
	return map[string]any{
		"distanceKm": 5.2,
		"carType":    "sedan",
		"latitude":   kurnoolPickup["latitude"],
		"longitude":  kurnoolPickup["longitude"],
	}
}

func checkPostgres(ctx context.Context, r *benchRunner) benchResult {
	if r.db == nil {
		return benchResult{Status: "SKIP", Note: "no --dsn"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := r.db.Ping(ctx); err != nil {
		return benchResult{Status: "FAIL", Note: err.Error()}
	}
	if r.cfg.ApplyMigration {
		raw, err := os.ReadFile(r.cfg.MigrationPath)
		if err != nil {
			return benchResult{Status: "FAIL", Note: err.Error()}
		}
		for _, stmt := range splitSQL(string(raw)) {
			if _, err := r.db.Exec(ctx, stmt); err != nil {
				return benchResult{Status: "FAIL", Note: "apply migration: " + err.Error()}
			}
		}
	}
	return benchResult{Status: "PASS", Latency: time.Since(start)}
}

func checkTables(ctx context.Context, r *benchRunner) benchResult {
	if r.db == nil {
		return benchResult{Status: "SKIP", Note: "no --dsn"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return benchResult{Status: "FAIL", Note: err.Error()}
	}
	var missing []string
	for _, tbl := range tables {
		var exists bool
		err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+tbl).Scan(&exists)
		if err != nil {
			return benchResult{Status: "FAIL", Note: err.Error()}
		}
		if !exists {
			missing = append(missing, tbl)
		}
	}
	if len(missing) > 0 {
		return benchResult{Status: "FAIL", Note: "missing " + strings.Join(missing, ",")}
	}
	return benchResult{Status: "PASS", Note: fmt.Sprintf("%d tables", len(tables))}
}

func checkRedis(ctx context.Context, r *benchRunner) benchResult {
	if r.redis == nil {
		return benchResult{Status: "SKIP", Note: "no --redis"}
	}
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return benchResult{Status: "FAIL", Note: err.Error()}
	}
	return benchResult{Status: "PASS", Latency: time.Since(start)}
}

func httpCase(name, method, path string, body any, want ...int) benchCase {
	return benchCase{
		Name: name,
		Run: func(ctx context.Context, r *benchRunner) benchResult {
			start := time.Now()
			status, _, err := r.do(ctx, method, path, body)
			if err != nil {
				return benchResult{Status: "FAIL", Note: err.Error()}
			}
			res := benchResult{Latency: time.Since(start), Note: fmt.Sprintf("status=%d", status), Status: "FAIL"}
			if slices.Contains(want, status) {
				res.Status = "PASS"
			}
			return res
		},
	}
}

type bookingEnvelope struct {
	Booking struct {
		ID     string `json:"id"`
		TaxiID string `json:"taxiId"`
		Status string `json:"status"`
	} `json:"booking"`
}

func (r *benchRunner) book(ctx context.Context, class string) (int, bookingEnvelope, error) {
	var env bookingEnvelope
	status, body, err := r.do(ctx, http.MethodPost, "/api/book", map[string]any{
		"userId":         "bench",
		"pickupLocation": kurnoolPickup,
		"carType":        class,
	})
	if err != nil || status != http.StatusCreated {
		return status, env, err
	}
	err = json.Unmarshal(body, &env)
	return status, env, err
}

func (r *benchRunner) cancel(ctx context.Context, id string) (int, error) {
	status, _, err := r.do(ctx, http.MethodPost, "/api/cancel", map[string]any{"bookingId": id, "reason": "bench"})
	return status, err
}

func bookThenCancel(ctx context.Context, r *benchRunner) benchResult {
	start := time.Now()
	status, env, err := r.book(ctx, "sedan")
	if err != nil {
		return benchResult{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusCreated {
		return benchResult{Status: "FAIL", Note: fmt.Sprintf("book status=%d", status)}
	}
	cs, err := r.cancel(ctx, env.Booking.ID)
	if err != nil {
		return benchResult{Status: "FAIL", Note: err.Error()}
	}
	if cs != http.StatusOK {
		return benchResult{Status: "FAIL", Note: fmt.Sprintf("cancel status=%d", cs)}
	}
	return benchResult{Status: "PASS", Latency: time.Since(start), Note: "taxi=" + env.Booking.TaxiID}
}

// concurrentBookings fires parallel bookings at one pickup. No unit may be
// handed to two bookings, and everything booked is cancelled afterwards.
func concurrentBookings(ctx context.Context, r *benchRunner) benchResult {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken = map[string]int{}
		ids   []string
		other []int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, env, err := r.book(ctx, "sedan")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				other = append(other, -1)
			case status == http.StatusCreated:
				taken[env.Booking.TaxiID]++
				ids = append(ids, env.Booking.ID)
			case status != http.StatusNotFound:
				other = append(other, status)
			}
		}()
	}
	wg.Wait()
	for _, id := range ids {
		_, _ = r.cancel(ctx, id)
	}

	for taxi, n := range taken {
		if n > 1 {
			return benchResult{Status: "FAIL", Note: fmt.Sprintf("%s booked %d times", taxi, n)}
		}
	}
	if len(other) > 0 {
		return benchResult{Status: "FAIL", Note: fmt.Sprintf("unexpected statuses %v", other)}
	}
	return benchResult{Status: "PASS", Note: fmt.Sprintf("booked=%d", len(ids))}
}

func fareLoad(ctx context.Context, r *benchRunner) benchResult {
	end := time.Now().Add(r.cfg.Duration)
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		count, bad int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.do(ctx, http.MethodPost, "/api/fare/predict", farePayload())
				mu.Lock()
				if err != nil || status != http.StatusOK {
					bad++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if count == 0 {
		return benchResult{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return benchResult{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, bad)}
}

func (r *benchRunner) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

var createTableRE = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, m := range createTableRE.FindAllStringSubmatch(string(b), -1) {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		l := strings.TrimSpace(line)
		if l == "" || strings.HasPrefix(l, "--") {
			continue
		}
		kept = append(kept, line)
	}
	var stmts []string
	for _, p := range strings.Split(strings.Join(kept, "\n"), ";") {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
