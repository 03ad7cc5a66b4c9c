// README: bench command; black-box checks and load against a running API plus its Postgres/Redis.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type benchConfig struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

var benchCfg benchConfig

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run smoke, race and load checks against a running API",
	RunE:  runBench,
}

func init() {
	f := benchCmd.Flags()
	f.StringVar(&benchCfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	f.StringVar(&benchCfg.DSN, "dsn", "", "Postgres DSN; DB checks are skipped when empty")
	f.StringVar(&benchCfg.RedisAddr, "redis", "", "Redis address; Redis checks are skipped when empty")
	f.StringVar(&benchCfg.MigrationPath, "migration", "migrations/0001_init.sql", "migration SQL path")
	f.BoolVar(&benchCfg.ApplyMigration, "apply-migration", false, "apply the migration before running checks")
	f.BoolVar(&benchCfg.Strict, "strict", false, "treat SKIP results as failures")
	f.DurationVar(&benchCfg.Timeout, "timeout", 60*time.Second, "total timeout")
	f.IntVar(&benchCfg.Concurrency, "concurrency", 8, "parallel clients for race and load checks")
	f.DurationVar(&benchCfg.Duration, "duration", 5*time.Second, "load check duration")
	rootCmd.AddCommand(benchCmd)
}

type benchResult struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type benchCase struct {
	Name string
	Run  func(ctx context.Context, r *benchRunner) benchResult
}

type benchRunner struct {
	cfg   benchConfig
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	out   io.Writer
}

func runBench(cmd *cobra.Command, _ []string) error {
	cfg := benchCfg
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	r := &benchRunner{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}, out: cmd.OutOrStdout()}
	defer r.close()
	if cfg.DSN != "" {
		db, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		r.db = db
	}
	if cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	results := r.runAll(ctx, benchCases())
	counts := map[string]int{}
	for _, res := range results {
		counts[res.Status]++
	}
	fmt.Fprintf(r.out, "\nPASS=%d FAIL=%d SKIP=%d\n", counts["PASS"], counts["FAIL"], counts["SKIP"])
	if counts["FAIL"] > 0 || (cfg.Strict && counts["SKIP"] > 0) {
		return fmt.Errorf("bench: %d failed, %d skipped", counts["FAIL"], counts["SKIP"])
	}
	return nil
}

func (r *benchRunner) runAll(ctx context.Context, cases []benchCase) []benchResult {
	results := make([]benchResult, 0, len(cases))
	for _, tc := range cases {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Fprintf(r.out, "%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Fprintf(r.out, " (%s)", res.Latency.Round(time.Millisecond))
		}
		if res.Note != "" {
			fmt.Fprintf(r.out, " - %s", res.Note)
		}
		fmt.Fprintln(r.out)
	}
	return results
}

func (r *benchRunner) close() {
	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
}
