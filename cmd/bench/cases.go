// README: Benchmark cases: environment, schema, API contract, stock/driver invariants, concurrency and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	statusPass    = "PASS"
	statusFail    = "FAIL"
	statusPending = "PENDING"
	statusSkip    = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: statusFail, Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Migration: tables exist", Run: checkTables},

		getCase("API: health", "/health", []int{http.StatusOK}),
		getCase("API: metrics", "/metrics", []int{http.StatusOK}),
		getCase("Auth: missing token -> 401", "/api/orders/o1", []int{http.StatusUnauthorized}),

		postCase("Order: empty cart -> 400", "/api/orders", tokenCustomer, map[string]any{
			"items":   []any{},
			"address": "1 Residency Road",
		}, []int{http.StatusBadRequest}),
		postCase("Order: unknown product -> 404", "/api/orders", tokenCustomer, map[string]any{
			"items":   []map[string]any{{"productId": "bench-missing-product", "quantity": 1}},
			"address": "1 Residency Road",
		}, []int{http.StatusNotFound}),
		{Name: "Order: create and read back", Run: createAndGet},
		postCase("Rating: out of range -> 400", "/api/orders/o1/rating", tokenCustomer, map[string]any{"rating": 9}, []int{http.StatusBadRequest}),
		postCase("Payment: bad signature -> 400", "/api/payments/verify", tokenCustomer, map[string]any{
			"gatewayOrderId": "order_bench", "paymentId": "pay_bench", "signature": "00",
		}, []int{http.StatusBadRequest}),
		putCase("Location: invalid coords -> 400", "/api/drivers/me/location", tokenDriver, map[string]any{"lat": 123.0, "lng": 456.0}, []int{http.StatusBadRequest}),

		{Name: "Invariant: no negative stock", Run: sqlZero(`
			SELECT COUNT(*) FROM products
			WHERE (jsonb_typeof(stock) = 'number' AND stock::text::numeric < 0)
			   OR (jsonb_typeof(stock) = 'object' AND EXISTS (
			        SELECT 1 FROM jsonb_each_text(stock) e WHERE e.value::numeric < 0))`)},
		{Name: "Invariant: drivers hold only active orders", Run: sqlZero(`
			SELECT COUNT(*) FROM drivers d
			JOIN orders o ON o.id = d.current_order_id
			WHERE o.status NOT IN ('assigned', 'picked_up') OR o.driver_id IS DISTINCT FROM d.id`)},
		{Name: "Invariant: every order has a placed log", Run: sqlZero(`
			SELECT COUNT(*) FROM orders o
			WHERE NOT EXISTS (SELECT 1 FROM order_logs l WHERE l.order_id = o.id AND l.status = 'placed')`)},
		{Name: "Invariant: outbox drained", Run: sqlZero(`
			SELECT COUNT(*) FROM dispatch_outbox WHERE published_at IS NULL AND created_at < NOW() - INTERVAL '1 minute'`)},
		{Name: "Dispatch: queue depth", Run: queueDepth},

		{Name: "Concurrency: no oversell on one unit", Run: oversell},
		{Name: "Perf: location update throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, http.MethodPut, "/api/drivers/me/location", r.cfg.DriverToken, map[string]any{"lat": 12.9716, "lng": 77.5946})
		}},
		{Name: "Perf: order read throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, http.MethodGet, "/api/orders/bench-missing-order", r.cfg.CustomerToken, nil)
		}},
	}
}

type tokenKind int

const (
	tokenNone tokenKind = iota
	tokenCustomer
	tokenDriver
)

func (r *Runner) token(k tokenKind) (string, bool) {
	switch k {
	case tokenCustomer:
		return r.cfg.CustomerToken, r.cfg.CustomerToken != ""
	case tokenDriver:
		return r.cfg.DriverToken, r.cfg.DriverToken != ""
	}
	return "", true
}

func (r *Runner) do(ctx context.Context, method, path, token string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, time.Since(start), err
}

func httpCase(name, method, path string, tk tokenKind, body any, ok []int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			token, have := r.token(tk)
			if !have {
				return Result{Status: statusSkip, Note: "no token configured"}
			}
			code, _, latency, err := r.do(ctx, method, path, token, body)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			note := fmt.Sprintf("status=%d", code)
			if contains(ok, code) {
				return Result{Status: statusPass, Latency: latency, Note: note}
			}
			if code == http.StatusNotFound || code == http.StatusNotImplemented {
				return Result{Status: statusPending, Latency: latency, Note: note}
			}
			return Result{Status: statusFail, Latency: latency, Note: note}
		},
	}
}

func getCase(name, path string, ok []int) TestCase {
	return httpCase(name, http.MethodGet, path, tokenNone, nil, ok)
}

func postCase(name, path string, tk tokenKind, body any, ok []int) TestCase {
	return httpCase(name, http.MethodPost, path, tk, body, ok)
}

func putCase(name, path string, tk tokenKind, body any, ok []int) TestCase {
	return httpCase(name, http.MethodPut, path, tk, body, ok)
}

func createAndGet(ctx context.Context, r *Runner) Result {
	if r.cfg.CustomerToken == "" || r.cfg.ProductID == "" {
		return Result{Status: statusSkip, Note: "needs FITDASH_BENCH_TOKEN and FITDASH_BENCH_PRODUCT_ID"}
	}
	code, body, latency, err := r.do(ctx, http.MethodPost, "/api/orders", r.cfg.CustomerToken, map[string]any{
		"items":   []map[string]any{{"productId": r.cfg.ProductID, "quantity": 1}},
		"address": "1 Residency Road",
	})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code == http.StatusPreconditionFailed {
		return Result{Status: statusSkip, Latency: latency, Note: "bench product out of stock"}
	}
	if code != http.StatusCreated {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("create status=%d", code)}
	}
	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.OrderID == "" {
		return Result{Status: statusFail, Note: "create response without orderId"}
	}
	code, body, _, err = r.do(ctx, http.MethodGet, "/api/orders/"+created.OrderID, r.cfg.CustomerToken, nil)
	if err != nil || code != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("get status=%d err=%v", code, err)}
	}
	var got struct {
		Status string            `json:"status"`
		Logs   []json.RawMessage `json:"logs"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if len(got.Logs) == 0 {
		return Result{Status: statusFail, Note: "order has no log entries"}
	}
	return Result{Status: statusPass, Latency: latency, Note: "status=" + got.Status}
}

// oversell fires Concurrency single-unit orders at the bench product and
// checks that successes never exceed the stock read beforehand.
func oversell(ctx context.Context, r *Runner) Result {
	if r.db == nil || r.cfg.CustomerToken == "" || r.cfg.ProductID == "" {
		return Result{Status: statusSkip, Note: "needs db, FITDASH_BENCH_TOKEN and FITDASH_BENCH_PRODUCT_ID"}
	}
	var stock int
	err := r.db.QueryRow(ctx, `SELECT stock::text::int FROM products WHERE id = $1 AND jsonb_typeof(stock) = 'number'`, r.cfg.ProductID).Scan(&stock)
	if err != nil {
		return Result{Status: statusSkip, Note: "bench product needs uniform stock: " + err.Error()}
	}

	var ok, rejected int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Concurrency; i++ {
		g.Go(func() error {
			code, _, _, err := r.do(gctx, http.MethodPost, "/api/orders", r.cfg.CustomerToken, map[string]any{
				"items":   []map[string]any{{"productId": r.cfg.ProductID, "quantity": 1}},
				"address": "1 Residency Road",
			})
			if err != nil {
				return err
			}
			switch code {
			case http.StatusCreated:
				atomic.AddInt64(&ok, 1)
			case http.StatusPreconditionFailed:
				atomic.AddInt64(&rejected, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}

	note := fmt.Sprintf("stock=%d created=%d rejected=%d", stock, ok, rejected)
	if int(ok) > stock {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, method, path, token string, payload any) Result {
	if token == "" {
		return Result{Status: statusSkip, Note: "no token configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	var count, errCount int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Concurrency; i++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				if _, _, _, err := r.do(gctx, method, path, token, payload); err != nil {
					if gctx.Err() == nil {
						atomic.AddInt64(&errCount, 1)
					}
					continue
				}
				atomic.AddInt64(&count, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func sqlZero(query string) func(ctx context.Context, r *Runner) Result {
	return func(ctx context.Context, r *Runner) Result {
		if r.db == nil {
			return Result{Status: statusFail, Note: "db not configured"}
		}
		var n int
		if err := r.db.QueryRow(ctx, query).Scan(&n); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if n != 0 {
			return Result{Status: statusFail, Note: fmt.Sprintf("violations=%d", n)}
		}
		return Result{Status: statusPass}
	}
}

func queueDepth(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusFail, Note: "redis not configured"}
	}
	pending, err := r.redis.LLen(ctx, "dispatch:queue").Result()
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	retries, err := r.redis.ZCard(ctx, "dispatch:retry").Result()
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("queued=%d retrying=%d", pending, retries)}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationDir)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no migrations under %s", dir)
	}
	sort.Strings(files)
	var tables []string
	for _, path := range files {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		for _, m := range createTableRe.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
	}
	return tables, nil
}
