// README: Postgres fixtures for DB-backed tests. Tests skip unless FITDASH_TEST_DSN is set.
package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fitdash/internal/types"
)

const tables = "payments, dispatch_outbox, order_logs, order_items, orders, drivers, products, stores, users"

// SetupDB connects to FITDASH_TEST_DSN, applies every up migration and
// truncates all tables.
func SetupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("FITDASH_TEST_DSN")
	if dsn == "" {
		t.Skip("FITDASH_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "connect db")
	t.Cleanup(db.Close)

	require.NoError(t, applyMigrations(ctx, db), "apply migrations")

	_, err = db.Exec(ctx, "TRUNCATE TABLE "+tables)
	require.NoError(t, err, "truncate tables")
	return db
}

func applyMigrations(ctx context.Context, db *pgxpool.Pool) error {
	root, err := RepoRoot()
	if err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(root, "migrations", "*.up.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, stmt := range splitSQL(stripSQLComments(string(content))) {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func RepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if stmt := strings.TrimSpace(p); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// SeedProduct inserts a product; stock is any JSON-encodable value (an int
// for uniform stock, a map for per-size stock).
func SeedProduct(t *testing.T, db *pgxpool.Pool, id, title, category, price string, stock any) {
	t.Helper()
	raw, err := json.Marshal(stock)
	require.NoError(t, err)
	_, err = db.Exec(context.Background(), `
		INSERT INTO products (id, title, category, price, stock) VALUES ($1, $2, $3, $4, $5)`,
		id, title, category, decimal.RequireFromString(price), raw)
	require.NoError(t, err, "seed product %s", id)
}

func SeedDriver(t *testing.T, db *pgxpool.Pool, id string, online bool, at types.Point) {
	t.Helper()
	ctx := context.Background()
	_, err := db.Exec(ctx, `INSERT INTO users (id, role) VALUES ($1, 'driver') ON CONFLICT DO NOTHING`, id)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `
		INSERT INTO drivers (id, online, lat, lng, location_updated_at) VALUES ($1, $2, $3, $4, NOW())`,
		id, online, at.Lat, at.Lng)
	require.NoError(t, err, "seed driver %s", id)
}

func SeedUser(t *testing.T, db *pgxpool.Pool, id, role string) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO users (id, role) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role`, id, role)
	require.NoError(t, err, "seed user %s", id)
}

func SeedStore(t *testing.T, db *pgxpool.Pool, id, name string, at types.Point, active bool) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO stores (id, name, address, lat, lng, active) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, name, name+" warehouse", at.Lat, at.Lng, active)
	require.NoError(t, err, "seed store %s", id)
}

// Stock reads a product's raw stock JSON.
func Stock(t *testing.T, db *pgxpool.Pool, productID string) string {
	t.Helper()
	var raw []byte
	err := db.QueryRow(context.Background(), `SELECT stock FROM products WHERE id = $1`, productID).Scan(&raw)
	require.NoError(t, err)
	return string(raw)
}
