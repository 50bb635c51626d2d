// Package storagetest hands tests a pool on a throwaway schema of the
// database named by DATABASE_URL. Tests using it are skipped when the
// variable is unset.
package storagetest

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"deltacar/server/internal/storage"
)

const envURL = "DATABASE_URL"

// NewPool creates a fresh schema, applies the store schema inside it and
// returns a pool whose search_path points there. The schema is dropped when
// the test ends.
func NewPool(t testing.TB) *pgxpool.Pool {
	t.Helper()

	raw := os.Getenv(envURL)
	if raw == "" {
		t.Skipf("%s not set; skipping database test", envURL)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		t.Skipf("%s is not a postgres:// URL; skipping database test", envURL)
	}

	ctx := context.Background()
	schema := "deltacar_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	quoted := pgx.Identifier{schema}.Sanitize()

	admin, err := pgx.Connect(ctx, raw)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+quoted)
	require.NoError(t, err)
	require.NoError(t, admin.Close(ctx))

	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	store, err := storage.New(ctx, u.String())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.Pool().Exec(context.Background(), "DROP SCHEMA IF EXISTS "+quoted+" CASCADE")
		store.Close()
	})
	require.NoError(t, store.Init(ctx))

	return store.Pool()
}
