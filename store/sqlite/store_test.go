package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/store/storetest"
)

func createTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fundme.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, createTestStore)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "fundme.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM fundme_migrations`).Scan(&n))
	require.Equal(t, len(Migrations), n)
}
