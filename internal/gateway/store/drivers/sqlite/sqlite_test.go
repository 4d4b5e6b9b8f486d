package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/store"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ledger.db")
	l, err := NewLedger(dsn)
	require.NoError(t, err)
	require.NoError(t, l.ApplyMigrations())
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_ReplaceOnStore(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.StoreAccessRequest(ctx, domain.AccessRequest{
		Host: "host1", Subject: "a@b.com", IssuedAt: time.Unix(1000, 0), CodeHash: "hash1",
	}))
	require.NoError(t, l.StoreAccessRequest(ctx, domain.AccessRequest{
		Host: "host1", Subject: "a@b.com", IssuedAt: time.Unix(2000, 0), CodeHash: "hash2",
	}))

	got, err := l.GetAccessRequest(ctx, "host1", "a@b.com")
	require.NoError(t, err)
	require.Equal(t, "hash2", got.CodeHash)
	require.Equal(t, int64(2000), got.IssuedAt.Unix())
}

func TestLedger_GetMissing(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.GetAccessRequest(context.Background(), "host1", "nobody@b.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLedger_Delete(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.StoreAccessRequest(ctx, domain.AccessRequest{
		Host: "host1", Subject: "a@b.com", IssuedAt: time.Unix(1000, 0), CodeHash: "h",
	}))
	require.NoError(t, l.DeleteAccessRequests(ctx, "host1", "a@b.com"))

	_, err := l.GetAccessRequest(ctx, "host1", "a@b.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, l.DeleteAccessRequests(ctx, "host1", "a@b.com"))
}

func TestLedger_DeleteExpiredBefore(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.StoreAccessRequest(ctx, domain.AccessRequest{
		Host: "host1", Subject: "old@b.com", IssuedAt: time.Unix(1000, 0), CodeHash: "h1",
	}))
	require.NoError(t, l.StoreAccessRequest(ctx, domain.AccessRequest{
		Host: "host1", Subject: "fresh@b.com", IssuedAt: time.Unix(5000, 0), CodeHash: "h2",
	}))

	removed, err := l.DeleteExpiredBefore(ctx, time.Unix(2000, 0))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = l.GetAccessRequest(ctx, "host1", "fresh@b.com")
	require.NoError(t, err)
}

func TestLedger_MigrationsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.ApplyMigrations())
	require.NoError(t, l.Ping(context.Background()))
}
