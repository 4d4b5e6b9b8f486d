package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tabwave/stepgate/internal/gateway/domain"
	"github.com/tabwave/stepgate/internal/gateway/store"
	"github.com/tabwave/stepgate/internal/gateway/store/drivers/memory"
)

func TestHousekeeping_SweepRemovesStaleRecords(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()

	require.NoError(t, ledger.StoreAccessRequest(ctx, domain.AccessRequest{
		Host: "host1", Subject: "stale@b.com", IssuedAt: time.Now().Add(-2 * time.Hour), CodeHash: "h",
	}))
	require.NoError(t, ledger.StoreAccessRequest(ctx, domain.AccessRequest{
		Host: "host1", Subject: "fresh@b.com", IssuedAt: time.Now(), CodeHash: "h",
	}))

	s := NewHousekeepingService(ledger, testLogger(), time.Hour, time.Hour)
	s.sweep()

	_, err := ledger.GetAccessRequest(ctx, "host1", "stale@b.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = ledger.GetAccessRequest(ctx, "host1", "fresh@b.com")
	require.NoError(t, err)
}

func TestHousekeeping_StartStop(t *testing.T) {
	s := NewHousekeepingService(memory.NewLedger(), testLogger(), 10*time.Millisecond, time.Hour)
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
