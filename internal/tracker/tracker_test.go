package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperminder/internal/storage"
	"paperminder/internal/wsconn"
)

func newTestTracker(t *testing.T) (*Tracker, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, nil), store
}

func seedPrinterAndRollout(t *testing.T, store storage.Store, printerID, rolloutID string, totalTargets, pending int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertPrinter(ctx, &storage.Printer{ID: printerID, Platform: "esp32", FirmwareVersion: "1.0.0", AutoUpdate: true}))
	require.NoError(t, store.CreateRollout(ctx, &storage.UpdateRollout{
		ID:            rolloutID,
		TargetVersion: "2.0.0",
		TargetAll:     true,
		RolloutType:   storage.RolloutImmediate,
		Status:        storage.RolloutActive,
		TotalTargets:  totalTargets,
		PendingCount:  pending,
		CreatedAt:     time.Now().UTC(),
	}))
	require.NoError(t, store.CreateHistory(ctx, &storage.UpdateHistory{
		ID:        "hist-" + printerID,
		RolloutID: rolloutID,
		PrinterID: printerID,
		Version:   "2.0.0",
		Status:    storage.HistoryPending,
		StartedAt: time.Now().UTC(),
	}))
}

func TestTracker_CompleteUpdatesHistoryPrinterAndCounters(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()
	seedPrinterAndRollout(t, store, "printer-1", "rollout-1", 1, 1)

	require.NoError(t, tr.Complete(ctx, "printer-1", wsconn.FirmwareCompleteFrame{Version: "2.0.0"}))

	p, err := store.GetPrinter(ctx, "printer-1")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", p.FirmwareVersion)

	r, err := store.GetRollout(ctx, "rollout-1")
	require.NoError(t, err)
	assert.Equal(t, 0, r.PendingCount)
	assert.Equal(t, 1, r.CompletedCount)
	assert.Equal(t, storage.RolloutCompleted, r.Status, "expected rollout auto-completed once pending hit 0")

	_, err = store.GetNonTerminalHistory(ctx, "rollout-1", "printer-1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "expected history row to be terminal")
}

func TestTracker_FailedDecrementsPendingAndIncrementsFailed(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()
	seedPrinterAndRollout(t, store, "printer-2", "rollout-2", 2, 2)

	require.NoError(t, tr.Failed(ctx, "printer-2", wsconn.FirmwareFailedFrame{Error: "oom"}))

	r, err := store.GetRollout(ctx, "rollout-2")
	require.NoError(t, err)
	assert.Equal(t, 1, r.PendingCount)
	assert.Equal(t, 1, r.FailedCount)
	assert.Equal(t, storage.RolloutActive, r.Status, "expected rollout to remain active with pending_count=1")
}

func TestTracker_DeclinedTurnsOffAutoUpdate(t *testing.T) {
	tr, store := newTestTracker(t)
	ctx := context.Background()
	seedPrinterAndRollout(t, store, "printer-3", "rollout-3", 1, 1)

	require.NoError(t, tr.Declined(ctx, "printer-3", wsconn.FirmwareDeclinedFrame{Version: "2.0.0", AutoUpdate: false}))

	p, err := store.GetPrinter(ctx, "printer-3")
	require.NoError(t, err)
	assert.False(t, p.AutoUpdate, "expected auto_update persisted false after decline with auto_update=false")
}
