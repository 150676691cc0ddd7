package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_PrinterUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &Printer{
		ID:              "11111111-1111-1111-1111-111111111111",
		Name:            "kitchen",
		Platform:        "esp32",
		FirmwareVersion: "1.0.0",
		AutoUpdate:      true,
		UpdateChannel:   ChannelStable,
	}
	if err := store.UpsertPrinter(ctx, p); err != nil {
		t.Fatalf("upsert printer: %v", err)
	}

	got, err := store.GetPrinter(ctx, p.ID)
	if err != nil {
		t.Fatalf("get printer: %v", err)
	}
	if got.Platform != "esp32" || got.FirmwareVersion != "1.0.0" {
		t.Errorf("unexpected printer row: %+v", got)
	}

	p.FirmwareVersion = "1.1.0"
	if err := store.UpsertPrinter(ctx, p); err != nil {
		t.Fatalf("re-upsert printer: %v", err)
	}
	got, err = store.GetPrinter(ctx, p.ID)
	if err != nil {
		t.Fatalf("get printer after update: %v", err)
	}
	if got.FirmwareVersion != "1.1.0" {
		t.Errorf("expected updated firmware version, got %q", got.FirmwareVersion)
	}
}

func TestSQLiteStore_GetPrinter_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetPrinter(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_AssignDailyNumber_ResetsOnNewDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &Printer{ID: "printer-1", Platform: "esp8266", FirmwareVersion: "1.0.0", DailyCounterDate: "2026-07-29", DailyMessageNumber: 5}
	if err := store.UpsertPrinter(ctx, p); err != nil {
		t.Fatalf("upsert printer: %v", err)
	}

	n, err := store.AssignDailyNumber(ctx, p.ID, "2026-07-29")
	if err != nil {
		t.Fatalf("assign same day: %v", err)
	}
	if n != 6 {
		t.Errorf("expected 6 continuing same-day count, got %d", n)
	}

	n, err = store.AssignDailyNumber(ctx, p.ID, "2026-07-30")
	if err != nil {
		t.Fatalf("assign new day: %v", err)
	}
	if n != 1 {
		t.Errorf("expected counter reset to 1 on new day, got %d", n)
	}
}

func TestSQLiteStore_MessageCacheDrain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertMessageCache(ctx, &MessageCache{
		RecipientID: "printer-1",
		SenderName:  "alice",
		Body:        "hello",
		DailyNumber: 1,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert cache: %v", err)
	}

	pending, err := store.ListUndeliveredCache(ctx, "printer-1")
	if err != nil {
		t.Fatalf("list undelivered: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}

	if err := store.MarkCacheDelivered(ctx, id); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	pending, err = store.ListUndeliveredCache(ctx, "printer-1")
	if err != nil {
		t.Fatalf("list undelivered after drain: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected drained cache to be empty, got %d", len(pending))
	}
}

func TestSQLiteStore_RolloutCountersAndCompletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ss := store.(*sqlStore)
	_, err := ss.db.ExecContext(ctx, ss.q(`INSERT INTO update_rollouts (id, target_version, target_all, rollout_type, rollout_percentage, status, total_targets, pending_count, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		"rollout-1", "2.0.0", true, RolloutImmediate, 100, RolloutActive, 2, 2, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed rollout: %v", err)
	}

	if err := store.AdjustRolloutCounters(ctx, "rollout-1", -1, 1, 0, 0); err != nil {
		t.Fatalf("adjust counters: %v", err)
	}
	r, err := store.GetRollout(ctx, "rollout-1")
	if err != nil {
		t.Fatalf("get rollout: %v", err)
	}
	if r.PendingCount != 1 || r.CompletedCount != 1 {
		t.Errorf("unexpected counters after first adjust: %+v", r)
	}

	if err := store.MaybeCompleteRollout(ctx, "rollout-1"); err != nil {
		t.Fatalf("maybe complete (should no-op): %v", err)
	}
	r, _ = store.GetRollout(ctx, "rollout-1")
	if r.Status != RolloutActive {
		t.Errorf("expected rollout to remain active while pending_count > 0, got %s", r.Status)
	}

	if err := store.AdjustRolloutCounters(ctx, "rollout-1", -1, 1, 0, 0); err != nil {
		t.Fatalf("adjust counters to zero: %v", err)
	}
	if err := store.MaybeCompleteRollout(ctx, "rollout-1"); err != nil {
		t.Fatalf("maybe complete: %v", err)
	}
	r, _ = store.GetRollout(ctx, "rollout-1")
	if r.Status != RolloutCompleted {
		t.Errorf("expected rollout completed once pending_count hit 0, got %s", r.Status)
	}
}

func TestSQLiteStore_UpdateHistoryLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	h := &UpdateHistory{
		ID:        "hist-1",
		RolloutID: "rollout-1",
		PrinterID: "printer-1",
		Version:   "2.0.0",
		Status:    HistoryPending,
		StartedAt: time.Now().UTC(),
	}
	if err := store.CreateHistory(ctx, h); err != nil {
		t.Fatalf("create history: %v", err)
	}

	got, err := store.GetNonTerminalHistory(ctx, "rollout-1", "printer-1")
	if err != nil {
		t.Fatalf("get non-terminal history: %v", err)
	}
	if got.Status != HistoryPending {
		t.Errorf("expected pending status, got %s", got.Status)
	}

	if err := store.CompleteHistory(ctx, "hist-1", "2.0.0", time.Now().UTC()); err != nil {
		t.Fatalf("complete history: %v", err)
	}

	_, err = store.GetNonTerminalHistory(ctx, "rollout-1", "printer-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no non-terminal history after completion, got %v", err)
	}
}
