package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"paperminder/internal/apierr"
	"paperminder/internal/registry"
	"paperminder/internal/storage"
	"paperminder/internal/wsconn"
)

type capturingSession struct {
	written [][]byte
}

func (c *capturingSession) WriteRaw(b []byte, timeout time.Duration) error {
	c.written = append(c.written, b)
	return nil
}
func (c *capturingSession) RemoteAddr() string { return "test" }

func newTestRouter(t *testing.T) (*Router, storage.Store, *registry.Registry) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	reg := registry.New(store, nil, time.Second)
	return New(reg, store, nil, time.Second), store, reg
}

func TestRouter_RecipientNotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)
	err := r.Route(context.Background(), "user-alice", wsconn.MessageFrame{RecipientID: "missing", SenderName: "alice", Message: "hi"})
	if !errors.Is(err, apierr.ErrRecipientNotFound) {
		t.Errorf("expected ErrRecipientNotFound, got %v", err)
	}
}

func TestRouter_DeliversToConnectedPrinter(t *testing.T) {
	r, store, reg := newTestRouter(t)
	ctx := context.Background()

	p := &storage.Printer{ID: "printer-1", Platform: "esp32", FirmwareVersion: "1.0.0"}
	if err := store.UpsertPrinter(ctx, p); err != nil {
		t.Fatalf("upsert printer: %v", err)
	}

	sess := &capturingSession{}
	reg.Attach(p.ID, sess)

	if err := r.Route(ctx, "user-alice", wsconn.MessageFrame{RecipientID: p.ID, SenderName: "alice", Message: "hi"}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(sess.written) != 1 {
		t.Fatalf("expected 1 frame delivered, got %d", len(sess.written))
	}

	pending, err := store.ListUndeliveredCache(ctx, p.ID)
	if err != nil {
		t.Fatalf("list cache: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no cache rows for a delivered message, got %d", len(pending))
	}
}

func TestRouter_CachesWhenOffline(t *testing.T) {
	r, store, _ := newTestRouter(t)
	ctx := context.Background()

	p := &storage.Printer{ID: "printer-2", Platform: "esp32", FirmwareVersion: "1.0.0"}
	if err := store.UpsertPrinter(ctx, p); err != nil {
		t.Fatalf("upsert printer: %v", err)
	}

	if err := r.Route(ctx, "user-alice", wsconn.MessageFrame{RecipientID: p.ID, SenderName: "alice", Message: "hi"}); err != nil {
		t.Fatalf("route: %v", err)
	}

	pending, err := store.ListUndeliveredCache(ctx, p.ID)
	if err != nil {
		t.Fatalf("list cache: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 cached message for offline printer, got %d", len(pending))
	}
	if pending[0].DailyNumber != 1 {
		t.Errorf("expected daily number 1, got %d", pending[0].DailyNumber)
	}
}

func TestRouter_CacheDrainOnReconnect(t *testing.T) {
	r, store, _ := newTestRouter(t)
	ctx := context.Background()

	p := &storage.Printer{ID: "printer-3", Platform: "esp32", FirmwareVersion: "1.0.0"}
	if err := store.UpsertPrinter(ctx, p); err != nil {
		t.Fatalf("upsert printer: %v", err)
	}
	if err := r.Route(ctx, "user-alice", wsconn.MessageFrame{RecipientID: p.ID, SenderName: "alice", Message: "hi"}); err != nil {
		t.Fatalf("route: %v", err)
	}

	sess := &capturingSession{}
	if err := r.DrainCache(ctx, p.ID, sess); err != nil {
		t.Fatalf("drain cache: %v", err)
	}
	if len(sess.written) != 1 {
		t.Fatalf("expected 1 drained frame, got %d", len(sess.written))
	}

	pending, err := store.ListUndeliveredCache(ctx, p.ID)
	if err != nil {
		t.Fatalf("list cache after drain: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected cache drained, got %d remaining", len(pending))
	}
}
