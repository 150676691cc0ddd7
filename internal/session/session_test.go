package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"paperminder/internal/logger"
	"paperminder/internal/registry"
	"paperminder/internal/rollout"
	"paperminder/internal/router"
	"paperminder/internal/storage"
	"paperminder/internal/tracker"
)

// fakeConn feeds a scripted sequence of inbound frames and records every
// frame written back, mimicking the teacher's pattern of a channel-fed
// test double instead of a real socket.
type fakeConn struct {
	mu      sync.Mutex
	inbound [][]byte
	pos     int
	written [][]byte
	closed  bool
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= len(f.inbound) {
		return nil, io.EOF
	}
	b := f.inbound[f.pos]
	f.pos++
	return b, nil
}

func (f *fakeConn) WriteRaw(b []byte, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeConn) RemoteAddr() string { return "test" }

func (f *fakeConn) WritePing(timeout time.Duration) error { return nil }

func (f *fakeConn) SetPongHandler(h func(string) error) {}

func (f *fakeConn) SetReadDeadline(t time.Time) error { return nil }

func (f *fakeConn) SetReadLimit(n int64) {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) writtenKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kinds []string
	for _, b := range f.written {
		var env struct {
			Kind string `json:"kind"`
		}
		json.Unmarshal(b, &env)
		kinds = append(kinds, env.Kind)
	}
	return kinds
}

func newHarness(t *testing.T) (storage.Store, *registry.Registry, *router.Router, *rollout.Evaluator, *tracker.Tracker, *logger.Logger) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := logger.New(logger.ERROR, "")
	reg := registry.New(store, log, time.Second)
	r := router.New(reg, store, log, time.Second)
	e := rollout.New(store, log, "http://localhost:8000")
	tr := tracker.New(store, log)
	return store, reg, r, e, tr, log
}

func TestLoop_PrinterHandshakeAttachesAndDrainsCache(t *testing.T) {
	store, reg, r, e, tr, log := newHarness(t)
	ctx := context.Background()

	printerID := "11111111-1111-1111-1111-111111111111"
	if err := store.UpsertPrinter(ctx, &storage.Printer{ID: printerID, Platform: "esp32", FirmwareVersion: "1.0.0"}); err != nil {
		t.Fatalf("seed printer: %v", err)
	}
	if _, err := store.InsertMessageCache(ctx, &storage.MessageCache{
		RecipientID: printerID,
		SenderName:  "alice",
		Body:        "hi",
		DailyNumber: 1,
		Timestamp:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	sub := `{"kind":"subscription","printer_name":"kitchen","printer_id":"` + printerID + `","platform":"esp32","firmware_version":"1.0.0","auto_update":true,"update_channel":"stable"}`
	conn := &fakeConn{inbound: [][]byte{[]byte(sub)}}

	loop := New(conn, printerID, reg, store, r, e, tr, log, 64*1024, time.Second)
	loop.Run(ctx)

	if reg.IsConnected(printerID) {
		t.Error("expected registry detached after socket EOF teardown")
	}

	kinds := conn.writtenKinds()
	found := false
	for _, k := range kinds {
		if k == "outbound" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected cache drain to emit an outbound frame, got kinds=%v", kinds)
	}
}

func TestLoop_UserMessageFrameRoutesThroughRouter(t *testing.T) {
	store, reg, r, e, tr, log := newHarness(t)
	ctx := context.Background()

	printerID := "22222222-2222-2222-2222-222222222222"
	if err := store.UpsertPrinter(ctx, &storage.Printer{ID: printerID, Platform: "esp32", FirmwareVersion: "1.0.0"}); err != nil {
		t.Fatalf("seed printer: %v", err)
	}

	msg := `{"kind":"message","recipient_id":"` + printerID + `","sender_name":"alice","message":"hello"}`
	conn := &fakeConn{inbound: [][]byte{[]byte(msg)}}

	loop := New(conn, "user-1", reg, store, r, e, tr, log, 64*1024, time.Second)
	loop.Run(ctx)

	pending, err := store.ListUndeliveredCache(ctx, printerID)
	if err != nil {
		t.Fatalf("list cache: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected message to be cached for offline printer, got %d rows", len(pending))
	}
}

func TestLoop_MalformedFrameGetsStatusError(t *testing.T) {
	store, reg, r, e, tr, log := newHarness(t)
	ctx := context.Background()

	conn := &fakeConn{inbound: [][]byte{[]byte("not json")}}
	loop := New(conn, "user-2", reg, store, r, e, tr, log, 64*1024, time.Second)
	loop.Run(ctx)

	kinds := conn.writtenKinds()
	if len(kinds) != 1 || kinds[0] != "status" {
		t.Errorf("expected a single status frame for malformed input, got %v", kinds)
	}
}
