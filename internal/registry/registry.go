// Package registry holds the process-wide identity → live-session mapping.
// Broadcast is the delivery path for frames addressed to an identity. It is
// not the only writer: the session loop writes status replies and the
// handshake firmware push straight to its own connection, and the router's
// cache drain writes to the session it is given. Writes to one connection
// are serialized by wsconn.Conn.
package registry

import (
	"context"
	"sync"
	"time"

	"paperminder/internal/logger"
	"paperminder/internal/storage"
)

// Session is the subset of wsconn.Conn the Registry needs to deliver a
// frame; kept narrow so tests can substitute a fake without a real socket.
type Session interface {
	WriteRaw(b []byte, timeout time.Duration) error
	RemoteAddr() string
}

// Registry maps identity (user or printer UUID) to its active sessions.
// Construct one per process with New; it has no other state to reset
// between tests than a fresh instance.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[Session]struct{}

	store        storage.Store
	log          *logger.Logger
	writeTimeout time.Duration
}

// New builds a Registry. store and log may be nil in tests that don't
// exercise persistence side effects.
func New(store storage.Store, log *logger.Logger, writeTimeout time.Duration) *Registry {
	return &Registry{
		sessions:     make(map[string]map[Session]struct{}),
		store:        store,
		log:          log,
		writeTimeout: writeTimeout,
	}
}

// Attach registers sess under identity. If this is a printer's first
// session, it marks the printer online and stamps last_connected — a
// best-effort, non-blocking persistence write (spec.md §4.1); the Registry
// itself remains the in-memory source of truth regardless of its outcome.
func (r *Registry) Attach(identity string, sess Session) {
	r.mu.Lock()
	set, ok := r.sessions[identity]
	if !ok {
		set = make(map[Session]struct{})
		r.sessions[identity] = set
	}
	first := len(set) == 0
	set[sess] = struct{}{}
	r.mu.Unlock()

	if first && r.store != nil {
		go r.markPrinterOnline(identity, true)
	}
}

// Detach removes sess from identity's session set. If it was the last
// session for that identity, the printer is marked offline.
func (r *Registry) Detach(identity string, sess Session) {
	r.mu.Lock()
	set, ok := r.sessions[identity]
	last := false
	if ok {
		delete(set, sess)
		if len(set) == 0 {
			delete(r.sessions, identity)
			last = true
		}
	}
	r.mu.Unlock()

	if last && r.store != nil {
		go r.markPrinterOnline(identity, false)
	}
}

func (r *Registry) markPrinterOnline(identity string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.SetPrinterOnline(ctx, identity, online, time.Now().UTC()); err != nil {
		if r.log != nil {
			r.log.Warn("failed to persist printer online state", "identity", identity, "online", online, "error", err)
		}
	}
}

// IsConnected reports whether identity has at least one active session.
func (r *Registry) IsConnected(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[identity]) > 0
}

// Broadcast writes frame to every active session for identity, returning
// the number of sessions it was successfully delivered to. Writes to a
// single session are serialized by wsconn.Conn itself; Broadcast does not
// hold the Registry lock while writing.
func (r *Registry) Broadcast(identity string, frame []byte) int {
	r.mu.RLock()
	set := r.sessions[identity]
	targets := make([]Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sess := range targets {
		if err := sess.WriteRaw(frame, r.writeTimeout); err != nil {
			if r.log != nil {
				r.log.Debug("broadcast write failed", "identity", identity, "remote_addr", sess.RemoteAddr(), "error", err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

// SessionCount returns the number of active sessions for identity, mostly
// useful for diagnostics and tests.
func (r *Registry) SessionCount(identity string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[identity])
}

// ConnectedIdentities returns every identity with at least one active
// session. The Registry does not distinguish user from printer identities;
// callers that need only printers (the Scheduler, spec.md §4.8) filter by
// looking each one up in the Store.
func (r *Registry) ConnectedIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}
