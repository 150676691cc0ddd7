// Package session runs the per-socket read/dispatch/write loop (spec.md
// §4.2): handshake-first-frame rule, byte-cap enforcement, heartbeat, and
// teardown.
package session

import (
	"context"
	"encoding/json"
	"time"

	"paperminder/internal/logger"
	"paperminder/internal/registry"
	"paperminder/internal/rollout"
	"paperminder/internal/router"
	"paperminder/internal/storage"
	"paperminder/internal/tracker"
	"paperminder/internal/wsconn"

	"github.com/google/uuid"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
)

// Conn is the subset of wsconn.Conn the session loop needs.
type Conn interface {
	registry.Session
	ReadMessage() ([]byte, error)
	WritePing(timeout time.Duration) error
	SetPongHandler(h func(string) error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(n int64)
	Close() error
}

// Loop owns one accepted socket's lifetime.
type Loop struct {
	conn Conn

	reg    *registry.Registry
	store  storage.Store
	router *router.Router
	evalr  *rollout.Evaluator
	trackr *tracker.Tracker
	log    *logger.Logger

	maxFrameBytes int
	writeTimeout  time.Duration

	urlIdentity string
	identity    string
	isPrinter   bool
}

// New constructs a session loop around an already-upgraded connection.
// urlIdentity is the {identity_uuid} path segment of WS /ws/{identity_uuid}
// (spec.md §6); it is the session identity for a human user, and is
// overridden by the authoritative printer_id once a printer handshakes.
func New(conn Conn, urlIdentity string, reg *registry.Registry, store storage.Store, r *router.Router, e *rollout.Evaluator, tr *tracker.Tracker, log *logger.Logger, maxFrameBytes int, writeTimeout time.Duration) *Loop {
	return &Loop{
		conn:          conn,
		urlIdentity:   urlIdentity,
		reg:           reg,
		store:         store,
		router:        r,
		evalr:         e,
		trackr:        tr,
		log:           log,
		maxFrameBytes: maxFrameBytes,
		writeTimeout:  writeTimeout,
	}
}

// Run blocks until the socket closes, running the read loop and a
// concurrent heartbeat ping. It always tears down the Registry attachment
// before returning (spec.md §4.2).
func (l *Loop) Run(ctx context.Context) {
	l.conn.SetReadLimit(int64(l.maxFrameBytes))
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingDone := make(chan struct{})
	go l.heartbeat(pingDone)
	defer close(pingDone)

	defer l.teardown(ctx)

	for {
		raw, err := l.conn.ReadMessage()
		if err != nil {
			if l.log != nil && wsconn.IsUnexpectedCloseError(err, 1000, 1001) {
				l.log.Warn("session read error", "identity", l.identity, "error", err)
			}
			return
		}
		l.dispatch(ctx, raw)
	}
}

func (l *Loop) heartbeat(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.conn.WritePing(10 * time.Second); err != nil {
				l.conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (l *Loop) teardown(ctx context.Context) {
	if l.identity != "" {
		l.reg.Detach(l.identity, l.conn)
	}
	l.conn.Close()
}

func (l *Loop) dispatch(ctx context.Context, raw []byte) {
	env, err := wsconn.ParseEnvelope(raw)
	if err != nil {
		l.sendStatus(wsconn.StatusError, "malformed frame")
		return
	}

	if l.identity == "" {
		if env.Kind == wsconn.KindSubscription {
			l.handshake(ctx, env)
		} else {
			// Not a printer handshake: this is a human user session keyed
			// by the URL identity, or by a generated UUID when the URL
			// carries none (spec.md §4.2).
			l.handleMessage(ctx, env)
		}
		return
	}

	if !l.isPrinter {
		if env.Kind != wsconn.KindMessage {
			l.sendStatus(wsconn.StatusError, "user sessions may only send message frames")
			return
		}
		l.handleMessage(ctx, env)
		return
	}

	switch env.Kind {
	case wsconn.KindFirmwareProgress:
		var f wsconn.FirmwareProgressFrame
		if err := json.Unmarshal(env.Raw, &f); err != nil {
			l.sendStatus(wsconn.StatusError, "malformed firmware_progress frame")
			return
		}
		if err := l.trackr.Progress(ctx, l.identity, f); err != nil && l.log != nil {
			l.log.Warn("firmware_progress handling failed", "printer_id", l.identity, "error", err)
		}
	case wsconn.KindFirmwareComplete:
		var f wsconn.FirmwareCompleteFrame
		if err := json.Unmarshal(env.Raw, &f); err != nil {
			l.sendStatus(wsconn.StatusError, "malformed firmware_complete frame")
			return
		}
		if err := l.trackr.Complete(ctx, l.identity, f); err != nil && l.log != nil {
			l.log.Warn("firmware_complete handling failed", "printer_id", l.identity, "error", err)
		}
	case wsconn.KindFirmwareFailed:
		var f wsconn.FirmwareFailedFrame
		if err := json.Unmarshal(env.Raw, &f); err != nil {
			l.sendStatus(wsconn.StatusError, "malformed firmware_failed frame")
			return
		}
		if err := l.trackr.Failed(ctx, l.identity, f); err != nil && l.log != nil {
			l.log.Warn("firmware_failed handling failed", "printer_id", l.identity, "error", err)
		}
	case wsconn.KindFirmwareDeclined:
		var f wsconn.FirmwareDeclinedFrame
		if err := json.Unmarshal(env.Raw, &f); err != nil {
			l.sendStatus(wsconn.StatusError, "malformed firmware_declined frame")
			return
		}
		if err := l.trackr.Declined(ctx, l.identity, f); err != nil && l.log != nil {
			l.log.Warn("firmware_declined handling failed", "printer_id", l.identity, "error", err)
		}
	case wsconn.KindBitmapPrinting, wsconn.KindBitmapError:
		// Acks and error reports from the printer are informational only;
		// nothing in the core engine currently consumes them beyond logging.
		if l.log != nil {
			l.log.Debug("bitmap ack/error received", "printer_id", l.identity, "kind", env.Kind)
		}
	default:
		l.sendStatus(wsconn.StatusError, "unknown frame kind")
	}
}

// handshake processes the first frame. A printer must open with
// subscription; anything else is treated as a user session keyed by the
// URL identity (spec.md §4.2, §6).
func (l *Loop) handshake(ctx context.Context, env wsconn.Envelope) {
	var f wsconn.SubscriptionFrame
	if err := json.Unmarshal(env.Raw, &f); err != nil || f.PrinterID == "" {
		l.sendStatus(wsconn.StatusError, "malformed subscription frame")
		return
	}

	l.identity = f.PrinterID
	l.isPrinter = true

	channel := storage.Channel(f.UpdateChannel)
	if channel == "" {
		channel = storage.ChannelStable
	}
	firmwareVersion := f.FirmwareVersion
	if firmwareVersion == "" {
		firmwareVersion = "0.0.0"
	}

	printer, err := l.store.GetPrinter(ctx, f.PrinterID)
	if err != nil {
		printer = &storage.Printer{ID: f.PrinterID}
	}
	printer.Name = f.PrinterName
	printer.Platform = f.Platform
	printer.FirmwareVersion = firmwareVersion
	printer.AutoUpdate = f.AutoUpdate
	printer.UpdateChannel = channel
	if err := l.store.UpsertPrinter(ctx, printer); err != nil && l.log != nil {
		l.log.Warn("failed to persist subscribed printer", "printer_id", f.PrinterID, "error", err)
	}

	l.reg.Attach(f.PrinterID, l.conn)

	if push, err := l.evalr.Evaluate(ctx, printer); err != nil {
		if l.log != nil {
			l.log.Warn("rollout evaluation failed", "printer_id", f.PrinterID, "error", err)
		}
	} else if push != nil {
		payload, err := wsconn.Marshal(wsconn.KindFirmwareUpdate, push.Frame)
		if err == nil {
			l.conn.WriteRaw(payload, l.writeTimeout)
		}
	}

	if err := l.router.DrainCache(ctx, f.PrinterID, l.conn); err != nil && l.log != nil {
		l.log.Warn("cache drain failed", "printer_id", f.PrinterID, "error", err)
	}
}

func (l *Loop) handleMessage(ctx context.Context, env wsconn.Envelope) {
	var f wsconn.MessageFrame
	if err := json.Unmarshal(env.Raw, &f); err != nil {
		l.sendStatus(wsconn.StatusError, "malformed message frame")
		return
	}
	if l.identity == "" {
		l.identity = l.urlIdentity
		if l.identity == "" {
			l.identity = uuid.NewString()
		}
		l.reg.Attach(l.identity, l.conn)
	}
	if err := l.router.Route(ctx, l.identity, f); err != nil {
		l.sendStatus(wsconn.StatusError, err.Error())
	}
}

func (l *Loop) sendStatus(level, message string) {
	payload, err := wsconn.Marshal(wsconn.KindStatus, wsconn.StatusFrame{Level: level, Message: message})
	if err != nil {
		return
	}
	l.conn.WriteRaw(payload, l.writeTimeout)
}
