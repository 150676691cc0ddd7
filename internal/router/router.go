// Package router implements the Message Router (spec.md §4.4): sanitizes
// and sequence-numbers text messages, delivers-or-caches them, and drains
// the offline cache on reconnect.
package router

import (
	"context"
	"errors"
	"time"

	"paperminder/internal/apierr"
	"paperminder/internal/logger"
	"paperminder/internal/registry"
	"paperminder/internal/sanitize"
	"paperminder/internal/storage"
	"paperminder/internal/wsconn"
)

// Router wires the Registry and Store together for text message delivery.
type Router struct {
	reg          *registry.Registry
	store        storage.Store
	log          *logger.Logger
	writeTimeout time.Duration
}

func New(reg *registry.Registry, store storage.Store, log *logger.Logger, writeTimeout time.Duration) *Router {
	return &Router{reg: reg, store: store, log: log, writeTimeout: writeTimeout}
}

// Route handles a message frame addressed to frame.RecipientID. senderID is
// the sending session's authoritative identity (its user UUID, per spec.md
// §3 — MessageLog.SenderID is the sender UUID, not the display name carried
// on the wire frame). Returns apierr.ErrRecipientNotFound when the
// recipient printer is unknown; any other error is a store failure the
// caller should surface as a status frame.
func (r *Router) Route(ctx context.Context, senderID string, frame wsconn.MessageFrame) error {
	printer, err := r.store.GetPrinter(ctx, frame.RecipientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apierr.ErrRecipientNotFound
		}
		return apierr.ErrStoreUnavailable
	}

	body := sanitize.Text(frame.Message)
	senderName := sanitize.Text(frame.SenderName)

	today := time.Now().UTC().Format("2006-01-02")
	dailyNumber, err := r.store.AssignDailyNumber(ctx, printer.ID, today)
	if err != nil {
		return apierr.ErrStoreUnavailable
	}

	now := time.Now().UTC()
	if err := r.store.InsertMessageLog(ctx, &storage.MessageLog{
		SenderID:    senderID,
		RecipientID: printer.ID,
		Body:        body,
		DailyNumber: dailyNumber,
		Timestamp:   now,
	}); err != nil {
		if r.log != nil {
			r.log.Warn("failed to persist message log", "recipient_id", printer.ID, "error", err)
		}
	}

	out := wsconn.OutboundFrame{
		Kind:        wsconn.KindOutbound,
		SenderName:  senderName,
		Message:     body,
		DailyNumber: dailyNumber,
		Timestamp:   now.Format(time.RFC3339),
	}
	payload, err := wsconn.Marshal(wsconn.KindOutbound, out)
	if err != nil {
		return err
	}

	if r.reg.Broadcast(printer.ID, payload) >= 1 {
		return nil
	}

	_, err = r.store.InsertMessageCache(ctx, &storage.MessageCache{
		RecipientID: printer.ID,
		SenderName:  senderName,
		Body:        body,
		DailyNumber: dailyNumber,
		Timestamp:   now,
		IsDelivered: false,
	})
	return err
}

// DrainCache flushes every undelivered cache row for printerID to sess, in
// insertion order, stopping at the first write failure (spec.md §4.4
// "Cache drain"). Rows are marked delivered only after a successful write.
func (r *Router) DrainCache(ctx context.Context, printerID string, sess registry.Session) error {
	pending, err := r.store.ListUndeliveredCache(ctx, printerID)
	if err != nil {
		return err
	}

	for _, m := range pending {
		out := wsconn.OutboundFrame{
			Kind:        wsconn.KindOutbound,
			SenderName:  m.SenderName,
			Message:     m.Body,
			DailyNumber: m.DailyNumber,
			Timestamp:   m.Timestamp.Format(time.RFC3339),
		}
		payload, err := wsconn.Marshal(wsconn.KindOutbound, out)
		if err != nil {
			if r.log != nil {
				r.log.Warn("failed to marshal cached message", "cache_id", m.ID, "error", err)
			}
			continue
		}
		if err := sess.WriteRaw(payload, r.writeTimeout); err != nil {
			return err
		}
		if err := r.store.MarkCacheDelivered(ctx, m.ID); err != nil {
			if r.log != nil {
				r.log.Warn("failed to mark cache row delivered", "cache_id", m.ID, "error", err)
			}
		}
	}
	return nil
}
