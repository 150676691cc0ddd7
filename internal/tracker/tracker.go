// Package tracker implements the Update Tracker (spec.md §4.7): applies
// firmware response frames to UpdateHistory rows and rollout counters.
package tracker

import (
	"context"
	"errors"
	"time"

	"paperminder/internal/logger"
	"paperminder/internal/storage"
	"paperminder/internal/wsconn"
)

// Tracker applies firmware_progress/complete/failed/declined frames.
type Tracker struct {
	store storage.Store
	log   *logger.Logger
}

func New(store storage.Store, log *logger.Logger) *Tracker {
	return &Tracker{store: store, log: log}
}

// Progress handles a firmware_progress frame for printerID (spec.md §4.7).
func (t *Tracker) Progress(ctx context.Context, printerID string, frame wsconn.FirmwareProgressFrame) error {
	h, err := t.store.GetLatestNonTerminalHistoryForPrinter(ctx, printerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	status := h.Status
	if status == storage.HistoryPending {
		status = storage.HistoryDownloading
	}
	return t.store.UpdateHistoryProgress(ctx, h.ID, frame.Percent, status)
}

// Complete handles a firmware_complete frame.
func (t *Tracker) Complete(ctx context.Context, printerID string, frame wsconn.FirmwareCompleteFrame) error {
	h, err := t.store.GetLatestNonTerminalHistoryForPrinter(ctx, printerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	if err := t.store.CompleteHistory(ctx, h.ID, frame.Version, now); err != nil {
		return err
	}
	if err := t.store.SetPrinterFirmwareVersion(ctx, printerID, frame.Version); err != nil {
		t.logWarn("failed to persist printer firmware version", printerID, err)
	}
	if platform, err := t.printerPlatform(ctx, printerID); err == nil {
		if err := t.store.IncrementFirmwareCounter(ctx, h.Version, platform, "success"); err != nil {
			t.logWarn("failed to increment firmware success counter", printerID, err)
		}
	}
	return t.adjustAndMaybeComplete(ctx, h.RolloutID, 1, 0, 0)
}

// Failed handles a firmware_failed frame.
func (t *Tracker) Failed(ctx context.Context, printerID string, frame wsconn.FirmwareFailedFrame) error {
	h, err := t.store.GetLatestNonTerminalHistoryForPrinter(ctx, printerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	if err := t.store.FailHistory(ctx, h.ID, frame.Error, now); err != nil {
		return err
	}
	if platform, err := t.printerPlatform(ctx, printerID); err == nil {
		if err := t.store.IncrementFirmwareCounter(ctx, h.Version, platform, "failure"); err != nil {
			t.logWarn("failed to increment firmware failure counter", printerID, err)
		}
	}
	return t.adjustAndMaybeComplete(ctx, h.RolloutID, 0, 1, 0)
}

// Declined handles a firmware_declined frame.
func (t *Tracker) Declined(ctx context.Context, printerID string, frame wsconn.FirmwareDeclinedFrame) error {
	h, err := t.store.GetLatestNonTerminalHistoryForPrinter(ctx, printerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	if err := t.store.DeclineHistory(ctx, h.ID, frame.Version, now); err != nil {
		return err
	}
	if !frame.AutoUpdate {
		if err := t.store.SetPrinterAutoUpdate(ctx, printerID, false); err != nil {
			t.logWarn("failed to persist auto_update=false", printerID, err)
		}
	}
	return t.adjustAndMaybeComplete(ctx, h.RolloutID, 0, 0, 1)
}

// adjustAndMaybeComplete decrements pending_count by one and bumps the
// named terminal counter, then completes the rollout if pending_count has
// reached zero (spec.md §4.7 "After every counter change...").
func (t *Tracker) adjustAndMaybeComplete(ctx context.Context, rolloutID string, completed, failed, declined int) error {
	if err := t.store.AdjustRolloutCounters(ctx, rolloutID, -1, completed, failed, declined); err != nil {
		return err
	}
	return t.store.MaybeCompleteRollout(ctx, rolloutID)
}

func (t *Tracker) printerPlatform(ctx context.Context, printerID string) (string, error) {
	p, err := t.store.GetPrinter(ctx, printerID)
	if err != nil {
		return "", err
	}
	return p.Platform, nil
}

func (t *Tracker) logWarn(msg, printerID string, err error) {
	if t.log != nil {
		t.log.Warn(msg, "printer_id", printerID, "error", err)
	}
}
