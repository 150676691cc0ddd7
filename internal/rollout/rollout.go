// Package rollout implements the Rollout Evaluator (spec.md §4.6): for a
// freshly subscribed printer, selects at most one firmware push.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"paperminder/internal/bucket"
	"paperminder/internal/logger"
	"paperminder/internal/platform"
	"paperminder/internal/storage"
	"paperminder/internal/version"
	"paperminder/internal/wsconn"
)

// Evaluator picks and emits firmware pushes.
type Evaluator struct {
	store   storage.Store
	log     *logger.Logger
	baseURL string
}

func New(store storage.Store, log *logger.Logger, baseURL string) *Evaluator {
	return &Evaluator{store: store, log: log, baseURL: baseURL}
}

// Push is the result of a successful evaluation: the firmware frame to
// send to the printer's socket.
type Push struct {
	Frame     wsconn.FirmwareUpdateFrame
	RolloutID string
	HistoryID string
}

// Evaluate runs the full algorithm in spec.md §4.6 for printer p. It
// returns (nil, nil) when no push applies — not auto-updating, no
// qualifying rollout, or no matching binary. The returned Push (if any)
// has already been persisted as a pending (or re-emitted pending)
// UpdateHistory row with the rollout's pending_count incremented once.
func (e *Evaluator) Evaluate(ctx context.Context, p *storage.Printer) (*Push, error) {
	if !p.AutoUpdate {
		return nil, nil
	}

	now := time.Now().UTC()
	active, err := e.store.ListActiveRollouts(ctx, now)
	if err != nil {
		return nil, err
	}

	candidates := make([]*storage.UpdateRollout, 0, len(active))
	for _, r := range active {
		if matches(r, p) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].TargetVersion != candidates[j].TargetVersion {
			return version.GreaterThan(candidates[i].TargetVersion, candidates[j].TargetVersion)
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	chosen := candidates[0]

	variants := platform.Variants(p.Platform)
	fw, err := e.store.GetFirmwareVersion(ctx, chosen.TargetVersion, variants)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	existing, err := e.store.GetNonTerminalHistory(ctx, chosen.ID, p.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	historyID := ""
	if existing != nil {
		// Idempotence: only re-emit if the printer may have missed the
		// prior attempt (still pending, never started downloading).
		if existing.Status != storage.HistoryPending {
			return nil, nil
		}
		historyID = existing.ID
	} else {
		historyID = uuid.NewString()
		if err := e.store.CreateHistory(ctx, &storage.UpdateHistory{
			ID:        historyID,
			RolloutID: chosen.ID,
			PrinterID: p.ID,
			Version:   chosen.TargetVersion,
			Status:    storage.HistoryPending,
			StartedAt: now,
		}); err != nil {
			return nil, err
		}
		if err := e.store.AdjustRolloutCounters(ctx, chosen.ID, 1, 0, 0, 0); err != nil {
			if e.log != nil {
				e.log.Warn("failed to increment rollout pending_count", "rollout_id", chosen.ID, "error", err)
			}
		}
	}

	frame := wsconn.FirmwareUpdateFrame{
		Kind:    wsconn.KindFirmwareUpdate,
		Version: fw.Version,
		URL:     fmt.Sprintf("%s/api/firmware/download/%s?platform=%s", e.baseURL, fw.Version, fw.Platform),
		MD5:     fw.MD5,
	}
	return &Push{Frame: frame, RolloutID: chosen.ID, HistoryID: historyID}, nil
}

// matches implements spec.md §4.6 steps 2-3. The open question on
// channels-combined-with-explicit-IDs is resolved as a union (spec.md §9).
func matches(r *storage.UpdateRollout, p *storage.Printer) bool {
	targeted := r.TargetAll
	if !targeted && p.UserID != nil {
		for _, uid := range r.TargetUserIDs {
			if uid == *p.UserID {
				targeted = true
				break
			}
		}
	}
	if !targeted {
		for _, pid := range r.TargetPrinterIDs {
			if pid == p.ID {
				targeted = true
				break
			}
		}
	}
	if !targeted {
		for _, ch := range r.TargetChannels {
			if string(ch) == string(p.UpdateChannel) {
				targeted = true
				break
			}
		}
	}
	if !targeted {
		return false
	}

	if r.MinVersion != nil && version.Compare(p.FirmwareVersion, *r.MinVersion) < 0 {
		return false
	}
	if r.MaxVersion != nil && version.Compare(p.FirmwareVersion, *r.MaxVersion) > 0 {
		return false
	}
	if version.Compare(r.TargetVersion, p.FirmwareVersion) <= 0 {
		return false
	}
	if r.RolloutType == storage.RolloutGradual {
		if bucket.Of(p.ID) >= r.RolloutPercentage {
			return false
		}
	}

	return true
}
