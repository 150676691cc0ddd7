// Package scheduler runs the background ticker that activates scheduled
// rollouts and retries the Rollout Evaluator for connected printers
// (spec.md §4.8).
package scheduler

import (
	"context"
	"time"

	"paperminder/internal/logger"
	"paperminder/internal/registry"
	"paperminder/internal/rollout"
	"paperminder/internal/storage"
	"paperminder/internal/wsconn"
)

// Scheduler is a process-wide singleton; construct one per process with
// New and Stop it on shutdown (spec.md §9).
type Scheduler struct {
	store    storage.Store
	reg      *registry.Registry
	evalr    *rollout.Evaluator
	log      *logger.Logger
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func New(store storage.Store, reg *registry.Registry, evalr *rollout.Evaluator, log *logger.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    store,
		reg:      reg,
		evalr:    evalr,
		log:      log,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop in a goroutine. Stop cancels it cooperatively;
// the in-flight tick finishes before the goroutine exits (spec.md §5).
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop requests shutdown and blocks until the current tick (if any) drains.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick activates due rollouts and re-evaluates every connected printer so
// newly-activated or newly-widened rollouts reach already-connected
// printers without requiring a reconnect.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	n, err := s.store.ActivateScheduledRollouts(ctx, now)
	if err != nil {
		if s.log != nil {
			s.log.Warn("failed to activate scheduled rollouts", "error", err)
		}
	} else if n > 0 && s.log != nil {
		s.log.Info("activated scheduled rollouts", "count", n)
	}

	connected := s.reg.ConnectedIdentities()
	for _, printerID := range connected {
		printer, err := s.store.GetPrinter(ctx, printerID)
		if err != nil {
			continue
		}
		push, err := s.evalr.Evaluate(ctx, printer)
		if err != nil {
			if s.log != nil {
				s.log.Warn("scheduler rollout re-evaluation failed", "printer_id", printerID, "error", err)
			}
			continue
		}
		if push == nil {
			continue
		}
		payload, err := wsconn.Marshal(wsconn.KindFirmwareUpdate, push.Frame)
		if err != nil {
			continue
		}
		s.reg.Broadcast(printerID, payload)
	}
}
