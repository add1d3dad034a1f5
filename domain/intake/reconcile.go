package intake

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/chainledger/musicgraph/internal/apperr"
	"github.com/chainledger/musicgraph/internal/logging"
)

// Reconciler runs a scheduled sweep over every event the store marked
// failed, re-submitting each through intake (spec §4.10 supplement),
// grounded in the teacher's indexer Syncer.syncLoop catch-up-from-cursor
// pattern but driven by a cron schedule instead of a fixed ticker, and
// bounded by a retry time budget instead of a block range.
type Reconciler struct {
	intake      *Intake
	retryBudget time.Duration
	limiter     *rate.Limiter
	cron        *cron.Cron
	log         *logging.Logger
}

// NewReconciler builds a Reconciler. schedule is a robfig/cron/v3
// expression (e.g. "@every 1m"); retryBudget bounds how long one whole
// scheduled sweep may run before it stops for this pass (spec §5:
// "retried up to a bounded time (default 30s)"); retryBackoff paces
// successive retries within one sweep so a large failed backlog doesn't
// hammer the graph store in a tight loop.
func NewReconciler(in *Intake, schedule string, retryBudget, retryBackoff time.Duration) (*Reconciler, error) {
	r := &Reconciler{
		intake:      in,
		retryBudget: retryBudget,
		limiter:     rate.NewLimiter(rate.Every(retryBackoff), 1),
		cron:        cron.New(),
		log:         logging.NewFromEnv("reconcile"),
	}
	if _, err := r.cron.AddFunc(schedule, r.sweepOnce); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the cron schedule. Stop (cron.Cron.Stop) ends it.
func (r *Reconciler) Start() { r.cron.Start() }

// Stop waits for any in-flight sweep to finish and stops the schedule.
func (r *Reconciler) Stop() context.Context { return r.cron.Stop() }

func (r *Reconciler) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.retryBudget)
	defer cancel()
	n, err := r.Sweep(ctx)
	if err != nil {
		r.log.WithContext(ctx).WithError(err).Warn("reconciliation sweep failed")
		return
	}
	if n > 0 {
		r.log.WithContext(ctx).Infof("reconciliation sweep retried %d failed events", n)
	}
}

// Sweep re-submits every currently failed event through intake, stopping
// early if ctx is cancelled (the retry budget's deadline). It returns how
// many re-submitted events intake handled without error; an event whose
// retry failed again is not counted. A DuplicateEvent or permanent-failure result
// is not itself a sweep error — only a failure to even read the failed-
// event list is.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	failed, err := r.intake.events.ListFailed(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeTransientGraph, "failed to list failed events", err)
	}

	retried := 0
	for _, e := range failed {
		if err := r.limiter.Wait(ctx); err != nil {
			return retried, nil
		}

		ev := AnchoredEvent{
			ContentHash:     e.ContentHash,
			Payload:         e.Payload,
			BlockNum:        e.BlockNum,
			BlockID:         e.BlockID,
			TrxID:           e.TrxID,
			ActionOrdinal:   e.ActionOrdinal,
			Timestamp:       e.Timestamp.Unix(),
			Source:          e.Source,
			ContractAccount: e.ContractAccount,
			ActionName:      e.ActionName,
		}
		if _, err := r.intake.Handle(ctx, ev); err != nil {
			continue
		}
		retried++
		if r.intake.metrics != nil {
			r.intake.metrics.ReconcileSweepRetriesTotal.Inc()
		}
	}
	return retried, nil
}
