package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/videobot/broadcast-backend/internal/lease"
	"github.com/videobot/broadcast-backend/internal/metrics"
	"github.com/videobot/broadcast-backend/internal/model"
	"github.com/videobot/broadcast-backend/internal/repository"
	"github.com/videobot/broadcast-backend/internal/transport"
)

// maxBatchSize caps burstiness regardless of the configured send rate.
const maxBatchSize = 50

// defaultSendRate is used when a broadcast carries no usable rate.
const defaultSendRate = 30

// batchWaiter paces batches. Satisfied by *rate.Limiter.
type batchWaiter interface {
	WaitN(ctx context.Context, n int) error
}

// leaseFactory hands out per-broadcast dispatch leases. Satisfied by
// *lease.Factory.
type leaseFactory interface {
	ForBroadcast(broadcastID int) lease.Lease
}

// Dispatcher executes one broadcast's fan-out: paced batches pulled from
// the audience, delivered through the transport, outcomes accumulated via
// the progress tracker. One run per broadcast at a time, enforced by the
// lease.
type Dispatcher struct {
	Broadcasts repository.BroadcastRepositoryInterface
	Audience   *AudienceResolver
	Progress   *ProgressTracker
	Transport  transport.MessageTransport
	Leases     leaseFactory
	Metrics    *metrics.Metrics
	Log        zerolog.Logger

	// newWaiter is a seam for tests; the default paces to the broadcast's
	// send_rate_per_minute with one batch of burst.
	newWaiter func(perMinute, burst int) batchWaiter
}

func NewDispatcher(
	broadcasts repository.BroadcastRepositoryInterface,
	audience *AudienceResolver,
	msgTransport transport.MessageTransport,
	leases *lease.Factory,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		Broadcasts: broadcasts,
		Audience:   audience,
		Progress:   &ProgressTracker{Broadcasts: broadcasts},
		Transport:  msgTransport,
		Leases:     leases,
		Metrics:    m,
		Log:        log.With().Str("component", "dispatcher").Logger(),
	}
}

func defaultWaiter(perMinute, burst int) batchWaiter {
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

// Run executes the dispatch procedure for one broadcast. Errors inside the
// run are terminal for the run, not for the caller: the broadcast moves to
// failed with the reason persisted, and Run returns nil so an at-least-once
// task runner does not retry a failed run.
func (d *Dispatcher) Run(ctx context.Context, broadcastID int) error {
	log := d.Log.With().Int("broadcast_id", broadcastID).Logger()

	b, err := d.Broadcasts.GetByID(broadcastID)
	if err != nil {
		log.Warn().Err(err).Msg("dispatch trigger for unknown broadcast")
		return nil
	}

	switch b.Status {
	case model.StatusDraft, model.StatusScheduled, model.StatusSending:
	default:
		log.Info().Str("status", b.Status).Msg("broadcast not dispatchable, skipping")
		d.countRun("skipped")
		return nil
	}

	l := d.Leases.ForBroadcast(broadcastID)
	acquired, err := l.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire dispatch lease: %w", err)
	}
	if !acquired {
		log.Info().Msg("dispatch lease held elsewhere, skipping")
		d.countRun("skipped")
		return nil
	}
	defer l.Release(context.Background())

	if d.Metrics != nil {
		d.Metrics.ActiveDispatches.Inc()
		defer d.Metrics.ActiveDispatches.Dec()
	}

	result, runErr := d.run(ctx, log, b)
	if runErr != nil {
		log.Error().Err(runErr).Msg("dispatch run failed")
		if err := d.Broadcasts.MarkFailed(broadcastID, runErr.Error()); err != nil {
			log.Error().Err(err).Msg("could not persist failure reason")
		}
		d.countRun("failed")
		return nil
	}
	d.countRun(result)
	return nil
}

// run is the dispatcher loop proper. Any returned error is fatal to the
// run and ends up on the broadcast as error_reason.
func (d *Dispatcher) run(ctx context.Context, log zerolog.Logger, b *model.Broadcast) (string, error) {
	// Cover the window where the creation-time audience count has not
	// landed yet: compute it synchronously before the first batch.
	if b.TotalRecipients == 0 {
		total, err := d.Audience.PersistTotal(b)
		if err != nil {
			return "", fmt.Errorf("resolve audience: %w", err)
		}
		log.Info().Int("total", total).Msg("audience resolved at dispatch start")
	}

	if err := d.Broadcasts.MarkStarted(b.ID); err != nil {
		return "", fmt.Errorf("mark started: %w", err)
	}

	if b.TotalRecipients == 0 {
		if err := d.Broadcasts.MarkCompleted(b.ID); err != nil {
			return "", fmt.Errorf("mark completed: %w", err)
		}
		log.Info().Msg("broadcast had no recipients, completed immediately")
		return "completed", nil
	}

	perMinute := b.SendRatePerMinute
	if perMinute <= 0 {
		perMinute = defaultSendRate
	}
	batchSize := perMinute
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	newWaiter := d.newWaiter
	if newWaiter == nil {
		newWaiter = defaultWaiter
	}
	waiter := newWaiter(perMinute, batchSize)

	log.Info().
		Int("total", b.TotalRecipients).
		Int("batch_size", batchSize).
		Int("rate_per_minute", perMinute).
		Msg("dispatch run started")

	for {
		// Reload each iteration: the persisted status is the cooperative
		// pause/cancel checkpoint, and the counters are the resume point.
		cur, err := d.Broadcasts.GetByID(b.ID)
		if err != nil {
			return "", fmt.Errorf("reload broadcast: %w", err)
		}
		if cur.Status != model.StatusSending {
			log.Info().Str("status", cur.Status).Msg("run interrupted externally")
			return "interrupted", nil
		}

		processed := cur.Processed()
		if processed >= cur.TotalRecipients {
			break
		}

		currentBatch := cur.TotalRecipients - processed
		if currentBatch > batchSize {
			currentBatch = batchSize
		}

		if err := waiter.WaitN(ctx, currentBatch); err != nil {
			log.Info().Err(err).Msg("run interrupted by shutdown")
			return "interrupted", nil
		}

		recipients, err := d.Audience.Recipients(cur, processed, currentBatch)
		if err != nil {
			return "", fmt.Errorf("load recipients: %w", err)
		}

		var sent, failed, blocked int
		for _, recipient := range recipients {
			switch d.Transport.Send(ctx, recipient, cur) {
			case transport.OutcomeSent:
				sent++
			case transport.OutcomeBlocked:
				blocked++
			default:
				failed++
			}
		}
		// Recipients the directory no longer yields (deleted since the
		// count was taken) can never be delivered; count them as failed so
		// the run converges.
		failed += currentBatch - len(recipients)

		totals, err := d.Progress.ApplyBatchOutcome(cur.ID, sent, failed, blocked)
		if err != nil {
			return "", fmt.Errorf("apply batch outcome: %w", err)
		}
		if d.Metrics != nil {
			d.Metrics.ObserveBatch(sent, failed, blocked)
		}

		log.Debug().
			Int("batch", currentBatch).
			Int("sent", totals.Sent).
			Int("failed", totals.Failed).
			Int("blocked", totals.Blocked).
			Msg("batch applied")
	}

	// Only the run that accounted for the final recipient may complete
	// the broadcast, and only if nothing paused or cancelled it meanwhile.
	final, err := d.Broadcasts.GetByID(b.ID)
	if err != nil {
		return "", fmt.Errorf("reload broadcast: %w", err)
	}
	if final.Status != model.StatusSending {
		return "interrupted", nil
	}
	if err := d.Broadcasts.MarkCompleted(b.ID); err != nil {
		return "", fmt.Errorf("mark completed: %w", err)
	}
	log.Info().
		Int("sent", final.SentCount).
		Int("failed", final.FailedCount).
		Int("blocked", final.BlockedCount).
		Msg("dispatch run completed")
	return "completed", nil
}

func (d *Dispatcher) countRun(result string) {
	if d.Metrics != nil {
		d.Metrics.DispatchRuns.WithLabelValues(result).Inc()
	}
}
