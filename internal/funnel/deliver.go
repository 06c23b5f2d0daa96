package funnel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
)

// deliver sends every MESSAGED lead's messages through their channels. Each
// real send first takes a slot from the shared rolling-window limiter, so
// outbound volume stays bounded no matter how many workers run. Retries back
// off per the policy inside the worker, never blocking sibling leads. A lead
// reaches SENT only when every one of its messages was delivered.
type deliver struct {
	store          store.Store
	channels       map[model.Channel]Channel
	limiter        *resilience.WindowLimiter
	policy         resilience.Policy
	acquireTimeout time.Duration
	workers        int
	dryRun         bool
}

func (d *deliver) run(ctx context.Context, progress progressFunc) (model.StageStats, error) {
	leads, err := d.store.ListLeads(ctx, store.LeadFilter{Status: model.StatusMessaged})
	if err != nil {
		return model.StageStats{}, eris.Wrap(err, "funnel: list messaged leads")
	}

	total := len(leads)
	var processed, succeeded, failed atomic.Int64
	var storeErrOnce sync.Once
	var storeErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i := range leads {
		lead := leads[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			defer func() {
				progress(int(processed.Add(1)), total)
			}()

			deliverErr, err := d.deliverLead(gctx, &lead)
			if err != nil {
				storeErrOnce.Do(func() { storeErr = err })
				return err
			}
			if deliverErr != nil {
				failed.Add(1)
				zap.L().Warn("delivery failed",
					zap.String("lead_id", lead.ID),
					zap.Error(deliverErr),
				)
				uerr := d.store.UpdateLeadStatus(gctx, lead.ID, model.StatusMessaged, model.StatusFailed, deliverErr.Error())
				if uerr != nil && !eris.Is(uerr, store.ErrStaleStatus) {
					storeErrOnce.Do(func() { storeErr = uerr })
					return uerr
				}
				return nil
			}

			uerr := d.store.UpdateLeadStatus(gctx, lead.ID, model.StatusMessaged, model.StatusSent, "")
			if eris.Is(uerr, store.ErrStaleStatus) {
				return nil
			}
			if uerr != nil {
				storeErrOnce.Do(func() { storeErr = uerr })
				return uerr
			}
			succeeded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if storeErr != nil {
			return statsOf(&processed, &succeeded, &failed), eris.Wrap(storeErr, "funnel: deliver")
		}
		return statsOf(&processed, &succeeded, &failed), eris.Wrap(err, "funnel: deliver canceled")
	}
	return statsOf(&processed, &succeeded, &failed), nil
}

// deliverLead sends all of one lead's messages. The first return value is
// the delivery failure to record against the lead; the second is a store or
// cancellation error that aborts the whole stage.
func (d *deliver) deliverLead(ctx context.Context, lead *model.Lead) (error, error) {
	msgs, err := d.store.ListLeadMessages(ctx, lead.ID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return eris.New("no messages composed"), nil
	}

	for i := range msgs {
		msg := &msgs[i]
		if deliverErr, err := d.deliverMessage(ctx, lead, msg); err != nil || deliverErr != nil {
			return deliverErr, err
		}
	}
	return nil, nil
}

func (d *deliver) deliverMessage(ctx context.Context, lead *model.Lead, msg *model.Message) (error, error) {
	// Attempt numbering continues across runs: the attempts table is
	// append-only with a unique (message_id, attempt) constraint.
	base, err := d.store.CountAttempts(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	if d.dryRun {
		// Simulated success. No limiter slot, no channel call.
		if err := d.recordAttempt(ctx, lead, msg, base+1, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	ch, ok := d.channels[msg.Channel]
	if !ok {
		return eris.Errorf("no channel configured for %s", msg.Channel), nil
	}

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		if err := d.acquire(ctx); err != nil {
			return nil, eris.Wrap(err, "funnel: rate limit")
		}

		lastErr = ch.Send(ctx, lead, msg)
		if err := d.recordAttempt(ctx, lead, msg, base+attempt, lastErr); err != nil {
			return nil, err
		}
		if lastErr == nil {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "funnel: deliver canceled")
		}
		if !d.policy.ShouldRetry(attempt, lastErr) {
			break
		}

		timer := time.NewTimer(d.policy.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrap(ctx.Err(), "funnel: deliver canceled")
		case <-timer.C:
		}
	}
	return eris.Wrapf(lastErr, "send %s", msg.Channel), nil
}

// acquire takes a limiter slot, bounded by the configured timeout when one
// is set. A timeout surfaces ErrExhausted and aborts the stage rather than
// failing the lead: the quota is global, so every sibling would time out too.
func (d *deliver) acquire(ctx context.Context) error {
	if d.acquireTimeout > 0 {
		return d.limiter.AcquireTimeout(ctx, d.acquireTimeout)
	}
	return d.limiter.Acquire(ctx)
}

func (d *deliver) recordAttempt(ctx context.Context, lead *model.Lead, msg *model.Message, attempt int, sendErr error) error {
	a := &model.DeliveryAttempt{
		MessageID: msg.ID,
		LeadID:    lead.ID,
		Channel:   msg.Channel,
		Attempt:   attempt,
		Outcome:   model.AttemptSuccess,
		DryRun:    d.dryRun,
	}
	if sendErr != nil {
		a.Outcome = model.AttemptFailure
		a.Error = sendErr.Error()
	}
	return d.store.InsertAttempt(ctx, a)
}
