package funnel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// compose produces one message per channel and variation for every ENRICHED
// lead. A lead advances to MESSAGED only once all of its messages are
// stored; a composer failure marks it FAILED.
type compose struct {
	store      store.Store
	composer   Composer
	channels   []model.Channel
	variations []string
	workers    int
}

func (c *compose) run(ctx context.Context, progress progressFunc) (model.StageStats, error) {
	leads, err := c.store.ListLeads(ctx, store.LeadFilter{Status: model.StatusEnriched})
	if err != nil {
		return model.StageStats{}, eris.Wrap(err, "funnel: list enriched leads")
	}

	total := len(leads)
	var processed, succeeded, failed atomic.Int64
	var storeErrOnce sync.Once
	var storeErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i := range leads {
		lead := leads[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			defer func() {
				progress(int(processed.Add(1)), total)
			}()

			enr, err := c.store.GetEnrichment(gctx, lead.ID)
			if err != nil {
				storeErrOnce.Do(func() { storeErr = err })
				return err
			}

			composeErr, serr := c.composeAll(gctx, &lead, enr)
			if serr != nil {
				storeErrOnce.Do(func() { storeErr = serr })
				return serr
			}
			if composeErr != nil {
				failed.Add(1)
				zap.L().Warn("composition failed",
					zap.String("lead_id", lead.ID),
					zap.Error(composeErr),
				)
				err := c.store.UpdateLeadStatus(gctx, lead.ID, model.StatusEnriched, model.StatusFailed, composeErr.Error())
				if err != nil && !eris.Is(err, store.ErrStaleStatus) {
					storeErrOnce.Do(func() { storeErr = err })
					return err
				}
				return nil
			}

			err = c.store.UpdateLeadStatus(gctx, lead.ID, model.StatusEnriched, model.StatusMessaged, "")
			if eris.Is(err, store.ErrStaleStatus) {
				return nil
			}
			if err != nil {
				storeErrOnce.Do(func() { storeErr = err })
				return err
			}
			succeeded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if storeErr != nil {
			return statsOf(&processed, &succeeded, &failed), eris.Wrap(storeErr, "funnel: compose")
		}
		return statsOf(&processed, &succeeded, &failed), eris.Wrap(err, "funnel: compose canceled")
	}
	return statsOf(&processed, &succeeded, &failed), nil
}

// composeAll generates and stores every channel x variation message for one
// lead. The first return value is a composer failure to record against the
// lead (it leaves the stored messages partial; the caller marks the lead
// FAILED and the next run will not revisit it); the second is a store error
// that aborts the whole stage.
func (c *compose) composeAll(ctx context.Context, lead *model.Lead, enr *model.Enrichment) (error, error) {
	for _, ch := range c.channels {
		for _, variation := range c.variations {
			msg, err := c.composer.Compose(ctx, lead, enr, ch, variation)
			if err != nil {
				return eris.Wrapf(err, "compose %s/%s", ch, variation), nil
			}
			msg.LeadID = lead.ID
			msg.Channel = ch
			msg.Variation = variation
			if err := c.store.InsertMessage(ctx, msg); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}
