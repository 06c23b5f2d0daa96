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

// enrich runs the enricher over every NEW lead with a bounded worker pool.
// A provider failure marks that lead FAILED and moves on; the stage only
// aborts on store errors or cancellation.
type enrich struct {
	store    store.Store
	enricher Enricher
	workers  int
}

func (e *enrich) run(ctx context.Context, progress progressFunc) (model.StageStats, error) {
	leads, err := e.store.ListLeads(ctx, store.LeadFilter{Status: model.StatusNew})
	if err != nil {
		return model.StageStats{}, eris.Wrap(err, "funnel: list new leads")
	}

	total := len(leads)
	var processed, succeeded, failed atomic.Int64
	var storeErrOnce sync.Once
	var storeErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range leads {
		lead := leads[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			defer func() {
				progress(int(processed.Add(1)), total)
			}()

			enr, enrichErr := e.enricher.Enrich(gctx, &lead)
			if enrichErr != nil {
				failed.Add(1)
				zap.L().Warn("enrichment failed",
					zap.String("lead_id", lead.ID),
					zap.Error(enrichErr),
				)
				if err := e.failLead(gctx, lead.ID, model.StatusNew, enrichErr); err != nil {
					storeErrOnce.Do(func() { storeErr = err })
					return err
				}
				return nil
			}

			enr.LeadID = lead.ID
			if err := e.store.InsertEnrichment(gctx, enr); err != nil {
				storeErrOnce.Do(func() { storeErr = err })
				return err
			}
			err := e.store.UpdateLeadStatus(gctx, lead.ID, model.StatusNew, model.StatusEnriched, "")
			if eris.Is(err, store.ErrStaleStatus) {
				// Someone else advanced this lead; not our record anymore.
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
			return statsOf(&processed, &succeeded, &failed), eris.Wrap(storeErr, "funnel: enrich")
		}
		return statsOf(&processed, &succeeded, &failed), eris.Wrap(err, "funnel: enrich canceled")
	}
	return statsOf(&processed, &succeeded, &failed), nil
}

// failLead records a terminal failure for a lead. Losing the status race is
// not an error: the lead moved on under another writer.
func (e *enrich) failLead(ctx context.Context, id string, from model.Status, cause error) error {
	err := e.store.UpdateLeadStatus(ctx, id, from, model.StatusFailed, cause.Error())
	if err != nil && !eris.Is(err, store.ErrStaleStatus) {
		return err
	}
	return nil
}

func statsOf(processed, succeeded, failed *atomic.Int64) model.StageStats {
	return model.StageStats{
		Processed: int(processed.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
}
