package funnel

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// capture pulls a batch of leads from the source and inserts the valid,
// previously unseen ones at NEW. Malformed or duplicate records are skipped;
// only source and store failures abort the stage.
type capture struct {
	store  store.Store
	source Source
}

func (c *capture) run(ctx context.Context, limit int, progress progressFunc) (model.StageStats, error) {
	var stats model.StageStats

	leads, err := c.source.FetchNew(ctx, limit)
	if err != nil {
		return stats, eris.Wrap(err, "funnel: fetch leads")
	}

	total := len(leads)
	for i := range leads {
		if ctx.Err() != nil {
			return stats, eris.Wrap(ctx.Err(), "funnel: capture canceled")
		}
		lead := &leads[i]
		stats.Processed++

		if err := lead.Validate(); err != nil {
			stats.Failed++
			zap.L().Debug("skipping invalid lead",
				zap.String("external_id", lead.ExternalID),
				zap.Error(err),
			)
			progress(stats.Processed, total)
			continue
		}

		exists, err := c.store.LeadExists(ctx, lead.ExternalID)
		if err != nil {
			return stats, eris.Wrap(err, "funnel: dedupe check")
		}
		if exists {
			progress(stats.Processed, total)
			continue
		}

		if err := c.store.InsertLead(ctx, lead); err != nil {
			return stats, eris.Wrap(err, "funnel: insert lead")
		}
		stats.Succeeded++
		progress(stats.Processed, total)
	}

	zap.L().Info("capture complete",
		zap.Int("fetched", total),
		zap.Int("inserted", stats.Succeeded),
		zap.Int("skipped", stats.Processed-stats.Succeeded),
	)
	return stats, nil
}
