package funnel

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrAlreadyRunning is returned by Start while a run is in flight.
var ErrAlreadyRunning = eris.New("funnel: a run is already in progress")

// ErrNotRunning is returned by Cancel when no run is in flight.
var ErrNotRunning = eris.New("funnel: no run in progress")

// ErrUnknownMode is returned by Start when a run asks for a composition
// mode no composer is registered under.
var ErrUnknownMode = eris.New("funnel: unknown composition mode")

// Source produces new leads for the capture stage.
type Source interface {
	FetchNew(ctx context.Context, limit int) ([]model.Lead, error)
}

// Enricher derives firmographic and persona data for a lead.
type Enricher interface {
	Enrich(ctx context.Context, lead *model.Lead) (*model.Enrichment, error)
}

// Composer produces one outreach message for a lead on a channel.
type Composer interface {
	Compose(ctx context.Context, lead *model.Lead, enr *model.Enrichment, channel model.Channel, variation string) (*model.Message, error)
}

// Channel delivers a composed message to its recipient.
type Channel interface {
	Name() model.Channel
	Send(ctx context.Context, lead *model.Lead, msg *model.Message) error
}

// RunConfig holds the per-run knobs. Zero values fall back to the
// controller's configured defaults.
type RunConfig struct {
	RecordLimit     int             `json:"record_limit,omitempty"`
	CompositionMode string          `json:"composition_mode,omitempty"`
	Channels        []model.Channel `json:"channels,omitempty"`
	Variations      []string        `json:"variations,omitempty"`
	DryRun          *bool           `json:"dry_run,omitempty"`
}

// Stage progress weights. Capture is cheap relative to the three
// provider-bound stages.
const (
	weightCapture = 10
	weightEnrich  = 30
	weightCompose = 30
	weightDeliver = 30
)

var stageWeights = map[model.Stage]int{
	model.StageCapture: weightCapture,
	model.StageEnrich:  weightEnrich,
	model.StageCompose: weightCompose,
	model.StageDeliver: weightDeliver,
}

var stageOrder = []model.Stage{
	model.StageCapture,
	model.StageEnrich,
	model.StageCompose,
	model.StageDeliver,
}

// progressFunc reports how far through its batch a stage is.
type progressFunc func(processed, total int)
