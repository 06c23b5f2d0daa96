package channel

import (
	"context"
	"math/rand"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// LinkedIn is a simulated channel: there is no general messaging API, so
// sends are logged and succeed with a configurable probability. Failures
// are transient, mimicking provider throttling.
type LinkedIn struct {
	successRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLinkedIn creates the simulated channel. successRate of 0 uses the
// default 0.95; a seeded generator makes test runs reproducible.
func NewLinkedIn(successRate float64, seed int64) *LinkedIn {
	if successRate <= 0 || successRate > 1 {
		successRate = 0.95
	}
	return &LinkedIn{
		successRate: successRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (l *LinkedIn) Name() model.Channel { return model.ChannelLinkedIn }

func (l *LinkedIn) Send(ctx context.Context, lead *model.Lead, msg *model.Message) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	l.mu.Lock()
	roll := l.rng.Float64()
	l.mu.Unlock()

	if roll >= l.successRate {
		return resilience.NewTransientError(eris.New("channel: linkedin send throttled"), 429)
	}

	zap.L().Info("linkedin dm sent (simulated)",
		zap.String("lead_id", lead.ID),
		zap.String("profile", lead.LinkedInURL),
	)
	return nil
}
