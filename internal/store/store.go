package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrNotFound is returned when the referenced row does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrStaleStatus is returned by UpdateLeadStatus when the lead's current
// status no longer matches the expected prior status. Callers racing on the
// same lead lose the compare-and-swap and must not write.
var ErrStaleStatus = eris.New("store: stale status")

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the outreach funnel.
type Store interface {
	// Leads
	InsertLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	LeadExists(ctx context.Context, externalID string) (bool, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	// UpdateLeadStatus performs a status-guarded compare-and-swap: the write
	// succeeds only if the lead is still at the expected prior status.
	UpdateLeadStatus(ctx context.Context, id string, from, to model.Status, errDetail string) error

	// Enrichment (latest row wins; rows are never updated)
	InsertEnrichment(ctx context.Context, e *model.Enrichment) error
	GetEnrichment(ctx context.Context, leadID string) (*model.Enrichment, error)

	// Messages
	InsertMessage(ctx context.Context, m *model.Message) error
	ListLeadMessages(ctx context.Context, leadID string) ([]model.Message, error)

	// Delivery attempts (append-only)
	InsertAttempt(ctx context.Context, a *model.DeliveryAttempt) error
	CountAttempts(ctx context.Context, messageID string) (int, error)
	ListAttempts(ctx context.Context, messageID string) ([]model.DeliveryAttempt, error)

	// Metrics reads a consistent snapshot in a single transaction.
	Metrics(ctx context.Context) (*model.Metrics, error)

	// Lifecycle
	ClearAll(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
