package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func newMockPG(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, &PostgresStore{pool: mock}
}

func leadRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "external_id", "full_name", "company_name", "role_title", "industry",
		"company_website", "email", "linkedin_url", "country", "source", "status", "error",
		"created_at", "updated_at",
	})
}

func TestPostgresGetLead(t *testing.T) {
	mock, s := newMockPG(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM leads WHERE id = \$1`).
		WithArgs("lead-1").
		WillReturnRows(leadRows().AddRow(
			"lead-1", "ext-1", "Jordan Reyes", "Acme Logistics", "VP of Operations", "Logistics",
			"https://acme.example.com", "jordan@acme.example.com", "https://linkedin.com/in/jr",
			"US", "synthetic", "ENRICHED", "", now, now,
		))

	lead, err := s.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", lead.ExternalID)
	assert.Equal(t, model.StatusEnriched, lead.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetLeadNotFound(t *testing.T) {
	mock, s := newMockPG(t)

	mock.ExpectQuery(`SELECT .+ FROM leads WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(leadRows())

	_, err := s.GetLead(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertLead(t *testing.T) {
	mock, s := newMockPG(t)

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "ext-1", "Jordan Reyes", "Acme Logistics", "VP of Operations",
			"Logistics", "https://acme.example.com", "jordan@acme.example.com",
			"https://linkedin.com/in/jr", "US", "synthetic", "NEW", "",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lead := &model.Lead{
		ExternalID:     "ext-1",
		FullName:       "Jordan Reyes",
		CompanyName:    "Acme Logistics",
		RoleTitle:      "VP of Operations",
		Industry:       "Logistics",
		CompanyWebsite: "https://acme.example.com",
		Email:          "jordan@acme.example.com",
		LinkedInURL:    "https://linkedin.com/in/jr",
		Country:        "US",
		Source:         "synthetic",
	}
	require.NoError(t, s.InsertLead(context.Background(), lead))
	assert.NotEmpty(t, lead.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateLeadStatus(t *testing.T) {
	mock, s := newMockPG(t)

	mock.ExpectExec(`UPDATE leads SET status = \$1`).
		WithArgs("ENRICHED", "", pgxmock.AnyArg(), "lead-1", "NEW").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateLeadStatus(context.Background(), "lead-1", model.StatusNew, model.StatusEnriched, "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateLeadStatusStale(t *testing.T) {
	mock, s := newMockPG(t)

	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE leads SET status = \$1`).
		WithArgs("ENRICHED", "", pgxmock.AnyArg(), "lead-1", "NEW").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	// The store re-reads the row to distinguish a lost race from a missing lead.
	mock.ExpectQuery(`SELECT .+ FROM leads WHERE id = \$1`).
		WithArgs("lead-1").
		WillReturnRows(leadRows().AddRow(
			"lead-1", "ext-1", "Jordan Reyes", "Acme Logistics", "VP of Operations", "Logistics",
			"https://acme.example.com", "jordan@acme.example.com", "https://linkedin.com/in/jr",
			"US", "synthetic", "MESSAGED", "", now, now,
		))

	err := s.UpdateLeadStatus(context.Background(), "lead-1", model.StatusNew, model.StatusEnriched, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStaleStatus))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateLeadStatusIllegalTransition(t *testing.T) {
	_, s := newMockPG(t)

	// Rejected before any query is issued.
	err := s.UpdateLeadStatus(context.Background(), "lead-1", model.StatusNew, model.StatusSent, "")
	require.Error(t, err)
}

func TestPostgresLeadExists(t *testing.T) {
	mock, s := newMockPG(t)

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM leads WHERE external_id = \$1`).
		WithArgs("ext-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := s.LeadExists(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountAttempts(t *testing.T) {
	mock, s := newMockPG(t)

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM delivery_attempts WHERE message_id = \$1`).
		WithArgs("msg-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.CountAttempts(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetrics(t *testing.T) {
	mock, s := newMockPG(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, COUNT\(1\) FROM leads GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("NEW", 1).
			AddRow("ENRICHED", 2).
			AddRow("MESSAGED", 1).
			AddRow("SENT", 3).
			AddRow("FAILED", 1))
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM messages`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM delivery_attempts WHERE outcome = 'success'`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM delivery_attempts WHERE outcome = 'failure'`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	m, err := s.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, m.Total)
	assert.Equal(t, 3, m.Sent)
	assert.Equal(t, 4, m.Messaged)
	assert.Equal(t, 6, m.Enriched)
	assert.Equal(t, 1, m.Failed)
	assert.Equal(t, 8, m.MessagesComposed)
	assert.Equal(t, 7, m.AttemptsSent)
	assert.Equal(t, 2, m.AttemptsFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClearAll(t *testing.T) {
	mock, s := newMockPG(t)

	for _, table := range []string{"delivery_attempts", "messages", "enrichments", "leads"} {
		mock.ExpectExec(`DELETE FROM ` + table).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
	}

	require.NoError(t, s.ClearAll(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
