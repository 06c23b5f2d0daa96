package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id              TEXT PRIMARY KEY,
	external_id     TEXT NOT NULL UNIQUE,
	full_name       TEXT NOT NULL,
	company_name    TEXT NOT NULL,
	role_title      TEXT NOT NULL,
	industry        TEXT NOT NULL,
	company_website TEXT NOT NULL,
	email           TEXT NOT NULL,
	linkedin_url    TEXT NOT NULL,
	country         TEXT NOT NULL,
	source          TEXT NOT NULL DEFAULT 'external',
	status          TEXT NOT NULL DEFAULT 'NEW',
	error           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS enrichments (
	id               TEXT PRIMARY KEY,
	lead_id          TEXT NOT NULL REFERENCES leads(id),
	company_size     TEXT NOT NULL,
	persona_tag      TEXT NOT NULL,
	pain_points      TEXT NOT NULL,
	buying_triggers  TEXT NOT NULL,
	confidence_score INTEGER NOT NULL,
	mode             TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id),
	channel    TEXT NOT NULL,
	variation  TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS delivery_attempts (
	id         TEXT PRIMARY KEY,
	message_id TEXT NOT NULL REFERENCES messages(id),
	lead_id    TEXT NOT NULL REFERENCES leads(id),
	channel    TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	dry_run    INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (message_id, attempt)
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_external_id ON leads(external_id);
CREATE INDEX IF NOT EXISTS idx_enrichments_lead_id ON enrichments(lead_id);
CREATE INDEX IF NOT EXISTS idx_messages_lead_id ON messages(lead_id);
CREATE INDEX IF NOT EXISTS idx_attempts_message_id ON delivery_attempts(message_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = model.StatusNew
	}
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, external_id, full_name, company_name, role_title, industry,
			company_website, email, linkedin_url, country, source, status, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.ExternalID, lead.FullName, lead.CompanyName, lead.RoleTitle, lead.Industry,
		lead.CompanyWebsite, lead.Email, lead.LinkedInURL, lead.Country, lead.Source,
		string(lead.Status), lead.Error, now, now,
	)
	return eris.Wrapf(err, "sqlite: insert lead %s", lead.ExternalID)
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	return scanLead(row)
}

func (s *SQLiteStore) LeadExists(ctx context.Context, externalID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM leads WHERE external_id = ?`, externalID,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: lead exists")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, id string, from, to model.Status, errDetail string) error {
	if !from.CanTransition(to) {
		return eris.Errorf("sqlite: illegal transition %s -> %s for lead %s", from, to, id)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), errDetail, time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Distinguish a lost race from a missing row.
		if _, getErr := s.GetLead(ctx, id); getErr != nil {
			return getErr
		}
		return eris.Wrapf(ErrStaleStatus, "lead %s not at %s", id, from)
	}
	return nil
}

func (s *SQLiteStore) InsertEnrichment(ctx context.Context, e *model.Enrichment) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()

	painJSON, err := json.Marshal(e.PainPoints)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pain points")
	}
	triggerJSON, err := json.Marshal(e.BuyingTriggers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal buying triggers")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichments (id, lead_id, company_size, persona_tag, pain_points,
			buying_triggers, confidence_score, mode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.LeadID, e.CompanySize, e.PersonaTag, string(painJSON),
		string(triggerJSON), e.ConfidenceScore, e.Mode, e.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert enrichment for lead %s", e.LeadID)
}

func (s *SQLiteStore) GetEnrichment(ctx context.Context, leadID string) (*model.Enrichment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lead_id, company_size, persona_tag, pain_points, buying_triggers,
			confidence_score, mode, created_at
		 FROM enrichments WHERE lead_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		leadID,
	)

	var e model.Enrichment
	var painJSON, triggerJSON string
	err := row.Scan(&e.ID, &e.LeadID, &e.CompanySize, &e.PersonaTag, &painJSON,
		&triggerJSON, &e.ConfidenceScore, &e.Mode, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get enrichment")
	}
	if err := json.Unmarshal([]byte(painJSON), &e.PainPoints); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pain points")
	}
	if err := json.Unmarshal([]byte(triggerJSON), &e.BuyingTriggers); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal buying triggers")
	}
	return &e, nil
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, lead_id, channel, variation, subject, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.LeadID, string(m.Channel), m.Variation, m.Subject, m.Body, m.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert message for lead %s", m.LeadID)
}

func (s *SQLiteStore) ListLeadMessages(ctx context.Context, leadID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, channel, variation, subject, body, created_at
		 FROM messages WHERE lead_id = ? ORDER BY channel, variation`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list messages")
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var ch string
		if err := rows.Scan(&m.ID, &m.LeadID, &ch, &m.Variation, &m.Subject, &m.Body, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		m.Channel = model.Channel(ch)
		msgs = append(msgs, m)
	}
	return msgs, eris.Wrap(rows.Err(), "sqlite: list messages iterate")
}

func (s *SQLiteStore) InsertAttempt(ctx context.Context, a *model.DeliveryAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_attempts (id, message_id, lead_id, channel, attempt, outcome, dry_run, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MessageID, a.LeadID, string(a.Channel), a.Attempt, string(a.Outcome),
		boolToInt(a.DryRun), a.Error, a.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert attempt %d for message %s", a.Attempt, a.MessageID)
}

func (s *SQLiteStore) CountAttempts(ctx context.Context, messageID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM delivery_attempts WHERE message_id = ?`, messageID,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count attempts")
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, messageID string) ([]model.DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, lead_id, channel, attempt, outcome, dry_run, error, created_at
		 FROM delivery_attempts WHERE message_id = ? ORDER BY attempt`,
		messageID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attempts")
	}
	defer rows.Close()

	var attempts []model.DeliveryAttempt
	for rows.Next() {
		var a model.DeliveryAttempt
		var ch, outcome string
		var dry int
		if err := rows.Scan(&a.ID, &a.MessageID, &a.LeadID, &ch, &a.Attempt, &outcome, &dry, &a.Error, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		a.Channel = model.Channel(ch)
		a.Outcome = model.AttemptOutcome(outcome)
		a.DryRun = dry != 0
		attempts = append(attempts, a)
	}
	return attempts, eris.Wrap(rows.Err(), "sqlite: list attempts iterate")
}

// Metrics reads all counts inside one transaction so a concurrently running
// funnel cannot skew the snapshot between queries.
func (s *SQLiteStore) Metrics(ctx context.Context) (*model.Metrics, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin metrics tx")
	}
	defer tx.Rollback() //nolint:errcheck

	m := &model.Metrics{ByStatus: make(map[model.Status]int)}

	rows, err := tx.QueryContext(ctx, `SELECT status, COUNT(1) FROM leads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: metrics status counts")
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		m.ByStatus[model.Status(st)] = n
		m.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: metrics iterate")
	}

	m.Sent = m.ByStatus[model.StatusSent]
	m.Messaged = m.ByStatus[model.StatusMessaged] + m.Sent
	m.Enriched = m.ByStatus[model.StatusEnriched] + m.Messaged
	m.Failed = m.ByStatus[model.StatusFailed]

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages`).Scan(&m.MessagesComposed); err != nil {
		return nil, eris.Wrap(err, "sqlite: metrics message count")
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM delivery_attempts WHERE outcome = 'success'`,
	).Scan(&m.AttemptsSent); err != nil {
		return nil, eris.Wrap(err, "sqlite: metrics attempts sent")
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM delivery_attempts WHERE outcome = 'failure'`,
	).Scan(&m.AttemptsFailed); err != nil {
		return nil, eris.Wrap(err, "sqlite: metrics attempts failed")
	}

	return m, eris.Wrap(tx.Commit(), "sqlite: commit metrics tx")
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	for _, table := range []string{"delivery_attempts", "messages", "enrichments", "leads"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}
	return nil
}

// helpers

const leadColumns = `id, external_id, full_name, company_name, role_title, industry,
	company_website, email, linkedin_url, country, source, status, error, created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var status string
	err := row.Scan(&l.ID, &l.ExternalID, &l.FullName, &l.CompanyName, &l.RoleTitle, &l.Industry,
		&l.CompanyWebsite, &l.Email, &l.LinkedInURL, &l.Country, &l.Source, &status, &l.Error,
		&l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}
	l.Status = model.Status(status)
	return &l, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
