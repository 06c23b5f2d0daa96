package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies the
// same interface, which keeps the postgres store unit-testable.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"update_lead_status": `UPDATE leads SET status = $1, error = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
	"get_lead":           `SELECT ` + leadColumnsPG + ` FROM leads WHERE id = $1`,
	"count_attempts":     `SELECT COUNT(1) FROM delivery_attempts WHERE message_id = $1`,
}

const leadColumnsPG = `id, external_id, full_name, company_name, role_title, industry,
	company_website, email, linkedin_url, country, source, status, error, created_at, updated_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS enrichments (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id          TEXT NOT NULL REFERENCES leads(id),
	company_size     TEXT NOT NULL,
	persona_tag      TEXT NOT NULL,
	pain_points      JSONB NOT NULL,
	buying_triggers  JSONB NOT NULL,
	confidence_score INTEGER NOT NULL,
	mode             TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id    TEXT NOT NULL REFERENCES leads(id),
	channel    TEXT NOT NULL,
	variation  TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS delivery_attempts (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	message_id TEXT NOT NULL REFERENCES messages(id),
	lead_id    TEXT NOT NULL REFERENCES leads(id),
	channel    TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	dry_run    BOOLEAN NOT NULL DEFAULT false,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (message_id, attempt)
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_enrichments_lead_id ON enrichments(lead_id);
CREATE INDEX IF NOT EXISTS idx_messages_lead_id ON messages(lead_id);
CREATE INDEX IF NOT EXISTS idx_attempts_message_id ON delivery_attempts(message_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = model.StatusNew
	}
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, external_id, full_name, company_name, role_title, industry,
			company_website, email, linkedin_url, country, source, status, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		lead.ID, lead.ExternalID, lead.FullName, lead.CompanyName, lead.RoleTitle, lead.Industry,
		lead.CompanyWebsite, lead.Email, lead.LinkedInURL, lead.Country, lead.Source,
		string(lead.Status), lead.Error, now, now,
	)
	return eris.Wrapf(err, "postgres: insert lead %s", lead.ExternalID)
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumnsPG+` FROM leads WHERE id = $1`, id)
	return scanLeadPG(row)
}

func (s *PostgresStore) LeadExists(ctx context.Context, externalID string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM leads WHERE external_id = $1`, externalID,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "postgres: lead exists")
	}
	return n > 0, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumnsPG + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at, id`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += ` OFFSET $` + strconv.Itoa(len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLeadPG(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id string, from, to model.Status, errDetail string) error {
	if !from.CanTransition(to) {
		return eris.Errorf("postgres: illegal transition %s -> %s for lead %s", from, to, id)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, error = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		string(to), errDetail, time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead status %s", id)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetLead(ctx, id); getErr != nil {
			return getErr
		}
		return eris.Wrapf(ErrStaleStatus, "lead %s not at %s", id, from)
	}
	return nil
}

func (s *PostgresStore) InsertEnrichment(ctx context.Context, e *model.Enrichment) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()

	painJSON, err := json.Marshal(e.PainPoints)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pain points")
	}
	triggerJSON, err := json.Marshal(e.BuyingTriggers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal buying triggers")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichments (id, lead_id, company_size, persona_tag, pain_points,
			buying_triggers, confidence_score, mode, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.LeadID, e.CompanySize, e.PersonaTag, string(painJSON),
		string(triggerJSON), e.ConfidenceScore, e.Mode, e.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert enrichment for lead %s", e.LeadID)
}

func (s *PostgresStore) GetEnrichment(ctx context.Context, leadID string) (*model.Enrichment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, lead_id, company_size, persona_tag, pain_points, buying_triggers,
			confidence_score, mode, created_at
		 FROM enrichments WHERE lead_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		leadID,
	)

	var e model.Enrichment
	var painJSON, triggerJSON []byte
	err := row.Scan(&e.ID, &e.LeadID, &e.CompanySize, &e.PersonaTag, &painJSON,
		&triggerJSON, &e.ConfidenceScore, &e.Mode, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get enrichment")
	}
	if err := json.Unmarshal(painJSON, &e.PainPoints); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pain points")
	}
	if err := json.Unmarshal(triggerJSON, &e.BuyingTriggers); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal buying triggers")
	}
	return &e, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, lead_id, channel, variation, subject, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.LeadID, string(m.Channel), m.Variation, m.Subject, m.Body, m.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert message for lead %s", m.LeadID)
}

func (s *PostgresStore) ListLeadMessages(ctx context.Context, leadID string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, channel, variation, subject, body, created_at
		 FROM messages WHERE lead_id = $1 ORDER BY channel, variation`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list messages")
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var ch string
		if err := rows.Scan(&m.ID, &m.LeadID, &ch, &m.Variation, &m.Subject, &m.Body, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		m.Channel = model.Channel(ch)
		msgs = append(msgs, m)
	}
	return msgs, eris.Wrap(rows.Err(), "postgres: list messages iterate")
}

func (s *PostgresStore) InsertAttempt(ctx context.Context, a *model.DeliveryAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO delivery_attempts (id, message_id, lead_id, channel, attempt, outcome, dry_run, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.MessageID, a.LeadID, string(a.Channel), a.Attempt, string(a.Outcome),
		a.DryRun, a.Error, a.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert attempt %d for message %s", a.Attempt, a.MessageID)
}

func (s *PostgresStore) CountAttempts(ctx context.Context, messageID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM delivery_attempts WHERE message_id = $1`, messageID,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count attempts")
}

func (s *PostgresStore) ListAttempts(ctx context.Context, messageID string) ([]model.DeliveryAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, message_id, lead_id, channel, attempt, outcome, dry_run, error, created_at
		 FROM delivery_attempts WHERE message_id = $1 ORDER BY attempt`,
		messageID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list attempts")
	}
	defer rows.Close()

	var attempts []model.DeliveryAttempt
	for rows.Next() {
		var a model.DeliveryAttempt
		var ch, outcome string
		if err := rows.Scan(&a.ID, &a.MessageID, &a.LeadID, &ch, &a.Attempt, &outcome, &a.DryRun, &a.Error, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		a.Channel = model.Channel(ch)
		a.Outcome = model.AttemptOutcome(outcome)
		attempts = append(attempts, a)
	}
	return attempts, eris.Wrap(rows.Err(), "postgres: list attempts iterate")
}

func (s *PostgresStore) Metrics(ctx context.Context) (*model.Metrics, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin metrics tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	m := &model.Metrics{ByStatus: make(map[model.Status]int)}

	rows, err := tx.Query(ctx, `SELECT status, COUNT(1) FROM leads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: metrics status counts")
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		m.ByStatus[model.Status(st)] = n
		m.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: metrics iterate")
	}

	m.Sent = m.ByStatus[model.StatusSent]
	m.Messaged = m.ByStatus[model.StatusMessaged] + m.Sent
	m.Enriched = m.ByStatus[model.StatusEnriched] + m.Messaged
	m.Failed = m.ByStatus[model.StatusFailed]

	if err := tx.QueryRow(ctx, `SELECT COUNT(1) FROM messages`).Scan(&m.MessagesComposed); err != nil {
		return nil, eris.Wrap(err, "postgres: metrics message count")
	}
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(1) FROM delivery_attempts WHERE outcome = 'success'`,
	).Scan(&m.AttemptsSent); err != nil {
		return nil, eris.Wrap(err, "postgres: metrics attempts sent")
	}
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(1) FROM delivery_attempts WHERE outcome = 'failure'`,
	).Scan(&m.AttemptsFailed); err != nil {
		return nil, eris.Wrap(err, "postgres: metrics attempts failed")
	}

	return m, eris.Wrap(tx.Commit(ctx), "postgres: commit metrics tx")
}

func (s *PostgresStore) ClearAll(ctx context.Context) error {
	for _, table := range []string{"delivery_attempts", "messages", "enrichments", "leads"} {
		if _, err := s.pool.Exec(ctx, `DELETE FROM `+table); err != nil {
			return eris.Wrapf(err, "postgres: clear %s", table)
		}
	}
	return nil
}

func scanLeadPG(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var status string
	err := row.Scan(&l.ID, &l.ExternalID, &l.FullName, &l.CompanyName, &l.RoleTitle, &l.Industry,
		&l.CompanyWebsite, &l.Email, &l.LinkedInURL, &l.Country, &l.Source, &status, &l.Error,
		&l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan lead")
	}
	l.Status = model.Status(status)
	return &l, nil
}

