package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/funnel"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
)

type stubSource struct {
	leads []model.Lead
	block chan struct{}
}

func (s *stubSource) FetchNew(ctx context.Context, limit int) ([]model.Lead, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.leads, nil
}

type stubEnricher struct{}

func (stubEnricher) Enrich(ctx context.Context, lead *model.Lead) (*model.Enrichment, error) {
	return &model.Enrichment{PersonaTag: "Business Leader", Mode: "offline"}, nil
}

type stubComposer struct{}

func (stubComposer) Compose(ctx context.Context, lead *model.Lead, enr *model.Enrichment, ch model.Channel, variation string) (*model.Message, error) {
	return &model.Message{Subject: "hi", Body: "hello"}, nil
}

type env struct {
	store  store.Store
	source *stubSource
	ctrl   *funnel.Controller
	srv    *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	source := &stubSource{leads: []model.Lead{{
		ExternalID: "ext-1",
		FullName:   "Jordan Reyes",
		Email:      "jordan@example.com",
	}}}
	ctrl := funnel.NewController(funnel.Deps{
		Store:    st,
		Source:   source,
		Enricher: stubEnricher{},
		Composer: stubComposer{},
		Channels: map[model.Channel]funnel.Channel{},
		Limiter:  resilience.NewWindowLimiter(100, time.Minute),
		Policy:   resilience.DefaultPolicy(),
		Defaults: funnel.Defaults{
			RecordLimit: 10,
			Channels:    []model.Channel{model.ChannelEmail},
			DryRun:      true,
			Workers:     2,
		},
	})

	e := &env{store: st, source: source, ctrl: ctrl}
	e.srv = httptest.NewServer(New(ctrl, st).Router([]string{"http://localhost:3000"}))
	t.Cleanup(e.srv.Close)
	return e
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	var body map[string]string
	code := getJSON(t, e.srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRunAndStatus(t *testing.T) {
	e := newEnv(t)

	var started map[string]string
	code := postJSON(t, e.srv.URL+"/pipeline/run", "", &started)
	require.Equal(t, http.StatusAccepted, code)
	assert.NotEmpty(t, started["run_id"])

	e.ctrl.Wait()

	var snap model.RunSnapshot
	code = getJSON(t, e.srv.URL+"/pipeline/status", &snap)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, snap.Running)
	assert.Equal(t, 100, snap.ProgressPercent)
}

func TestRunConflict(t *testing.T) {
	e := newEnv(t)
	e.source.block = make(chan struct{})

	code := postJSON(t, e.srv.URL+"/pipeline/run", "", nil)
	require.Equal(t, http.StatusAccepted, code)

	var errBody map[string]string
	code = postJSON(t, e.srv.URL+"/pipeline/run", "", &errBody)
	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, errBody["error"])

	close(e.source.block)
	e.ctrl.Wait()
}

func TestStopWithoutRun(t *testing.T) {
	e := newEnv(t)
	code := postJSON(t, e.srv.URL+"/pipeline/stop", "", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestStopRunning(t *testing.T) {
	e := newEnv(t)
	e.source.block = make(chan struct{})

	code := postJSON(t, e.srv.URL+"/pipeline/run", "", nil)
	require.Equal(t, http.StatusAccepted, code)

	code = postJSON(t, e.srv.URL+"/pipeline/stop", "", nil)
	assert.Equal(t, http.StatusOK, code)
	e.ctrl.Wait()

	var snap model.RunSnapshot
	getJSON(t, e.srv.URL+"/pipeline/status", &snap)
	assert.True(t, snap.Canceled)
}

func TestLeadsEndpoints(t *testing.T) {
	e := newEnv(t)
	postJSON(t, e.srv.URL+"/pipeline/run", "", nil)
	e.ctrl.Wait()

	var listing struct {
		Leads []model.Lead `json:"leads"`
		Count int          `json:"count"`
	}
	code := getJSON(t, e.srv.URL+"/leads", &listing)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, listing.Count)
	lead := listing.Leads[0]
	assert.Equal(t, model.StatusSent, lead.Status)

	// Filter by status.
	code = getJSON(t, e.srv.URL+"/leads?status=SENT", &listing)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, listing.Count)

	code = getJSON(t, e.srv.URL+"/leads?status=FAILED", &listing)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, listing.Count)

	// Invalid status is a client error.
	code = getJSON(t, e.srv.URL+"/leads?status=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// Single lead.
	var got model.Lead
	code = getJSON(t, e.srv.URL+"/leads/"+lead.ID, &got)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, lead.ExternalID, got.ExternalID)

	code = getJSON(t, e.srv.URL+"/leads/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// Messages.
	var msgs struct {
		Count int `json:"count"`
	}
	code = getJSON(t, e.srv.URL+"/leads/"+lead.ID+"/messages", &msgs)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, msgs.Count)

	code = getJSON(t, e.srv.URL+"/leads/nope/messages", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	postJSON(t, e.srv.URL+"/pipeline/run", "", nil)
	e.ctrl.Wait()

	var m struct {
		Total int `json:"total"`
		Sent  int `json:"sent"`
	}
	code := getJSON(t, e.srv.URL+"/metrics", &m)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, m.Total)
	assert.Equal(t, 1, m.Sent)
}

func TestClearLeads(t *testing.T) {
	e := newEnv(t)
	postJSON(t, e.srv.URL+"/pipeline/run", "", nil)
	e.ctrl.Wait()

	req, err := http.NewRequest(http.MethodDelete, e.srv.URL+"/leads", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var m struct {
		Total int `json:"total"`
	}
	getJSON(t, e.srv.URL+"/metrics", &m)
	assert.Zero(t, m.Total)
}

func TestClearLeadsConflictsWithRun(t *testing.T) {
	e := newEnv(t)
	e.source.block = make(chan struct{})
	postJSON(t, e.srv.URL+"/pipeline/run", "", nil)

	req, err := http.NewRequest(http.MethodDelete, e.srv.URL+"/leads", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(e.source.block)
	e.ctrl.Wait()
}

func TestRunWithBodyOverrides(t *testing.T) {
	e := newEnv(t)
	code := postJSON(t, e.srv.URL+"/pipeline/run", `{"record_limit": 1, "dry_run": true}`, nil)
	require.Equal(t, http.StatusAccepted, code)
	e.ctrl.Wait()

	code = postJSON(t, e.srv.URL+"/pipeline/run", `{bad json`, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = postJSON(t, e.srv.URL+"/pipeline/run", `{"composition_mode": "telepathy"}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
