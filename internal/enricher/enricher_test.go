package enricher

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/llm"
)

func TestOfflineEnrichKnownIndustry(t *testing.T) {
	lead := &model.Lead{
		FullName:  "Jordan Reyes",
		RoleTitle: "VP of Logistics",
		Industry:  "Logistics",
	}

	enr, err := Offline{}.Enrich(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, "medium", enr.CompanySize)
	assert.Equal(t, "Logistics Executive", enr.PersonaTag)
	assert.Len(t, enr.PainPoints, 3)
	assert.Len(t, enr.BuyingTriggers, 2)
	assert.Contains(t, enr.PainPoints, "Optimizing route planning and fuel costs")
	// 75 base + 10 for VP + 15 for known industry.
	assert.Equal(t, 100, enr.ConfidenceScore)
	assert.Equal(t, "offline", enr.Mode)
}

func TestOfflineEnrichSizeRules(t *testing.T) {
	cases := []struct {
		role string
		size string
	}{
		{"CTO", "enterprise"},
		{"Chief Data Officer", "enterprise"},
		{"VP of Sales", "medium"},
		{"Supply Chain Director", "medium"},
		{"Operations Manager", "small"},
		{"Software Engineer", "medium"}, // no rule matched, default
	}
	for _, tc := range cases {
		enr, err := Offline{}.Enrich(context.Background(), &model.Lead{RoleTitle: tc.role, Industry: "Technology"})
		require.NoError(t, err)
		assert.Equal(t, tc.size, enr.CompanySize, "role %q", tc.role)
	}
}

func TestOfflineEnrichUnknownIndustry(t *testing.T) {
	enr, err := Offline{}.Enrich(context.Background(), &model.Lead{
		RoleTitle: "Operations Manager",
		Industry:  "Agriculture",
	})
	require.NoError(t, err)

	assert.Equal(t, "Business Leader", enr.PersonaTag)
	assert.Equal(t, defaultPainPoints, enr.PainPoints)
	assert.Equal(t, defaultBuyingTriggers[:2], enr.BuyingTriggers)
	assert.Equal(t, 75, enr.ConfidenceScore)
}

type stubLLM struct {
	text string
	err  error
}

func (s *stubLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Text: s.text}, nil
}

func TestLLMEnrichParsesJSON(t *testing.T) {
	e := &LLM{Client: &stubLLM{text: "```json\n" + `{
		"company_size": "enterprise",
		"persona_tag": "Technology Executive",
		"pain_points": ["cloud spend", "talent retention"],
		"buying_triggers": ["platform migration"],
		"confidence_score": 88
	}` + "\n```"}}

	enr, err := e.Enrich(context.Background(), &model.Lead{RoleTitle: "CTO", Industry: "Technology"})
	require.NoError(t, err)
	assert.Equal(t, "enterprise", enr.CompanySize)
	assert.Equal(t, "Technology Executive", enr.PersonaTag)
	assert.Equal(t, 88, enr.ConfidenceScore)
	assert.Equal(t, "ai", enr.Mode)
}

func TestLLMEnrichFallsBackOffline(t *testing.T) {
	e := &LLM{Client: &stubLLM{err: eris.New("provider down")}, Fallback: true}

	enr, err := e.Enrich(context.Background(), &model.Lead{RoleTitle: "CFO", Industry: "Finance"})
	require.NoError(t, err)
	assert.Equal(t, "offline", enr.Mode)
	assert.Equal(t, "Finance Executive", enr.PersonaTag)
}

func TestLLMEnrichNoFallback(t *testing.T) {
	e := &LLM{Client: &stubLLM{err: eris.New("provider down")}}

	_, err := e.Enrich(context.Background(), &model.Lead{RoleTitle: "CFO", Industry: "Finance"})
	require.Error(t, err)
}

func TestLLMEnrichGarbageOutput(t *testing.T) {
	e := &LLM{Client: &stubLLM{text: "I cannot help with that."}}

	_, err := e.Enrich(context.Background(), &model.Lead{RoleTitle: "CFO", Industry: "Finance"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable")
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON(`{"a":1}`))
}
