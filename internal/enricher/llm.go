package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/llm"
)

const enrichSystemPrompt = "You are a B2B sales intelligence expert. Provide realistic, actionable enrichment data in valid JSON format only."

const enrichPromptTemplate = `Analyze this business lead and provide enrichment data in JSON format.

Lead Information:
- Name: %s
- Company: %s
- Role: %s
- Industry: %s
- Country: %s

Provide enrichment in this exact JSON format:
{
  "company_size": "small/medium/enterprise",
  "persona_tag": "descriptive persona like 'Tech Leader' or 'Operations Executive'",
  "pain_points": ["pain point 1", "pain point 2", "pain point 3"],
  "buying_triggers": ["trigger 1", "trigger 2"],
  "confidence_score": 85
}

Focus on realistic, industry-specific insights. Be specific and actionable.`

// LLM enriches leads with a completion model, falling back to the offline
// rules when the provider fails or returns unparseable output.
type LLM struct {
	Client   llm.Client
	Fallback bool
}

type llmEnrichment struct {
	CompanySize     string   `json:"company_size"`
	PersonaTag      string   `json:"persona_tag"`
	PainPoints      []string `json:"pain_points"`
	BuyingTriggers  []string `json:"buying_triggers"`
	ConfidenceScore int      `json:"confidence_score"`
}

func (l *LLM) Enrich(ctx context.Context, lead *model.Lead) (*model.Enrichment, error) {
	temp := 0.7
	resp, err := l.Client.Complete(ctx, llm.CompletionRequest{
		System: enrichSystemPrompt,
		Prompt: fmt.Sprintf(enrichPromptTemplate,
			lead.FullName, lead.CompanyName, lead.RoleTitle, lead.Industry, lead.Country),
		Temperature: &temp,
	})
	if err == nil {
		var parsed llmEnrichment
		if jsonErr := json.Unmarshal([]byte(extractJSON(resp.Text)), &parsed); jsonErr == nil && parsed.PersonaTag != "" {
			return &model.Enrichment{
				CompanySize:     parsed.CompanySize,
				PersonaTag:      parsed.PersonaTag,
				PainPoints:      parsed.PainPoints,
				BuyingTriggers:  parsed.BuyingTriggers,
				ConfidenceScore: parsed.ConfidenceScore,
				Mode:            "ai",
			}, nil
		}
		err = eris.Errorf("enricher: unparseable completion: %.80s", resp.Text)
	}

	if !l.Fallback {
		return nil, eris.Wrap(err, "enricher: llm")
	}
	zap.L().Warn("llm enrichment failed, using offline rules",
		zap.String("lead_id", lead.ID),
		zap.Error(err),
	)
	return Offline{}.Enrich(ctx, lead)
}

// extractJSON strips markdown code fences around a JSON payload.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
