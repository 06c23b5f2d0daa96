package composer

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/llm"
)

func testLead() *model.Lead {
	return &model.Lead{
		ID:          "lead-1",
		FullName:    "Jordan Reyes",
		CompanyName: "Acme Logistics",
		RoleTitle:   "VP of Logistics",
		Industry:    "Logistics",
	}
}

func testEnrichment() *model.Enrichment {
	return &model.Enrichment{
		CompanySize:    "medium",
		PersonaTag:     "Logistics Executive",
		PainPoints:     []string{"Optimizing route planning and fuel costs"},
		BuyingTriggers: []string{"Fleet expansion"},
	}
}

func TestTemplateEmail(t *testing.T) {
	msg, err := Template{}.Compose(context.Background(), testLead(), testEnrichment(), model.ChannelEmail, "A")
	require.NoError(t, err)

	assert.Equal(t, "Improving Logistics Executive at Acme Logistics", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Jordan,")
	assert.Contains(t, msg.Body, "Optimizing route planning and fuel costs")
	assert.Contains(t, msg.Body, "15-minute call")
}

func TestTemplateVariationsDiffer(t *testing.T) {
	ctx := context.Background()
	a, err := Template{}.Compose(ctx, testLead(), testEnrichment(), model.ChannelEmail, "A")
	require.NoError(t, err)
	b, err := Template{}.Compose(ctx, testLead(), testEnrichment(), model.ChannelEmail, "B")
	require.NoError(t, err)
	assert.NotEqual(t, a.Body, b.Body)
}

func TestTemplateLinkedIn(t *testing.T) {
	msg, err := Template{}.Compose(context.Background(), testLead(), testEnrichment(), model.ChannelLinkedIn, "A")
	require.NoError(t, err)

	assert.Empty(t, msg.Subject, "LinkedIn DMs have no subject")
	assert.Contains(t, msg.Body, "Hi Jordan,")
	assert.Contains(t, msg.Body, "quick call")
}

func TestTemplateRequiresEnrichment(t *testing.T) {
	_, err := Template{}.Compose(context.Background(), testLead(), nil, model.ChannelEmail, "A")
	require.Error(t, err)
}

func TestTemplateMissingEnrichmentFields(t *testing.T) {
	msg, err := Template{}.Compose(context.Background(), testLead(), &model.Enrichment{}, model.ChannelEmail, "A")
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "operational efficiency")
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

func TestLLMComposeParsesSubject(t *testing.T) {
	c := &LLM{Client: &stubLLM{text: "Subject: Cut fleet costs this quarter\n\nHi Jordan,\n\nShort body here."}}

	msg, err := c.Compose(context.Background(), testLead(), testEnrichment(), model.ChannelEmail, "A")
	require.NoError(t, err)
	assert.Equal(t, "Cut fleet costs this quarter", msg.Subject)
	assert.Equal(t, "Hi Jordan,\n\nShort body here.", msg.Body)
}

func TestLLMComposeMissingSubjectHeader(t *testing.T) {
	c := &LLM{Client: &stubLLM{text: "Hi Jordan, no header here."}}

	msg, err := c.Compose(context.Background(), testLead(), testEnrichment(), model.ChannelEmail, "A")
	require.NoError(t, err)
	assert.Equal(t, "Quick question about Logistics operations", msg.Subject)
	assert.Equal(t, "Hi Jordan, no header here.", msg.Body)
}

func TestLLMComposeLinkedInKeepsWholeText(t *testing.T) {
	c := &LLM{Client: &stubLLM{text: "Hi Jordan, quick note about routing."}}

	msg, err := c.Compose(context.Background(), testLead(), testEnrichment(), model.ChannelLinkedIn, "A")
	require.NoError(t, err)
	assert.Empty(t, msg.Subject)
	assert.Equal(t, "Hi Jordan, quick note about routing.", msg.Body)
}

func TestLLMComposeFallsBackToTemplate(t *testing.T) {
	c := &LLM{Client: &stubLLM{err: eris.New("provider down")}}

	msg, err := c.Compose(context.Background(), testLead(), testEnrichment(), model.ChannelEmail, "A")
	require.NoError(t, err)
	assert.Equal(t, "Improving Logistics Executive at Acme Logistics", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Jordan,")
}
