package composer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/llm"
)

const emailSystemPrompt = "You are an expert B2B sales copywriter. Write compelling, personalized emails that are concise and actionable. Always respect the word limit."

const linkedinSystemPrompt = "You are an expert at LinkedIn outreach. Write concise, personalized messages that feel natural and conversational. Always respect the word limit."

// LLM composes messages with a completion model. Provider failures fall
// back to the deterministic templates so a run never stalls on copywriting.
type LLM struct {
	Client llm.Client
}

func (l *LLM) Compose(ctx context.Context, lead *model.Lead, enr *model.Enrichment, ch model.Channel, variation string) (*model.Message, error) {
	var system, prompt string
	var maxTokens int64
	switch ch {
	case model.ChannelEmail:
		system, prompt, maxTokens = emailSystemPrompt, emailPrompt(lead, enr, variation), 300
	case model.ChannelLinkedIn:
		system, prompt, maxTokens = linkedinSystemPrompt, linkedinPrompt(lead, enr, variation), 150
	default:
		return Template{}.Compose(ctx, lead, enr, ch, variation)
	}

	temp := 0.8
	resp, err := l.Client.Complete(ctx, llm.CompletionRequest{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Warn("llm composition failed, using template",
			zap.String("lead_id", lead.ID),
			zap.String("channel", string(ch)),
			zap.Error(err),
		)
		return Template{}.Compose(ctx, lead, enr, ch, variation)
	}

	content := strings.TrimSpace(resp.Text)
	if ch == model.ChannelLinkedIn {
		return &model.Message{Body: content}, nil
	}

	subject, body := splitSubject(content)
	if subject == "" {
		subject = fmt.Sprintf("Quick question about %s operations", lead.Industry)
	}
	return &model.Message{Subject: subject, Body: body}, nil
}

// splitSubject parses the "Subject: ..." header convention out of a
// generated email.
func splitSubject(content string) (subject, body string) {
	if !strings.Contains(content, "Subject:") {
		return "", content
	}
	parts := strings.SplitN(content, "\n\n", 2)
	subject = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "Subject:"))
	if len(parts) > 1 {
		body = strings.TrimSpace(parts[1])
	} else {
		body = content
	}
	return subject, body
}

func emailPrompt(lead *model.Lead, enr *model.Enrichment, variation string) string {
	painText := "operational challenges"
	if len(enr.PainPoints) > 0 {
		painText = strings.Join(clipStrings(enr.PainPoints, 2), ", ")
	}
	trigger := "business growth"
	if len(enr.BuyingTriggers) > 0 {
		trigger = enr.BuyingTriggers[0]
	}

	style := "direct and value-focused"
	approach := "Start with a relevant pain point, then offer a solution"
	if variation == "B" {
		style = "consultative and insight-driven"
		approach = "Start with an industry insight, then connect to their challenges"
	}

	return fmt.Sprintf(`Write a personalized cold email (maximum 120 words) to %s, %s at %s.

Context:
- Industry: %s
- Persona: %s
- Key Pain Point: %s
- Buying Trigger: %s
- Company Size: %s

Style: %s
Approach: %s

Requirements:
- Maximum 120 words
- Reference the pain point or trigger naturally
- Include clear CTA: "15-minute call"
- Professional tone
- No hallucinated facts
- Subject line included

Format:
Subject: [subject line]

[Email body]`,
		lead.FullName, lead.RoleTitle, lead.CompanyName,
		lead.Industry, enr.PersonaTag, painText, trigger, enr.CompanySize,
		style, approach)
}

func linkedinPrompt(lead *model.Lead, enr *model.Enrichment, variation string) string {
	pain := "operational efficiency"
	if len(enr.PainPoints) > 0 {
		pain = enr.PainPoints[0]
	}

	style := "friendly and direct"
	if variation == "B" {
		style = "professional and value-driven"
	}

	return fmt.Sprintf(`Write a personalized LinkedIn DM (maximum 60 words) to %s, %s at %s.

Context:
- Industry: %s
- Persona: %s
- Key Challenge: %s

Style: %s

Requirements:
- Maximum 60 words
- Reference their role or industry naturally
- Mention the challenge
- Clear CTA: "quick call"
- Conversational LinkedIn tone
- No hallucinated facts`,
		lead.FullName, lead.RoleTitle, lead.CompanyName,
		lead.Industry, enr.PersonaTag, pain, style)
}

func clipStrings(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
