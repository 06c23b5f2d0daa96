package composer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/outreach-cli/internal/model"
)

var titleCaser = cases.Title(language.English)

// Template composes messages deterministically from the enrichment data,
// without any provider call. Variation A leads with the pain point,
// variation B with an industry observation.
type Template struct{}

func (Template) Compose(ctx context.Context, lead *model.Lead, enr *model.Enrichment, ch model.Channel, variation string) (*model.Message, error) {
	if enr == nil {
		return nil, eris.Errorf("composer: lead %s has no enrichment", lead.ID)
	}

	switch ch {
	case model.ChannelEmail:
		return emailMessage(lead, enr, variation), nil
	case model.ChannelLinkedIn:
		return linkedinMessage(lead, enr, variation), nil
	default:
		return nil, eris.Errorf("composer: unknown channel %q", ch)
	}
}

func emailMessage(lead *model.Lead, enr *model.Enrichment, variation string) *model.Message {
	first := firstName(lead.FullName)
	pain := pick(enr.PainPoints, "operational efficiency")
	trigger := pick(enr.BuyingTriggers, "business growth")
	persona := enr.PersonaTag
	if persona == "" {
		persona = "operations"
	}

	var body string
	if variation == "B" {
		body = fmt.Sprintf(
			"Hi %s,\n\n%s teams across %s are rethinking how they handle %s, often prompted by a %s.\n\n"+
				"We've helped companies like %s get ahead of this. Would you be open to a 15-minute call to compare notes?\n\nBest regards",
			first, titleCaser.String(persona), lead.Industry, strings.ToLower(pain[:1])+pain[1:],
			strings.ToLower(trigger[:1])+trigger[1:], lead.CompanyName,
		)
	} else {
		body = fmt.Sprintf(
			"Hi %s,\n\nI noticed %s is in the %s space. Many %s I work with face challenges with %s.\n\n"+
				"We've helped similar companies streamline these processes. Would you be open to a quick 15-minute call to explore if we could help?\n\nBest regards",
			first, lead.CompanyName, lead.Industry, persona, pain,
		)
	}

	return &model.Message{
		Subject: fmt.Sprintf("Improving %s at %s", persona, lead.CompanyName),
		Body:    body,
	}
}

func linkedinMessage(lead *model.Lead, enr *model.Enrichment, variation string) *model.Message {
	first := firstName(lead.FullName)
	pain := pick(enr.PainPoints, "operational challenges")
	persona := enr.PersonaTag
	if persona == "" {
		persona = "leaders"
	}

	var body string
	if variation == "B" {
		body = fmt.Sprintf(
			"Hi %s, your work at %s caught my eye. We help %s in %s tackle %s. Open to a quick call?",
			first, lead.CompanyName, persona, lead.Industry, strings.ToLower(pain[:1])+pain[1:],
		)
	} else {
		body = fmt.Sprintf(
			"Hi %s, I work with %s in %s on %s. Would you be open to a quick call?",
			first, persona, lead.Industry, strings.ToLower(pain[:1])+pain[1:],
		)
	}

	// LinkedIn DMs carry no subject.
	return &model.Message{Body: body}
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

func pick(s []string, fallback string) string {
	if len(s) > 0 && s[0] != "" {
		return s[0]
	}
	return fallback
}
