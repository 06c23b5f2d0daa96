package enricher

import (
	"context"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// companySizeRules maps role keywords to an inferred company size bracket.
// Order matters: the first matching keyword wins.
var companySizeRules = []struct {
	keyword string
	size    string
}{
	{"VP", "medium"},
	{"Director", "medium"},
	{"Chief", "enterprise"},
	{"CTO", "enterprise"},
	{"CFO", "enterprise"},
	{"COO", "enterprise"},
	{"Manager", "small"},
	{"Head", "medium"},
}

var personaByIndustry = map[string]map[string]string{
	"Technology": {
		"VP of Engineering":      "Tech Leader",
		"CTO":                    "Technology Executive",
		"Head of IT":             "IT Decision Maker",
		"Director of Technology": "Tech Leader",
		"Chief Data Officer":     "Data Leader",
	},
	"Manufacturing": {
		"VP of Operations":      "Operations Executive",
		"COO":                   "C-Suite Operations",
		"Plant Manager":         "Operations Manager",
		"Supply Chain Director": "Supply Chain Leader",
		"Operations Manager":    "Operations Manager",
	},
	"Healthcare": {
		"Chief Medical Officer":  "Healthcare Executive",
		"VP of Operations":       "Healthcare Operations",
		"Hospital Administrator": "Healthcare Admin",
		"Director of IT":         "Healthcare IT Leader",
		"Head of Procurement":    "Procurement Head",
	},
	"Retail": {
		"VP of Sales":                "Sales Executive",
		"Retail Operations Director": "Retail Ops Leader",
		"Merchandising Manager":      "Merchandising Head",
		"Store Operations VP":        "Retail Executive",
		"Chief Retail Officer":       "C-Suite Retail",
	},
	"Finance": {
		"CFO":                      "Finance Executive",
		"VP of Finance":            "Finance Leader",
		"Treasury Director":        "Treasury Leader",
		"Risk Management Director": "Risk Leader",
		"Chief Investment Officer": "Investment Executive",
	},
	"Logistics": {
		"VP of Logistics":       "Logistics Executive",
		"Supply Chain Director": "Supply Chain Leader",
		"Operations Manager":    "Logistics Manager",
		"Distribution VP":       "Distribution Leader",
		"Fleet Manager":         "Fleet Operations",
	},
}

var painPointsByIndustry = map[string][]string{
	"Technology": {
		"Managing complex cloud infrastructure costs",
		"Scaling development teams efficiently",
		"Ensuring data security and compliance",
	},
	"Manufacturing": {
		"Optimizing production line efficiency",
		"Managing supply chain disruptions",
		"Reducing operational downtime",
	},
	"Healthcare": {
		"Improving patient care coordination",
		"Managing regulatory compliance",
		"Reducing operational costs while maintaining quality",
	},
	"Retail": {
		"Managing inventory across multiple locations",
		"Improving customer experience",
		"Optimizing supply chain and logistics",
	},
	"Finance": {
		"Managing financial risk and compliance",
		"Improving operational efficiency",
		"Modernizing legacy systems",
	},
	"Logistics": {
		"Optimizing route planning and fuel costs",
		"Managing fleet maintenance and downtime",
		"Improving delivery speed and reliability",
	},
}

var buyingTriggersByIndustry = map[string][]string{
	"Technology":    {"Digital transformation initiative", "Cloud migration project"},
	"Manufacturing": {"Expansion or new facility opening", "Automation initiative"},
	"Healthcare":    {"New facility or expansion", "Regulatory compliance deadline"},
	"Retail":        {"Omnichannel expansion", "Peak season preparation"},
	"Finance":       {"Regulatory compliance requirement", "System modernization project"},
	"Logistics":     {"Fleet expansion", "Route optimization initiative"},
}

var defaultPainPoints = []string{
	"Improving operational efficiency",
	"Managing costs",
	"Scaling operations",
}

var defaultBuyingTriggers = []string{
	"Business expansion",
	"Cost optimization initiative",
}

// Offline derives enrichment from rule tables without calling any provider.
type Offline struct{}

// Enrich maps the lead's role and industry onto size, persona, pain point
// and trigger tables and scores confidence by how well the tables matched.
func (Offline) Enrich(ctx context.Context, lead *model.Lead) (*model.Enrichment, error) {
	size := "medium"
	for _, rule := range companySizeRules {
		if strings.Contains(lead.RoleTitle, rule.keyword) {
			size = rule.size
			break
		}
	}

	persona := "Business Leader"
	industryKnown := false
	if personas, ok := personaByIndustry[lead.Industry]; ok {
		industryKnown = true
		if p, ok := personas[lead.RoleTitle]; ok {
			persona = p
		}
	}

	painPoints := defaultPainPoints
	if pts, ok := painPointsByIndustry[lead.Industry]; ok {
		painPoints = pts
	}
	triggers := defaultBuyingTriggers
	if tr, ok := buyingTriggersByIndustry[lead.Industry]; ok {
		triggers = tr
	}

	confidence := 75
	if strings.Contains(lead.RoleTitle, "Chief") || strings.Contains(lead.RoleTitle, "VP") {
		confidence += 10
	}
	if industryKnown {
		confidence += 15
	}
	if confidence > 100 {
		confidence = 100
	}

	return &model.Enrichment{
		CompanySize:     size,
		PersonaTag:      persona,
		PainPoints:      clip(painPoints, 3),
		BuyingTriggers:  clip(triggers, 2),
		ConfidenceScore: confidence,
		Mode:            "offline",
	}, nil
}

func clip(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
