package model

import "time"

// Enrichment holds insight data for a lead. Rows are immutable: re-enriching
// a lead inserts a new superseding row and reads return the latest.
type Enrichment struct {
	ID              string    `json:"id"`
	LeadID          string    `json:"lead_id"`
	CompanySize     string    `json:"company_size"`
	PersonaTag      string    `json:"persona_tag"`
	PainPoints      []string  `json:"pain_points"`
	BuyingTriggers  []string  `json:"buying_triggers"`
	ConfidenceScore int       `json:"confidence_score"`
	Mode            string    `json:"mode"`
	CreatedAt       time.Time `json:"created_at"`
}
