package model

import (
	"regexp"
	"time"

	"github.com/rotisserie/eris"
)

// Status represents where a lead sits in the outreach funnel.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusEnriched Status = "ENRICHED"
	StatusMessaged Status = "MESSAGED"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
)

// AllStatuses lists every valid lead status in funnel order.
var AllStatuses = []Status{StatusNew, StatusEnriched, StatusMessaged, StatusSent, StatusFailed}

// ParseStatus validates a status string from the API or CLI.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", eris.Errorf("invalid status: %q", s)
}

// next maps each status to its single allowed forward transition.
var next = map[Status]Status{
	StatusNew:      StatusEnriched,
	StatusEnriched: StatusMessaged,
	StatusMessaged: StatusSent,
}

// CanTransition reports whether a lead may move from s to to. The funnel
// advances one step at a time; FAILED is reachable from any non-terminal
// status and is terminal.
func (s Status) CanTransition(to Status) bool {
	if s == StatusFailed || s == StatusSent {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return next[s] == to
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Lead is a contact record moving through the funnel.
type Lead struct {
	ID             string    `json:"id"`
	ExternalID     string    `json:"external_id"`
	FullName       string    `json:"full_name"`
	CompanyName    string    `json:"company_name"`
	RoleTitle      string    `json:"role_title"`
	Industry       string    `json:"industry"`
	CompanyWebsite string    `json:"company_website"`
	Email          string    `json:"email"`
	LinkedInURL    string    `json:"linkedin_url"`
	Country        string    `json:"country"`
	Source         string    `json:"source"`
	Status         Status    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validate checks the fields Capture requires before inserting a lead.
func (l *Lead) Validate() error {
	if l.ExternalID == "" {
		return eris.New("lead: external_id is required")
	}
	if l.FullName == "" {
		return eris.New("lead: full_name is required")
	}
	if !emailRe.MatchString(l.Email) {
		return eris.Errorf("lead: invalid email %q", l.Email)
	}
	return nil
}
