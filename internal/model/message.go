package model

import "time"

// Channel identifies a delivery transport.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelLinkedIn Channel = "linkedin"
)

// ParseChannels splits a channel spec; "both" expands to email and linkedin,
// matching the original trigger contract.
func ParseChannels(spec string) []Channel {
	switch spec {
	case "", "both":
		return []Channel{ChannelEmail, ChannelLinkedIn}
	case "email":
		return []Channel{ChannelEmail}
	case "linkedin":
		return []Channel{ChannelLinkedIn}
	}
	return nil
}

// Message is a composed outreach message for one (channel, variation) pair.
// Rows are immutable once written by the Compose stage.
type Message struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Channel   Channel   `json:"channel"`
	Variation string    `json:"variation"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// AttemptOutcome is the result of a single delivery attempt.
type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailure AttemptOutcome = "failure"
)

// DeliveryAttempt records one send attempt for a message. The table is
// append-only; retries add rows with an incremented attempt number.
type DeliveryAttempt struct {
	ID        string         `json:"id"`
	MessageID string         `json:"message_id"`
	LeadID    string         `json:"lead_id"`
	Channel   Channel        `json:"channel"`
	Attempt   int            `json:"attempt"`
	Outcome   AttemptOutcome `json:"outcome"`
	DryRun    bool           `json:"dry_run"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
