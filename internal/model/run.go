package model

import "time"

// Stage names one of the four funnel stages.
type Stage string

const (
	StageCapture Stage = "capture"
	StageEnrich  Stage = "enrich"
	StageCompose Stage = "compose"
	StageDeliver Stage = "deliver"
)

// RunSnapshot is a point-in-time copy of the funnel controller's run state.
// The controller is the single writer; everyone else receives copies.
type RunSnapshot struct {
	Running         bool       `json:"running"`
	RunID           string     `json:"run_id,omitempty"`
	CurrentStage    Stage      `json:"current_stage,omitempty"`
	ProgressPercent int        `json:"progress_percent"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Canceled        bool       `json:"canceled,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// StageStats summarizes one stage executor's pass over its batch.
type StageStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Metrics is a consistent snapshot of funnel state derived from the store.
// Enriched/Messaged/Sent are cumulative: a SENT lead counts as enriched and
// messaged as well.
type Metrics struct {
	Total    int            `json:"total"`
	Enriched int            `json:"enriched"`
	Messaged int            `json:"messaged"`
	Sent     int            `json:"sent"`
	Failed   int            `json:"failed"`
	ByStatus map[Status]int `json:"by_status"`

	MessagesComposed int `json:"messages_composed"`
	AttemptsSent     int `json:"attempts_sent"`
	AttemptsFailed   int `json:"attempts_failed"`
}

// Percentages returns per-status shares of the total in [0,100]. An empty
// store yields all zeros rather than dividing by zero.
func (m *Metrics) Percentages() map[Status]float64 {
	out := make(map[Status]float64, len(AllStatuses))
	for _, st := range AllStatuses {
		if m.Total == 0 {
			out[st] = 0
			continue
		}
		out[st] = float64(m.ByStatus[st]) / float64(m.Total) * 100
	}
	return out
}
