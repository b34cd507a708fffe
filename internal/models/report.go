package models

import "time"

// CycleOutcome is the terminal state of one reconciliation cycle.
type CycleOutcome string

const (
	OutcomeClean    CycleOutcome = "clean"
	OutcomeRestored CycleOutcome = "restored"
	OutcomeFailed   CycleOutcome = "failed"
)

// CycleReport summarizes one cycle for the scheduler and for operators.
// It is what `guardian run` prints (plain, --json or --toon) and what the
// run journal persists.
type CycleReport struct {
	RunID       string       `json:"run_id"`
	Outcome     CycleOutcome `json:"outcome"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Branch      string       `json:"branch,omitempty"`
	HeadSHA     string       `json:"head_sha,omitempty"`
	Violations  []Violation  `json:"violations,omitempty"`
	TargetSHA   string       `json:"target_sha,omitempty"`
	RestoredSHA string       `json:"restored_sha,omitempty"`
	AlertURL    string       `json:"alert_url,omitempty"`
	AlertKey    string       `json:"alert_key,omitempty"`
	Error       string       `json:"error,omitempty"`
}
