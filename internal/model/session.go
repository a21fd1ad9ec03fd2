package model

import "time"

// SessionStatus is the lifecycle state of a scrape session row.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ScrapeSession records one end-to-end run for audit and the status API.
type ScrapeSession struct {
	ID            string        `json:"id"`
	Backend       string        `json:"backend"`
	MoviesScraped int           `json:"movies_scraped"`
	MoviesFailed  int           `json:"movies_failed"`
	Status        SessionStatus `json:"status"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}
