package domain

import "time"

// Sync cycle statuses held by the progress tracker.
const (
	SyncStatusIdle       = "idle"
	SyncStatusProcessing = "processing"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

// SyncProgress is the ephemeral, TTL-backed progress record for one sync cycle
// of one Gmail account. It lives in Redis, never in Postgres: the TTL ensures a
// crashed cycle cannot hold the "sync in progress" guard forever.
type SyncProgress struct {
	Status      string     `json:"status"`
	TotalEmails int64      `json:"total_emails"`
	Processed   int64      `json:"processed"`
	Failed      int64      `json:"failed"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// IdleProgress is the shape returned when no sync record exists for an account.
func IdleProgress() *SyncProgress {
	return &SyncProgress{Status: SyncStatusIdle}
}

// Terminal reports whether the cycle is over (completed or failed).
func (p *SyncProgress) Terminal() bool {
	return p.Status == SyncStatusCompleted || p.Status == SyncStatusFailed
}
