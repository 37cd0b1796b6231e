package domain

import "time"

// Entry represents one link lifecycle audit event.
type Entry struct {
	ID         string
	Action     string
	AccountID  string
	ExternalID int64
	Source     string
	IP         string
	Metadata   string
	CreatedAt  time.Time
}
