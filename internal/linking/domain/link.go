// Package domain holds the linking types shared by the store, registry, persistence and transports.
package domain

import "time"

// Link is a confirmed 1:1 association between a local account and an external chat identity.
type Link struct {
	AccountID   string
	ExternalID  int64
	DisplayName string
	LinkedAt    time.Time
}

// PendingCode is a one-time code waiting to be redeemed from the chat platform.
type PendingCode struct {
	Code        string
	AccountID   string
	DisplayName string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Live reports whether the code can still be redeemed at now.
func (p PendingCode) Live(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// Stats is a point-in-time view of the linking state.
type Stats struct {
	TotalLinks   int
	PendingCodes int
	ActiveCodes  int
	ExpiredCodes int
}

// Snapshot is a consistent copy of all links, taken under the store's read lock.
type Snapshot struct {
	Links   []Link
	TakenAt time.Time
}
