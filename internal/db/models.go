// Package db provides read-only SQLite access to the steno database. The
// interview uses it to recover microphone segments the daemon persisted but
// did not stream before a recording was stopped.
package db

import "time"

// Session represents a steno recording session.
type Session struct {
	ID        string
	Locale    string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    string
}

// Segment represents a finalized transcript segment.
type Segment struct {
	ID             string
	SessionID      string
	Text           string
	SequenceNumber int
	Source         string
	CreatedAt      time.Time
}
