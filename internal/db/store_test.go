package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// createTestDB creates an in-memory SQLite database with the steno session
// and segment tables.
func createTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Each pooled connection would get its own in-memory database.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			locale TEXT NOT NULL,
			startedAt REAL NOT NULL,
			endedAt REAL,
			title TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			createdAt REAL NOT NULL
		);

		CREATE TABLE segments (
			id TEXT PRIMARY KEY,
			sessionId TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			startedAt REAL NOT NULL,
			endedAt REAL NOT NULL,
			confidence REAL,
			sequenceNumber INTEGER NOT NULL,
			createdAt REAL NOT NULL,
			source TEXT NOT NULL DEFAULT 'microphone',
			UNIQUE(sessionId, sequenceNumber)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	return db
}

func insertSegment(t *testing.T, db *sql.DB, id, session, text string, seq int, source string) {
	t.Helper()
	now := float64(time.Now().Unix())
	if _, err := db.Exec(`INSERT INTO segments (id, sessionId, text, startedAt, endedAt, sequenceNumber, createdAt, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, id, session, text, now, now, seq, now, source); err != nil {
		t.Fatalf("insert segment: %v", err)
	}
}

func TestMicSegmentsAfter(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	now := float64(time.Now().Unix())
	rawDB.Exec(`INSERT INTO sessions (id, locale, startedAt, status, createdAt)
		VALUES ('sess-1', 'en_US', ?, 'active', ?)`, now, now)

	insertSegment(t, rawDB, "s1", "sess-1", "first", 1, "microphone")
	insertSegment(t, rawDB, "s2", "sess-1", "second", 2, "microphone")
	insertSegment(t, rawDB, "s3", "sess-1", "from speakers", 3, "systemAudio")
	insertSegment(t, rawDB, "s4", "sess-1", "fourth", 4, "microphone")

	store := &Store{db: rawDB}

	segments, err := store.MicSegmentsAfter(context.Background(), "sess-1", 1)
	if err != nil {
		t.Fatalf("MicSegmentsAfter: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0].Text != "second" || segments[0].SequenceNumber != 2 {
		t.Errorf("segments[0] = %+v", segments[0])
	}
	if segments[1].Text != "fourth" || segments[1].SequenceNumber != 4 {
		t.Errorf("segments[1] = %+v", segments[1])
	}
}

func TestMicSegmentsAfterEmpty(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	store := &Store{db: rawDB}

	segments, err := store.MicSegmentsAfter(context.Background(), "nonexistent", 0)
	if err != nil {
		t.Fatalf("MicSegmentsAfter: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("got %d segments, want 0", len(segments))
	}
}

func TestSession(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	now := float64(time.Now().Unix())
	rawDB.Exec(`INSERT INTO sessions (id, locale, startedAt, endedAt, status, createdAt)
		VALUES ('sess-1', 'en_US', ?, ?, 'completed', ?)`, now-100, now-50, now-100)

	store := &Store{db: rawDB}

	sess, err := store.Session(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.Status != "completed" {
		t.Errorf("status = %q, want %q", sess.Status, "completed")
	}
	if sess.EndedAt == nil || sess.EndedAt.Unix() != int64(now-50) {
		t.Errorf("endedAt = %v", sess.EndedAt)
	}

	missing, err := store.Session(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Session(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil, got %q", missing.ID)
	}
}
