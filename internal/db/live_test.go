package db

import (
	"context"
	"fmt"
	"os"
	"testing"
)

// TestLiveDatabase opens the real steno database and reads segments of the
// most recent session. Skipped if the database doesn't exist.
func TestLiveDatabase(t *testing.T) {
	dbPath := DefaultDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Skip("database not found at", dbPath)
	}

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	var id string
	if err := store.db.QueryRow(`SELECT id FROM sessions ORDER BY startedAt DESC LIMIT 1`).Scan(&id); err != nil {
		fmt.Println("No sessions in database")
		return
	}

	segments, err := store.MicSegmentsAfter(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("MicSegmentsAfter: %v", err)
	}
	fmt.Printf("Session %s: %d microphone segments\n", id, len(segments))
}
