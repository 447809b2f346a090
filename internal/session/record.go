package session

import (
	"strings"
	"time"

	"github.com/jwulff/steno/interview/internal/backend"
)

// Stability is the coarse posture classification derived from sampling.
type Stability string

const (
	StabilityStable   Stability = "Stable"
	StabilityUnstable Stability = "Unstable"
)

// Posture is the periodically updated posture snapshot.
type Posture struct {
	ElapsedSeconds int
	Stability      Stability
	SampleCount    int
	Notes          string
}

// Record is the canonical mutable state of one interview attempt. It is
// owned by the Orchestrator and only touched from the event loop.
type Record struct {
	ID        string
	Question  string
	Topic     string
	Level     string
	Timestamp string // as issued by the backend
	CreatedAt time.Time

	transcript string
	posture    Posture
	recording  bool
	frozen     bool
	payload    backend.EvaluateRequest
}

// NewRecord creates a record for a freshly generated question.
func NewRecord(q backend.Question, now time.Time) *Record {
	return &Record{
		ID:        q.SessionID,
		Question:  q.Question,
		Topic:     q.Topic,
		Level:     q.DifficultyLevel,
		Timestamp: q.Timestamp,
		CreatedAt: now,
		posture:   Posture{Stability: StabilityStable},
	}
}

// Transcript returns the accumulated finalized text.
func (r *Record) Transcript() string { return r.transcript }

// Posture returns a copy of the current posture snapshot.
func (r *Record) Posture() Posture { return r.posture }

// Recording reports whether a recording is in progress.
func (r *Record) Recording() bool { return r.recording }

// Frozen reports whether the record has been serialized for submission.
func (r *Record) Frozen() bool { return r.frozen }

// BeginRecording starts a new recording period. The transcript and elapsed
// time restart from zero; posture sample counts carry over.
func (r *Record) BeginRecording() {
	if r.frozen {
		return
	}
	r.transcript = ""
	r.posture.ElapsedSeconds = 0
	r.recording = true
}

// EndRecording marks the recording period as finished.
func (r *Record) EndRecording() { r.recording = false }

// SetTranscript replaces the transcript. While recording, only writes that
// extend the current text are accepted; it returns false otherwise.
func (r *Record) SetTranscript(text string) bool {
	if r.frozen {
		return false
	}
	if r.recording && !strings.HasPrefix(text, r.transcript) {
		return false
	}
	r.transcript = text
	return true
}

// SetElapsed records the elapsed recording time in whole seconds.
func (r *Record) SetElapsed(seconds int) {
	if r.frozen {
		return
	}
	if r.recording && seconds < r.posture.ElapsedSeconds {
		return
	}
	r.posture.ElapsedSeconds = seconds
}

// UpdatePosture writes the sampler's latest running result.
func (r *Record) UpdatePosture(samples int, stability Stability, notes string) {
	if r.frozen {
		return
	}
	if samples < r.posture.SampleCount {
		return
	}
	r.posture.SampleCount = samples
	r.posture.Stability = stability
	r.posture.Notes = notes
}

// Freeze serializes the record into the evaluation payload. After the first
// call the record no longer accepts writes and every later call returns the
// same payload.
func (r *Record) Freeze() backend.EvaluateRequest {
	if r.frozen {
		return r.payload
	}
	r.recording = false
	r.frozen = true
	r.payload = backend.EvaluateRequest{
		SessionID:  r.ID,
		Transcript: strings.TrimSpace(r.transcript),
		PostureData: backend.PostureData{
			Duration:  r.posture.ElapsedSeconds,
			Stability: string(r.posture.Stability),
			Samples:   r.posture.SampleCount,
			Notes:     r.posture.Notes,
		},
	}
	return r.payload
}
