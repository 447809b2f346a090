package session

import (
	"time"

	"github.com/jwulff/steno/interview/internal/backend"
)

// Messages below re-enter the event loop from commands. Each one carries the
// generation, handle or channel it was issued under so stale deliveries can
// be recognised and dropped.

type questionMsg struct {
	gen      int
	question backend.Question
	err      error
}

type cameraMsg struct {
	gen    int
	stream Stream
	err    error
}

type engineStartedMsg struct {
	gen     int
	session Recognition
	err     error
}

type recognitionMsg struct {
	events <-chan RecognitionEvent
	event  RecognitionEvent
}

type recognitionEndedMsg struct {
	events <-chan RecognitionEvent
}

type postureTickMsg struct {
	handle Handle
	at     time.Time
}

type timerTickMsg struct {
	handle Handle
	at     time.Time
}

type drainDeadlineMsg struct {
	gen int
	tag int
}

type evaluatedMsg struct {
	gen        int
	attempt    int
	evaluation backend.Evaluation
	err        error
}

type clearWarningMsg struct {
	tag int
}
