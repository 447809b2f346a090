package session

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// Fragment is one indexed speech-recognition result.
type Fragment struct {
	Index int
	Text  string
	Final bool
}

// Result is one batch of fragments from the engine. Fragments below
// ResumeIndex are unchanged since the previous batch.
type Result struct {
	ResumeIndex int
	Fragments   []Fragment
}

// RecognitionEvent carries either a Result or an error.
type RecognitionEvent struct {
	Result *Result
	Err    error
}

// Recognition is one running recognition session, the handle returned by
// SpeechEngine.Start.
type Recognition interface {
	// Events is closed once the session has emitted everything it ever
	// will, which may be some time after Stop returns.
	Events() <-chan RecognitionEvent
	// Stop requests shutdown of this session only. It must not wait on the
	// engine and is safe to call more than once.
	Stop() error
}

// SpeechEngine is a continuous speech recognizer. Each Start opens an
// independent session.
type SpeechEngine interface {
	Start(ctx context.Context) (Recognition, error)
}

// Transcription folds engine results into a persistent buffer of finalized
// text and mirrors it into the session record.
type Transcription struct {
	engine SpeechEngine
	log    logrus.FieldLogger

	record    *Record
	session   Recognition
	events    <-chan RecognitionEvent
	buffer    strings.Builder
	finalized map[int]struct{}
	interim   string

	running  bool // engine started and not yet asked to stop
	draining bool // stop requested, engine may still deliver finals
}

// NewTranscription creates a controller for engine. A nil engine means the
// environment has no speech recognition.
func NewTranscription(engine SpeechEngine, log logrus.FieldLogger) *Transcription {
	return &Transcription{
		engine:    engine,
		finalized: map[int]struct{}{},
		log:       log.WithField("component", "transcription"),
	}
}

func (t *Transcription) Name() string { return "transcription" }

// Supported reports whether a speech engine is available.
func (t *Transcription) Supported() bool { return t.engine != nil }

// startCmd starts the engine off the event loop.
func (t *Transcription) startCmd(ctx context.Context, gen int) tea.Cmd {
	engine := t.engine
	return func() tea.Msg {
		rec, err := engine.Start(ctx)
		return engineStartedMsg{gen: gen, session: rec, err: err}
	}
}

// attach begins a new recognition session writing into rec.
func (t *Transcription) attach(rec *Record, session Recognition) tea.Cmd {
	t.record = rec
	t.session = session
	t.events = session.Events()
	t.buffer.Reset()
	t.finalized = map[int]struct{}{}
	t.interim = ""
	t.running = true
	t.draining = false
	return t.waitCmd()
}

// waitCmd reads the next engine event off the event loop.
func (t *Transcription) waitCmd() tea.Cmd {
	events := t.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return recognitionEndedMsg{events: events}
		}
		return recognitionMsg{events: events, event: ev}
	}
}

// accepting reports whether events from ch should still be folded.
func (t *Transcription) accepting(ch <-chan RecognitionEvent) bool {
	return ch != nil && ch == t.events && (t.running || t.draining)
}

// Fold applies one result batch. Fragments are visited by index from the
// engine's resume index; finals already folded are never appended again and
// interim text is kept for display only.
func (t *Transcription) Fold(res Result) {
	var interim strings.Builder
	for _, f := range res.Fragments {
		if f.Index < res.ResumeIndex {
			continue
		}
		if !f.Final {
			interim.WriteString(f.Text)
			continue
		}
		if _, done := t.finalized[f.Index]; done {
			continue
		}
		t.finalized[f.Index] = struct{}{}
		t.buffer.WriteString(f.Text)
		t.buffer.WriteString(" ")
	}
	t.interim = interim.String()
	t.flush()
}

// handleError classifies an engine error. It returns the transient error
// when err only warrants a status warning, nil otherwise.
func (t *Transcription) handleError(err error) *TransientRecognitionError {
	var transient *TransientRecognitionError
	if errors.As(err, &transient) {
		t.log.WithField("reason", transient.Reason).Debug("transient recognition error")
		return transient
	}
	t.log.WithError(err).Warn("recognition error")
	return nil
}

// Buffer returns the raw finalized buffer (space separated, untrimmed).
func (t *Transcription) Buffer() string { return t.buffer.String() }

// Interim returns the live, unpersisted interim text.
func (t *Transcription) Interim() string { return t.interim }

// Running reports whether the engine is started and not stop-requested.
func (t *Transcription) Running() bool { return t.running }

// Draining reports whether a stop was requested and the engine has not yet
// closed its result stream.
func (t *Transcription) Draining() bool { return t.draining }

// Stop asks the session to shut down without waiting for it and
// synchronously copies the buffer into the record. Late finals keep folding
// until ended or discard is called.
func (t *Transcription) Stop() error {
	if !t.running {
		return nil
	}
	t.running = false
	t.draining = true
	err := t.session.Stop()
	t.interim = ""
	t.flush()
	return err
}

// ended is called when the engine closes its result stream.
func (t *Transcription) ended() {
	t.running = false
	t.draining = false
	t.interim = ""
	t.flush()
}

// discard drops the current recognition session; any events still in
// flight are ignored.
func (t *Transcription) discard() {
	t.running = false
	t.draining = false
	t.session = nil
	t.events = nil
	t.interim = ""
}

func (t *Transcription) flush() {
	if t.record == nil {
		return
	}
	if !t.record.SetTranscript(strings.TrimSpace(t.buffer.String())) {
		t.log.Debug("record rejected transcript update")
	}
}
