// Package session coordinates one practice-interview attempt: question
// generation, camera and posture sampling, live transcription, the elapsed
// timer, and submission for evaluation.
//
// Everything here runs on the bubbletea event loop. Blocking work is issued
// as tea.Cmd closures and comes back as messages; periodic work is a chain of
// tea.Tick messages guarded by a Handle.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/jwulff/steno/interview/internal/backend"
)

// State is the orchestrator's position in the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateConfiguring
	StateActive
	StateRecording
	StateProcessing
	// StateStopped is the inert state after a failed submission. Nothing is
	// recording and the frozen payload is kept for Retry.
	StateStopped
	StateEvaluated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConfiguring:
		return "Configuring"
	case StateActive:
		return "Active"
	case StateRecording:
		return "Recording"
	case StateProcessing:
		return "Processing"
	case StateStopped:
		return "Stopped"
	case StateEvaluated:
		return "Evaluated"
	}
	return "Unknown"
}

// Backend is the generation/evaluation collaborator.
type Backend interface {
	GenerateQuestion(ctx context.Context, topic, level string, count int) (backend.Question, error)
	Evaluate(ctx context.Context, req backend.EvaluateRequest) (backend.Evaluation, error)
}

// Options tunes timing. Zero fields take DefaultOptions values.
type Options struct {
	TickInterval    time.Duration
	FlushGrace      time.Duration
	GenerateTimeout time.Duration
	EvaluateTimeout time.Duration
	WarningTTL      time.Duration
	QuestionCount   int
	Classifier      Classifier
	Now             func() time.Time
}

// DefaultOptions returns the standard 1 Hz session timing.
func DefaultOptions() Options {
	return Options{
		TickInterval:    time.Second,
		FlushGrace:      2 * time.Second,
		GenerateTimeout: 30 * time.Second,
		EvaluateTimeout: 45 * time.Second,
		WarningTTL:      5 * time.Second,
		QuestionCount:   1,
		Classifier:      HeadRegionClassifier,
		Now:             time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	if o.FlushGrace <= 0 {
		o.FlushGrace = d.FlushGrace
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = d.GenerateTimeout
	}
	if o.EvaluateTimeout <= 0 {
		o.EvaluateTimeout = d.EvaluateTimeout
	}
	if o.WarningTTL <= 0 {
		o.WarningTTL = d.WarningTTL
	}
	if o.QuestionCount <= 0 {
		o.QuestionCount = d.QuestionCount
	}
	if o.Classifier == nil {
		o.Classifier = d.Classifier
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Deps are the external collaborators. Camera and Speech may be nil when
// the environment lacks them.
type Deps struct {
	Backend Backend
	Camera  MediaSource
	Speech  SpeechEngine
	Log     logrus.FieldLogger
}

// Orchestrator is the session state machine. It exclusively owns the
// session record and the four activities that write into it.
type Orchestrator struct {
	backend Backend
	opts    Options
	log     logrus.FieldLogger

	media         *MediaCapture
	posture       *PostureSampler
	timer         *Timer
	transcription *Transcription

	state  State
	gen    int
	ctx    context.Context
	cancel context.CancelFunc
	record *Record

	starting bool // speech engine start in flight
	draining bool // waiting for late finals after stop
	drainTag int
	attempt  int
	pending  *backend.EvaluateRequest

	feedback   string
	status     string
	warning    string
	warningTag int
	err        error
}

// New creates an idle orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	media := NewMediaCapture(deps.Camera, log)
	o := &Orchestrator{
		backend:       deps.Backend,
		opts:          opts,
		log:           log.WithField("component", "orchestrator"),
		media:         media,
		posture:       NewPostureSampler(media, opts.Classifier, opts.TickInterval, log),
		timer:         NewTimer(opts.TickInterval),
		transcription: NewTranscription(deps.Speech, log),
	}
	o.newGeneration()
	return o
}

func (o *Orchestrator) newGeneration() {
	if o.cancel != nil {
		o.cancel()
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.gen++
}

// Configure starts a session for topic and level by asking the backend for
// a question. Only valid from Idle.
func (o *Orchestrator) Configure(topic, level string) tea.Cmd {
	if o.state != StateIdle {
		return nil
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		o.err = errors.New("enter an interview topic")
		return nil
	}

	o.newGeneration()
	o.err = nil
	o.state = StateConfiguring
	o.status = "Generating your interview question..."
	o.log.WithFields(logrus.Fields{"topic": topic, "level": level}).Info("configuring session")

	ctx, gen, be := o.ctx, o.gen, o.backend
	count, timeout := o.opts.QuestionCount, o.opts.GenerateTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		q, err := be.GenerateQuestion(ctx, topic, level, count)
		if err != nil {
			return questionMsg{gen: gen, err: &NetworkError{Op: "generate question", Err: err}}
		}
		return questionMsg{gen: gen, question: q}
	}
}

// StartRecording starts transcription and the timer. Only valid from Active.
func (o *Orchestrator) StartRecording() tea.Cmd {
	if o.state != StateActive || o.starting {
		return nil
	}
	if !o.transcription.Supported() {
		o.err = &UnsupportedCapabilityError{Capability: "speech recognition"}
		return nil
	}
	o.err = nil
	o.starting = true
	o.status = "Starting speech recognition..."
	return o.transcription.startCmd(o.ctx, o.gen)
}

// StopRecording stops the timer and posture sampler, then the speech engine,
// and waits for late finals before submitting. Only valid from Recording.
func (o *Orchestrator) StopRecording() tea.Cmd {
	if o.state != StateRecording {
		return nil
	}
	for _, a := range []Activity{o.timer, o.posture, o.transcription} {
		if err := stopActivity(a); err != nil {
			o.log.WithError(err).WithField("activity", a.Name()).Warn("stop failed")
		}
	}
	o.state = StateProcessing
	o.status = "Processing..."

	if !o.transcription.Draining() {
		return o.finishDrain()
	}
	o.draining = true
	o.drainTag++
	gen, tag := o.gen, o.drainTag
	return tea.Tick(o.opts.FlushGrace, func(time.Time) tea.Msg {
		return drainDeadlineMsg{gen: gen, tag: tag}
	})
}

// Retry resubmits the frozen record after a failed evaluation.
func (o *Orchestrator) Retry() tea.Cmd {
	if o.state != StateStopped || o.pending == nil {
		return nil
	}
	return o.submit()
}

// Reset tears down every activity, whichever are running, and returns to
// Idle. Each stop is attempted independently; failures are logged and
// reported but never stop the reset. Calling Reset again is harmless.
func (o *Orchestrator) Reset() TeardownReport {
	report := TeardownReport{Errors: map[string]error{}}
	for _, a := range []Activity{o.posture, o.timer, o.media, o.transcription} {
		report.Attempted = append(report.Attempted, a.Name())
		if err := stopActivity(a); err != nil {
			report.Errors[a.Name()] = err
			o.log.WithError(err).WithField("activity", a.Name()).Warn("teardown failed")
		}
	}
	if ch := o.transcription.events; ch != nil {
		go discardEvents(ch)
	}
	o.transcription.discard()
	o.newGeneration()

	o.state = StateIdle
	o.record = nil
	o.pending = nil
	o.starting = false
	o.draining = false
	o.attempt = 0
	o.feedback = ""
	o.status = ""
	o.err = nil
	o.warning = ""
	o.warningTag++
	if !report.OK() {
		o.warning = "Some resources did not release cleanly; see log"
	}
	o.log.WithField("errors", len(report.Errors)).Info("session reset")
	return report
}

// Update routes session messages. Unknown messages are ignored.
func (o *Orchestrator) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case questionMsg:
		return o.handleQuestion(msg)
	case cameraMsg:
		return o.handleCamera(msg)
	case engineStartedMsg:
		return o.handleEngineStarted(msg)
	case recognitionMsg:
		return o.handleRecognition(msg)
	case recognitionEndedMsg:
		return o.handleRecognitionEnded(msg)
	case postureTickMsg:
		return o.posture.handleTick(msg)
	case timerTickMsg:
		return o.timer.handleTick(msg)
	case drainDeadlineMsg:
		return o.handleDrainDeadline(msg)
	case evaluatedMsg:
		return o.handleEvaluated(msg)
	case clearWarningMsg:
		if msg.tag == o.warningTag {
			o.warning = ""
		}
	}
	return nil
}

func (o *Orchestrator) handleQuestion(msg questionMsg) tea.Cmd {
	if msg.gen != o.gen || o.state != StateConfiguring {
		return nil
	}
	if msg.err != nil {
		o.log.WithError(msg.err).Warn("question generation failed")
		o.state = StateIdle
		o.status = ""
		o.err = msg.err
		return nil
	}
	o.record = NewRecord(msg.question, o.opts.Now())
	o.status = "Starting camera..."
	o.log.WithField("session", o.record.ID).Info("question ready")
	return o.media.acquireCmd(o.ctx, o.gen)
}

func (o *Orchestrator) handleCamera(msg cameraMsg) tea.Cmd {
	if msg.gen != o.gen || o.state != StateConfiguring {
		if msg.stream != nil {
			o.log.Info("releasing camera acquired for a discarded session")
			if err := msg.stream.Close(); err != nil {
				o.log.WithError(err).Warn("release stale stream")
			}
		}
		return nil
	}
	if msg.err != nil {
		o.log.WithError(msg.err).Warn("camera acquisition failed")
		o.record = nil
		o.state = StateIdle
		o.status = ""
		o.err = msg.err
		return nil
	}
	o.media.attach(msg.stream)
	o.state = StateActive
	o.status = "Camera active"
	return o.posture.Start(o.record)
}

func (o *Orchestrator) handleEngineStarted(msg engineStartedMsg) tea.Cmd {
	if msg.gen != o.gen || o.state != StateActive || !o.starting {
		if msg.err == nil && msg.session != nil {
			o.log.Info("stopping speech session started for a discarded session")
			if err := msg.session.Stop(); err != nil {
				o.log.WithError(err).Warn("stop stale speech session")
			}
			go discardEvents(msg.session.Events())
		}
		return nil
	}
	o.starting = false
	if msg.err != nil {
		o.log.WithError(msg.err).Warn("speech engine unavailable")
		o.status = "Camera active"
		o.err = msg.err
		return nil
	}

	o.record.BeginRecording()
	o.state = StateRecording
	o.status = "Recording..."
	read := o.transcription.attach(o.record, msg.session)
	tick := o.timer.Start(o.record, o.opts.Now())
	return tea.Batch(read, tick)
}

func (o *Orchestrator) handleRecognition(msg recognitionMsg) tea.Cmd {
	if !o.transcription.accepting(msg.events) {
		return nil
	}
	next := o.transcription.waitCmd()
	if err := msg.event.Err; err != nil {
		if transient := o.transcription.handleError(err); transient != nil {
			return tea.Batch(next, o.warn(transient.Reason))
		}
		o.err = err
		return next
	}
	if msg.event.Result != nil {
		o.transcription.Fold(*msg.event.Result)
	}
	return next
}

func (o *Orchestrator) handleRecognitionEnded(msg recognitionEndedMsg) tea.Cmd {
	if msg.events == nil || msg.events != o.transcription.events {
		return nil
	}
	unexpected := o.transcription.Running()
	o.transcription.ended()
	if o.state == StateProcessing && o.draining {
		return o.finishDrain()
	}
	if unexpected && o.state == StateRecording {
		o.log.Warn("speech engine ended while recording")
		return o.warn("Speech recognition ended")
	}
	return nil
}

func (o *Orchestrator) handleDrainDeadline(msg drainDeadlineMsg) tea.Cmd {
	if msg.gen != o.gen || msg.tag != o.drainTag || !o.draining {
		return nil
	}
	o.log.Warn("speech engine did not finish within flush grace")
	if ch := o.transcription.events; ch != nil {
		go discardEvents(ch)
	}
	o.transcription.discard()
	return o.finishDrain()
}

// finishDrain runs once no more finals can arrive: it either returns to
// Active on an empty transcript or freezes the record and submits it.
func (o *Orchestrator) finishDrain() tea.Cmd {
	o.draining = false
	if strings.TrimSpace(o.record.Transcript()) == "" {
		o.record.EndRecording()
		o.state = StateActive
		o.status = "Camera active"
		o.log.Info("empty transcript, not submitting")
		return tea.Batch(
			o.warn("No transcription detected. Please try recording again."),
			o.posture.Start(o.record),
		)
	}
	payload := o.record.Freeze()
	o.pending = &payload
	return o.submit()
}

func (o *Orchestrator) submit() tea.Cmd {
	o.state = StateProcessing
	o.err = nil
	o.attempt++
	o.status = "Analyzing your interview response..."
	o.log.WithFields(logrus.Fields{"session": o.pending.SessionID, "attempt": o.attempt}).Info("submitting for evaluation")

	ctx, gen, attempt, be := o.ctx, o.gen, o.attempt, o.backend
	payload, timeout := *o.pending, o.opts.EvaluateTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ev, err := be.Evaluate(ctx, payload)
		if err != nil {
			return evaluatedMsg{gen: gen, attempt: attempt, err: &NetworkError{Op: "evaluate", Err: err}}
		}
		return evaluatedMsg{gen: gen, attempt: attempt, evaluation: ev}
	}
}

func (o *Orchestrator) handleEvaluated(msg evaluatedMsg) tea.Cmd {
	if msg.gen != o.gen || msg.attempt != o.attempt || o.state != StateProcessing {
		return nil
	}
	if msg.err != nil {
		o.log.WithError(msg.err).Warn("evaluation failed")
		o.state = StateStopped
		o.status = "Submission failed"
		o.err = msg.err
		return nil
	}
	o.state = StateEvaluated
	o.status = "Analysis complete"
	o.feedback = msg.evaluation.Feedback
	return nil
}

func (o *Orchestrator) warn(text string) tea.Cmd {
	o.warning = text
	o.warningTag++
	tag := o.warningTag
	return tea.Tick(o.opts.WarningTTL, func(time.Time) tea.Msg {
		return clearWarningMsg{tag: tag}
	})
}

func discardEvents(ch <-chan RecognitionEvent) {
	for range ch {
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return o.state }

// Record returns the current session record, or nil outside a session.
func (o *Orchestrator) Record() *Record { return o.record }

// Status is a short human-readable description of what is happening.
func (o *Orchestrator) Status() string { return o.status }

// Warning is a recoverable condition worth showing; it clears on its own.
func (o *Orchestrator) Warning() string { return o.warning }

// Err is the last surfaced error.
func (o *Orchestrator) Err() error { return o.err }

// Feedback is the evaluation text once Evaluated.
func (o *Orchestrator) Feedback() string { return o.feedback }

// Elapsed is the recording time as mm:ss.
func (o *Orchestrator) Elapsed() string { return o.timer.Display() }

// Interim is the live, unpersisted recognition text.
func (o *Orchestrator) Interim() string { return o.transcription.Interim() }

// CameraActive reports whether a camera stream is held.
func (o *Orchestrator) CameraActive() bool { return o.media.Active() }

// Busy reports whether a blocking backend request is in flight.
func (o *Orchestrator) Busy() bool {
	return o.state == StateConfiguring || o.state == StateProcessing || o.starting
}

// CanRetry reports whether a failed submission can be retried.
func (o *Orchestrator) CanRetry() bool { return o.state == StateStopped && o.pending != nil }
