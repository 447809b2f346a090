package app

import (
	"context"
	"image"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/jwulff/steno/interview/internal/backend"
	"github.com/jwulff/steno/interview/internal/session"
)

type stubBackend struct {
	feedback string
}

func (b *stubBackend) GenerateQuestion(ctx context.Context, topic, level string, count int) (backend.Question, error) {
	return backend.Question{SessionID: "s-1", Question: "Describe a time you disagreed with a teammate.", Topic: topic, DifficultyLevel: level}, nil
}

func (b *stubBackend) Evaluate(ctx context.Context, req backend.EvaluateRequest) (backend.Evaluation, error) {
	return backend.Evaluation{SessionID: req.SessionID, Feedback: b.feedback}, nil
}

type stubStream struct{ closes int }

func (s *stubStream) Frame() (image.Image, bool) { return nil, false }
func (s *stubStream) Close() error              { s.closes++; return nil }

type stubCamera struct{ stream *stubStream }

func (c *stubCamera) Acquire(ctx context.Context) (session.Stream, error) { return c.stream, nil }

type stubEngine struct {
	ch    chan session.RecognitionEvent
	stops int
}

func (e *stubEngine) Start(ctx context.Context) (session.Recognition, error) {
	e.ch = make(chan session.RecognitionEvent, 8)
	return &stubRecognition{engine: e, ch: e.ch}, nil
}

type stubRecognition struct {
	engine *stubEngine
	ch     chan session.RecognitionEvent
}

func (r *stubRecognition) Events() <-chan session.RecognitionEvent { return r.ch }
func (r *stubRecognition) Stop() error                            { r.engine.stops++; return nil }

type fixture struct {
	m      Model
	stream *stubStream
	engine *stubEngine
}

func newFixture() *fixture {
	log := logrus.New()
	log.SetOutput(io.Discard)
	f := &fixture{stream: &stubStream{}, engine: &stubEngine{}}
	o := session.New(session.Deps{
		Backend: &stubBackend{feedback: "## Strengths\nClear structure.\n## Improvements\nMore detail."},
		Camera:  &stubCamera{stream: f.stream},
		Speech:  f.engine,
		Log:     log,
	}, session.Options{})
	f.m = New(o, []string{"easy", "medium", "hard"}, "medium", log)
	f.m, _ = applyUpdate(f.m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return f
}

func applyUpdate(m Model, msg tea.Msg) (Model, tea.Cmd) {
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func typeText(m Model, s string) Model {
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyTab   = tea.KeyMsg{Type: tea.KeyTab}
	keySpace = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
)

func keyRune(r rune) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}} }

// run feeds the result of a single command back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	return applyUpdate(m, cmd())
}

func (f *fixture) toActive(t *testing.T) {
	t.Helper()
	f.m = typeText(f.m, "Behavioral")
	m, cmd := applyUpdate(f.m, keyEnter)
	m, cmd = run(t, m, cmd) // question
	m, _ = run(t, m, cmd)   // camera
	f.m = m
	if got := f.m.session.State(); got != session.StateActive {
		t.Fatalf("state = %v, want Active", got)
	}
}

func TestTopicEntry(t *testing.T) {
	f := newFixture()
	f.m = typeText(f.m, "Go q")
	f.m, _ = applyUpdate(f.m, keySpace)
	f.m = typeText(f.m, "x")
	f.m, _ = applyUpdate(f.m, tea.KeyMsg{Type: tea.KeyBackspace})

	if f.m.topic != "Go q " {
		t.Errorf("topic = %q, want %q", f.m.topic, "Go q ")
	}
	if f.m.session.State() != session.StateIdle {
		t.Error("letters typed into the topic must not act as commands")
	}
}

func TestTabCyclesLevel(t *testing.T) {
	f := newFixture()
	if f.m.level() != "medium" {
		t.Fatalf("default level = %q", f.m.level())
	}
	f.m, _ = applyUpdate(f.m, keyTab)
	if f.m.level() != "hard" {
		t.Errorf("level = %q, want hard", f.m.level())
	}
	f.m, _ = applyUpdate(f.m, keyTab)
	if f.m.level() != "easy" {
		t.Errorf("level = %q, want easy", f.m.level())
	}
}

func TestEnterStartsSession(t *testing.T) {
	f := newFixture()
	f.toActive(t)

	view := f.m.View()
	if !strings.Contains(view, "Describe a time you disagreed") {
		t.Errorf("view missing question:\n%s", view)
	}
	if !strings.Contains(view, "Space") {
		t.Error("footer should offer Space to record")
	}
	if rec := f.m.session.Record(); rec.Level != "medium" || rec.Topic != "Behavioral" {
		t.Errorf("record topic/level = %q/%q", rec.Topic, rec.Level)
	}
}

func TestSpaceRecordsAndStops(t *testing.T) {
	f := newFixture()
	f.toActive(t)

	m, cmd := applyUpdate(f.m, keySpace)
	m, _ = run(t, m, cmd)
	if m.session.State() != session.StateRecording {
		t.Fatalf("state = %v, want Recording", m.session.State())
	}
	if !strings.Contains(m.View(), "REC 00:00") {
		t.Error("recording view should show timer")
	}

	m, _ = applyUpdate(m, keySpace)
	if m.session.State() != session.StateProcessing {
		t.Errorf("state = %v, want Processing", m.session.State())
	}
	if f.engine.stops != 1 {
		t.Errorf("engine stops = %d, want 1", f.engine.stops)
	}
}

func TestQuitTearsDown(t *testing.T) {
	f := newFixture()
	f.toActive(t)

	m, cmd := applyUpdate(f.m, keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
	if m.session.State() != session.StateIdle {
		t.Errorf("state = %v, want Idle", m.session.State())
	}
	if f.stream.closes != 1 {
		t.Errorf("camera closes = %d, want 1", f.stream.closes)
	}
}

func TestResetKey(t *testing.T) {
	f := newFixture()
	f.toActive(t)

	m, _ := applyUpdate(f.m, keyRune('x'))
	if m.session.State() != session.StateIdle {
		t.Errorf("state = %v, want Idle", m.session.State())
	}
	if m.topic != "Behavioral" {
		t.Errorf("topic should survive reset, got %q", m.topic)
	}
}

// splitBatch runs a batched command and returns its parts in order.
func splitBatch(t *testing.T, cmd tea.Cmd) []tea.Cmd {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatal("expected a batch")
	}
	return batch
}

func TestFeedbackView(t *testing.T) {
	f := newFixture()
	f.toActive(t)

	m, cmd := applyUpdate(f.m, keySpace)
	m, cmd = run(t, m, cmd)
	read := splitBatch(t, cmd)[0] // recognition read, then timer tick

	f.engine.ch <- session.RecognitionEvent{Result: &session.Result{Fragments: []session.Fragment{
		{Index: 0, Text: "I listened first", Final: true},
	}}}
	m, next := run(t, m, read)

	m, _ = applyUpdate(m, keySpace)
	if m.session.State() != session.StateProcessing {
		t.Fatalf("state = %v, want Processing", m.session.State())
	}
	close(f.engine.ch)
	m, submit := run(t, m, next)
	m, _ = run(t, m, submit)

	if m.session.State() != session.StateEvaluated {
		t.Fatalf("state = %v, want Evaluated", m.session.State())
	}
	view := m.View()
	for _, want := range []string{"FEEDBACK", "Strengths", "Clear structure."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "## Strengths") {
		t.Error("heading markers should be stripped")
	}

	m, _ = applyUpdate(m, keyRune('j'))
	if m.feedbackScroll != 1 {
		t.Errorf("feedbackScroll = %d, want 1", m.feedbackScroll)
	}
	m, _ = applyUpdate(m, keyRune('k'))
	m, _ = applyUpdate(m, keyRune('k'))
	if m.feedbackScroll != 0 {
		t.Errorf("feedbackScroll = %d, want 0", m.feedbackScroll)
	}

	m, _ = applyUpdate(m, keyRune('n'))
	if m.session.State() != session.StateIdle {
		t.Errorf("state after n = %v, want Idle", m.session.State())
	}
}

func TestEmptyTopicShowsError(t *testing.T) {
	f := newFixture()
	m, cmd := applyUpdate(f.m, keyEnter)
	if cmd != nil {
		t.Error("empty topic should not start a request")
	}
	if !strings.Contains(m.View(), "enter an interview topic") {
		t.Error("view should show topic error")
	}
}

func TestViewWithoutSize(t *testing.T) {
	f := newFixture()
	f.m.width = 0
	if f.m.View() != "Initializing..." {
		t.Error("view without size should show initializing")
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("the quick brown fox jumps", 10)
	want := []string{"the quick", "brown fox", "jumps"}
	if len(got) != len(want) {
		t.Fatalf("wrapText = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}
