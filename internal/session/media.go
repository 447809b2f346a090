package session

import (
	"context"
	"image"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// Stream is an acquired camera stream. Frame returns the most recent frame,
// or false when none has arrived yet. Close stops all underlying tracks.
type Stream interface {
	Frame() (image.Image, bool)
	Close() error
}

// MediaSource grants access to a camera. Acquire returns a
// *PermissionError when access is denied.
type MediaSource interface {
	Acquire(ctx context.Context) (Stream, error)
}

// MediaCapture owns the camera stream for a session.
type MediaCapture struct {
	source MediaSource
	stream Stream
	log    logrus.FieldLogger
}

// NewMediaCapture creates a controller for source. A nil source means the
// environment has no camera.
func NewMediaCapture(source MediaSource, log logrus.FieldLogger) *MediaCapture {
	return &MediaCapture{source: source, log: log.WithField("component", "camera")}
}

func (m *MediaCapture) Name() string { return "camera" }

// acquireCmd requests the camera off the event loop.
func (m *MediaCapture) acquireCmd(ctx context.Context, gen int) tea.Cmd {
	source := m.source
	return func() tea.Msg {
		if source == nil {
			return cameraMsg{gen: gen, err: &UnsupportedCapabilityError{Capability: "camera"}}
		}
		s, err := source.Acquire(ctx)
		return cameraMsg{gen: gen, stream: s, err: err}
	}
}

// attach takes ownership of an acquired stream, releasing any previous one.
func (m *MediaCapture) attach(s Stream) {
	if m.stream != nil && m.stream != s {
		if err := m.stream.Close(); err != nil {
			m.log.WithError(err).Warn("release replaced stream")
		}
	}
	m.stream = s
	m.log.Info("camera acquired")
}

// Active reports whether a stream is currently held.
func (m *MediaCapture) Active() bool { return m.stream != nil }

// Frame returns the latest frame of the held stream.
func (m *MediaCapture) Frame() (image.Image, bool) {
	if m.stream == nil {
		return nil, false
	}
	return m.stream.Frame()
}

// Stop releases the stream. Releasing twice, or without a stream, is a no-op.
func (m *MediaCapture) Stop() error {
	if m.stream == nil {
		return nil
	}
	s := m.stream
	m.stream = nil
	m.log.Info("camera released")
	return s.Close()
}
