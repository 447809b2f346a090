// Package speech adapts the local steno daemon into a session.SpeechEngine.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jwulff/steno/interview/internal/daemon"
	"github.com/jwulff/steno/interview/internal/db"
	"github.com/jwulff/steno/interview/internal/session"
)

// Config selects the daemon and how a recording is started.
type Config struct {
	SocketPath string
	// DBPath is the daemon's sqlite database, read to recover segments that
	// were persisted but not streamed before stop. Empty disables recovery.
	DBPath string
	Locale string
	Device string
	// StopGrace bounds how long the stream is followed after stop while
	// waiting for the daemon to report that recording ended.
	StopGrace time.Duration
	Log       logrus.FieldLogger
}

// RecoveryTimeout bounds the database read for late segments after a
// recording ends.
const RecoveryTimeout = 500 * time.Millisecond

// DefaultStopGrace is used when Config.StopGrace is zero.
const DefaultStopGrace = time.Second

// StenoEngine runs microphone recognition through steno-daemon. Every Start
// is an independent daemon recording with its own connections.
type StenoEngine struct {
	cfg Config
	log logrus.FieldLogger
}

// NewStenoEngine creates an engine for the daemon described by cfg.
func NewStenoEngine(cfg Config) *StenoEngine {
	if cfg.SocketPath == "" {
		cfg.SocketPath = daemon.SocketPath()
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StenoEngine{cfg: cfg, log: log.WithField("component", "steno")}
}

// Start subscribes to the daemon's event stream and starts a mic-only
// recording. The returned session's channel is closed after stop once the
// daemon has finished and any late segments have been recovered.
func (e *StenoEngine) Start(ctx context.Context) (session.Recognition, error) {
	if _, err := os.Stat(e.cfg.SocketPath); err != nil {
		return nil, &session.UnsupportedCapabilityError{Capability: "speech recognition", Err: err}
	}

	evClient, err := daemon.Connect(ctx, e.cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	if err := evClient.Subscribe(daemon.EventPartial, daemon.EventSegment, daemon.EventError, daemon.EventStatus); err != nil {
		evClient.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	cmdClient, err := daemon.Connect(ctx, e.cfg.SocketPath)
	if err != nil {
		evClient.Close()
		return nil, err
	}
	resp, err := cmdClient.SendCommand(daemon.Command{
		Cmd:         daemon.CmdStart,
		Locale:      e.cfg.Locale,
		Device:      e.cfg.Device,
		SystemAudio: daemon.BoolPtr(false),
	})
	if err != nil {
		evClient.Close()
		cmdClient.Close()
		if strings.Contains(strings.ToLower(resp.Error), "permission") {
			return nil, &session.PermissionError{Device: "microphone", Err: err}
		}
		return nil, err
	}

	r := &run{
		ev:        evClient,
		cmd:       cmdClient,
		sessionID: resp.SessionID,
		dbPath:    e.cfg.DBPath,
		grace:     e.cfg.StopGrace,
		stopped:   make(chan struct{}),
		out:       make(chan session.RecognitionEvent, 16),
		log:       e.log.WithField("daemon_session", resp.SessionID),
	}
	go r.pump()
	r.log.Info("recording started")
	return r, nil
}

// run is one daemon recording and its event pump.
type run struct {
	ev        *daemon.Client
	cmd       *daemon.Client
	sessionID string
	dbPath    string
	grace     time.Duration
	out       chan session.RecognitionEvent
	log       logrus.FieldLogger

	stopOnce sync.Once
	stopped  chan struct{}
}

func (r *run) Events() <-chan session.RecognitionEvent { return r.out }

func (r *run) isStopped() bool {
	select {
	case <-r.stopped:
		return true
	default:
		return false
	}
}

// Stop asks the daemon to stop this recording and returns at once. The
// event stream is followed for at most the stop grace afterwards.
func (r *run) Stop() error {
	r.stopOnce.Do(func() {
		close(r.stopped)
		r.ev.SetReadDeadline(time.Now().Add(r.grace))
		go r.sendStop()
		r.log.Info("recording stop requested")
	})
	return nil
}

func (r *run) sendStop() {
	r.cmd.SetDeadline(time.Now().Add(r.grace))
	if _, err := r.cmd.SendCommand(daemon.Command{Cmd: daemon.CmdStop}); err != nil {
		if daemon.IsTimeout(err) {
			r.log.WithError(err).Warn("daemon did not acknowledge stop")
			return
		}
		r.log.WithError(err).Debug("stop command failed")
	}
}

func (r *run) pump() {
	out := r.out
	defer close(out)

	lastSeq := -1
	for {
		ev, err := r.ev.ReadEvent()
		if err != nil {
			if !r.isStopped() {
				out <- session.RecognitionEvent{Err: fmt.Errorf("speech daemon: %w", err)}
			} else if !daemon.IsTimeout(err) && !errors.Is(err, daemon.ErrClosed) {
				r.log.WithError(err).Warn("event stream failed after stop")
			}
			break
		}
		if !ev.FromMicrophone() || (ev.SessionID != "" && ev.SessionID != r.sessionID) {
			continue
		}

		if ev.Event == daemon.EventStatus {
			if ev.Recording != nil && !*ev.Recording {
				break
			}
			continue
		}
		if e, ok := translate(ev, &lastSeq); ok {
			out <- e
		}
	}

	r.cmd.Close()
	r.ev.Close()

	r.recover(out, lastSeq)
	r.log.WithField("last_seq", lastSeq).Info("recognition stream closed")
}

// translate maps one daemon event onto a recognition event. Segments are
// final fragments at their sequence number; partials are interim text at the
// position the next segment will take.
func translate(ev daemon.Event, lastSeq *int) (session.RecognitionEvent, bool) {
	switch ev.Event {
	case daemon.EventSegment:
		if ev.SequenceNumber == nil {
			return session.RecognitionEvent{}, false
		}
		seq := *ev.SequenceNumber
		if seq > *lastSeq {
			*lastSeq = seq
		}
		return finalAt(seq, ev.Text), true
	case daemon.EventPartial:
		idx := *lastSeq + 1
		return session.RecognitionEvent{Result: &session.Result{
			ResumeIndex: idx,
			Fragments:   []session.Fragment{{Index: idx, Text: ev.Text}},
		}}, true
	case daemon.EventError:
		if ev.Transient != nil && *ev.Transient {
			return session.RecognitionEvent{Err: &session.TransientRecognitionError{Reason: ev.Message}}, true
		}
		return session.RecognitionEvent{Err: errors.New(ev.Message)}, true
	}
	return session.RecognitionEvent{}, false
}

func finalAt(seq int, text string) session.RecognitionEvent {
	return session.RecognitionEvent{Result: &session.Result{
		ResumeIndex: seq,
		Fragments:   []session.Fragment{{Index: seq, Text: text, Final: true}},
	}}
}

// recover emits microphone segments the daemon persisted after the last one
// it streamed.
func (r *run) recover(out chan<- session.RecognitionEvent, lastSeq int) {
	if r.dbPath == "" || r.sessionID == "" {
		return
	}
	if _, err := os.Stat(r.dbPath); err != nil {
		return
	}
	store, err := db.Open(r.dbPath)
	if err != nil {
		r.log.WithError(err).Warn("open steno database")
		return
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), RecoveryTimeout)
	defer cancel()

	sess, err := store.Session(ctx, r.sessionID)
	if err != nil || sess == nil {
		r.log.WithError(err).Debug("daemon session not persisted")
		return
	}
	segments, err := store.MicSegmentsAfter(ctx, r.sessionID, lastSeq)
	if err != nil {
		r.log.WithError(err).Warn("read late segments")
		return
	}
	for _, seg := range segments {
		out <- finalAt(seg.SequenceNumber, seg.Text)
	}
	if len(segments) > 0 {
		r.log.WithField("count", len(segments)).Info("recovered late segments")
	}
}
