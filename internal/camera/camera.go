// Package camera provides session.MediaSource implementations for
// environments without a native capture API: an HTTP snapshot poller for IP
// webcams and a still image read from disk.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jwulff/steno/interview/internal/session"
)

// SnapshotSource polls a URL that returns a single JPEG or PNG frame.
type SnapshotSource struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
	Log      logrus.FieldLogger
}

// Acquire fetches a first frame to confirm access, then keeps the latest
// frame current until the stream is closed.
func (s *SnapshotSource) Acquire(ctx context.Context) (session.Stream, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	img, err := fetch(ctx, client, s.URL)
	if err != nil {
		return nil, err
	}

	st := &snapshotStream{done: make(chan struct{}), frame: img}
	go st.poll(client, s.URL, interval, log.WithField("component", "camera"))
	return st, nil
}

func fetch(ctx context.Context, client *http.Client, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return nil, &session.PermissionError{Device: "camera", Err: fmt.Errorf("snapshot: %s", resp.Status)}
	case resp.StatusCode/100 != 2:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch snapshot: %s", resp.Status)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}

type snapshotStream struct {
	mu    sync.Mutex
	frame image.Image

	once sync.Once
	done chan struct{}
}

func (s *snapshotStream) poll(client *http.Client, url string, interval time.Duration, log logrus.FieldLogger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.done
		cancel()
	}()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
		}
		img, err := fetch(ctx, client, url)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Debug("snapshot poll failed")
			}
			continue
		}
		s.mu.Lock()
		s.frame = img
		s.mu.Unlock()
	}
}

func (s *snapshotStream) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.frame != nil
}

func (s *snapshotStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// FileSource serves a still image from disk, for demos and headless runs.
type FileSource struct {
	Path string
}

// Acquire decodes the image once.
func (f *FileSource) Acquire(ctx context.Context) (session.Stream, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, &session.PermissionError{Device: "camera", Err: err}
		}
		return nil, fmt.Errorf("open camera image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode camera image: %w", err)
	}
	return &stillStream{img: img}, nil
}

type stillStream struct {
	mu  sync.Mutex
	img image.Image
}

func (s *stillStream) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img, s.img != nil
}

func (s *stillStream) Close() error {
	s.mu.Lock()
	s.img = nil
	s.mu.Unlock()
	return nil
}
