package session

import (
	"image"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// PostureNotes is written alongside every posture sample.
const PostureNotes = "Head position tracked"

// Classifier decides whether a single frame passes the posture check.
type Classifier func(img image.Image) bool

// HeadRegionClassifier samples the pixel at horizontal centre, 30% down the
// frame, and passes when both its red and green channels exceed 50 (8-bit).
func HeadRegionClassifier(img image.Image) bool {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return false
	}
	x := b.Min.X + b.Dx()/2
	y := b.Min.Y + b.Dy()*3/10
	r, g, _, _ := img.At(x, y).RGBA()
	return r>>8 > 50 && g>>8 > 50
}

// Classify maps a running pass/total count to a stability class. The ratio
// must strictly exceed 0.7 to count as stable.
func Classify(passed, total int) Stability {
	if total > 0 && passed*10 > total*7 {
		return StabilityStable
	}
	return StabilityUnstable
}

// PostureSampler samples the camera at a fixed cadence and keeps a running
// pass ratio in the session record.
type PostureSampler struct {
	media    *MediaCapture
	classify Classifier
	interval time.Duration
	log      logrus.FieldLogger

	record  *Record
	handle  Handle
	running bool
	passed  int
	total   int
}

// NewPostureSampler creates a sampler reading frames from media.
func NewPostureSampler(media *MediaCapture, classify Classifier, interval time.Duration, log logrus.FieldLogger) *PostureSampler {
	if classify == nil {
		classify = HeadRegionClassifier
	}
	return &PostureSampler{
		media:    media,
		classify: classify,
		interval: interval,
		handle:   Handle{ID: nextID()},
		log:      log.WithField("component", "posture"),
	}
}

func (p *PostureSampler) Name() string { return "posture" }

// Start begins sampling into rec. Counts carry over when the same record is
// sampled again; a new record starts from zero.
func (p *PostureSampler) Start(rec *Record) tea.Cmd {
	if p.record != rec {
		p.passed, p.total = 0, 0
	}
	p.record = rec
	p.handle.Tag++
	p.running = true
	return p.tick()
}

// Stop cancels sampling. Ticks already scheduled are dropped on arrival.
func (p *PostureSampler) Stop() error {
	if !p.running {
		return nil
	}
	p.running = false
	p.handle.Tag++
	return nil
}

// Running reports whether sampling is active.
func (p *PostureSampler) Running() bool { return p.running }

// Counts returns the running pass and total sample counts.
func (p *PostureSampler) Counts() (passed, total int) { return p.passed, p.total }

func (p *PostureSampler) tick() tea.Cmd {
	h := p.handle
	return tea.Tick(p.interval, func(t time.Time) tea.Msg {
		return postureTickMsg{handle: h, at: t}
	})
}

func (p *PostureSampler) handleTick(msg postureTickMsg) tea.Cmd {
	if !p.running || msg.handle != p.handle || !p.media.Active() {
		return nil
	}
	if img, ok := p.media.Frame(); ok && img != nil && !img.Bounds().Empty() {
		p.observe(p.classify(img))
	}
	return p.tick()
}

// observe folds one sample into the running ratio and the record.
func (p *PostureSampler) observe(pass bool) {
	if pass {
		p.passed++
	}
	p.total++
	if p.record != nil {
		p.record.UpdatePosture(p.total, Classify(p.passed, p.total), PostureNotes)
	}
}
