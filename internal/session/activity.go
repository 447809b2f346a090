package session

import (
	"fmt"
	"sync/atomic"
)

// Activity is the teardown contract shared by the camera, posture sampler,
// timer and transcription controller. Stop must be safe to call when the
// activity was never started or has already stopped.
type Activity interface {
	Name() string
	Stop() error
}

// Handle identifies one run of a periodic activity. Every tick carries the
// handle it was scheduled under; Stop bumps the tag, so ticks already in
// flight are dropped when they arrive.
type Handle struct {
	ID  int
	Tag int
}

var lastID int64

func nextID() int {
	return int(atomic.AddInt64(&lastID, 1))
}

// TeardownReport lists what Reset attempted and what failed.
type TeardownReport struct {
	Attempted []string
	Errors    map[string]error
}

// OK reports whether every stop succeeded.
func (r TeardownReport) OK() bool { return len(r.Errors) == 0 }

// stopActivity stops a, converting a panic into an error so one misbehaving
// activity cannot prevent the others from being stopped.
func stopActivity(a Activity) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic stopping %s: %v", a.Name(), r)
		}
	}()
	return a.Stop()
}
