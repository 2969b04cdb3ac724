// Package progress eases a displayed percentage toward a target value on a
// fixed frame clock.
package progress

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	snapThreshold = 0.3
	minStep       = 0.2
	easeFactor    = 0.12

	// FrameInterval approximates one display frame at 60Hz.
	FrameInterval = time.Second / 60
)

// Step returns the next displayed value. Values within snapThreshold of the
// target snap to it; otherwise the value moves by max(minStep, |diff|*easeFactor)
// without crossing the target. Inputs and output are clamped to [0,100].
func Step(displayed, target float64) float64 {
	displayed, target = Clamp(displayed), Clamp(target)
	diff := target - displayed
	dist := math.Abs(diff)
	if dist < snapThreshold {
		return target
	}
	step := math.Max(minStep, dist*easeFactor)
	if step >= dist {
		return target
	}
	if diff < 0 {
		step = -step
	}
	return Clamp(displayed + step)
}

// Clamp bounds v to [0,100]; NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Frame is the state rendered after a tick.
type Frame struct {
	Target    float64
	Displayed float64
}

// Percent is the integer label shown next to the bar.
func (f Frame) Percent() int {
	return int(math.Round(f.Displayed))
}

// Ticker is the frame clock. *time.Ticker satisfies it through NewTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTicker returns a wall-clock frame source.
func NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		d = FrameInterval
	}
	return timeTicker{t: time.NewTicker(d)}
}

// Animator owns a target and a displayed value. SetTarget may be called from
// any goroutine while a loop started with Start is running.
type Animator struct {
	mu        sync.Mutex
	target    float64
	displayed float64
	onFrame   func(Frame)
}

// NewAnimator returns an animator at 0. onFrame, if set, receives every frame
// from the render loop.
func NewAnimator(onFrame func(Frame)) *Animator {
	return &Animator{onFrame: onFrame}
}

// SetTarget replaces the target, clamped to [0,100].
func (a *Animator) SetTarget(v float64) {
	a.mu.Lock()
	a.target = Clamp(v)
	a.mu.Unlock()
}

// Target returns the current target.
func (a *Animator) Target() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// Displayed returns the current displayed value.
func (a *Animator) Displayed() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.displayed
}

// Settled reports whether displayed has reached target.
func (a *Animator) Settled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.displayed == a.target
}

// Tick advances displayed by one step and returns the new frame.
func (a *Animator) Tick() Frame {
	a.mu.Lock()
	a.displayed = Step(a.displayed, a.target)
	f := Frame{Target: a.target, Displayed: a.displayed}
	a.mu.Unlock()
	return f
}

// Run ticks on every frame of ticker until ctx is done. It stops the ticker
// before returning.
func (a *Animator) Run(ctx context.Context, ticker Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticker.C():
			if !ok {
				return
			}
			f := a.Tick()
			if a.onFrame != nil {
				a.onFrame(f)
			}
		}
	}
}

// Start runs the loop in a goroutine and returns its stop handle.
func (a *Animator) Start(ticker Ticker) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		a.Run(ctx, ticker)
	}()
	return h
}

// Handle stops a running animation loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the loop and waits until it has exited. Safe to call twice.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
