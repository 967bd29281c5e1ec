// ABOUTME: Playback clock adapter polling the audio transport
// ABOUTME: Owns the control loop that ticks the scheduler
package clock

import (
	"context"
	"log/slog"
	"time"

	"github.com/Open-Lights/OpenLightsCore/internal/scheduler"
	"github.com/Open-Lights/OpenLightsCore/pkg/beatfile"
)

// Status mirrors the audio service's playback state.
type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Transport is the audio playback service contract the adapter polls.
// The audio clock is the ground truth; there is no push notification.
type Transport interface {
	Position() time.Duration
	Status() Status
	Play()
	Pause()
	Seek(time.Duration) error
}

// DefaultInterval is the polling period. The audio position is the
// authoritative clock, so a short fixed poll beats precise timers.
const DefaultInterval = 15 * time.Millisecond

// Adapter drives the scheduler from the transport's position reports.
// Run owns the scheduler: control methods enqueue onto the loop so the
// cursor and revert state are only ever touched from one goroutine.
type Adapter struct {
	transport Transport
	sched     *scheduler.Scheduler
	log       *slog.Logger
	interval  time.Duration

	cmds chan func()

	// loop state, owned by Run
	loop     bool
	ended    bool
	lastSt   Status
	onTick   func(pos time.Duration, emitted int)
	onFinish func()
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithInterval overrides the polling period.
func WithInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithTickObserver installs a hook called after every playing tick,
// used for position gauges and UI updates.
func WithTickObserver(fn func(pos time.Duration, emitted int)) Option {
	return func(a *Adapter) { a.onTick = fn }
}

// WithFinishObserver installs a hook called when a pass ends without
// looping. It runs on the control loop and must not call back into the
// adapter synchronously.
func WithFinishObserver(fn func()) Option {
	return func(a *Adapter) { a.onFinish = fn }
}

// New creates an adapter over a transport and scheduler.
func New(transport Transport, sched *scheduler.Scheduler, log *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		transport: transport,
		sched:     sched,
		log:       log,
		interval:  DefaultInterval,
		cmds:      make(chan func(), 16),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run polls the transport until the context is cancelled. Ticks and
// queued control commands execute here and nowhere else.
func (a *Adapter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.cmds:
			fn()
		case <-ticker.C:
			a.step()
		}
	}
}

// step performs one poll of the transport.
func (a *Adapter) step() {
	st := a.transport.Status()

	if st != StatusPlaying {
		// Transition to stopped while mid-show means the track drained.
		if a.lastSt == StatusPlaying && st == StatusStopped {
			a.finishPass()
		}
		a.lastSt = st
		return
	}

	// Once a pass has finished, the cursor sits back at the top; do not
	// tick again until an explicit Play, Seek, or Load.
	if a.ended {
		a.lastSt = st
		return
	}

	pos := a.transport.Position()
	n := a.sched.Tick(pos)
	if a.onTick != nil {
		a.onTick(pos, n)
	}

	if show := a.sched.Show(); show != nil && show.Duration > 0 && pos >= show.Duration {
		a.finishPass()
	}
	a.lastSt = st
}

// finishPass ends one playback pass: either loop back to the top or
// settle into stopped.
func (a *Adapter) finishPass() {
	if a.ended {
		return
	}

	show := a.sched.Show()
	if a.loop && show != nil {
		a.log.Info("looping show", "show", show.Name)
		a.sched.Stop()
		a.sched.Start(show)
		if err := a.transport.Seek(0); err != nil {
			a.log.Error("loop rewind failed", "error", err)
			a.ended = true
			return
		}
		a.transport.Play()
		return
	}

	a.log.Info("show finished")
	a.sched.Stop()
	a.ended = true
	if a.onFinish != nil {
		a.onFinish()
	}
}

// do enqueues a control command onto the loop goroutine.
func (a *Adapter) do(fn func()) {
	a.cmds <- fn
}

// Load schedules a show for a fresh playback pass.
func (a *Adapter) Load(show *beatfile.Show) {
	a.do(func() {
		a.sched.Start(show)
		a.ended = false
	})
}

// Play resumes or starts the transport.
func (a *Adapter) Play() {
	a.do(func() {
		a.transport.Play()
		a.ended = false
	})
}

// Pause pauses the transport; the cursor stays put.
func (a *Adapter) Pause() {
	a.do(func() {
		a.transport.Pause()
	})
}

// Stop pauses the transport, rewinds it, and resets the cursor. Cues
// already handed to dispatch run to completion on their own.
func (a *Adapter) Stop() {
	a.do(func() {
		a.transport.Pause()
		if err := a.transport.Seek(0); err != nil {
			a.log.Error("rewind failed", "error", err)
		}
		a.sched.Stop()
		a.ended = false
	})
}

// Seek moves both the transport and the scheduler cursor. Cues at or
// before the new position are skipped, not replayed.
func (a *Adapter) Seek(pos time.Duration) {
	a.do(func() {
		if err := a.transport.Seek(pos); err != nil {
			a.log.Error("seek failed", "position", pos, "error", err)
			return
		}
		a.sched.Seek(pos)
		a.ended = false
	})
}

// SetLoop toggles continuous replay of the loaded show.
func (a *Adapter) SetLoop(loop bool) {
	a.do(func() {
		a.loop = loop
	})
}
