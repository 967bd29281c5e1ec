// ABOUTME: Actuator dispatch routing cues to device backends
// ABOUTME: Per-device serial workers with bounded retry and timeouts
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Open-Lights/OpenLightsCore/internal/device"
	"github.com/Open-Lights/OpenLightsCore/internal/metrics"
)

// Options tune the retry policy. Zero values take defaults.
type Options struct {
	// WirelessAttempts is the total call attempts for wireless
	// backends, including the first. Local GPIO writes get exactly one.
	WirelessAttempts int
	// Backoff is the pause between wireless attempts.
	Backoff time.Duration
	// Timeout bounds each individual backend call.
	Timeout time.Duration
	// QueueDepth is the per-device command queue size. Overflow drops
	// the cue and reports it rather than blocking the scheduler.
	QueueDepth int
}

func (o Options) withDefaults() Options {
	if o.WirelessAttempts <= 0 {
		o.WirelessAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 50 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 500 * time.Millisecond
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 64
	}
	return o
}

// Event is one dispatch failure, published on the error-reporting
// channel. Failures never propagate back into the scheduler tick.
type Event struct {
	ID       string
	Device   string
	At       time.Duration // cue timestamp within the show
	Err      error
	Attempts int
	Time     time.Time
}

type job struct {
	at      time.Duration
	payload json.RawMessage
}

// Dispatcher routes due cues to backends. Commands to the same device
// are delivered in cue order by a dedicated worker; different devices
// dispatch concurrently. Dispatch itself never blocks on device I/O.
type Dispatcher struct {
	registry *device.Registry
	log      *slog.Logger
	met      *metrics.Metrics
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	queues map[string]chan job
	wg     sync.WaitGroup
}

// New creates a dispatcher over the given registry. met may be nil.
func New(registry *device.Registry, log *slog.Logger, met *metrics.Metrics, opts Options) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		registry: registry,
		log:      log,
		met:      met,
		opts:     opts.withDefaults(),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan Event, 64),
		queues:   make(map[string]chan job),
	}
}

// Dispatch hands a cue command to the worker for its device. The call
// returns immediately; delivery, retries, and failures happen on the
// worker goroutine. A nil payload is the revert command.
//
// Dispatch is called only from the scheduler's control loop, so queue
// creation needs no locking.
func (d *Dispatcher) Dispatch(deviceID string, at time.Duration, payload json.RawMessage) {
	q, ok := d.queues[deviceID]
	if !ok {
		q = make(chan job, d.opts.QueueDepth)
		d.queues[deviceID] = q
		d.wg.Add(1)
		go d.worker(deviceID, q)
	}

	select {
	case q <- job{at: at, payload: payload}:
	default:
		d.report(Event{
			Device:   deviceID,
			At:       at,
			Err:      fmt.Errorf("device queue full, cue at %v dropped", at),
			Attempts: 0,
		})
	}
}

// Events returns the error-reporting channel. Consumers that fall
// behind lose events rather than stalling dispatch.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Close stops the workers and waits for in-flight calls to finish.
// Each call is bounded by the per-call timeout, so the wait is short.
// Writes already issued to hardware are not cancelled mid-command.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// worker delivers jobs for one device in order.
func (d *Dispatcher) worker(deviceID string, q chan job) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case j := <-q:
			d.deliver(deviceID, j)
		}
	}
}

// deliver performs the backend call with the kind-appropriate retry
// policy.
func (d *Dispatcher) deliver(deviceID string, j job) {
	cfg, backend, ok := d.registry.Lookup(deviceID)
	if !ok {
		// Device disappeared after load. Report and move on.
		if d.met != nil {
			d.met.IncDispatchErrors()
		}
		d.report(Event{
			Device: deviceID,
			At:     j.at,
			Err:    fmt.Errorf("%w: %s", device.ErrUnknownDevice, deviceID),
		})
		return
	}

	attempts := 1
	if cfg.Kind == device.KindWireless {
		attempts = d.opts.WirelessAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if d.met != nil {
				d.met.IncDispatchRetries()
			}
			select {
			case <-time.After(d.opts.Backoff):
			case <-d.ctx.Done():
				return
			}
		}

		callCtx, cancel := context.WithTimeout(d.ctx, d.opts.Timeout)
		err = backend.Set(callCtx, j.payload)
		cancel()

		if err == nil {
			if d.met != nil {
				d.met.IncCuesDispatched()
			}
			return
		}

		d.log.Debug("backend call failed",
			"device", deviceID,
			"attempt", attempt,
			"error", err,
		)
	}

	if d.met != nil {
		d.met.IncDispatchErrors()
	}
	d.report(Event{Device: deviceID, At: j.at, Err: err, Attempts: attempts})
}

// report publishes an event without ever blocking the caller.
func (d *Dispatcher) report(ev Event) {
	ev.ID = uuid.New().String()
	ev.Time = time.Now()

	d.log.Warn("dispatch error",
		"device", ev.Device,
		"cue_at", ev.At,
		"attempts", ev.Attempts,
		"error", ev.Err,
	)

	select {
	case d.events <- ev:
	default:
	}
}
