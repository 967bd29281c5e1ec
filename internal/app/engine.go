// ABOUTME: Engine orchestration wiring parser, scheduler, and dispatch
// ABOUTME: Owns device registry construction and the error event fan-out
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Open-Lights/OpenLightsCore/internal/audio"
	"github.com/Open-Lights/OpenLightsCore/internal/clock"
	"github.com/Open-Lights/OpenLightsCore/internal/device"
	"github.com/Open-Lights/OpenLightsCore/internal/discovery"
	"github.com/Open-Lights/OpenLightsCore/internal/dispatch"
	"github.com/Open-Lights/OpenLightsCore/internal/library"
	"github.com/Open-Lights/OpenLightsCore/internal/metrics"
	"github.com/Open-Lights/OpenLightsCore/internal/scheduler"
	"github.com/Open-Lights/OpenLightsCore/pkg/beatfile"
)

// Config holds engine configuration.
type Config struct {
	Devices      []device.Config
	ShowsDir     string
	PollInterval time.Duration
	Loop         bool
	Discovery    bool

	// AutoAdvance moves on to the next library show when a pass ends
	// without looping. Shuffle picks that next show at random.
	AutoAdvance bool
	Shuffle     bool

	// Transport overrides the built-in audio player; tests install a
	// synthetic clock here.
	Transport clock.Transport

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// OnEvent receives every dispatch error after logging/metrics, for
	// a status surface such as the TUI. May be nil.
	OnEvent func(dispatch.Event)
}

// Status is a point-in-time snapshot of the engine for status surfaces.
type Status struct {
	Show      string
	State     string
	Position  time.Duration
	Duration  time.Duration
	Loop      bool
	Volume    float64
	Emitted   int64
	Remaining int
	Devices   int
}

// MarshalJSON emits durations as millisecond integers.
func (s Status) MarshalJSON() ([]byte, error) {
	type wire struct {
		Show       string  `json:"show"`
		State      string  `json:"state"`
		PositionMS int64   `json:"position_ms"`
		DurationMS int64   `json:"duration_ms"`
		Loop       bool    `json:"loop"`
		Volume     float64 `json:"volume"`
		Emitted    int64   `json:"cues_emitted"`
		Remaining  int     `json:"cues_remaining"`
		Devices    int     `json:"devices"`
	}
	return json.Marshal(wire{
		Show:       s.Show,
		State:      s.State,
		PositionMS: s.Position.Milliseconds(),
		DurationMS: s.Duration.Milliseconds(),
		Loop:       s.Loop,
		Volume:     s.Volume,
		Emitted:    s.Emitted,
		Remaining:  s.Remaining,
		Devices:    s.Devices,
	})
}

// Engine is the running core: device registry, dispatcher, scheduler,
// and the clock adapter loop, plus the show library.
type Engine struct {
	log        *slog.Logger
	met        *metrics.Metrics
	registry   *device.Registry
	dispatcher *dispatch.Dispatcher
	sched      *scheduler.Scheduler
	adapter    *clock.Adapter
	transport  clock.Transport
	lib        *library.Library
	disc       *discovery.Manager
	onEvent    func(dispatch.Event)

	autoAdvance bool
	shuffle     bool

	mu          sync.RWMutex
	currentName string
	currentShow *beatfile.Show
	loop        bool
}

// New builds an engine from configuration. Devices whose backend fails
// to initialize are reported and skipped so one bad pin does not take
// the whole engine down.
func New(cfg Config) (*Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = audio.NewPlayer(log)
	}

	registry := device.NewRegistry()
	for _, dc := range cfg.Devices {
		backend, err := backendFor(dc)
		if err != nil {
			log.Error("device unavailable, skipping",
				"device", dc.ID,
				"kind", dc.Kind,
				"error", err,
			)
			continue
		}
		if err := registry.Add(dc, backend); err != nil {
			return nil, err
		}
		log.Info("device registered", "device", dc.ID, "kind", dc.Kind)
	}

	dispatcher := dispatch.New(registry, log, cfg.Metrics, dispatch.Options{})
	sched := scheduler.New(dispatcher, log)

	e := &Engine{
		log:         log,
		met:         cfg.Metrics,
		registry:    registry,
		dispatcher:  dispatcher,
		sched:       sched,
		transport:   transport,
		lib:         library.New(cfg.ShowsDir),
		onEvent:     cfg.OnEvent,
		loop:        cfg.Loop,
		autoAdvance: cfg.AutoAdvance,
		shuffle:     cfg.Shuffle,
	}

	opts := []clock.Option{
		clock.WithTickObserver(func(pos time.Duration, _ int) {
			if e.met != nil {
				e.met.SetPlaybackPosition(pos.Seconds())
			}
		}),
	}
	if cfg.PollInterval > 0 {
		opts = append(opts, clock.WithInterval(cfg.PollInterval))
	}
	if cfg.AutoAdvance {
		// The hook runs on the control loop; advancing loads a new
		// show through the same loop, so it must happen elsewhere.
		opts = append(opts, clock.WithFinishObserver(func() {
			go e.advance()
		}))
	}
	e.adapter = clock.New(transport, sched, log, opts...)
	e.adapter.SetLoop(cfg.Loop)

	if cfg.Discovery {
		e.disc = discovery.NewManager(log)
	}

	if e.met != nil {
		e.met.SetDevicesConfigured(registry.Len())
	}

	return e, nil
}

// backendFor constructs the backend for a configured device.
func backendFor(cfg device.Config) (device.Backend, error) {
	switch cfg.Kind {
	case device.KindGPIO:
		return device.NewGPIO(cfg.Pin)
	case device.KindWireless:
		return device.NewWireless(cfg.Addr), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

// Start launches the control loop and event consumers. It returns
// immediately; Close tears everything down.
func (e *Engine) Start(ctx context.Context) {
	go e.adapter.Run(ctx)
	go e.consumeEvents(ctx)

	if e.disc != nil {
		e.disc.Browse()
		go e.consumeDiscovery(ctx)
	}
}

// consumeEvents drains the dispatcher's error channel into the log and
// the optional status surface hook. Metrics are already counted by the
// dispatcher itself.
func (e *Engine) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.dispatcher.Events():
			if e.onEvent != nil {
				e.onEvent(ev)
			}
		}
	}
}

// consumeDiscovery registers wireless controllers as they appear.
func (e *Engine) consumeDiscovery(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.disc.Stop()
			return
		case c := <-e.disc.Controllers():
			if e.registry.Has(c.Name) {
				continue
			}
			cfg := device.Config{ID: c.Name, Kind: device.KindWireless, Addr: c.Addr()}
			if err := e.registry.Add(cfg, device.NewWireless(cfg.Addr)); err != nil {
				e.log.Warn("could not register discovered controller", "name", c.Name, "error", err)
				continue
			}
			e.log.Info("wireless controller registered", "device", c.Name, "addr", cfg.Addr)
			if e.met != nil {
				e.met.SetDevicesConfigured(e.registry.Len())
			}
		}
	}
}

// LoadShow parses a show from the library, opens its audio track, and
// schedules it from the top. Parse failures reject the whole show.
func (e *Engine) LoadShow(name string) error {
	entry, err := e.lib.Find(name)
	if err != nil {
		return err
	}

	show, audioPath, err := e.lib.Load(entry, e.registry)
	if err != nil {
		return fmt.Errorf("load show %q: %w", name, err)
	}

	// Rewind before swapping shows so the new pass starts from zero
	// even when there is no audio track to reopen.
	e.adapter.Stop()

	if audioPath != "" {
		if opener, ok := e.transport.(interface{ Open(string) error }); ok {
			if err := opener.Open(audioPath); err != nil {
				return fmt.Errorf("load show %q: %w", name, err)
			}
		}
	}

	e.adapter.Load(show)

	e.mu.Lock()
	e.currentName = name
	e.currentShow = show
	e.mu.Unlock()

	if e.met != nil {
		e.met.IncShowsLoaded()
	}
	e.log.Info("show loaded", "show", name, "cues", len(show.Cues), "audio", audioPath)
	return nil
}

// Shows lists the names of every show in the library.
func (e *Engine) Shows() ([]string, error) {
	entries, err := e.lib.Scan()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names, nil
}

// Play starts or resumes playback.
func (e *Engine) Play() { e.adapter.Play() }

// Pause pauses playback in place.
func (e *Engine) Pause() { e.adapter.Pause() }

// Stop rewinds playback and resets the cue cursor.
func (e *Engine) Stop() { e.adapter.Stop() }

// Seek jumps playback and the cue cursor to a new position.
func (e *Engine) Seek(pos time.Duration) error {
	if pos < 0 {
		return fmt.Errorf("negative seek position %v", pos)
	}
	e.adapter.Seek(pos)
	return nil
}

// advance loads the playlist entry after the current show and starts
// it. With shuffle, a random other entry is picked instead.
func (e *Engine) advance() {
	names, err := e.Shows()
	if err != nil || len(names) == 0 {
		e.log.Warn("cannot advance playlist", "error", err)
		return
	}

	e.mu.RLock()
	current := e.currentName
	e.mu.RUnlock()

	next := names[0]
	if e.shuffle && len(names) > 1 {
		for {
			next = names[rand.Intn(len(names))]
			if next != current {
				break
			}
		}
	} else {
		for i, name := range names {
			if name == current {
				next = names[(i+1)%len(names)]
				break
			}
		}
	}

	e.log.Info("advancing playlist", "from", current, "to", next)
	if err := e.LoadShow(next); err != nil {
		e.log.Error("playlist advance failed", "show", next, "error", err)
		return
	}
	e.Play()
}

// SetVolume adjusts the audio service volume, clamped to [0, 1].
func (e *Engine) SetVolume(v float64) error {
	ctrl, ok := e.transport.(interface{ SetVolume(float64) })
	if !ok {
		return fmt.Errorf("transport has no volume control")
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	ctrl.SetVolume(v)
	return nil
}

// Volume reports the audio service volume, 1 when the transport has no
// volume control.
func (e *Engine) Volume() float64 {
	if ctrl, ok := e.transport.(interface{ Volume() float64 }); ok {
		return ctrl.Volume()
	}
	return 1
}

// SetLoop toggles continuous replay.
func (e *Engine) SetLoop(loop bool) {
	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()
	e.adapter.SetLoop(loop)
}

// Status snapshots the engine state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	name := e.currentName
	show := e.currentShow
	loop := e.loop
	e.mu.RUnlock()

	st := Status{
		Show:     name,
		State:    e.transport.Status().String(),
		Position: e.transport.Position(),
		Loop:     loop,
		Volume:   e.Volume(),
		Devices:  e.registry.Len(),
	}
	if show != nil {
		st.Duration = show.Duration
	}
	stats := e.sched.Stats()
	st.Emitted = stats.Emitted
	st.Remaining = stats.Remaining
	return st
}

// Close shuts down dispatch workers and device backends. In-flight
// hardware writes finish on their own.
func (e *Engine) Close() {
	e.dispatcher.Close()
	e.registry.Close()
	if closer, ok := e.transport.(interface{ Close() }); ok {
		closer.Close()
	}
}
