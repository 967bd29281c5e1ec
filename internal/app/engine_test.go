// ABOUTME: Engine integration tests with a synthetic playback clock
// ABOUTME: Exercises load, play, seek, and error reporting end to end
package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Open-Lights/OpenLightsCore/internal/clock"
	"github.com/Open-Lights/OpenLightsCore/internal/device"
	"github.com/Open-Lights/OpenLightsCore/internal/dispatch"
)

// syntheticTransport is a hand-cranked playback clock with no audio.
type syntheticTransport struct {
	mu     sync.Mutex
	pos    time.Duration
	status clock.Status
}

func (s *syntheticTransport) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *syntheticTransport) Status() clock.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *syntheticTransport) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = clock.StatusPlaying
}

func (s *syntheticTransport) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = clock.StatusPaused
}

func (s *syntheticTransport) Seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
	return nil
}

func (s *syntheticTransport) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos += d
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func writeShow(t *testing.T, dir, base string) {
	t.Helper()
	doc := []byte(`{
		"name": "` + base + `",
		"duration_ms": 60000,
		"cues": [
			{"at_ms": 0, "device": "ghost", "command": {"on": true}},
			{"at_ms": 100, "device": "ghost", "command": {"on": false}}
		]
	}`)
	if err := os.WriteFile(filepath.Join(dir, base+".json"), doc, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestEngine(t *testing.T, transport clock.Transport, onEvent func(dispatch.Event)) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	writeShow(t, dir, "engine_test")

	// The wireless backend dials lazily, so registering a device with
	// an unreachable address succeeds; every Set then fails, which is
	// exactly what the error-path tests need.
	e, err := New(Config{
		Devices:      []device.Config{{ID: "ghost", Kind: device.KindWireless, Addr: "127.0.0.1:1"}},
		ShowsDir:     dir,
		PollInterval: time.Millisecond,
		Transport:    transport,
		Logger:       discard(),
		OnEvent:      onEvent,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e, dir
}

func TestEngineLoadAndStatus(t *testing.T) {
	transport := &syntheticTransport{}
	e, _ := newTestEngine(t, transport, nil)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	shows, err := e.Shows()
	if err != nil || len(shows) != 1 || shows[0] != "engine_test" {
		t.Fatalf("unexpected library contents: %v, %v", shows, err)
	}

	if err := e.LoadShow("engine_test"); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	waitFor(t, func() bool { return e.Status().Show == "engine_test" })
	st := e.Status()
	if st.Duration != time.Minute || st.Devices != 1 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestEngineDispatchErrorsSurfaceOnChannel(t *testing.T) {
	transport := &syntheticTransport{}

	var mu sync.Mutex
	var events []dispatch.Event
	onEvent := func(ev dispatch.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	e, _ := newTestEngine(t, transport, onEvent)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	if err := e.LoadShow("engine_test"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	e.Play()

	// Both cues dispatch and fail against the dead address; playback
	// keeps going regardless.
	transport.advance(200 * time.Millisecond)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 1
	})

	waitFor(t, func() bool { return e.Status().Remaining == 0 })
	if e.Status().State != "playing" {
		t.Errorf("dispatch failures must not stop playback, state %q", e.Status().State)
	}
}

func TestEngineSeekValidation(t *testing.T) {
	transport := &syntheticTransport{}
	e, _ := newTestEngine(t, transport, nil)
	defer e.Close()

	if err := e.Seek(-time.Second); err == nil {
		t.Error("negative seek should be rejected")
	}
}

func TestEngineLoadUnknownShow(t *testing.T) {
	transport := &syntheticTransport{}
	e, _ := newTestEngine(t, transport, nil)
	defer e.Close()

	if err := e.LoadShow("missing"); err == nil {
		t.Error("expected error loading unknown show")
	}
}

func TestEngineAutoAdvance(t *testing.T) {
	transport := &syntheticTransport{}
	dir := t.TempDir()
	writeShow(t, dir, "a_first")
	writeShow(t, dir, "b_second")

	e, err := New(Config{
		Devices:      []device.Config{{ID: "ghost", Kind: device.KindWireless, Addr: "127.0.0.1:1"}},
		ShowsDir:     dir,
		PollInterval: time.Millisecond,
		AutoAdvance:  true,
		Transport:    transport,
		Logger:       discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	if err := e.LoadShow("a_first"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	e.Play()
	waitFor(t, func() bool { return e.Status().State == "playing" })

	// Run the first pass out; the engine should move on by itself.
	transport.advance(61 * time.Second)
	waitFor(t, func() bool {
		st := e.Status()
		return st.Show == "b_second" && st.State == "playing"
	})

	if pos := e.Status().Position; pos >= time.Minute {
		t.Errorf("next show should start from the top, position %v", pos)
	}
}

// volumeTransport adds the audio service's volume control on top of
// the synthetic clock.
type volumeTransport struct {
	syntheticTransport
	vol float64
}

func (v *volumeTransport) SetVolume(f float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vol = f
}

func (v *volumeTransport) Volume() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vol
}

func TestEngineVolumeControl(t *testing.T) {
	transport := &volumeTransport{vol: 1}
	e, _ := newTestEngine(t, transport, nil)
	defer e.Close()

	if err := e.SetVolume(0.5); err != nil {
		t.Fatalf("set volume failed: %v", err)
	}
	if got := e.Volume(); got != 0.5 {
		t.Errorf("expected volume 0.5, got %v", got)
	}
	if got := e.Status().Volume; got != 0.5 {
		t.Errorf("status must carry the volume, got %v", got)
	}

	// Out-of-range values clamp rather than error.
	if err := e.SetVolume(1.5); err != nil || e.Volume() != 1 {
		t.Errorf("expected clamp to 1, got %v (%v)", e.Volume(), err)
	}
	if err := e.SetVolume(-0.5); err != nil || e.Volume() != 0 {
		t.Errorf("expected clamp to 0, got %v (%v)", e.Volume(), err)
	}
}

func TestEngineVolumeUnsupportedTransport(t *testing.T) {
	transport := &syntheticTransport{}
	e, _ := newTestEngine(t, transport, nil)
	defer e.Close()

	if err := e.SetVolume(0.5); err == nil {
		t.Error("expected error from a transport without volume control")
	}
	if got := e.Volume(); got != 1 {
		t.Errorf("expected full volume fallback, got %v", got)
	}
}
