// ABOUTME: Tests for actuator dispatch
// ABOUTME: Covers per-device ordering, retries, and failure isolation
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Open-Lights/OpenLightsCore/internal/device"
)

// recordingBackend captures payloads and can be scripted to fail.
type recordingBackend struct {
	mu       sync.Mutex
	payloads []json.RawMessage
	calls    int
	failFor  int // fail the first N calls
	failErr  error
}

func (b *recordingBackend) Set(_ context.Context, payload json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls <= b.failFor {
		return b.failErr
	}
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBackend) Close() error { return nil }

func (b *recordingBackend) snapshot() ([]json.RawMessage, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]json.RawMessage(nil), b.payloads...), b.calls
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

func TestDispatchPreservesPerDeviceOrder(t *testing.T) {
	reg := device.NewRegistry()
	b := &recordingBackend{}
	if err := reg.Add(device.Config{ID: "porch", Kind: device.KindGPIO}, b); err != nil {
		t.Fatal(err)
	}

	d := New(reg, discard(), nil, Options{})
	defer d.Close()

	for i := 0; i < 10; i++ {
		payload := json.RawMessage([]byte{'[', byte('0' + i), ']'})
		d.Dispatch("porch", time.Duration(i)*time.Second, payload)
	}

	waitFor(t, func() bool { got, _ := b.snapshot(); return len(got) == 10 })

	got, _ := b.snapshot()
	for i, p := range got {
		want := string([]byte{'[', byte('0' + i), ']'})
		if string(p) != want {
			t.Fatalf("payload %d out of order: got %s, want %s", i, p, want)
		}
	}
}

func TestFailingDeviceDoesNotBlockOthers(t *testing.T) {
	reg := device.NewRegistry()
	bad := &recordingBackend{failFor: 1 << 30, failErr: device.ErrUnreachable}
	good := &recordingBackend{}
	if err := reg.Add(device.Config{ID: "bad", Kind: device.KindWireless, Addr: "x:1"}, bad); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(device.Config{ID: "good", Kind: device.KindGPIO}, good); err != nil {
		t.Fatal(err)
	}

	d := New(reg, discard(), nil, Options{Backoff: time.Millisecond, Timeout: 10 * time.Millisecond})
	defer d.Close()

	d.Dispatch("bad", 0, json.RawMessage(`{"on":true}`))
	d.Dispatch("good", 0, json.RawMessage(`{"on":true}`))

	waitFor(t, func() bool { got, _ := good.snapshot(); return len(got) == 1 })
}

func TestWirelessRetriesLocalDoesNot(t *testing.T) {
	reg := device.NewRegistry()
	wireless := &recordingBackend{failFor: 2, failErr: device.ErrTimeout}
	local := &recordingBackend{failFor: 1, failErr: errors.New("pin write failed")}
	if err := reg.Add(device.Config{ID: "w", Kind: device.KindWireless, Addr: "x:1"}, wireless); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(device.Config{ID: "l", Kind: device.KindGPIO}, local); err != nil {
		t.Fatal(err)
	}

	d := New(reg, discard(), nil, Options{WirelessAttempts: 3, Backoff: time.Millisecond})
	defer d.Close()

	// Two transient failures then success: the wireless retry policy
	// absorbs them.
	d.Dispatch("w", 0, json.RawMessage(`{"on":true}`))
	waitFor(t, func() bool { got, _ := wireless.snapshot(); return len(got) == 1 })
	if _, calls := wireless.snapshot(); calls != 3 {
		t.Errorf("wireless backend should see 3 attempts, saw %d", calls)
	}

	// The local device fails once and is not retried.
	d.Dispatch("l", 0, json.RawMessage(`{"on":true}`))
	waitFor(t, func() bool { _, calls := local.snapshot(); return calls == 1 })

	var ev Event
	select {
	case ev = <-d.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("no dispatch event for failed local write")
	}
	if ev.Device != "l" || ev.Attempts != 1 {
		t.Errorf("unexpected event: %+v", ev)
	}

	// Give the worker a moment; the call count must stay at 1.
	time.Sleep(20 * time.Millisecond)
	if _, calls := local.snapshot(); calls != 1 {
		t.Errorf("local backend retried: %d calls", calls)
	}
}

func TestUnknownDeviceReported(t *testing.T) {
	reg := device.NewRegistry()
	d := New(reg, discard(), nil, Options{})
	defer d.Close()

	d.Dispatch("ghost", 3*time.Second, json.RawMessage(`{"on":true}`))

	select {
	case ev := <-d.Events():
		if !errors.Is(ev.Err, device.ErrUnknownDevice) {
			t.Errorf("expected ErrUnknownDevice, got %v", ev.Err)
		}
		if ev.Device != "ghost" || ev.At != 3*time.Second {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event for unknown device")
	}
}
