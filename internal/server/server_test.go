// ABOUTME: HTTP surface tests with a fake controller
// ABOUTME: Covers routing, status codes, and JSON bodies
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Open-Lights/OpenLightsCore/internal/app"
)

// fakeController records calls without a real engine behind it.
type fakeController struct {
	status  app.Status
	shows   []string
	loadErr error

	loaded  []string
	played  int
	paused  int
	stops   int
	seeks   []time.Duration
	loops   []bool
	volumes []float64
}

func (f *fakeController) Status() app.Status       { return f.status }
func (f *fakeController) Shows() ([]string, error) { return f.shows, nil }
func (f *fakeController) Play()                    { f.played++ }
func (f *fakeController) Pause()                   { f.paused++ }
func (f *fakeController) Stop()                    { f.stops++ }
func (f *fakeController) SetLoop(loop bool)        { f.loops = append(f.loops, loop) }

func (f *fakeController) LoadShow(name string) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = append(f.loaded, name)
	return nil
}

func (f *fakeController) SetVolume(v float64) error {
	f.volumes = append(f.volumes, v)
	return nil
}

func (f *fakeController) Seek(pos time.Duration) error {
	if pos < 0 {
		return errors.New("negative position")
	}
	f.seeks = append(f.seeks, pos)
	return nil
}

func newTestServer(ctrl *fakeController) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(ctrl, log, nil).Router()
}

func TestGetStatus(t *testing.T) {
	ctrl := &fakeController{status: app.Status{
		Show:     "halloween",
		State:    "playing",
		Position: 1500 * time.Millisecond,
		Duration: time.Minute,
		Devices:  3,
	}}
	r := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["show"] != "halloween" || body["state"] != "playing" {
		t.Errorf("unexpected body: %v", body)
	}
	if body["position_ms"] != float64(1500) {
		t.Errorf("position must be in milliseconds, got %v", body["position_ms"])
	}
}

func TestListShows(t *testing.T) {
	ctrl := &fakeController{shows: []string{"a", "b"}}
	r := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodGet, "/shows", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body["shows"]) != 2 {
		t.Errorf("expected 2 shows, got %v", body)
	}
}

func TestLoadShow(t *testing.T) {
	ctrl := &fakeController{}
	r := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/shows/halloween/load", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ctrl.loaded) != 1 || ctrl.loaded[0] != "halloween" {
		t.Errorf("load not forwarded: %v", ctrl.loaded)
	}
}

func TestLoadShow_not_found(t *testing.T) {
	ctrl := &fakeController{loadErr: errors.New("no such show")}
	r := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/shows/missing/load", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestPlaybackControls(t *testing.T) {
	ctrl := &fakeController{}
	r := newTestServer(ctrl)

	for _, path := range []string{"/playback/play", "/playback/pause", "/playback/stop"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
	if ctrl.played != 1 || ctrl.paused != 1 || ctrl.stops != 1 {
		t.Errorf("controls not forwarded: %+v", ctrl)
	}
}

func TestSeek(t *testing.T) {
	ctrl := &fakeController{}
	r := newTestServer(ctrl)

	b, _ := json.Marshal(map[string]int64{"position_ms": 12000})
	req := httptest.NewRequest(http.MethodPost, "/playback/seek", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ctrl.seeks) != 1 || ctrl.seeks[0] != 12*time.Second {
		t.Errorf("seek not forwarded: %v", ctrl.seeks)
	}
}

func TestSeek_bad_body(t *testing.T) {
	ctrl := &fakeController{}
	r := newTestServer(ctrl)

	req := httptest.NewRequest(http.MethodPost, "/playback/seek", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSeek_negative(t *testing.T) {
	ctrl := &fakeController{}
	r := newTestServer(ctrl)

	b, _ := json.Marshal(map[string]int64{"position_ms": -5})
	req := httptest.NewRequest(http.MethodPost, "/playback/seek", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSetLoop(t *testing.T) {
	ctrl := &fakeController{}
	r := newTestServer(ctrl)

	b, _ := json.Marshal(map[string]bool{"loop": true})
	req := httptest.NewRequest(http.MethodPost, "/playback/loop", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ctrl.loops) != 1 || !ctrl.loops[0] {
		t.Errorf("loop not forwarded: %v", ctrl.loops)
	}
}

func TestSetVolume(t *testing.T) {
	ctrl := &fakeController{}
	r := newTestServer(ctrl)

	b, _ := json.Marshal(map[string]float64{"volume": 0.85})
	req := httptest.NewRequest(http.MethodPost, "/playback/volume", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ctrl.volumes) != 1 || ctrl.volumes[0] != 0.85 {
		t.Errorf("volume not forwarded: %v", ctrl.volumes)
	}
}

func TestSetVolume_out_of_range(t *testing.T) {
	ctrl := &fakeController{}
	r := newTestServer(ctrl)

	for _, vol := range []float64{-0.1, 1.5} {
		b, _ := json.Marshal(map[string]float64{"volume": vol})
		req := httptest.NewRequest(http.MethodPost, "/playback/volume", bytes.NewReader(b))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("volume %v: expected 400, got %d", vol, rec.Code)
		}
	}
	if len(ctrl.volumes) != 0 {
		t.Errorf("out-of-range volume forwarded: %v", ctrl.volumes)
	}
}
