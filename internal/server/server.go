// ABOUTME: HTTP status and control surface built on go-chi
// ABOUTME: Exposes playback controls, the show library, and Prometheus metrics
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Open-Lights/OpenLightsCore/internal/app"
	"github.com/Open-Lights/OpenLightsCore/internal/metrics"
)

// Controller is the slice of the engine the HTTP surface drives.
type Controller interface {
	Status() app.Status
	Shows() ([]string, error)
	LoadShow(name string) error
	Play()
	Pause()
	Stop()
	Seek(pos time.Duration) error
	SetLoop(loop bool)
	SetVolume(v float64) error
}

// Handler exposes engine HTTP endpoints using go-chi.
type Handler struct {
	ctrl    Controller
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that drives the given Controller.
// Metrics may be nil to disable the /metrics endpoint (e.g. in tests).
func NewHandler(ctrl Controller, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{ctrl: ctrl, log: log, metrics: m}
}

// Router builds the full route tree including middleware.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(requestLogger(h.log))
	if h.metrics != nil {
		r.Get("/metrics", h.metrics.Handler().ServeHTTP)
	}
	r.Get("/status", h.GetStatus)
	r.Get("/shows", h.ListShows)
	r.Post("/shows/{name}/load", h.LoadShow)
	r.Route("/playback", func(r chi.Router) {
		r.Post("/play", h.Play)
		r.Post("/pause", h.Pause)
		r.Post("/stop", h.Stop)
		r.Post("/seek", h.Seek)
		r.Post("/loop", h.SetLoop)
		r.Post("/volume", h.SetVolume)
	})
	return r
}

// GetStatus handles GET /status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

// ListShows handles GET /shows.
func (h *Handler) ListShows(w http.ResponseWriter, r *http.Request) {
	shows, err := h.ctrl.Shows()
	if err != nil {
		h.log.Error("show scan failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"shows": shows})
}

// LoadShow handles POST /shows/{name}/load.
func (h *Handler) LoadShow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.ctrl.LoadShow(name); err != nil {
		h.log.Info("show load rejected",
			slog.String("show", name),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Play handles POST /playback/play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Play()
	w.WriteHeader(http.StatusOK)
}

// Pause handles POST /playback/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Pause()
	w.WriteHeader(http.StatusOK)
}

// Stop handles POST /playback/stop.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Stop()
	w.WriteHeader(http.StatusOK)
}

// Seek handles POST /playback/seek. Body: { "position_ms": 12000 }.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PositionMS int64 `json:"position_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid seek body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.ctrl.Seek(time.Duration(body.PositionMS) * time.Millisecond); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetLoop handles POST /playback/loop. Body: { "loop": true }.
func (h *Handler) SetLoop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Loop bool `json:"loop"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid loop body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.ctrl.SetLoop(body.Loop)
	w.WriteHeader(http.StatusOK)
}

// SetVolume handles POST /playback/volume. Body: { "volume": 0.8 }.
func (h *Handler) SetVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Volume float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid volume body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if body.Volume < 0 || body.Volume > 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.ctrl.SetVolume(body.Volume); err != nil {
		h.log.Error("volume change failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
