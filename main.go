// ABOUTME: Entry point for the OpenLights lighting cue engine
// ABOUTME: Parses CLI flags and wires the engine, HTTP surface, and TUI
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Open-Lights/OpenLightsCore/internal/app"
	"github.com/Open-Lights/OpenLightsCore/internal/config"
	"github.com/Open-Lights/OpenLightsCore/internal/dispatch"
	"github.com/Open-Lights/OpenLightsCore/internal/logger"
	"github.com/Open-Lights/OpenLightsCore/internal/metrics"
	"github.com/Open-Lights/OpenLightsCore/internal/server"
	"github.com/Open-Lights/OpenLightsCore/internal/ui"
	"github.com/Open-Lights/OpenLightsCore/internal/version"
)

const shutdownTimeout = 10 * time.Second

var (
	devicesPath = flag.String("devices", "devices.yaml", "Device configuration file")
	showsDir    = flag.String("shows", "shows", "Directory holding beat files and audio")
	showName    = flag.String("show", "", "Show to load on startup")
	httpAddr    = flag.String("http", "", "HTTP listen address, e.g. :8080 (disabled when empty)")
	loop        = flag.Bool("loop", false, "Replay the show continuously")
	advance     = flag.Bool("advance", false, "Play the next library show when one finishes")
	shuffle     = flag.Bool("shuffle", false, "Pick the next show at random (implies -advance)")
	discover    = flag.Bool("discover", false, "Browse mDNS for wireless controllers")
	autoplay    = flag.Bool("autoplay", false, "Start playback once the startup show is loaded")
	logFile     = flag.String("log-file", "openlights.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()
	_ = config.Load()

	useTUI := !*noTUI

	// TUI mode logs only to file so the display stays clean.
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	var out io.Writer = f
	if !useTUI {
		out = io.MultiWriter(os.Stdout, f)
	}

	slogger := logger.New(out,
		config.GetEnv("LOG_LEVEL", "info"),
		config.GetEnv("LOG_FORMAT", "text"),
	)
	slogger.Info("starting",
		"product", version.Product,
		"version", version.Version,
	)

	devices, err := config.LoadDevices(*devicesPath)
	if err != nil {
		log.Fatalf("device config: %v", err)
	}

	met := metrics.New()

	// TUI setup
	var tuiProg *tea.Program
	var control *ui.Control

	if useTUI {
		control = ui.NewControl()
		tuiProg, err = ui.Run(control)
		if err != nil {
			log.Fatalf("failed to start TUI: %v", err)
		}
		go tuiProg.Run()
	}

	updateTUI := func(msg tea.Msg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	engine, err := app.New(app.Config{
		Devices:      devices,
		ShowsDir:     *showsDir,
		PollInterval: config.GetEnvDuration("POLL_INTERVAL", 0),
		Loop:         *loop,
		AutoAdvance:  *advance || *shuffle,
		Shuffle:      *shuffle,
		Discovery:    *discover,
		Logger:       slogger,
		Metrics:      met,
		OnEvent: func(ev dispatch.Event) {
			updateTUI(ui.ErrorMsg{Device: ev.Device, Err: ev.Err.Error()})
		},
	})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Close()

	if *showName != "" {
		if err := engine.LoadShow(*showName); err != nil {
			log.Fatalf("load show %q: %v", *showName, err)
		}
		if *autoplay {
			engine.Play()
		}
	}

	// Optional HTTP control surface.
	var srv *http.Server
	if *httpAddr != "" {
		h := server.NewHandler(engine, slogger, met)
		srv = &http.Server{Addr: *httpAddr, Handler: h.Router()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slogger.Error("http server error", "error", err)
			}
		}()
		slogger.Info("http surface listening", "addr", *httpAddr)
	}

	// Push status snapshots into the TUI.
	if useTUI {
		go func() {
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					st := engine.Status()
					updateTUI(ui.StatusMsg{
						Show:      st.Show,
						State:     st.State,
						Position:  st.Position,
						Duration:  st.Duration,
						Loop:      st.Loop,
						Volume:    st.Volume,
						Emitted:   st.Emitted,
						Remaining: st.Remaining,
						Devices:   st.Devices,
					})
				}
			}
		}()
		go func() {
			looping := *loop
			for {
				select {
				case <-ctx.Done():
					return
				case cmd := <-control.Commands:
					switch cmd {
					case ui.CommandPlayPause:
						if engine.Status().State == "playing" {
							engine.Pause()
						} else {
							engine.Play()
						}
					case ui.CommandStop:
						engine.Stop()
					case ui.CommandLoop:
						looping = !looping
						engine.SetLoop(looping)
					case ui.CommandVolumeUp:
						if err := engine.SetVolume(engine.Volume() + 0.05); err != nil {
							slogger.Warn("volume change failed", "error", err)
						}
					case ui.CommandVolumeDown:
						if err := engine.SetVolume(engine.Volume() - 0.05); err != nil {
							slogger.Warn("volume change failed", "error", err)
						}
					}
				}
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if useTUI {
		select {
		case <-sigCh:
		case <-control.Quit:
		}
		tuiProg.Quit()
	} else {
		<-sigCh
	}

	slogger.Info("shutdown signal received")
	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slogger.Error("http shutdown error", "error", err)
		}
	}

	slogger.Info("stopped")
}
