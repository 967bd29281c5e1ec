// ABOUTME: Tests for controller discovery helpers
// ABOUTME: Covers name cleaning and manager lifecycle
package discovery

import (
	"io"
	"log/slog"
	"testing"
)

func TestCleanName(t *testing.T) {
	cases := map[string]string{
		"garage._openlights._tcp.local.": "garage",
		"tree lights._openlights._tcp.":  "tree lights",
		"bare":                           "bare",
	}
	for in, want := range cases {
		if got := cleanName(in); got != want {
			t.Errorf("cleanName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestControllerAddr(t *testing.T) {
	c := Controller{Name: "garage", Host: "192.168.1.9", Port: 9100}
	if got := c.Addr(); got != "192.168.1.9:9100" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestManagerStop(t *testing.T) {
	m := NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Stop()

	select {
	case <-m.ctx.Done():
	default:
		t.Error("Stop should cancel the manager context")
	}
}
