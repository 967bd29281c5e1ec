// ABOUTME: mDNS discovery of wireless light controllers
// ABOUTME: Browses for _openlights._tcp and feeds the device registry
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// serviceType is the mDNS service wireless controllers advertise.
const serviceType = "_openlights._tcp"

// Controller describes a discovered wireless light controller.
type Controller struct {
	Name string
	Host string
	Port int
}

// Addr returns the dialable host:port for the controller.
func (c Controller) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Manager browses the local network for controllers. Newly seen
// controllers arrive on the Controllers channel; duplicates are
// filtered so the registry sees each id once.
type Manager struct {
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	controllers chan Controller
	seen        map[string]struct{}
}

// NewManager creates a discovery manager.
func NewManager(log *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		controllers: make(chan Controller, 10),
		seen:        make(map[string]struct{}),
	}
}

// Browse starts the background browse loop.
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop repeatedly queries for controllers.
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}

				c := Controller{
					Name: cleanName(entry.Name),
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				if _, ok := m.seen[c.Name]; ok {
					continue
				}
				m.seen[c.Name] = struct{}{}

				m.log.Info("discovered controller",
					"name", c.Name,
					"addr", c.Addr(),
				)

				select {
				case m.controllers <- c:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: serviceType,
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)

		select {
		case <-time.After(10 * time.Second):
		case <-m.ctx.Done():
			return
		}
	}
}

// Controllers returns the channel of newly discovered controllers.
func (m *Manager) Controllers() <-chan Controller {
	return m.controllers
}

// Stop stops the browse loop.
func (m *Manager) Stop() {
	m.cancel()
}

// cleanName strips the mDNS service suffix from an instance name.
func cleanName(name string) string {
	if i := strings.Index(name, "."+serviceType); i > 0 {
		name = name[:i]
	}
	return strings.TrimSuffix(name, ".")
}
