// ABOUTME: Device registry mapping stable ids to backend handles
// ABOUTME: Read-mostly map with single-writer, multi-reader locking
package device

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the active device configuration. Lookups happen
// concurrently from dispatch workers; Add and Remove serialize behind
// the write lock.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]registration
}

type registration struct {
	cfg     Config
	backend Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]registration)}
}

// Add registers a device. Duplicate ids are a configuration error.
func (r *Registry) Add(cfg Config, backend Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[cfg.ID]; ok {
		return fmt.Errorf("device %q already registered", cfg.ID)
	}
	r.devices[cfg.ID] = registration{cfg: cfg, backend: backend}
	return nil
}

// Remove unregisters a device and closes its backend.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	reg, ok := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return reg.backend.Close()
}

// Lookup returns the configuration and backend for a device id.
func (r *Registry) Lookup(id string) (Config, Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.devices[id]
	return reg.cfg, reg.backend, ok
}

// Has reports whether a device id is registered. Satisfies
// beatfile.DeviceResolver for load-time validation.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.devices[id]
	return ok
}

// IDs returns all registered device ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Close closes every backend. The registry is unusable afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, reg := range r.devices {
		reg.backend.Close()
		delete(r.devices, id)
	}
}
