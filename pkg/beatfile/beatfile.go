// ABOUTME: Beat File data model shared with the authoring tool
// ABOUTME: Defines the immutable Show and Cue structures
package beatfile

import (
	"encoding/json"
	"time"
)

// Show is a fully parsed, immutable cue timeline for one beat file.
// It is safe for concurrent reads once returned by Parse.
type Show struct {
	Name     string
	Audio    string // audio track reference, relative to the show library root
	Duration time.Duration
	Cues     []Cue // sorted ascending by At, stable for equal timestamps
}

// Cue is a single timestamped hardware command.
// Command is opaque to the engine; backends interpret it. A Cue with a
// non-zero Duration implies a revert dispatch at At+Duration carrying a
// nil payload.
type Cue struct {
	At       time.Duration
	Device   string
	Command  json.RawMessage
	Duration time.Duration
}

// DeviceResolver answers whether a device id exists in the active
// device configuration. Parse validates every cue reference against it.
type DeviceResolver interface {
	Has(id string) bool
}

// DeviceSet is a minimal DeviceResolver backed by a map.
type DeviceSet map[string]struct{}

// Has reports whether id is in the set.
func (s DeviceSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// NewDeviceSet builds a DeviceSet from ids.
func NewDeviceSet(ids ...string) DeviceSet {
	s := make(DeviceSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
