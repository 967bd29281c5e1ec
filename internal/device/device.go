// ABOUTME: Output device capability contract and backend errors
// ABOUTME: Concrete backends implement Backend for one class of hardware
package device

import (
	"context"
	"encoding/json"
	"errors"
)

// Kind selects the backend implementation for a configured device.
type Kind string

const (
	KindGPIO     Kind = "gpio"
	KindWireless Kind = "wireless"
)

// Config declares one device. Device topology lives outside the beat
// file; shows reference devices by id only.
type Config struct {
	ID   string `yaml:"id"`
	Kind Kind   `yaml:"kind"`
	Pin  int    `yaml:"pin,omitempty"`  // gpio only
	Addr string `yaml:"addr,omitempty"` // wireless only, host:port
}

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrUnreachable   = errors.New("backend unreachable")
	ErrTimeout       = errors.New("backend timeout")
	ErrRejected      = errors.New("command rejected")
)

// Backend is the single capability contract for hardware outputs.
// A nil payload reverts the device to its off state. Set must respect
// the context deadline; exceeding it counts as ErrTimeout.
type Backend interface {
	Set(ctx context.Context, payload json.RawMessage) error
	Close() error
}

// LightCommand is the payload understood by the built-in backends.
// Exactly one of On or Level is expected.
type LightCommand struct {
	On    *bool `json:"on,omitempty"`
	Level *int  `json:"level,omitempty"` // 0-255, PWM-capable pins only
}
