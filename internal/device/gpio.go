// ABOUTME: Local GPIO/PWM backend using periph.io
// ABOUTME: Drives digital pins directly, no retry semantics
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// pwmFrequency is fast enough that LED dimming shows no visible flicker.
const pwmFrequency = 200 * physic.Hertz

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

// GPIO drives a single local pin. A write failure indicates a
// configuration or hardware fault; callers report it once and do not
// retry.
type GPIO struct {
	pin gpio.PinIO
}

// NewGPIO resolves a pin number through the host's pin registry.
func NewGPIO(pin int) (*GPIO, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}

	p := gpioreg.ByName(strconv.Itoa(pin))
	if p == nil {
		return nil, fmt.Errorf("%w: gpio pin %d not present", ErrUnreachable, pin)
	}
	return &GPIO{pin: p}, nil
}

// Set applies a light command to the pin. A nil payload turns the pin
// off (the revert path for cues with a duration).
func (g *GPIO) Set(_ context.Context, payload json.RawMessage) error {
	if payload == nil {
		return g.out(false)
	}

	var cmd LightCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}

	switch {
	case cmd.Level != nil:
		level := *cmd.Level
		if level < 0 || level > 255 {
			return fmt.Errorf("%w: level %d outside 0-255", ErrRejected, level)
		}
		duty := gpio.Duty(int64(level) * int64(gpio.DutyMax) / 255)
		if err := g.pin.PWM(duty, pwmFrequency); err != nil {
			return fmt.Errorf("pwm write on %s: %w", g.pin, err)
		}
		return nil

	case cmd.On != nil:
		return g.out(*cmd.On)

	default:
		return fmt.Errorf("%w: command has neither on nor level", ErrRejected)
	}
}

func (g *GPIO) out(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := g.pin.Out(level); err != nil {
		return fmt.Errorf("pin write on %s: %w", g.pin, err)
	}
	return nil
}

// Close parks the pin in its off state.
func (g *GPIO) Close() error {
	return g.pin.Halt()
}
