// ABOUTME: Beat File JSON parser and encoder
// ABOUTME: Validates, sorts, and normalizes cue data at load time
package beatfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Parse failure categories. A failed parse rejects the whole show;
// no partial show is ever returned.
var (
	ErrMalformed        = errors.New("malformed beat file")
	ErrUnresolvedDevice = errors.New("unresolved device reference")
	ErrOutOfRange       = errors.New("cue timestamp out of range")
)

// showWire is the on-disk JSON layout. Durations are integer
// milliseconds; the layout is a compatibility contract with the
// authoring tool and must stay stable.
type showWire struct {
	Name       string    `json:"name"`
	Audio      string    `json:"audio,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Cues       []cueWire `json:"cues"`
}

type cueWire struct {
	AtMS       int64           `json:"at_ms"`
	Device     string          `json:"device"`
	Command    json.RawMessage `json:"command,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
}

// Parse decodes a serialized beat file and validates it against the
// active device configuration. Cues come back sorted ascending by
// timestamp; cues sharing a timestamp keep their file order.
//
// Documents written by pre-1.0 editors (a bare object keyed by GPIO
// channel lists) are accepted and converted; their channel keys map to
// device ids of the form "gpio-<pin>".
func Parse(data []byte, devices DeviceResolver) (*Show, error) {
	var wire showWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if wire.Name == "" && wire.Cues == nil {
		return parseLegacy(data, devices)
	}

	if wire.DurationMS < 0 {
		return nil, fmt.Errorf("%w: negative show duration", ErrMalformed)
	}

	show := &Show{
		Name:     wire.Name,
		Audio:    wire.Audio,
		Duration: time.Duration(wire.DurationMS) * time.Millisecond,
		Cues:     make([]Cue, 0, len(wire.Cues)),
	}

	for i, cw := range wire.Cues {
		if cw.Device == "" {
			return nil, fmt.Errorf("%w: cue %d has no device", ErrMalformed, i)
		}
		if cw.DurationMS < 0 {
			return nil, fmt.Errorf("%w: cue %d has negative duration", ErrMalformed, i)
		}
		at := time.Duration(cw.AtMS) * time.Millisecond
		if cw.AtMS < 0 || at > show.Duration {
			return nil, fmt.Errorf("%w: cue %d at %dms (show is %dms)",
				ErrOutOfRange, i, cw.AtMS, wire.DurationMS)
		}
		if !devices.Has(cw.Device) {
			return nil, fmt.Errorf("%w: cue %d references %q", ErrUnresolvedDevice, i, cw.Device)
		}

		// Command is opaque but must stay byte-stable through an
		// encode/parse cycle, so strip any formatting whitespace.
		cmd := cw.Command
		if len(cmd) > 0 {
			var buf bytes.Buffer
			if err := json.Compact(&buf, cmd); err != nil {
				return nil, fmt.Errorf("%w: cue %d command: %v", ErrMalformed, i, err)
			}
			cmd = json.RawMessage(buf.Bytes())
		}

		show.Cues = append(show.Cues, Cue{
			At:       at,
			Device:   cw.Device,
			Command:  cmd,
			Duration: time.Duration(cw.DurationMS) * time.Millisecond,
		})
	}

	sort.SliceStable(show.Cues, func(i, j int) bool {
		return show.Cues[i].At < show.Cues[j].At
	})

	return show, nil
}

// Encode serializes a show back to the on-disk layout. Encoding a
// parsed show yields a value-equal show when parsed again.
func Encode(show *Show) ([]byte, error) {
	wire := showWire{
		Name:       show.Name,
		Audio:      show.Audio,
		DurationMS: show.Duration.Milliseconds(),
		Cues:       make([]cueWire, 0, len(show.Cues)),
	}
	for _, c := range show.Cues {
		wire.Cues = append(wire.Cues, cueWire{
			AtMS:       c.At.Milliseconds(),
			Device:     c.Device,
			Command:    c.Command,
			DurationMS: c.Duration.Milliseconds(),
		})
	}
	return json.MarshalIndent(wire, "", "  ")
}

// parseLegacy converts the pre-1.0 layout:
//
//	{"4,17": {"1000": 1, "2500": 0}, ...}
//
// Keys are comma-separated GPIO pins, inner keys are millisecond
// timestamps, values are 1 (on) and 0 (off). The show duration is the
// latest timestamp present.
func parseLegacy(data []byte, devices DeviceResolver) (*Show, error) {
	var raw map[string]map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no cue data", ErrMalformed)
	}

	groups := make([]string, 0, len(raw))
	for k := range raw {
		groups = append(groups, k)
	}
	sort.Strings(groups)

	var (
		show   Show
		onCmd  = json.RawMessage(`{"on":true}`)
		offCmd = json.RawMessage(`{"on":false}`)
	)

	for _, group := range groups {
		pins, err := parsePins(group)
		if err != nil {
			return nil, err
		}

		stamps := make([]int64, 0, len(raw[group]))
		for ts := range raw[group] {
			ms, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, ts)
			}
			if ms < 0 {
				return nil, fmt.Errorf("%w: negative timestamp %q", ErrOutOfRange, ts)
			}
			stamps = append(stamps, ms)
		}
		sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

		for _, ms := range stamps {
			cmd := offCmd
			if raw[group][strconv.FormatInt(ms, 10)] == 1 {
				cmd = onCmd
			}
			at := time.Duration(ms) * time.Millisecond
			if at > show.Duration {
				show.Duration = at
			}
			for _, pin := range pins {
				id := fmt.Sprintf("gpio-%d", pin)
				if !devices.Has(id) {
					return nil, fmt.Errorf("%w: channel group %q needs %q", ErrUnresolvedDevice, group, id)
				}
				show.Cues = append(show.Cues, Cue{At: at, Device: id, Command: cmd})
			}
		}
	}

	sort.SliceStable(show.Cues, func(i, j int) bool {
		return show.Cues[i].At < show.Cues[j].At
	})

	return &show, nil
}

// parsePins splits a legacy channel group key like "4,17" into pins.
func parsePins(group string) ([]int, error) {
	var pins []int
	for _, part := range strings.Split(group, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pin, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: bad channel group %q", ErrMalformed, group)
		}
		pins = append(pins, pin)
	}
	if len(pins) == 0 {
		return nil, fmt.Errorf("%w: empty channel group %q", ErrMalformed, group)
	}
	return pins, nil
}
