// ABOUTME: Process configuration from .env files and environment
// ABOUTME: Env helpers plus the YAML device configuration loader
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Open-Lights/OpenLightsCore/internal/device"
)

// Load reads a .env file and sets environment variables. Missing files
// are not fatal; callers fall back to system env or defaults. With no
// paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the environment variable named by key, or fallback if
// it is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named
// by key, or fallback if unset, empty, or not an integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of the environment variable
// named by key, or fallback if unset or unparsable.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable
// named by key (Go duration syntax), or fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// deviceFile is the YAML device configuration document:
//
//	devices:
//	  - id: porch
//	    kind: gpio
//	    pin: 17
//	  - id: tree
//	    kind: wireless
//	    addr: 192.168.1.40:9100
type deviceFile struct {
	Devices []device.Config `yaml:"devices"`
}

// LoadDevices reads and validates the device configuration file.
func LoadDevices(path string) ([]device.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device config: %w", err)
	}
	return ParseDevices(data)
}

// ParseDevices validates a YAML device configuration document.
func ParseDevices(data []byte) ([]device.Config, error) {
	var file deviceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse device config: %w", err)
	}
	if len(file.Devices) == 0 {
		return nil, fmt.Errorf("device config declares no devices")
	}

	seen := make(map[string]struct{}, len(file.Devices))
	for i, cfg := range file.Devices {
		if cfg.ID == "" {
			return nil, fmt.Errorf("device %d has no id", i)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate device id %q", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}

		switch cfg.Kind {
		case device.KindGPIO:
			if cfg.Pin < 0 {
				return nil, fmt.Errorf("device %q has invalid pin %d", cfg.ID, cfg.Pin)
			}
		case device.KindWireless:
			if cfg.Addr == "" {
				return nil, fmt.Errorf("device %q has no addr", cfg.ID)
			}
		default:
			return nil, fmt.Errorf("device %q has unknown kind %q", cfg.ID, cfg.Kind)
		}
	}

	return file.Devices, nil
}
