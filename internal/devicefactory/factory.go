// Package devicefactory selects the radio backend named by the configuration.
package devicefactory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	goble "github.com/srg/gattplug/internal/device/go-ble"
	"github.com/srg/gattplug/internal/device/noop"
	"github.com/srg/gattplug/internal/device/tinygo"
	"github.com/srg/gattplug/pkg/config"
)

// Constructors are variables so tests can substitute the hardware backends.
var (
	NewGoBLE = func(logger *logrus.Logger) (device.Radio, error) {
		return goble.NewRadio(logger)
	}
	NewTinyGo = func(logger *logrus.Logger) (device.Radio, error) {
		return tinygo.NewRadio(logger)
	}
)

// NewRadio creates the radio for cfg.Backend. An empty backend selects go-ble.
func NewRadio(cfg *config.Config, logger *logrus.Logger) (device.Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}

	backend := cfg.Backend
	if backend == "" {
		backend = config.BackendGoBLE
	}
	logger.WithField("backend", backend).Debug("Creating radio")

	switch backend {
	case config.BackendGoBLE:
		return NewGoBLE(logger)
	case config.BackendTinyGo:
		return NewTinyGo(logger)
	case config.BackendNoop:
		return noop.NewRadio(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
