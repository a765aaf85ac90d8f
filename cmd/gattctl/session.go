package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/devicefactory"
	"github.com/srg/gattplug/internal/gatt"
	"github.com/srg/gattplug/pkg/config"
)

// newRadio is a variable so command tests can plug in a mock radio.
var newRadio = devicefactory.NewRadio

// cliSession is one command's plug plus the resolved configuration.
type cliSession struct {
	cfg    *config.Config
	logger *logrus.Logger
	plug   *gatt.Plug
}

// loadConfig reads --config when given and applies flag overrides on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("discovery-timeout") {
		cfg.DiscoveryTimeout, _ = flags.GetDuration("discovery-timeout")
	}
	if flags.Changed("rw-timeout") {
		cfg.RWTimeout, _ = flags.GetDuration("rw-timeout")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSession builds the logger, the radio and the plug for a command.
func openSession(cmd *cobra.Command) (*cliSession, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	fileLevel := ""
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		fileLevel = cfg.LogLevel
	}
	logger, err := configureLogger(cmd, fileLevel)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	radio, err := newRadio(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create radio: %w", err)
	}

	plug, err := gatt.New(radio, gatt.Options{
		DiscoveryTimeout:    cfg.DiscoveryTimeout,
		RWTimeout:           cfg.RWTimeout,
		ScanAllowDuplicates: cfg.ScanAllowDuplicates,
		QueueSize:           cfg.DispatchQueueSize,
	}, logger)
	if err != nil {
		_ = radio.Close()
		return nil, err
	}
	return &cliSession{cfg: cfg, logger: logger, plug: plug}, nil
}

func (s *cliSession) Close() {
	if err := s.plug.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Warn("Shutdown finished with errors")
	}
}

// locate scans for the peripheral with address among devices advertising serviceID.
// The scan is bounded by the discovery timeout.
func (s *cliSession) locate(ctx context.Context, address, serviceID string) (device.Peripheral, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DiscoveryTimeout)
	defer cancel()

	found := make(chan device.Peripheral, 1)
	var ids []string
	if serviceID != "" {
		ids = []string{serviceID}
	}
	s.plug.FindServices(ids, func(_ []string, p device.Peripheral) {
		if !strings.EqualFold(p.ID(), address) {
			return
		}
		select {
		case found <- p:
		default:
		}
	}, "")
	defer func() {
		if err := s.plug.StopFindServices(); err != nil {
			s.logger.WithError(err).Warn("Failed to stop scanning")
		}
	}()

	select {
	case p := <-found:
		return p, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
		}
		return nil, ctx.Err()
	}
}

// discover locates the device and resolves serviceID and charIDs on it.
func (s *cliSession) discover(ctx context.Context, address, serviceID string, charIDs ...string) (*gatt.Discovery, error) {
	per, err := s.locate(ctx, address, serviceID)
	if err != nil {
		return nil, err
	}
	return s.plug.FindCharacteristics(ctx, serviceID, per, charIDs...)
}

// parseIDs splits a comma separated id list and validates each entry.
func parseIDs(arg string) ([]string, error) {
	var raw []string
	for _, part := range strings.Split(arg, ",") {
		if part = strings.TrimSpace(part); part != "" {
			raw = append(raw, part)
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no ids given")
	}
	if _, err := device.ValidateIDs(raw...); err != nil {
		return nil, err
	}
	return raw, nil
}

// displayName renders an id with its well-known name when there is one.
func displayName(id string) string {
	if name := device.KnownName(id); name != "" {
		return fmt.Sprintf("%s (%s)", device.Shorten(id), name)
	}
	return device.Shorten(id)
}
