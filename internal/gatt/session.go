package gatt

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/guard"
)

// Discovery is the result of a successful FindCharacteristics.
type Discovery struct {
	Service device.Service
	Device  device.Peripheral
	// Characteristics follow the order of the requested ids, or discovery
	// order when none were requested.
	Characteristics []device.Characteristic
}

// FindCharacteristics connects to per if needed, resolves serviceID and
// discovers charIDs (all characteristics when none are given).
//
// Any running scan is stopped first. The whole pipeline is bounded by the
// discovery timeout; on timeout every connection is reset before the error is
// returned. On any other failure per is disconnected best-effort. The result
// is all-or-nothing.
func (p *Plug) FindCharacteristics(ctx context.Context, serviceID string, per device.Peripheral, charIDs ...string) (*Discovery, error) {
	if p.closing.Load() {
		return nil, device.ErrClosed
	}

	log := p.logger.WithFields(logrus.Fields{
		"peripheral": per.ID(),
		"service":    serviceID,
	})

	if err := p.StopFindServices(); err != nil {
		log.WithError(err).Warn("Failed to stop scanning before connect")
	}

	d, err := guard.Do(ctx, p.opts.DiscoveryTimeout, "find characteristics", func(ctx context.Context) (*Discovery, error) {
		d, err := p.discover(ctx, serviceID, per, charIDs, log)
		if err != nil {
			p.disconnectQuietly(per, log)
		}
		return d, err
	})
	if err != nil {
		if errors.Is(err, device.ErrTimeout) {
			log.WithError(err).Warn("Discovery timed out, resetting connections")
			p.disconnectQuietly(per, log)
			if rerr := p.Reset(context.Background()); rerr != nil {
				log.WithError(rerr).Warn("Reset after discovery timeout failed")
			}
		}
		return nil, err
	}

	log.WithField("characteristics", len(d.Characteristics)).Info("Characteristics discovered")
	return d, nil
}

func (p *Plug) discover(ctx context.Context, serviceID string, per device.Peripheral, charIDs []string, log *logrus.Entry) (*Discovery, error) {
	// Connect stage. A live link is left alone so its subscriptions survive.
	rediscover := false
	if per.State() != device.Connected {
		log.Debug("Connecting")
		if err := per.Connect(ctx); err != nil {
			return nil, device.WrapAdapter("connect", err)
		}
		rediscover = true
	} else {
		log.Debug("Already connected, skipping connect")
	}

	// Service discovery stage. Always broad: some backends cannot filter.
	services := per.Services()
	if rediscover || len(services) == 0 {
		log.Debug("Discovering services")
		var err error
		services, err = per.DiscoverServices(ctx, nil)
		if err != nil {
			return nil, device.WrapAdapter("discover services", err)
		}
	} else {
		log.WithField("services", len(services)).Debug("Reusing discovered services")
	}

	svc, ok := device.MatchService(services, serviceID)
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceID}}
	}

	// Characteristic discovery stage.
	log.WithField("wanted", charIDs).Debug("Discovering characteristics")
	var filter []string
	if len(charIDs) > 0 {
		filter = device.ExpandAll(charIDs)
	}
	discovered, err := svc.DiscoverCharacteristics(ctx, filter)
	if err != nil {
		return nil, device.WrapAdapter("discover characteristics", err)
	}

	chars := discovered
	if len(charIDs) > 0 {
		chars = device.MatchCharacteristics(charIDs, discovered)
		if len(chars) != len(charIDs) {
			return nil, &device.MissingCharacteristicsError{
				ServiceID: serviceID,
				Wanted:    append([]string(nil), charIDs...),
				Found:     foundIDs(charIDs, discovered),
			}
		}
	}

	return &Discovery{Service: svc, Device: per, Characteristics: chars}, nil
}

// foundIDs returns the requested ids, in the caller's form and order, that resolved.
func foundIDs(wanted []string, discovered []device.Characteristic) []string {
	found := make([]string, 0, len(wanted))
	for _, id := range wanted {
		for _, c := range discovered {
			if device.CompareID(id, c.ID()) {
				found = append(found, id)
				break
			}
		}
	}
	return found
}

func (p *Plug) disconnectQuietly(per device.Peripheral, log *logrus.Entry) {
	err := guard.Run(context.Background(), p.opts.RWTimeout, "disconnect", func(ctx context.Context) error {
		return per.Disconnect(ctx)
	})
	if err != nil {
		log.WithError(err).Debug("Best-effort disconnect failed")
	}
}
