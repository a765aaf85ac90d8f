package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/groutine"
)

// Peripheral is a remote device seen by a Radio. Handles are kept per
// address for the life of the radio, so discover events for the same
// address always yield the same Peripheral.
type Peripheral struct {
	radio   *Radio
	address string
	logger  *logrus.Entry

	mu         sync.RWMutex
	name       string
	advertised []string
	state      device.ConnectionState
	client     ble.Client
	services   []device.Service
	// closed when the current link goes away, stops the disconnect monitor
	linkDone chan struct{}
}

func newPeripheral(r *Radio, address string) *Peripheral {
	return &Peripheral{
		radio:   r,
		address: address,
		logger:  r.logger.WithField("address", address),
		state:   device.Disconnected,
	}
}

func (p *Peripheral) ID() string { return p.address }

func (p *Peripheral) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Peripheral) AdvertisedServices() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.advertised
}

func (p *Peripheral) State() device.ConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Peripheral) Services() []device.Service {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.services
}

func (p *Peripheral) updateFromAdvertisement(adv ble.Advertisement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name := adv.LocalName(); name != "" {
		p.name = name
	}
	if svcs := advertisedServices(adv); len(svcs) > 0 {
		p.advertised = svcs
	}
}

// Connect dials the peripheral. Connecting an already connected peripheral is a no-op.
func (p *Peripheral) Connect(ctx context.Context) error {
	p.mu.Lock()
	if strings.TrimSpace(p.address) == "" {
		p.mu.Unlock()
		return fmt.Errorf("device address is empty")
	}
	if p.state == device.Connected {
		p.mu.Unlock()
		p.logger.Debug("Connect called but already connected")
		return nil
	}
	p.state = device.Connecting
	p.mu.Unlock()

	p.logger.Info("Connecting to BLE device...")
	client, err := p.radio.dev.Dial(ctx, ble.NewAddr(p.address))
	if err != nil {
		p.mu.Lock()
		p.state = device.Disconnected
		p.mu.Unlock()
		p.logger.WithError(err).Error("Failed to dial BLE device")
		return NormalizeError(err)
	}

	linkDone := make(chan struct{})
	p.mu.Lock()
	p.client = client
	p.state = device.Connected
	p.services = nil
	p.linkDone = linkDone
	p.mu.Unlock()

	// go-ble reports link loss on Disconnected(); drop the session state when it fires.
	if disc := client.Disconnected(); disc != nil {
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-disc:
				p.logger.Warn("BLE link lost")
				p.markDisconnected(client)
			case <-linkDone:
			}
		})
	} else {
		p.logger.Debug("Client does not report disconnections")
	}

	p.logger.Info("BLE device connected successfully")
	return nil
}

// Disconnect cancels the connection. Disconnecting an idle peripheral is a no-op.
func (p *Peripheral) Disconnect(_ context.Context) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	if client == nil {
		p.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	p.logger.Info("Disconnecting BLE device...")
	err := client.CancelConnection()
	p.markDisconnected(client)
	if err != nil {
		p.logger.WithError(err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	return nil
}

// DiscoverServices queries the remote GATT table. Empty ids discovers everything.
func (p *Peripheral) DiscoverServices(_ context.Context, ids []string) ([]device.Service, error) {
	client, err := p.currentClient()
	if err != nil {
		return nil, err
	}

	filter, err := toUUIDs(ids)
	if err != nil {
		return nil, err
	}

	bleServices, err := client.DiscoverServices(filter)
	if err != nil {
		return nil, NormalizeError(err)
	}

	services := make([]device.Service, 0, len(bleServices))
	for _, s := range bleServices {
		services = append(services, &Service{peripheral: p, client: client, svc: s})
	}

	p.mu.Lock()
	if p.client == client {
		p.services = services
	}
	p.mu.Unlock()

	p.logger.WithField("services", len(services)).Debug("Services discovered")
	return services, nil
}

func (p *Peripheral) currentClient() (ble.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.client == nil || p.state != device.Connected {
		return nil, device.ErrNotConnected
	}
	return p.client, nil
}

// markDisconnected drops the link state if client is still the current link.
func (p *Peripheral) markDisconnected(client ble.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != client {
		return
	}
	if p.linkDone != nil {
		close(p.linkDone)
		p.linkDone = nil
	}
	p.client = nil
	p.services = nil
	p.state = device.Disconnected
}
