package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"tinygo.org/x/bluetooth"
)

// readBufferSize covers the largest attribute value allowed by ATT.
const readBufferSize = 512

// Peripheral is a remote device seen during a tinygo scan.
type Peripheral struct {
	radio   *Radio
	address bluetooth.Address
	id      string
	logger  *logrus.Entry

	mu         sync.RWMutex
	name       string
	advertised []string
	state      device.ConnectionState
	dev        *bluetooth.Device
	services   []device.Service
}

func newPeripheral(r *Radio, address bluetooth.Address) *Peripheral {
	id := address.String()
	return &Peripheral{
		radio:   r,
		address: address,
		id:      id,
		logger:  r.logger.WithField("address", id),
		state:   device.Disconnected,
	}
}

func (p *Peripheral) ID() string { return p.id }

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

func (p *Peripheral) updateFromScan(name string, services []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name != "" {
		p.name = name
	}
	if len(services) > 0 {
		p.advertised = services
	}
}

// Connect blocks in the tinygo stack; callers bound it with their own deadline.
func (p *Peripheral) Connect(_ context.Context) error {
	p.mu.Lock()
	if p.state == device.Connected {
		p.mu.Unlock()
		return nil
	}
	p.state = device.Connecting
	p.mu.Unlock()

	p.logger.Info("Connecting to BLE device...")
	dev, err := p.radio.adapter.Connect(p.address, bluetooth.ConnectionParams{})
	if err != nil {
		p.markDisconnected()
		p.logger.WithError(err).Error("Failed to connect BLE device")
		return fmt.Errorf("connect %s: %w", p.id, err)
	}

	p.mu.Lock()
	p.dev = &dev
	p.state = device.Connected
	p.services = nil
	p.mu.Unlock()
	p.logger.Info("BLE device connected successfully")
	return nil
}

func (p *Peripheral) Disconnect(_ context.Context) error {
	p.mu.RLock()
	dev := p.dev
	p.mu.RUnlock()
	if dev == nil {
		return nil
	}

	err := dev.Disconnect()
	p.markDisconnected()
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", p.id, err)
	}
	return nil
}

func (p *Peripheral) DiscoverServices(_ context.Context, ids []string) ([]device.Service, error) {
	p.mu.RLock()
	dev := p.dev
	p.mu.RUnlock()
	if dev == nil {
		return nil, device.ErrNotConnected
	}

	filter, err := toUUIDs(ids)
	if err != nil {
		return nil, err
	}
	raw, err := dev.DiscoverServices(filter)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}

	services := make([]device.Service, 0, len(raw))
	for i := range raw {
		services = append(services, &Service{peripheral: p, svc: raw[i]})
	}

	p.mu.Lock()
	if p.dev == dev {
		p.services = services
	}
	p.mu.Unlock()
	return services, nil
}

func (p *Peripheral) markDisconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dev = nil
	p.services = nil
	p.state = device.Disconnected
}

// Service wraps a tinygo DeviceService.
type Service struct {
	peripheral *Peripheral
	svc        bluetooth.DeviceService
}

func (s *Service) ID() string           { return s.svc.UUID().String() }
func (s *Service) PeripheralID() string { return s.peripheral.ID() }

func (s *Service) DiscoverCharacteristics(_ context.Context, ids []string) ([]device.Characteristic, error) {
	filter, err := toUUIDs(ids)
	if err != nil {
		return nil, err
	}
	raw, err := s.svc.DiscoverCharacteristics(filter)
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}
	chars := make([]device.Characteristic, 0, len(raw))
	for i := range raw {
		chars = append(chars, &Characteristic{service: s, char: raw[i]})
	}
	return chars, nil
}

// Characteristic wraps a tinygo DeviceCharacteristic.
type Characteristic struct {
	service   *Service
	char      bluetooth.DeviceCharacteristic
	listeners device.Listeners[[]byte]
}

func (c *Characteristic) ID() string           { return c.char.UUID().String() }
func (c *Characteristic) ServiceID() string    { return c.service.ID() }
func (c *Characteristic) PeripheralID() string { return c.service.PeripheralID() }

// Properties is not reported by tinygo; every operation is attempted and
// the remote side rejects what it does not support.
func (c *Characteristic) Properties() device.Property {
	return device.PropRead | device.PropWrite | device.PropWriteWithoutResponse | device.PropNotify
}

func (c *Characteristic) Read(_ context.Context) ([]byte, error) {
	buf := make([]byte, readBufferSize)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.ID(), err)
	}
	return buf[:n], nil
}

func (c *Characteristic) Write(_ context.Context, data []byte, withoutResponse bool) error {
	var err error
	if withoutResponse {
		_, err = c.char.WriteWithoutResponse(data)
	} else {
		err = writeWithResponse(c.char, data)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", c.ID(), err)
	}
	return nil
}

func (c *Characteristic) Subscribe(_ context.Context) error {
	err := c.char.EnableNotifications(func(buf []byte) {
		// tinygo reuses the buffer between callbacks
		data := make([]byte, len(buf))
		copy(data, buf)
		c.listeners.Emit(data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.ID(), err)
	}
	return nil
}

func (c *Characteristic) Unsubscribe(_ context.Context) error {
	if err := c.char.EnableNotifications(nil); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", c.ID(), err)
	}
	return nil
}

func (c *Characteristic) OnData(fn func([]byte)) func() {
	return c.listeners.Add(fn)
}
