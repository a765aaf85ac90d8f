package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/gattplug/internal/device"
)

// Characteristic is a GATT characteristic bound to the connection it was discovered on.
type Characteristic struct {
	service *Service
	char    *ble.Characteristic

	writeMutex sync.Mutex
	listeners  device.Listeners[[]byte]
}

func (c *Characteristic) ID() string           { return c.char.UUID.String() }
func (c *Characteristic) ServiceID() string    { return c.service.ID() }
func (c *Characteristic) PeripheralID() string { return c.service.PeripheralID() }

// Properties maps ble.Property; both use the ATT property bit layout.
func (c *Characteristic) Properties() device.Property {
	return device.Property(c.char.Property)
}

func (c *Characteristic) Read(_ context.Context) ([]byte, error) {
	if c.char.Property&ble.CharRead == 0 {
		return nil, fmt.Errorf("characteristic %s does not support read", c.ID())
	}
	data, err := c.service.client.ReadCharacteristic(c.char)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return data, nil
}

func (c *Characteristic) Write(_ context.Context, data []byte, withoutResponse bool) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return NormalizeError(c.service.client.WriteCharacteristic(c.char, data, withoutResponse))
}

// Subscribe enables notifications, or indications when the characteristic
// only supports those. The CCCD is discovered first if go-ble has not seen it.
func (c *Characteristic) Subscribe(_ context.Context) error {
	if c.char.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return fmt.Errorf("characteristic %s does not support notifications", c.ID())
	}

	client := c.service.client
	if c.char.CCCD == nil {
		if _, err := client.DiscoverDescriptors(nil, c.char); err != nil {
			c.service.peripheral.logger.WithError(err).Debug("Descriptor discovery before subscribe failed")
		}
	}

	err := client.Subscribe(c.char, c.indicate(), func(data []byte) {
		c.listeners.Emit(data)
	})
	return NormalizeError(err)
}

func (c *Characteristic) Unsubscribe(_ context.Context) error {
	return NormalizeError(c.service.client.Unsubscribe(c.char, c.indicate()))
}

func (c *Characteristic) OnData(fn func([]byte)) func() {
	return c.listeners.Add(fn)
}

func (c *Characteristic) indicate() bool {
	return c.char.Property&ble.CharNotify == 0 && c.char.Property&ble.CharIndicate != 0
}
