package testutils

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []int  `json:"value,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralConfig represents the complete peripheral profile for mocking
type PeripheralConfig struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	Advertised []string        `json:"advertised,omitempty"`
	Services   []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds a mocks.MockPeripheral with its services and
// characteristics. Every expectation it sets is optional (Maybe), so tests
// only assert on the calls they care about.
type PeripheralDeviceBuilder struct {
	profile PeripheralConfig

	services map[string]*mocks.MockService
	chars    map[string]*mocks.MockCharacteristic
}

// NewPeripheralDeviceBuilder creates a new peripheral builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: PeripheralConfig{ID: "AA:BB:CC:DD:EE:FF"},
	}
}

// WithID sets the peripheral id (address)
func (b *PeripheralDeviceBuilder) WithID(id string) *PeripheralDeviceBuilder {
	b.profile.ID = id
	return b
}

// WithName sets the advertised local name
func (b *PeripheralDeviceBuilder) WithName(name string) *PeripheralDeviceBuilder {
	b.profile.Name = name
	return b
}

// WithAdvertisedServices sets the service ids carried in advertisements
func (b *PeripheralDeviceBuilder) WithAdvertisedServices(ids ...string) *PeripheralDeviceBuilder {
	b.profile.Advertised = append(b.profile.Advertised, ids...)
	return b
}

// WithService adds a service to the peripheral profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	ints := make([]int, len(value))
	for i, v := range value {
		ints[i] = int(v)
	}
	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      ints,
	})
	return b
}

// FromJSON fills the peripheral profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config PeripheralConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	if config.ID == "" {
		config.ID = b.profile.ID
	}

	b.profile = config
	return b
}

// Build creates the mocked peripheral. It starts disconnected.
func (b *PeripheralDeviceBuilder) Build() *mocks.MockPeripheral {
	b.services = make(map[string]*mocks.MockService)
	b.chars = make(map[string]*mocks.MockCharacteristic)

	p := &mocks.MockPeripheral{
		PeripheralID: b.profile.ID,
		LocalName:    b.profile.Name,
		Advertised:   b.profile.Advertised,
	}

	var services []device.Service
	for _, svcConfig := range b.profile.Services {
		svc := &mocks.MockService{ServiceID: svcConfig.UUID, OwnerID: b.profile.ID}

		var chars []device.Characteristic
		for _, charConfig := range svcConfig.Characteristics {
			c := b.buildCharacteristic(svcConfig.UUID, charConfig)
			chars = append(chars, c)
			b.chars[device.Expand(svcConfig.UUID)+"/"+device.Expand(charConfig.UUID)] = c
		}

		svc.On("DiscoverCharacteristics", mock.Anything, mock.Anything).
			Return(func(_ context.Context, ids []string) ([]device.Characteristic, error) {
				return filterCharacteristics(chars, ids), nil
			}).Maybe()

		services = append(services, svc)
		b.services[device.Expand(svcConfig.UUID)] = svc
	}

	p.On("Connect", mock.Anything).Return(nil).Maybe()
	p.On("Disconnect", mock.Anything).Return(nil).Maybe()
	p.On("DiscoverServices", mock.Anything, mock.Anything).Return(services, nil).Maybe()

	return p
}

// Service returns a built service mock by id. Call after Build.
func (b *PeripheralDeviceBuilder) Service(uuid string) *mocks.MockService {
	return b.services[device.Expand(uuid)]
}

// Characteristic returns a built characteristic mock by service and characteristic id. Call after Build.
func (b *PeripheralDeviceBuilder) Characteristic(serviceUUID, charUUID string) *mocks.MockCharacteristic {
	return b.chars[device.Expand(serviceUUID)+"/"+device.Expand(charUUID)]
}

// GetServices returns the configured services
func (b *PeripheralDeviceBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}

func (b *PeripheralDeviceBuilder) buildCharacteristic(serviceUUID string, cfg CharacteristicConfig) *mocks.MockCharacteristic {
	props := device.ParseProperties(cfg.Properties)
	if cfg.Properties == "" {
		props = device.PropRead | device.PropWrite | device.PropNotify
	}

	value := make([]byte, len(cfg.Value))
	for i, v := range cfg.Value {
		value[i] = byte(v)
	}

	c := &mocks.MockCharacteristic{
		CharID:  cfg.UUID,
		SvcID:   serviceUUID,
		OwnerID: b.profile.ID,
		Props:   props,
	}

	if props.Has(device.PropRead) {
		c.On("Read", mock.Anything).Return(value, nil).Maybe()
	} else {
		c.On("Read", mock.Anything).Return(nil, fmt.Errorf("characteristic does not support read")).Maybe()
	}
	c.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	c.On("Subscribe", mock.Anything).Return(nil).Maybe()
	c.On("Unsubscribe", mock.Anything).Return(nil).Maybe()
	return c
}

// filterCharacteristics mimics a backend that honors the id filter.
func filterCharacteristics(chars []device.Characteristic, ids []string) []device.Characteristic {
	if len(ids) == 0 {
		return chars
	}
	var out []device.Characteristic
	for _, c := range chars {
		for _, id := range ids {
			if device.CompareID(id, c.ID()) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
