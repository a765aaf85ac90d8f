package mocks

import (
	"context"
	"sync"

	"github.com/srg/gattplug/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockPeripheral is a mock of device.Peripheral that tracks its own link
// state: a successful Connect or Disconnect updates State and drops the
// service cache; a successful DiscoverServices fills it.
type MockPeripheral struct {
	mock.Mock

	PeripheralID string
	LocalName    string
	Advertised   []string

	mu       sync.Mutex
	state    device.ConnectionState
	services []device.Service
}

func (m *MockPeripheral) ID() string                   { return m.PeripheralID }
func (m *MockPeripheral) Name() string                 { return m.LocalName }
func (m *MockPeripheral) AdvertisedServices() []string { return m.Advertised }

func (m *MockPeripheral) State() device.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == "" {
		return device.Disconnected
	}
	return m.state
}

// SetState forces the link state, e.g. to simulate a dropped connection.
func (m *MockPeripheral) SetState(s device.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	if s != device.Connected {
		m.services = nil
	}
}

func (m *MockPeripheral) Services() []device.Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services
}

func (m *MockPeripheral) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	err := returnError(ctx, args, 0)
	if err == nil {
		m.SetState(device.Connected)
	}
	return err
}

func (m *MockPeripheral) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	err := returnError(ctx, args, 0)
	if err == nil {
		m.SetState(device.Disconnected)
	}
	return err
}

func (m *MockPeripheral) DiscoverServices(ctx context.Context, ids []string) ([]device.Service, error) {
	args := m.Called(ctx, ids)

	var svcs []device.Service
	var err error
	if fn, ok := args.Get(0).(func(context.Context, []string) ([]device.Service, error)); ok {
		svcs, err = fn(ctx, ids)
	} else {
		if v := args.Get(0); v != nil {
			svcs = v.([]device.Service)
		}
		err = args.Error(1)
	}

	if err == nil {
		m.mu.Lock()
		m.services = svcs
		m.mu.Unlock()
	}
	return svcs, err
}

// returnError supports both error values and func(ctx) error returns.
func returnError(ctx context.Context, args mock.Arguments, i int) error {
	if fn, ok := args.Get(i).(func(context.Context) error); ok {
		return fn(ctx)
	}
	return args.Error(i)
}

// MockService is a mock of device.Service.
type MockService struct {
	mock.Mock

	ServiceID string
	OwnerID   string
}

func (m *MockService) ID() string           { return m.ServiceID }
func (m *MockService) PeripheralID() string { return m.OwnerID }

func (m *MockService) DiscoverCharacteristics(ctx context.Context, ids []string) ([]device.Characteristic, error) {
	args := m.Called(ctx, ids)
	if fn, ok := args.Get(0).(func(context.Context, []string) ([]device.Characteristic, error)); ok {
		return fn(ctx, ids)
	}
	var chars []device.Characteristic
	if v := args.Get(0); v != nil {
		chars = v.([]device.Characteristic)
	}
	return chars, args.Error(1)
}

// MockCharacteristic is a mock of device.Characteristic.
type MockCharacteristic struct {
	mock.Mock

	CharID   string
	SvcID    string
	OwnerID  string
	Props    device.Property
	listener device.Listeners[[]byte]
}

func (m *MockCharacteristic) ID() string                  { return m.CharID }
func (m *MockCharacteristic) ServiceID() string           { return m.SvcID }
func (m *MockCharacteristic) PeripheralID() string        { return m.OwnerID }
func (m *MockCharacteristic) Properties() device.Property { return m.Props }

func (m *MockCharacteristic) Read(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if fn, ok := args.Get(0).(func(context.Context) ([]byte, error)); ok {
		return fn(ctx)
	}
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, args.Error(1)
}

func (m *MockCharacteristic) Write(ctx context.Context, data []byte, withoutResponse bool) error {
	args := m.Called(ctx, data, withoutResponse)
	return returnError(ctx, args, 0)
}

func (m *MockCharacteristic) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)
	return returnError(ctx, args, 0)
}

func (m *MockCharacteristic) Unsubscribe(ctx context.Context) error {
	args := m.Called(ctx)
	return returnError(ctx, args, 0)
}

func (m *MockCharacteristic) OnData(fn func([]byte)) func() {
	return m.listener.Add(fn)
}

// Notify fires a notification to every data listener.
func (m *MockCharacteristic) Notify(data []byte) {
	m.listener.Emit(data)
}

// DataListeners returns the number of registered data listeners.
func (m *MockCharacteristic) DataListeners() int {
	return m.listener.Len()
}
