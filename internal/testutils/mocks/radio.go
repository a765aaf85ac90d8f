// Package mocks provides testify mocks of the device.Radio contract.
//
// Blocking operations go through mock.Called so tests can set expectations
// and return values, including mockery style function returns. Event
// listeners are real: tests fire events with Discover, SetState, Fail and
// MockCharacteristic.Notify.
package mocks

import (
	"context"
	"sync"

	"github.com/srg/gattplug/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockRadio is a mock of device.Radio.
type MockRadio struct {
	mock.Mock

	mu           sync.Mutex
	state        device.RadioState
	capabilities device.Capabilities

	discover device.Listeners[device.Peripheral]
	states   device.Listeners[device.RadioState]
	errors   device.Listeners[error]
}

// NewMockRadio returns a radio in the given state.
func NewMockRadio(state device.RadioState) *MockRadio {
	return &MockRadio{state: state}
}

func (m *MockRadio) State() device.RadioState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockRadio) Capabilities() device.Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capabilities
}

// SetCapabilities sets the value returned by Capabilities.
func (m *MockRadio) SetCapabilities(c device.Capabilities) {
	m.mu.Lock()
	m.capabilities = c
	m.mu.Unlock()
}

func (m *MockRadio) StartScanning(ctx context.Context, serviceIDs []string, opts device.ScanOptions) error {
	args := m.Called(ctx, serviceIDs, opts)
	return args.Error(0)
}

func (m *MockRadio) StopScanning() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRadio) OnDiscover(fn func(device.Peripheral)) func() {
	return m.discover.Add(fn)
}

func (m *MockRadio) OnStateChange(fn func(device.RadioState)) func() {
	return m.states.Add(fn)
}

func (m *MockRadio) OnError(fn func(error)) func() {
	return m.errors.Add(fn)
}

func (m *MockRadio) ConnectedPeripherals(ctx context.Context) ([]device.Peripheral, error) {
	args := m.Called(ctx)
	if fn, ok := args.Get(0).(func(context.Context) ([]device.Peripheral, error)); ok {
		return fn(ctx)
	}
	var ps []device.Peripheral
	if v := args.Get(0); v != nil {
		ps = v.([]device.Peripheral)
	}
	return ps, args.Error(1)
}

func (m *MockRadio) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Discover fires a discover event.
func (m *MockRadio) Discover(p device.Peripheral) {
	m.discover.Emit(p)
}

// SetState changes the radio state and fires a state change event.
func (m *MockRadio) SetState(s device.RadioState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.states.Emit(s)
}

// Fail fires a radio error event.
func (m *MockRadio) Fail(err error) {
	m.errors.Emit(err)
}

// DiscoverListeners returns the number of registered discover listeners.
func (m *MockRadio) DiscoverListeners() int { return m.discover.Len() }

// StateListeners returns the number of registered state listeners.
func (m *MockRadio) StateListeners() int { return m.states.Len() }

// ErrorListeners returns the number of registered error listeners.
func (m *MockRadio) ErrorListeners() int { return m.errors.Len() }
