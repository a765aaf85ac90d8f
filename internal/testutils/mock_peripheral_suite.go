package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockRadioSuite provides a reusable test suite with a mocked radio and peripheral.
//
// Basic usage (default Battery Service peripheral):
//
//	type SessionSuite struct {
//	    testutils.MockRadioSuite
//	}
//
//	func TestSessionSuite(t *testing.T) {
//	    suite.Run(t, new(SessionSuite))
//	}
//
// Custom peripheral profile:
//
//	func (s *SessionSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D"). // Heart Rate Service
//	        WithCharacteristic("2A37", "read,notify", []byte{80}) // 80 BPM
//
//	    s.MockRadioSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockRadioSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// Short timeouts keep timeout scenarios fast.
	DiscoveryTimeout time.Duration
	RWTimeout        time.Duration

	Radio      *mocks.MockRadio
	Peripheral *mocks.MockPeripheral

	PeripheralBuilder *PeripheralDeviceBuilder
}

// SetupSuite initializes the logger and default timeouts.
func (s *MockRadioSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	if s.DiscoveryTimeout == 0 {
		s.DiscoveryTimeout = 500 * time.Millisecond
	}
	if s.RWTimeout == 0 {
		s.RWTimeout = 200 * time.Millisecond
	}
}

// SetupTest builds a powered-on radio and the configured peripheral.
func (s *MockRadioSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger

	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}
	s.Peripheral = s.PeripheralBuilder.Build()

	s.Radio = mocks.NewMockRadio(device.StatePoweredOn)
	s.Radio.On("StartScanning", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	s.Radio.On("StopScanning").Return(nil).Maybe()
	s.Radio.On("Close").Return(nil).Maybe()
	s.Radio.On("ConnectedPeripherals", mock.Anything).Return(func(_ context.Context) ([]device.Peripheral, error) {
		if s.Peripheral.State() == device.Connected {
			return []device.Peripheral{s.Peripheral}, nil
		}
		return nil, nil
	}).Maybe()
}

// TearDownTest resets the peripheral builder after each test.
func (s *MockRadioSuite) TearDownTest() {
	s.PeripheralBuilder = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *MockRadioSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}

// Char returns the built characteristic mock of the configured peripheral.
func (s *MockRadioSuite) Char(serviceUUID, charUUID string) *mocks.MockCharacteristic {
	c := s.PeripheralBuilder.Characteristic(serviceUUID, charUUID)
	s.Require().NotNil(c, "characteristic %s/%s MUST be configured", serviceUUID, charUUID)
	return c
}

// createDefaultPeripheralBuilder returns a peripheral with Battery Service (180F)
// and Battery Level characteristic (2A19) set to 50%.
func createDefaultPeripheralBuilder() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().
		FromJSON(`
		{
			"id": "AA:BB:CC:DD:EE:FF",
			"name": "Battery",
			"advertised": ["180F"],
			"services": [
				{
					"uuid": "180F",
					"characteristics": [
						{ "uuid": "2A19", "properties": "read,notify", "value": [50] }
					]
				}
			]
		}`)
}
