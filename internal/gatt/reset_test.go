package gatt

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/testutils"
	"github.com/srg/gattplug/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

func (s *PlugSuite) connectedPeripherals(n int) []*mocks.MockPeripheral {
	out := make([]*mocks.MockPeripheral, n)
	for i := range out {
		out[i] = testutils.CreateMockPeripheral().WithID(fmt.Sprintf("00:00:00:00:00:0%d", i)).Build()
		out[i].SetState(device.Connected)
	}
	return out
}

func (s *PlugSuite) TestReset_BestEffort() {
	// GOAL: One failing disconnect does not stop the others
	//
	// TEST SCENARIO: three connected peripherals, the second fails → other two disconnected, Reset succeeds

	ps := s.connectedPeripherals(3)
	testutils.Unset(&ps[1].Mock, "Disconnect")
	ps[1].On("Disconnect", mock.Anything).Return(errors.New("disconnect rejected"))

	testutils.Unset(&s.Radio.Mock, "ConnectedPeripherals")
	s.Radio.On("ConnectedPeripherals", mock.Anything).Return([]device.Peripheral{ps[0], ps[1], ps[2]}, nil)

	s.Require().NoError(s.plug.Reset(context.Background()))

	for _, p := range ps {
		p.AssertCalled(s.T(), "Disconnect", mock.Anything)
	}
	s.Equal(device.Disconnected, ps[0].State())
	s.Equal(device.Connected, ps[1].State())
	s.Equal(device.Disconnected, ps[2].State())
}

func (s *PlugSuite) TestReset_HungDisconnectIsBounded() {
	ps := s.connectedPeripherals(2)
	testutils.Unset(&ps[0].Mock, "Disconnect")
	ps[0].On("Disconnect", mock.Anything).Return(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	testutils.Unset(&s.Radio.Mock, "ConnectedPeripherals")
	s.Radio.On("ConnectedPeripherals", mock.Anything).Return([]device.Peripheral{ps[0], ps[1]}, nil)

	s.Require().NoError(s.plug.Reset(context.Background()))
	s.Equal(device.Disconnected, ps[1].State())
}

func (s *PlugSuite) TestReset_EnumerationFailure() {
	testutils.Unset(&s.Radio.Mock, "ConnectedPeripherals")
	enumErr := errors.New("not supported by backend")
	s.Radio.On("ConnectedPeripherals", mock.Anything).Return(nil, enumErr)

	err := s.plug.Reset(context.Background())

	s.ErrorIs(err, enumErr)
}

func (s *PlugSuite) TestReset_NoConnections() {
	s.NoError(s.plug.Reset(context.Background()))
	s.Peripheral.AssertNotCalled(s.T(), "Disconnect", mock.Anything)
}
