package gatt

import (
	"context"
	"errors"
	"sync"

	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/testutils"
	"github.com/stretchr/testify/mock"
)

func (s *PlugSuite) TestFindCharacteristics_ResolvesInRequestedOrder() {
	per := s.usePeripheral(testutils.CreateMockPeripheralFromJSON(heartRateProfile))

	d, err := s.plug.FindCharacteristics(context.Background(), "180d", per, "0x2a39", "2A37")
	s.Require().NoError(err)

	s.Equal(per, d.Device)
	s.True(device.CompareID("180d", d.Service.ID()))
	s.Require().Len(d.Characteristics, 2)
	s.Equal("2A39", d.Characteristics[0].ID(), "characteristics MUST follow the requested order")
	s.Equal("2A37", d.Characteristics[1].ID())

	// Targeted discovery sends the expanded ids to the backend.
	s.PeripheralBuilder.Service("180d").AssertCalled(s.T(), "DiscoverCharacteristics", mock.Anything,
		[]string{"00002a39-0000-1000-8000-00805f9b34fb", "00002a37-0000-1000-8000-00805f9b34fb"})
	// Service discovery is always broad.
	per.AssertCalled(s.T(), "DiscoverServices", mock.Anything, []string(nil))
}

func (s *PlugSuite) TestFindCharacteristics_AllWhenNoIDs() {
	per := s.usePeripheral(testutils.CreateMockPeripheralFromJSON(heartRateProfile))

	d, err := s.plug.FindCharacteristics(context.Background(), "0000180d00001000800000805f9b34fb", per)
	s.Require().NoError(err)

	s.Len(d.Characteristics, 3, "all characteristics MUST be returned when none are requested")
	s.PeripheralBuilder.Service("180d").AssertCalled(s.T(), "DiscoverCharacteristics", mock.Anything, []string(nil))
}

func (s *PlugSuite) TestFindCharacteristics_ReconnectAvoidance() {
	// GOAL: A live connection is reused together with its discovered services
	//
	// TEST SCENARIO: two discoveries without disconnecting → one connect, one service discovery

	ctx := context.Background()
	per := s.usePeripheral(testutils.CreateMockPeripheralFromJSON(heartRateProfile))

	_, err := s.plug.FindCharacteristics(ctx, "180d", per, "2a37")
	s.Require().NoError(err)
	_, err = s.plug.FindCharacteristics(ctx, "180d", per, "2a38")
	s.Require().NoError(err)

	per.AssertNumberOfCalls(s.T(), "Connect", 1)
	per.AssertNumberOfCalls(s.T(), "DiscoverServices", 1)
}

func (s *PlugSuite) TestFindCharacteristics_FreshConnectForcesRediscovery() {
	ctx := context.Background()
	per := s.usePeripheral(testutils.CreateMockPeripheralFromJSON(heartRateProfile))

	_, err := s.plug.FindCharacteristics(ctx, "180d", per, "2a37")
	s.Require().NoError(err)

	per.SetState(device.Disconnected) // link dropped
	_, err = s.plug.FindCharacteristics(ctx, "180d", per, "2a37")
	s.Require().NoError(err)

	per.AssertNumberOfCalls(s.T(), "Connect", 2)
	per.AssertNumberOfCalls(s.T(), "DiscoverServices", 2)
}

func (s *PlugSuite) TestFindCharacteristics_MissingCharacteristics() {
	// GOAL: A discovery shortfall fails with both the wanted and found sets
	//
	// TEST SCENARIO: ask for 2a37 and 2a38 on a service exposing only 2a37 → MissingCharacteristics, peripheral disconnected

	per := s.usePeripheral(testutils.CreateMockPeripheral().
		WithID("11:22:33:44:55:66").
		WithService("180d").
		WithCharacteristic("2a37", "notify", nil))

	d, err := s.plug.FindCharacteristics(context.Background(), "180d", per, "2a37", "2a38")

	s.Nil(d, "discovery MUST be all-or-nothing")
	s.Require().ErrorIs(err, device.ErrMissingCharacteristics)
	var merr *device.MissingCharacteristicsError
	s.Require().ErrorAs(err, &merr)
	s.Equal([]string{"2a37", "2a38"}, merr.Wanted)
	s.Equal([]string{"2a37"}, merr.Found)
	s.Equal([]string{"2a38"}, merr.Missing())

	per.AssertCalled(s.T(), "Disconnect", mock.Anything)
}

func (s *PlugSuite) TestFindCharacteristics_ServiceNotFound() {
	per := s.Peripheral

	_, err := s.plug.FindCharacteristics(context.Background(), "180d", per)

	s.ErrorIs(err, device.ErrServiceNotFound)
	s.ErrorContains(err, `"180d"`)
	per.AssertCalled(s.T(), "Disconnect", mock.Anything)
	s.Equal(device.Disconnected, per.State())
}

func (s *PlugSuite) TestFindCharacteristics_ConnectFailureKeepsOriginalError() {
	per := s.Peripheral
	refused := errors.New("connection refused")

	testutils.Unset(&per.Mock, "Connect")
	testutils.Unset(&per.Mock, "Disconnect")
	per.On("Connect", mock.Anything).Return(refused)
	per.On("Disconnect", mock.Anything).Return(errors.New("not connected"))

	_, err := s.plug.FindCharacteristics(context.Background(), "180f", per)

	s.ErrorIs(err, refused, "cleanup failure MUST NOT mask the stage error")
	var aerr *device.AdapterError
	s.Require().ErrorAs(err, &aerr)
	s.Equal("connect", aerr.Op)
	per.AssertNotCalled(s.T(), "DiscoverServices", mock.Anything, mock.Anything)
}

func (s *PlugSuite) TestFindCharacteristics_TimeoutResetsConnections() {
	// GOAL: A hung pipeline returns Timeout and resets every connection
	//
	// TEST SCENARIO: connect never completes → Timeout after the discovery timeout, connections enumerated and reset

	per := s.Peripheral
	testutils.Unset(&per.Mock, "Connect")
	per.On("Connect", mock.Anything).Return(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := s.plug.FindCharacteristics(context.Background(), "180f", per, "2a19")

	s.Require().ErrorIs(err, device.ErrTimeout)
	var terr *device.TimeoutError
	s.Require().ErrorAs(err, &terr)
	s.Equal(s.DiscoveryTimeout, terr.After)
	s.Radio.AssertCalled(s.T(), "ConnectedPeripherals", mock.Anything)
	per.AssertCalled(s.T(), "Disconnect", mock.Anything)
}

func (s *PlugSuite) TestFindCharacteristics_StopsScanBeforeConnect() {
	// GOAL: Finding and connecting are mutually exclusive
	//
	// TEST SCENARIO: scan active → FindCharacteristics → scan stopped before connect, no discover events forwarded afterwards

	per := s.Peripheral

	var mu sync.Mutex
	var order []string
	record := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	testutils.Unset(&s.Radio.Mock, "StopScanning")
	s.Radio.On("StopScanning").Run(func(mock.Arguments) { record("stop scanning") }).Return(nil)
	testutils.Unset(&per.Mock, "Connect")
	per.On("Connect", mock.Anything).Run(func(mock.Arguments) {
		record("connect")
		// An advertisement arriving mid-connect must not reach the finder.
		s.Radio.Discover(per)
	}).Return(nil)

	found := make(chan device.Peripheral, 4)
	s.plug.FindServices([]string{"180F"}, func(_ []string, p device.Peripheral) { found <- p }, "")
	s.Radio.Discover(per)
	s.flush()
	s.Require().Len(found, 1)

	_, err := s.plug.FindCharacteristics(context.Background(), "180f", per, "2a19")
	s.Require().NoError(err)
	s.Radio.Discover(per)
	s.flush()

	s.Equal([]string{"stop scanning", "connect"}, order)
	s.Len(found, 1, "no discover events MUST be forwarded once connecting started")
	s.Empty(s.plug.ActiveFinders())
	s.Equal(0, s.Radio.DiscoverListeners())
}
