package gatt

import (
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/testutils"
	"github.com/srg/gattplug/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

type foundEvent struct {
	ids []string
	p   device.Peripheral
}

func (s *PlugSuite) collector() (FoundFunc, chan foundEvent) {
	ch := make(chan foundEvent, 16)
	return func(ids []string, p device.Peripheral) { ch <- foundEvent{ids: ids, p: p} }, ch
}

// lastScan returns the arguments of the most recent StartScanning call.
func (s *PlugSuite) lastScan() ([]string, device.ScanOptions) {
	var last mock.Arguments
	for _, c := range s.Radio.Calls {
		if c.Method == "StartScanning" {
			last = c.Arguments
		}
	}
	s.Require().NotNil(last, "StartScanning MUST have been called")
	ids, _ := last.Get(1).([]string)
	return ids, last.Get(2).(device.ScanOptions)
}

func (s *PlugSuite) TestFindServices_ForwardsOriginalIDs() {
	onFound, found := s.collector()

	s.plug.FindServices([]string{"0x180F"}, onFound, "")
	s.Radio.Discover(s.Peripheral)
	s.flush()

	s.Require().Len(found, 1)
	ev := <-found
	s.Equal([]string{"0x180F"}, ev.ids, "callback MUST receive the ids as passed by the caller")
	s.Equal(s.Peripheral, ev.p)

	ids, opts := s.lastScan()
	s.Equal([]string{"0000180f-0000-1000-8000-00805f9b34fb"}, ids)
	s.False(opts.AllowDuplicates)
}

func (s *PlugSuite) TestFindServices_DefersUntilPoweredOn() {
	// GOAL: Scanning waits for the radio to power on
	//
	// TEST SCENARIO: radio off → no scan; unrelated state → still waiting; poweredOn → scan starts once

	s.Radio.SetState(device.StatePoweredOff)
	onFound, found := s.collector()

	s.plug.FindServices([]string{"180f"}, onFound, "")
	s.Radio.AssertNotCalled(s.T(), "StartScanning", mock.Anything, mock.Anything, mock.Anything)
	s.Equal(1, s.Radio.StateListeners())

	s.Radio.SetState(device.StateUnsupported)
	s.Radio.AssertNotCalled(s.T(), "StartScanning", mock.Anything, mock.Anything, mock.Anything)

	s.Radio.SetState(device.StatePoweredOn)
	s.Radio.AssertNumberOfCalls(s.T(), "StartScanning", 1)
	s.Equal(0, s.Radio.StateListeners(), "one-shot state listener MUST be removed")

	s.Radio.SetState(device.StatePoweredOn)
	s.Radio.AssertNumberOfCalls(s.T(), "StartScanning", 1)

	s.Radio.Discover(s.Peripheral)
	s.flush()
	s.Len(found, 1)
}

func (s *PlugSuite) TestFindServices_StopCancelsDeferred() {
	s.Radio.SetState(device.StatePoweredOff)
	onFound, _ := s.collector()

	s.plug.FindServices([]string{"180f"}, onFound, "")
	s.Require().NoError(s.plug.StopFindServices())
	s.Radio.SetState(device.StatePoweredOn)

	s.Radio.AssertNotCalled(s.T(), "StartScanning", mock.Anything, mock.Anything, mock.Anything)
	s.Equal(0, s.Radio.StateListeners())
}

func (s *PlugSuite) TestFindServices_SameServiceSetReplaces() {
	first, firstFound := s.collector()
	second, secondFound := s.collector()

	s.plug.FindServices([]string{"180f", "180d"}, first, "")
	s.plug.FindServices([]string{"0x180D", "0000180F-0000-1000-8000-00805F9B34FB"}, second, "")

	s.Len(s.plug.ActiveFinders(), 1, "at most one finder per service set")
	s.Equal(1, s.Radio.DiscoverListeners())

	s.Radio.Discover(s.Peripheral)
	s.flush()
	s.Len(firstFound, 0, "replaced finder MUST NOT receive events")
	s.Len(secondFound, 1)
}

func (s *PlugSuite) TestFindServices_ScansUnionOfFinders() {
	hr, hrFound := s.collector()
	battery, batteryFound := s.collector()

	s.plug.FindServices([]string{"180d"}, hr, "")
	s.plug.FindServices([]string{"180f"}, battery, "")

	ids, _ := s.lastScan()
	s.Equal([]string{
		"0000180d-0000-1000-8000-00805f9b34fb",
		"0000180f-0000-1000-8000-00805f9b34fb",
	}, ids)
	s.Len(s.plug.ActiveFinders(), 2)

	// The battery peripheral only advertises 180F.
	s.Radio.Discover(s.Peripheral)
	s.flush()
	s.Len(hrFound, 0, "finder MUST re-check advertised services")
	s.Len(batteryFound, 1)
}

func (s *PlugSuite) TestFindServices_NamePrefixFilteredAppSide() {
	onFound, found := s.collector()
	other := &mocks.MockPeripheral{PeripheralID: "01", LocalName: "Thermo"}
	match := &mocks.MockPeripheral{PeripheralID: "02", LocalName: "HeartRate-7"}

	s.plug.FindServices(nil, onFound, "HeartRate")
	_, opts := s.lastScan()
	s.Empty(opts.NamePrefix, "radio without name filtering MUST scan unfiltered")

	s.Radio.Discover(other)
	s.Radio.Discover(match)
	s.flush()

	s.Require().Len(found, 1)
	s.Equal("02", (<-found).p.ID())
}

func (s *PlugSuite) TestFindServices_NamePrefixPassedToCapableRadio() {
	s.Radio.SetCapabilities(device.Capabilities{NameFilter: true})
	onFound, _ := s.collector()

	s.plug.FindServices([]string{"180d"}, onFound, "HeartRate")

	_, opts := s.lastScan()
	s.Equal("HeartRate", opts.NamePrefix)
}

func (s *PlugSuite) TestStopFindServices_RemovesAll() {
	onFound, found := s.collector()
	s.plug.FindServices([]string{"180d"}, onFound, "")
	s.plug.FindServices([]string{"180f"}, onFound, "")

	s.Require().NoError(s.plug.StopFindServices())

	s.Empty(s.plug.ActiveFinders())
	s.Equal(0, s.Radio.DiscoverListeners())
	s.Radio.AssertNumberOfCalls(s.T(), "StopScanning", 1)

	s.Radio.Discover(s.Peripheral)
	s.flush()
	s.Len(found, 0)

	// Idle stop is a no-op.
	s.Require().NoError(s.plug.StopFindServices())
}

func (s *PlugSuite) TestStopFindServices_DropsQueuedEvents() {
	onFound, found := s.collector()
	s.plug.FindServices([]string{"180f"}, onFound, "")

	release := make(chan struct{})
	s.plug.queue.Process("blocker", func() { <-release })
	s.Radio.Discover(s.Peripheral)
	s.Require().NoError(s.plug.StopFindServices())
	close(release)
	s.flush()

	s.Len(found, 0, "events queued before stop MUST NOT be delivered")
}

func (s *PlugSuite) TestFindServices_UsesBuilderAdvertisement() {
	per := s.usePeripheral(testutils.CreateMockPeripheralFromJSON(heartRateProfile))
	onFound, found := s.collector()

	s.plug.FindServices([]string{"0000180d-0000-1000-8000-00805f9b34fb"}, onFound, "Heart")
	s.Radio.Discover(per)
	s.flush()

	s.Len(found, 1)
}
