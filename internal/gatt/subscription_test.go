package gatt

import (
	"context"
	"errors"
	"time"

	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/testutils"
	"github.com/srg/gattplug/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

func (s *PlugSuite) discoverBattery() *mocks.MockCharacteristic {
	_, err := s.plug.FindCharacteristics(context.Background(), "180f", s.Peripheral, "2a19")
	s.Require().NoError(err)
	return s.Char("180F", "2A19")
}

func (s *PlugSuite) TestSubscribe_Idempotent() {
	// GOAL: A second subscribe on the same characteristic does nothing
	//
	// TEST SCENARIO: subscribe twice → one radio subscribe, one listener, payload delivered once

	ctx := context.Background()
	c := s.discoverBattery()
	got := make(chan []byte, 4)
	onNotify := func(data []byte) { got <- data }

	s.Require().NoError(s.plug.Subscribe(ctx, c, onNotify))
	s.Require().NoError(s.plug.Subscribe(ctx, c, onNotify))

	c.AssertNumberOfCalls(s.T(), "Subscribe", 1)
	s.Equal(1, c.DataListeners())
	s.Equal([]string{SubscriptionKey(c)}, s.plug.Subscriptions())

	c.Notify([]byte{42})
	s.flush()
	s.Require().Len(got, 1)
	s.Equal([]byte{42}, <-got)
}

func (s *PlugSuite) TestSubscribe_PreservesOrder() {
	ctx := context.Background()
	c := s.discoverBattery()
	got := make(chan byte, 8)

	s.Require().NoError(s.plug.Subscribe(ctx, c, func(data []byte) { got <- data[0] }))
	for i := byte(1); i <= 5; i++ {
		c.Notify([]byte{i})
	}
	s.flush()

	s.Require().Len(got, 5)
	for i := byte(1); i <= 5; i++ {
		s.Equal(i, <-got, "notifications MUST arrive in radio order")
	}
}

func (s *PlugSuite) TestSubscribe_FailureRecordsNothing() {
	ctx := context.Background()
	c := s.discoverBattery()
	testutils.Unset(&c.Mock, "Subscribe")
	c.On("Subscribe", mock.Anything).Return(errors.New("cccd write rejected")).Once()

	err := s.plug.Subscribe(ctx, c, func([]byte) {})

	s.ErrorContains(err, "cccd write rejected")
	s.Empty(s.plug.Subscriptions())
	s.Equal(0, c.DataListeners())

	// A retry goes to the radio again.
	c.On("Subscribe", mock.Anything).Return(nil).Once()
	s.Require().NoError(s.plug.Subscribe(ctx, c, func([]byte) {}))
	c.AssertNumberOfCalls(s.T(), "Subscribe", 2)
}

func (s *PlugSuite) TestSubscribe_Timeout() {
	c := s.discoverBattery()
	testutils.Unset(&c.Mock, "Subscribe")
	c.On("Subscribe", mock.Anything).Return(func(ctx context.Context) error {
		time.Sleep(2 * s.RWTimeout)
		return nil
	})

	err := s.plug.Subscribe(context.Background(), c, func([]byte) {})

	s.ErrorIs(err, device.ErrTimeout)
	s.Empty(s.plug.Subscriptions())
	s.Equal(0, c.DataListeners(), "late radio success MUST NOT register a listener")
}

func (s *PlugSuite) TestSubscribe_AfterUnsubscribe() {
	// GOAL: A characteristic can be subscribed again once unsubscribed
	//
	// TEST SCENARIO: subscribe → unsubscribe → subscribe → second radio subscribe, one live listener

	ctx := context.Background()
	c := s.discoverBattery()
	got := make(chan []byte, 4)

	s.Require().NoError(s.plug.Subscribe(ctx, c, func([]byte) {}))
	s.Require().NoError(s.plug.Unsubscribe(ctx, c))
	s.Empty(s.plug.Subscriptions(), "unsubscribe MUST remove the entry")

	done := make(chan error, 1)
	go func() { done <- s.plug.Subscribe(ctx, c, func(data []byte) { got <- data }) }()
	select {
	case err := <-done:
		s.Require().NoError(err)
	case <-time.After(2 * time.Second):
		s.FailNow("subscribe after unsubscribe MUST return")
	}

	c.AssertNumberOfCalls(s.T(), "Subscribe", 2)
	s.Equal([]string{SubscriptionKey(c)}, s.plug.Subscriptions())
	s.Equal(1, c.DataListeners())

	c.Notify([]byte{7})
	s.flush()
	s.Require().Len(got, 1)
	s.Equal([]byte{7}, <-got)
}

func (s *PlugSuite) TestSubscribe_LateFailureKeepsNewerEntry() {
	// GOAL: A failing subscribe only removes its own entry
	//
	// TEST SCENARIO: subscribe pending → unsubscribe → subscribe again succeeds → first fails → newer entry stays

	ctx := context.Background()
	c := s.discoverBattery()
	entered := make(chan struct{})
	release := make(chan error)
	testutils.Unset(&c.Mock, "Subscribe")
	c.On("Subscribe", mock.Anything).Return(func(context.Context) error {
		close(entered)
		return <-release
	}).Once()
	c.On("Subscribe", mock.Anything).Return(nil)

	first := make(chan error, 1)
	go func() { first <- s.plug.Subscribe(ctx, c, func([]byte) {}) }()
	<-entered

	s.Require().NoError(s.plug.Unsubscribe(ctx, c))
	s.Require().NoError(s.plug.Subscribe(ctx, c, func([]byte) {}))
	release <- errors.New("cccd write rejected")

	s.Error(<-first)
	s.Equal([]string{SubscriptionKey(c)}, s.plug.Subscriptions(), "older failure MUST NOT remove the newer entry")
	s.Equal(1, c.DataListeners())
}

func (s *PlugSuite) TestSubscribe_DroppedWhilePendingUnsubscribesRadio() {
	// GOAL: A subscription dropped before the radio confirmed it does not leave the radio subscribed
	//
	// TEST SCENARIO: subscribe pending → unsubscribe → radio subscribe succeeds → radio unsubscribed again, no listener

	ctx := context.Background()
	c := s.discoverBattery()
	entered := make(chan struct{})
	release := make(chan error)
	testutils.Unset(&c.Mock, "Subscribe")
	c.On("Subscribe", mock.Anything).Return(func(context.Context) error {
		close(entered)
		return <-release
	}).Once()

	first := make(chan error, 1)
	go func() { first <- s.plug.Subscribe(ctx, c, func([]byte) {}) }()
	<-entered

	s.Require().NoError(s.plug.Unsubscribe(ctx, c))
	release <- nil

	s.NoError(<-first)
	s.Empty(s.plug.Subscriptions())
	s.Equal(0, c.DataListeners(), "dropped subscription MUST NOT register a listener")
	c.AssertNumberOfCalls(s.T(), "Unsubscribe", 2)
}

func (s *PlugSuite) TestUnsubscribe_UnknownIsNoop() {
	c := s.discoverBattery()

	s.NoError(s.plug.Unsubscribe(context.Background(), c))
	c.AssertNotCalled(s.T(), "Unsubscribe", mock.Anything)
}

func (s *PlugSuite) TestUnsubscribe_FailureKeepsEntry() {
	ctx := context.Background()
	c := s.discoverBattery()
	s.Require().NoError(s.plug.Subscribe(ctx, c, func([]byte) {}))

	testutils.Unset(&c.Mock, "Unsubscribe")
	c.On("Unsubscribe", mock.Anything).Return(errors.New("link busy")).Once()
	c.On("Unsubscribe", mock.Anything).Return(nil).Once()

	s.Error(s.plug.Unsubscribe(ctx, c))
	s.Len(s.plug.Subscriptions(), 1, "failed unsubscribe MUST leave the entry for a retry")
	s.Equal(1, c.DataListeners())

	s.Require().NoError(s.plug.Unsubscribe(ctx, c))
	s.Empty(s.plug.Subscriptions())
	s.Equal(0, c.DataListeners())
	c.AssertNumberOfCalls(s.T(), "Unsubscribe", 2)
}

func (s *PlugSuite) TestUnsubscribe_DropsQueuedNotifications() {
	ctx := context.Background()
	c := s.discoverBattery()
	got := make(chan []byte, 4)
	s.Require().NoError(s.plug.Subscribe(ctx, c, func(data []byte) { got <- data }))

	release := make(chan struct{})
	s.plug.queue.Process("blocker", func() { <-release })
	c.Notify([]byte{1})
	s.Require().NoError(s.plug.Unsubscribe(ctx, c))
	close(release)
	s.flush()

	s.Len(got, 0, "notification queued before unsubscribe MUST NOT be delivered")
}

func (s *PlugSuite) TestSubscriptionKey_SeparatesPeripherals() {
	a := &mocks.MockCharacteristic{CharID: "2a37", SvcID: "180d", OwnerID: "A"}
	b := &mocks.MockCharacteristic{CharID: "00002A37-0000-1000-8000-00805F9B34FB", SvcID: "0x180D", OwnerID: "B"}
	a2 := &mocks.MockCharacteristic{CharID: "0x2A37", SvcID: "180D", OwnerID: "A"}

	s.NotEqual(SubscriptionKey(a), SubscriptionKey(b))
	s.Equal(SubscriptionKey(a), SubscriptionKey(a2))
}
