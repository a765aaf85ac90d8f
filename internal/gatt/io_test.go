package gatt

import (
	"context"
	"errors"
	"time"

	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/dispatch"
	"github.com/srg/gattplug/internal/testutils"
	"github.com/stretchr/testify/mock"
)

func (s *PlugSuite) TestRead() {
	c := s.discoverBattery()

	data, err := s.plug.Read(context.Background(), c)
	s.Require().NoError(err)
	s.Equal([]byte{50}, data)

	data, err = s.plug.DirtyRead(context.Background(), c)
	s.Require().NoError(err)
	s.Equal([]byte{50}, data)
}

func (s *PlugSuite) TestRead_Timeout() {
	c := s.discoverBattery()
	testutils.Unset(&c.Mock, "Read")
	c.On("Read", mock.Anything).Return(func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	_, err := s.plug.Read(context.Background(), c)

	s.ErrorIs(err, device.ErrTimeout)
	s.Less(time.Since(start), s.DiscoveryTimeout, "read MUST be bounded by the read/write timeout")
}

func (s *PlugSuite) TestRead_AdapterError() {
	c := s.discoverBattery()
	testutils.Unset(&c.Mock, "Read")
	gattErr := errors.New("insufficient authentication")
	c.On("Read", mock.Anything).Return(nil, gattErr)

	_, err := s.plug.Read(context.Background(), c)

	s.ErrorIs(err, gattErr)
	var aerr *device.AdapterError
	s.Require().ErrorAs(err, &aerr)
	s.Equal("read", aerr.Op)
}

func (s *PlugSuite) TestReadTo_DispatchesResult() {
	c := s.discoverBattery()
	type result struct {
		data []byte
		err  error
	}
	got := make(chan result, 1)

	s.plug.ReadTo(context.Background(), c, func(data []byte, err error) { got <- result{data, err} })

	select {
	case r := <-got:
		s.NoError(r.err)
		s.Equal([]byte{50}, r.data)
	case <-time.After(2 * time.Second):
		s.FailNow("read result MUST be dispatched")
	}
}

func (s *PlugSuite) TestReadTo_OverflowStillAnswers() {
	// GOAL: A read result pushed out of a full dispatch queue still reaches the caller
	//
	// TEST SCENARIO: queue of one blocked → ReadTo result queued → flood evicts it → callback gets ErrDropped once

	q := dispatch.New(1, s.Logger)
	plug, err := New(s.Radio, Options{
		DiscoveryTimeout: s.DiscoveryTimeout,
		RWTimeout:        s.RWTimeout,
		Queue:            q,
	}, s.Logger)
	s.Require().NoError(err)
	_, err = plug.FindCharacteristics(context.Background(), "180f", s.Peripheral, "2a19")
	s.Require().NoError(err)
	c := s.Char("180F", "2A19")

	block := make(chan struct{})
	started := make(chan struct{})
	q.Process("blocker", func() {
		close(started)
		<-block
	})
	<-started

	got := make(chan error, 2)
	plug.ReadTo(context.Background(), c, func(_ []byte, err error) { got <- err })
	s.Require().Eventually(func() bool { return q.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	q.Process("flood", func() {})

	select {
	case err := <-got:
		s.ErrorIs(err, dispatch.ErrDropped)
	case <-time.After(2 * time.Second):
		s.FailNow("dropped read MUST still answer the caller")
	}

	close(block)
	q.Close()
	<-q.Done()
	s.Len(got, 0, "read callback MUST run exactly once")
}

func (s *PlugSuite) TestWrite() {
	c := s.discoverBattery()

	s.Require().NoError(s.plug.Write(context.Background(), c, []byte("hi"), true))
	c.AssertCalled(s.T(), "Write", mock.Anything, []byte("hi"), true)
}

func (s *PlugSuite) TestWriteValue_Coerces() {
	c := s.discoverBattery()

	s.Require().NoError(s.plug.WriteValue(context.Background(), c, []int{1, 2, 255}, false))
	c.AssertCalled(s.T(), "Write", mock.Anything, []byte{1, 2, 255}, false)

	err := s.plug.WriteValue(context.Background(), c, 3.5, false)
	s.ErrorContains(err, "unsupported value type")
	c.AssertNumberOfCalls(s.T(), "Write", 1)
}

func (s *PlugSuite) TestDisconnect_WithDelay() {
	per := s.Peripheral
	_ = s.discoverBattery()

	start := time.Now()
	s.Require().NoError(s.plug.Disconnect(context.Background(), per, 30*time.Millisecond))

	s.GreaterOrEqual(time.Since(start), 30*time.Millisecond)
	s.Equal(device.Disconnected, per.State())
}

func (s *PlugSuite) TestDisconnect_CancelledDuringDelay() {
	per := s.Peripheral
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.plug.Disconnect(ctx, per, time.Second)

	s.ErrorIs(err, context.Canceled)
	per.AssertNotCalled(s.T(), "Disconnect", mock.Anything)
}
