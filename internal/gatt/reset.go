package gatt

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/groutine"
	"github.com/srg/gattplug/internal/guard"
)

// Reset disconnects every peripheral the radio reports as connected. The
// disconnects run concurrently and individual failures are only logged.
// Only a failure to enumerate connections is returned.
//
// Backends may not see links opened outside this process; see
// device.Capabilities.ConnectedEnumeration.
func (p *Plug) Reset(ctx context.Context) error {
	peripherals, err := guard.Do(ctx, p.opts.RWTimeout, "list connections", p.radio.ConnectedPeripherals)
	if err != nil {
		return device.WrapAdapter("list connections", err)
	}

	var failed atomic.Int32
	fns := make([]func(ctx context.Context), len(peripherals))
	for i, per := range peripherals {
		fns[i] = func(ctx context.Context) {
			err := guard.Run(ctx, p.opts.RWTimeout, "disconnect", func(ctx context.Context) error {
				return per.Disconnect(ctx)
			})
			if err != nil {
				failed.Add(1)
				p.logger.WithError(err).WithField("peripheral", per.ID()).Warn("Reset: disconnect failed")
			}
		}
	}
	groutine.All(ctx, "reset-disconnect", fns...)

	p.logger.WithFields(logrus.Fields{
		"connections": len(peripherals),
		"failed":      failed.Load(),
	}).Info("Reset complete")
	return nil
}

// Shutdown stops finding, detaches radio listeners, resets connections, drops
// subscriptions and closes the radio. Only the first call does any work.
func (p *Plug) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		p.closing.Store(true)
		defer close(p.done)

		if serr := p.StopFindServices(); serr != nil {
			p.logger.WithError(serr).Warn("Shutdown: stop scanning failed")
		}
		if p.cancelError != nil {
			p.cancelError()
		}

		resetErr := p.Reset(ctx)
		p.dropAllSubscriptions()
		if p.ownsQueue {
			p.queue.Close()
		}
		closeErr := device.WrapAdapter("close radio", p.radio.Close())

		err = errors.Join(resetErr, closeErr)
		p.logger.Info("Shut down")
	})
	return err
}
