package gatt

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/dispatch"
	"github.com/srg/gattplug/internal/groutine"
	"github.com/srg/gattplug/internal/guard"
)

// ReadFunc receives the outcome of ReadTo.
type ReadFunc func(data []byte, err error)

// Read reads c, bounded by the read/write timeout.
func (p *Plug) Read(ctx context.Context, c device.Characteristic) ([]byte, error) {
	return p.read(ctx, c, "read")
}

// DirtyRead reads c outside of any session ordering. Meant for out-of-band
// polling while other operations on the same peripheral are in flight.
func (p *Plug) DirtyRead(ctx context.Context, c device.Characteristic) ([]byte, error) {
	return p.read(ctx, c, "dirty read")
}

// ReadTo reads c in the background and hands the result to fn through the
// dispatch queue. fn is called exactly once; if the queue drops the result,
// fn gets dispatch.ErrDropped instead.
func (p *Plug) ReadTo(ctx context.Context, c device.Characteristic, fn ReadFunc) {
	groutine.Go(ctx, "read-"+device.Shorten(c.ID()), func(ctx context.Context) {
		data, err := p.read(ctx, c, "read")
		p.queue.ProcessOrDrop("read:"+SubscriptionKey(c), func() {
			fn(data, err)
		}, func() {
			fn(nil, device.WrapAdapter("read", dispatch.ErrDropped))
		})
	})
}

func (p *Plug) read(ctx context.Context, c device.Characteristic, op string) ([]byte, error) {
	data, err := guard.Do(ctx, p.opts.RWTimeout, op, func(ctx context.Context) ([]byte, error) {
		return c.Read(ctx)
	})
	if err != nil {
		return nil, device.WrapAdapter(op, err)
	}

	p.logger.WithFields(logrus.Fields{
		"characteristic": c.ID(),
		"bytes":          len(data),
	}).Debugf("%s complete", op)
	return data, nil
}

// Write writes data to c, bounded by the read/write timeout.
func (p *Plug) Write(ctx context.Context, c device.Characteristic, data []byte, withoutResponse bool) error {
	err := guard.Run(ctx, p.opts.RWTimeout, "write", func(ctx context.Context) error {
		return c.Write(ctx, data, withoutResponse)
	})
	if err != nil {
		return device.WrapAdapter("write", err)
	}

	p.logger.WithFields(logrus.Fields{
		"characteristic":   c.ID(),
		"bytes":            len(data),
		"without_response": withoutResponse,
	}).Debug("write complete")
	return nil
}

// WriteValue coerces v with device.ToBuffer and writes it.
func (p *Plug) WriteValue(ctx context.Context, c device.Characteristic, v any, withoutResponse bool) error {
	data, err := device.ToBuffer(v)
	if err != nil {
		return err
	}
	return p.Write(ctx, c, data, withoutResponse)
}

// Disconnect closes the link to per after an optional delay, bounded by the
// read/write timeout. Subscriptions on per are left registered.
func (p *Plug) Disconnect(ctx context.Context, per device.Peripheral, delay time.Duration) error {
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := guard.Run(ctx, p.opts.RWTimeout, "disconnect", func(ctx context.Context) error {
		return per.Disconnect(ctx)
	})
	if err != nil {
		return device.WrapAdapter("disconnect", err)
	}
	p.logger.WithField("peripheral", per.ID()).Info("Disconnected")
	return nil
}
