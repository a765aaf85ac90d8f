// Package noop provides a radio backend for hosts without Bluetooth.
// Every operation succeeds immediately and no event ever fires, so the
// layers above can start without hardware.
package noop

import (
	"context"

	"github.com/srg/gattplug/internal/device"
)

type Radio struct {
	discover device.Listeners[device.Peripheral]
	states   device.Listeners[device.RadioState]
	errs     device.Listeners[error]
}

func NewRadio() *Radio {
	return &Radio{}
}

func (r *Radio) State() device.RadioState { return device.StatePoweredOn }

func (r *Radio) Capabilities() device.Capabilities { return device.Capabilities{} }

func (r *Radio) StartScanning(context.Context, []string, device.ScanOptions) error { return nil }

func (r *Radio) StopScanning() error { return nil }

func (r *Radio) OnDiscover(fn func(device.Peripheral)) func() { return r.discover.Add(fn) }

func (r *Radio) OnStateChange(fn func(device.RadioState)) func() { return r.states.Add(fn) }

func (r *Radio) OnError(fn func(error)) func() { return r.errs.Add(fn) }

func (r *Radio) ConnectedPeripherals(context.Context) ([]device.Peripheral, error) {
	return nil, nil
}

func (r *Radio) Close() error {
	r.discover.Clear()
	r.states.Clear()
	r.errs.Clear()
	return nil
}
