package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/groutine"
)

// Radio implements device.Radio on top of a go-ble ble.Device.
//
// go-ble scans without a service filter, so StartScanning filters
// advertisements by service here before emitting discover events.
type Radio struct {
	dev    ble.Device
	logger *logrus.Logger

	mu         sync.Mutex
	state      device.RadioState
	scanCancel context.CancelFunc
	scanDone   chan struct{}

	peripherals *hashmap.Map[string, *Peripheral]

	discover device.Listeners[device.Peripheral]
	states   device.Listeners[device.RadioState]
	errs     device.Listeners[error]
}

// NewRadio opens the platform BLE device through DeviceFactory.
func NewRadio(logger *logrus.Logger) (*Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithError(err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}

	return newRadio(dev, logger), nil
}

func newRadio(dev ble.Device, logger *logrus.Logger) *Radio {
	return &Radio{
		dev:         dev,
		logger:      logger,
		state:       device.StatePoweredOn,
		peripherals: hashmap.New[string, *Peripheral](),
	}
}

func (r *Radio) State() device.RadioState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Capabilities: go-ble can neither filter by name nor list links it did not open.
func (r *Radio) Capabilities() device.Capabilities {
	return device.Capabilities{}
}

func (r *Radio) StartScanning(_ context.Context, serviceIDs []string, opts device.ScanOptions) error {
	if err := r.StopScanning(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != device.StatePoweredOn {
		return device.ErrRadioNotReady
	}

	scanCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.scanCancel = cancel
	r.scanDone = done

	filter := append([]string(nil), serviceIDs...)
	handler := func(adv ble.Advertisement) {
		if !advertisesAny(adv, filter) {
			return
		}
		r.discover.Emit(r.peripheralFor(adv))
	}

	r.logger.WithFields(logrus.Fields{
		"services":         filter,
		"allow_duplicates": opts.AllowDuplicates,
	}).Debug("Starting BLE scan")

	groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		defer close(done)
		err := r.dev.Scan(ctx, opts.AllowDuplicates, handler)
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		r.fail(NormalizeError(err))
	})
	return nil
}

func (r *Radio) StopScanning() error {
	r.mu.Lock()
	cancel, done := r.scanCancel, r.scanDone
	r.scanCancel, r.scanDone = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	r.logger.Debug("BLE scan stopped")
	return nil
}

func (r *Radio) OnDiscover(fn func(device.Peripheral)) func() { return r.discover.Add(fn) }

func (r *Radio) OnStateChange(fn func(device.RadioState)) func() { return r.states.Add(fn) }

func (r *Radio) OnError(fn func(error)) func() { return r.errs.Add(fn) }

// ConnectedPeripherals lists the peripherals connected through this radio.
func (r *Radio) ConnectedPeripherals(_ context.Context) ([]device.Peripheral, error) {
	var out []device.Peripheral
	r.peripherals.Range(func(_ string, p *Peripheral) bool {
		if p.State() == device.Connected {
			out = append(out, p)
		}
		return true
	})
	return out, nil
}

// Peripheral returns a handle for address, creating it if it was never seen.
func (r *Radio) Peripheral(address string) *Peripheral {
	p, _ := r.peripherals.GetOrInsert(address, newPeripheral(r, address))
	return p
}

func (r *Radio) Close() error {
	_ = r.StopScanning()
	r.discover.Clear()
	r.states.Clear()
	r.errs.Clear()
	return NormalizeError(r.dev.Stop())
}

func (r *Radio) peripheralFor(adv ble.Advertisement) *Peripheral {
	p := r.Peripheral(adv.Addr().String())
	p.updateFromAdvertisement(adv)
	return p
}

// fail reports a backend failure; a powered-off controller also flips the state.
func (r *Radio) fail(err error) {
	r.logger.WithError(err).Error("BLE radio failure")
	if errors.Is(err, device.ErrBluetoothOff) {
		r.setState(device.StatePoweredOff)
	}
	r.errs.Emit(err)
}

func (r *Radio) setState(s device.RadioState) {
	r.mu.Lock()
	changed := r.state != s
	r.state = s
	r.mu.Unlock()
	if changed {
		r.states.Emit(s)
	}
}
