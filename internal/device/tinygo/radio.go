// Package tinygo implements the radio backend on tinygo.org/x/bluetooth.
//
// The tinygo stack cannot enumerate links it did not open and does not
// expose characteristic properties, so both are approximated here.
package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// adapter is the subset of *bluetooth.Adapter the radio drives.
type adapter interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
	Connect(address bluetooth.Address, params bluetooth.ConnectionParams) (bluetooth.Device, error)
	SetConnectHandler(c func(d bluetooth.Device, connected bool))
}

// Radio implements device.Radio on the tinygo default adapter.
type Radio struct {
	adapter adapter
	logger  *logrus.Logger

	mu       sync.Mutex
	state    device.RadioState
	scanDone chan struct{}

	peripherals *hashmap.Map[string, *Peripheral]

	discover device.Listeners[device.Peripheral]
	states   device.Listeners[device.RadioState]
	errs     device.Listeners[error]
}

// NewRadio enables the default adapter.
func NewRadio(logger *logrus.Logger) (*Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}
	r := newRadio(bluetooth.DefaultAdapter, logger)
	if err := r.enable(); err != nil {
		return nil, err
	}
	return r, nil
}

func newRadio(a adapter, logger *logrus.Logger) *Radio {
	return &Radio{
		adapter:     a,
		logger:      logger,
		state:       device.StateUnknown,
		peripherals: hashmap.New[string, *Peripheral](),
	}
}

func (r *Radio) enable() error {
	if err := r.adapter.Enable(); err != nil {
		r.logger.WithError(err).Error("Failed to enable BLE adapter")
		r.setState(device.StatePoweredOff)
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	}
	r.adapter.SetConnectHandler(r.onConnectEvent)
	r.setState(device.StatePoweredOn)
	return nil
}

func (r *Radio) State() device.RadioState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Radio) Capabilities() device.Capabilities {
	return device.Capabilities{}
}

// StartScanning filters by service app-side; tinygo reports every advertisement.
func (r *Radio) StartScanning(_ context.Context, serviceIDs []string, opts device.ScanOptions) error {
	if err := r.StopScanning(); err != nil {
		return err
	}

	filter, err := toUUIDs(serviceIDs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != device.StatePoweredOn {
		return device.ErrRadioNotReady
	}

	done := make(chan struct{})
	r.scanDone = done

	// seen is only touched from the scan callback goroutine
	seen := map[string]struct{}{}
	callback := func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		matched, ok := matchAdvertisement(result, filter)
		if !ok {
			return
		}
		id := result.Address.String()
		if !opts.AllowDuplicates {
			if _, dup := seen[id]; dup {
				return
			}
			seen[id] = struct{}{}
		}
		r.discover.Emit(r.peripheralFor(result, matched))
	}

	r.logger.WithFields(logrus.Fields{
		"services":         serviceIDs,
		"allow_duplicates": opts.AllowDuplicates,
	}).Debug("Starting BLE scan")

	groutine.Go(context.Background(), "tinygo-scan", func(context.Context) {
		defer close(done)
		if err := r.adapter.Scan(callback); err != nil {
			r.fail(err)
		}
	})
	return nil
}

func (r *Radio) StopScanning() error {
	r.mu.Lock()
	done := r.scanDone
	r.scanDone = nil
	r.mu.Unlock()

	if done == nil {
		return nil
	}
	err := r.adapter.StopScan()
	if err != nil {
		// Scan may have already returned on its own; nothing left to stop then.
		select {
		case <-done:
			return nil
		default:
		}
		return fmt.Errorf("stop scan: %w", err)
	}
	<-done
	r.logger.Debug("BLE scan stopped")
	return nil
}

func (r *Radio) OnDiscover(fn func(device.Peripheral)) func() { return r.discover.Add(fn) }

func (r *Radio) OnStateChange(fn func(device.RadioState)) func() { return r.states.Add(fn) }

func (r *Radio) OnError(fn func(error)) func() { return r.errs.Add(fn) }

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

func (r *Radio) Close() error {
	err := r.StopScanning()
	r.discover.Clear()
	r.states.Clear()
	r.errs.Clear()
	return err
}

func (r *Radio) peripheralFor(result bluetooth.ScanResult, matched []string) *Peripheral {
	id := result.Address.String()
	p, _ := r.peripherals.GetOrInsert(id, newPeripheral(r, result.Address))
	p.updateFromScan(result.LocalName(), matched)
	return p
}

// onConnectEvent tracks link loss reported by the adapter.
func (r *Radio) onConnectEvent(d bluetooth.Device, connected bool) {
	if connected {
		return
	}
	if p, ok := r.peripherals.Get(d.Address.String()); ok {
		r.logger.WithField("address", p.ID()).Debug("BLE link lost")
		p.markDisconnected()
	}
}

func (r *Radio) fail(err error) {
	r.logger.WithError(err).Error("BLE radio failure")
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

// matchAdvertisement returns the requested ids the advertisement carries.
// An empty filter accepts everything.
func matchAdvertisement(result bluetooth.ScanResult, filter []bluetooth.UUID) ([]string, bool) {
	if len(filter) == 0 {
		return nil, true
	}
	var matched []string
	for _, u := range filter {
		if result.HasServiceUUID(u) {
			matched = append(matched, u.String())
		}
	}
	return matched, len(matched) > 0
}

func toUUIDs(ids []string) ([]bluetooth.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]bluetooth.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := bluetooth.ParseUUID(device.Expand(id))
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", id, err)
		}
		out = append(out, u)
	}
	return out, nil
}
