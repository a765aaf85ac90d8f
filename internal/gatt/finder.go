package gatt

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FoundFunc receives every matching peripheral together with the service ids
// exactly as the caller passed them to FindServices.
type FoundFunc func(serviceIDs []string, p device.Peripheral)

// deferredFinder is a one-shot wait for the radio to power on.
type deferredFinder struct {
	cancel func()
}

type finder struct {
	key        string
	serviceIDs []string
	namePrefix string
	onFound    FoundFunc
	cancel     func()
	active     atomic.Bool
}

// accepts re-checks a discovery event application side, since the radio scan
// is filtered by the union of all finders' services.
func (f *finder) accepts(p device.Peripheral) bool {
	if f.namePrefix != "" && !strings.HasPrefix(p.Name(), f.namePrefix) {
		return false
	}
	advertised := p.AdvertisedServices()
	if len(f.serviceIDs) == 0 || len(advertised) == 0 {
		return true
	}
	for _, want := range f.serviceIDs {
		for _, got := range advertised {
			if device.CompareID(want, got) {
				return true
			}
		}
	}
	return false
}

// FindServices starts reporting peripherals advertising any of serviceIDs to
// onFound via the dispatch queue. A second call with the same service set
// replaces the first. If the radio is not powered on the finder is deferred
// until it is; the call itself never fails.
func (p *Plug) FindServices(serviceIDs []string, onFound FoundFunc, namePrefix string) {
	if p.closing.Load() {
		p.logger.WithError(device.ErrClosed).Warn("FindServices after shutdown ignored")
		return
	}

	f := &finder{
		key:        device.CanonicalKey(serviceIDs),
		serviceIDs: append([]string(nil), serviceIDs...),
		namePrefix: namePrefix,
		onFound:    onFound,
	}
	log := p.logger.WithFields(logrus.Fields{
		"services":    f.key,
		"name_prefix": namePrefix,
	})

	p.findMu.Lock()
	defer p.findMu.Unlock()

	if d, ok := p.pending[f.key]; ok {
		d.cancel()
		delete(p.pending, f.key)
	}

	if state := p.radio.State(); state != device.StatePoweredOn {
		log.WithError(device.ErrRadioNotReady).WithField("state", state).Info("Deferring scan until radio is powered on")

		d := &deferredFinder{}
		d.cancel = p.radio.OnStateChange(func(s device.RadioState) {
			if s != device.StatePoweredOn {
				log.WithError(device.ErrRadioNotReady).WithField("state", s).Debug("Radio state changed, still waiting")
				return
			}

			p.findMu.Lock()
			defer p.findMu.Unlock()
			// Superseded, stopped or already started.
			if cur, ok := p.pending[f.key]; !ok || cur != d {
				return
			}
			delete(p.pending, f.key)
			d.cancel()
			p.startFinderLocked(f)
		})
		p.pending[f.key] = d
		return
	}

	p.startFinderLocked(f)
}

// StopFindServices removes every finder, including deferred ones, and stops
// radio scanning. Safe to call when nothing is scanning.
func (p *Plug) StopFindServices() error {
	p.findMu.Lock()
	defer p.findMu.Unlock()

	for key, d := range p.pending {
		d.cancel()
		delete(p.pending, key)
	}

	if p.finders.Len() == 0 {
		return nil
	}

	for pair := p.finders.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.active.Store(false)
		pair.Value.cancel()
	}
	n := p.finders.Len()
	p.finders = orderedmap.New[string, *finder]()

	p.logger.WithField("finders", n).Debug("Stopped finding services")
	if err := p.radio.StopScanning(); err != nil {
		return device.WrapAdapter("stop scanning", err)
	}
	return nil
}

// ActiveFinders returns the canonical keys of the active finders in start order.
func (p *Plug) ActiveFinders() []string {
	p.findMu.Lock()
	defer p.findMu.Unlock()

	keys := make([]string, 0, p.finders.Len())
	for pair := p.finders.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (p *Plug) startFinderLocked(f *finder) {
	if prev, ok := p.finders.Get(f.key); ok {
		prev.active.Store(false)
		prev.cancel()
		p.finders.Delete(f.key)
		p.logger.WithField("services", f.key).Debug("Replacing finder for the same services")
	}

	f.active.Store(true)
	f.cancel = p.radio.OnDiscover(func(per device.Peripheral) {
		if !f.active.Load() || !f.accepts(per) {
			return
		}
		p.queue.Process("found:"+f.key, func() {
			// Stopped after the event was queued.
			if f.active.Load() {
				f.onFound(f.serviceIDs, per)
			}
		})
	})
	p.finders.Set(f.key, f)

	ids, opts := p.scanParamsLocked()
	if err := p.radio.StartScanning(context.Background(), ids, opts); err != nil {
		p.logger.WithError(device.WrapAdapter("start scanning", err)).
			WithField("services", f.key).
			Error("Failed to start scanning")
		return
	}
	p.logger.WithFields(logrus.Fields{
		"services": f.key,
		"finders":  p.finders.Len(),
	}).Info("Finding services")
}

// scanParamsLocked builds the radio scan filter covering every active finder.
// Any unfiltered finder makes the whole scan unfiltered.
func (p *Plug) scanParamsLocked() ([]string, device.ScanOptions) {
	opts := device.ScanOptions{AllowDuplicates: p.opts.ScanAllowDuplicates}

	var ids []string
	seen := make(map[string]struct{})
	unfiltered := false
	for pair := p.finders.Oldest(); pair != nil; pair = pair.Next() {
		if len(pair.Value.serviceIDs) == 0 {
			unfiltered = true
		}
		for _, id := range pair.Value.serviceIDs {
			e := device.Expand(id)
			if _, ok := seen[e]; !ok && e != "" {
				seen[e] = struct{}{}
				ids = append(ids, e)
			}
		}
	}
	if unfiltered {
		ids = nil
	}

	if p.finders.Len() == 1 && p.radio.Capabilities().NameFilter {
		opts.NamePrefix = p.finders.Oldest().Value.namePrefix
	}
	return ids, opts
}
