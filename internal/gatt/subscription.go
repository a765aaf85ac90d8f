package gatt

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/guard"
)

// NotifyFunc receives notification payloads in radio order.
type NotifyFunc func(data []byte)

type subscription struct {
	key  string
	char device.Characteristic

	mu      sync.Mutex
	cancel  func()
	dropped bool
	// live is cleared on unsubscribe so that payloads already queued are dropped.
	live atomic.Bool
}

// SubscriptionKey identifies a characteristic across peripherals.
func SubscriptionKey(c device.Characteristic) string {
	return c.PeripheralID() + "/" + device.Expand(c.ServiceID()) + "/" + device.Expand(c.ID())
}

// Subscribe enables notifications on c and forwards each payload to onNotify
// through the dispatch queue. Subscribing an already subscribed
// characteristic is a no-op. On failure nothing is registered.
func (p *Plug) Subscribe(ctx context.Context, c device.Characteristic, onNotify NotifyFunc) error {
	key := SubscriptionKey(c)
	log := p.logger.WithField("subscription", key)

	entry := &subscription{key: key, char: c}
	p.subsMu.Lock()
	if _, ok := p.subs[key]; ok {
		p.subsMu.Unlock()
		log.Debug("Already subscribed, ignoring")
		return nil
	}
	p.subs[key] = entry
	p.subsMu.Unlock()

	err := guard.Run(ctx, p.opts.RWTimeout, "subscribe", func(ctx context.Context) error {
		return c.Subscribe(ctx)
	})
	if err != nil {
		p.removeSubscription(entry)
		log.WithError(err).Debug("Subscribe failed")
		return device.WrapAdapter("subscribe", err)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.dropped {
		// Unsubscribed while the radio was still subscribing.
		log.Debug("Subscription dropped while subscribing, unsubscribing radio")
		if err := guard.Run(context.Background(), p.opts.RWTimeout, "unsubscribe", func(ctx context.Context) error {
			return c.Unsubscribe(ctx)
		}); err != nil {
			log.WithError(err).Warn("Failed to unsubscribe dropped subscription")
		}
		return nil
	}
	entry.live.Store(true)
	entry.cancel = c.OnData(func(data []byte) {
		if !entry.live.Load() {
			return
		}
		buf := append([]byte(nil), data...)
		p.queue.Process("notify:"+key, func() {
			if entry.live.Load() {
				onNotify(buf)
			}
		})
	})

	log.Debug("Subscribed")
	return nil
}

// Unsubscribe disables notifications on c. Unsubscribing an unknown
// characteristic is a no-op. On failure the subscription stays registered so
// the call can be retried.
func (p *Plug) Unsubscribe(ctx context.Context, c device.Characteristic) error {
	key := SubscriptionKey(c)
	log := p.logger.WithField("subscription", key)

	p.subsMu.Lock()
	entry, ok := p.subs[key]
	p.subsMu.Unlock()
	if !ok {
		log.Debug("Not subscribed, ignoring")
		return nil
	}

	err := guard.Run(ctx, p.opts.RWTimeout, "unsubscribe", func(ctx context.Context) error {
		return c.Unsubscribe(ctx)
	})
	if err != nil {
		log.WithError(err).Debug("Unsubscribe failed")
		return device.WrapAdapter("unsubscribe", err)
	}

	p.dropSubscription(entry)
	log.Debug("Unsubscribed")
	return nil
}

// Subscriptions returns the keys of the active subscriptions.
func (p *Plug) Subscriptions() []string {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	keys := make([]string, 0, len(p.subs))
	for key := range p.subs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (p *Plug) dropSubscription(entry *subscription) {
	entry.mu.Lock()
	entry.dropped = true
	entry.live.Store(false)
	if entry.cancel != nil {
		entry.cancel()
		entry.cancel = nil
	}
	entry.mu.Unlock()
	p.removeSubscription(entry)
}

// removeSubscription deletes entry from the registry unless a newer
// subscription has taken its key.
func (p *Plug) removeSubscription(entry *subscription) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	if cur, ok := p.subs[entry.key]; ok && cur == entry {
		delete(p.subs, entry.key)
	}
}

// dropAllSubscriptions detaches every listener without talking to the radio.
func (p *Plug) dropAllSubscriptions() {
	p.subsMu.Lock()
	entries := make([]*subscription, 0, len(p.subs))
	for _, e := range p.subs {
		entries = append(entries, e)
	}
	p.subsMu.Unlock()
	for _, e := range entries {
		p.dropSubscription(e)
	}
	if len(entries) > 0 {
		p.logger.WithFields(logrus.Fields{"subscriptions": len(entries)}).Debug("Dropped subscriptions")
	}
}
