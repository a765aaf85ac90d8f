// Package gatt orchestrates BLE GATT sessions on top of a device.Radio:
// service finding, connect and discovery, guarded I/O, notification
// subscriptions, and connection reset/shutdown.
package gatt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/dispatch"
	"github.com/srg/gattplug/internal/groutine"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrMissingTimeout is returned by New when a required timeout is not configured.
var ErrMissingTimeout = errors.New("gatt: timeout not configured")

// Options configures a Plug. Both timeouts are required.
type Options struct {
	// DiscoveryTimeout bounds the whole connect → discover pipeline.
	DiscoveryTimeout time.Duration
	// RWTimeout bounds each read, write, subscribe, unsubscribe and disconnect.
	RWTimeout time.Duration

	ScanAllowDuplicates bool

	// Queue receives every callback destined for application code.
	// If nil, the Plug creates and owns one of QueueSize.
	Queue     *dispatch.Queue
	QueueSize int
}

// Validate checks that both timeouts are set.
func (o Options) Validate() error {
	if o.DiscoveryTimeout <= 0 {
		return fmt.Errorf("%w: discovery timeout", ErrMissingTimeout)
	}
	if o.RWTimeout <= 0 {
		return fmt.Errorf("%w: read/write timeout", ErrMissingTimeout)
	}
	return nil
}

// Plug owns the finder table, the subscription registry and the lifecycle of one radio.
type Plug struct {
	radio     device.Radio
	logger    *logrus.Logger
	queue     *dispatch.Queue
	ownsQueue bool
	opts      Options

	findMu  sync.Mutex
	finders *orderedmap.OrderedMap[string, *finder]
	pending map[string]*deferredFinder // finders waiting for poweredOn, by key

	subsMu sync.Mutex
	subs   map[string]*subscription // by SubscriptionKey

	cancelError  func()
	closing      atomic.Bool
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a Plug over radio. A radio error event shuts the Plug down.
func New(radio device.Radio, opts Options, logger *logrus.Logger) (*Plug, error) {
	if radio == nil {
		return nil, errors.New("gatt: radio is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	p := &Plug{
		radio:   radio,
		logger:  logger,
		queue:   opts.Queue,
		opts:    opts,
		finders: orderedmap.New[string, *finder](),
		pending: make(map[string]*deferredFinder),
		subs:    make(map[string]*subscription),
		done:    make(chan struct{}),
	}
	if p.queue == nil {
		p.queue = dispatch.New(opts.QueueSize, logger)
		p.ownsQueue = true
	}

	p.cancelError = radio.OnError(p.onRadioError)
	return p, nil
}

// Radio returns the underlying radio.
func (p *Plug) Radio() device.Radio {
	return p.radio
}

// Done is closed once Shutdown has completed.
func (p *Plug) Done() <-chan struct{} {
	return p.done
}

func (p *Plug) onRadioError(err error) {
	p.logger.WithError(err).Error("Radio error, shutting down")
	// Shutdown blocks on radio calls; never run it on the radio's event goroutine.
	groutine.Go(context.Background(), "radio-error-shutdown", func(ctx context.Context) {
		if serr := p.Shutdown(ctx); serr != nil {
			p.logger.WithError(serr).Warn("Shutdown after radio error failed")
		}
	})
}
