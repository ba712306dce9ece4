// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publisher pushes router status snapshots to subscribers at a fixed
// cadence, and serves them to websocket clients.
package publisher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/skyrelay/pkg/clock"
	"github.com/Thermoquad/skyrelay/pkg/router"
)

// DefaultInterval is the publish cadence
const DefaultInterval = time.Second

// StatusSource supplies snapshots. *router.Router implements it.
type StatusSource interface {
	Status() router.Status
}

// Publisher polls a StatusSource and fans snapshots out to subscribers.
// Each subscriber holds at most one pending snapshot; a slow subscriber
// sees the most recent one and misses the ones in between.
type Publisher struct {
	source   StatusSource
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[chan router.Status]struct{}
}

// Option configures a Publisher
type Option func(*Publisher)

// WithInterval sets the publish cadence
func WithInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock sets the clock that drives the cadence
func WithClock(c clock.Clock) Option {
	return func(p *Publisher) { p.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// New creates a publisher for source
func New(source StatusSource, opts ...Option) *Publisher {
	p := &Publisher{
		source:   source,
		clock:    clock.Real(),
		interval: DefaultInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		subs:     make(map[chan router.Status]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns a fresh snapshot from the source
func (p *Publisher) Current() router.Status {
	return p.source.Status()
}

// Subscribe registers a subscriber. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (p *Publisher) Subscribe() (<-chan router.Status, func()) {
	ch := make(chan router.Status, 1)

	p.mu.Lock()
	p.subs[ch] = struct{}{}
	n := len(p.subs)
	p.mu.Unlock()
	p.logger.Debug("subscriber added", "subscribers", n)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			close(ch)
			n := len(p.subs)
			p.mu.Unlock()
			p.logger.Debug("subscriber removed", "subscribers", n)
		})
	}
}

// Subscribers returns the number of active subscribers
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Publish delivers st to every subscriber without blocking
func (p *Publisher) Publish(st router.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for ch := range p.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		// Replace the stale pending snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// Run publishes a snapshot every interval until ctx is done
func (p *Publisher) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("status publisher running", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Publish(p.source.Status())
		}
	}
}
