// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package router bridges a flight controller's serial MAVLink link to a set of
// ground-station destinations.
//
// A Router owns one serial session at a time. While running, a fan-out pump
// decodes frames from the serial link, updates the vehicle state and queues
// each frame to every destination; per-destination sender goroutines deliver
// them in order. Frames arriving from destinations are decoded and funnelled
// through a single serial writer.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/skyrelay/pkg/clock"
	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/link"
	"github.com/Thermoquad/skyrelay/pkg/mavlink"
	"github.com/Thermoquad/skyrelay/pkg/telemetry"
)

// ErrInvalidState is returned when an operation is not valid in the current
// lifecycle state
var ErrInvalidState = errors.New("invalid router state")

// Router is the telemetry router. The zero value is not usable; call New.
type Router struct {
	opener      link.Opener
	clock       clock.Clock
	logger      *slog.Logger
	stopTimeout time.Duration
	queueSize   int
	decoderOpts []mavlink.DecoderOption

	registry  *destination.Registry
	extractor *telemetry.Extractor
	stats     counters

	mu      sync.Mutex // serialises Start, Stop and destination changes
	state   atomic.Int32
	session atomic.Pointer[session]
	lastErr atomic.Pointer[failure]
}

type failure struct{ err error }

// New creates a stopped router
func New(opts ...Option) *Router {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = destination.NewRegistry()
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}

	return &Router{
		opener:      o.opener,
		clock:       o.clock,
		logger:      o.logger,
		stopTimeout: o.stopTimeout,
		queueSize:   o.queueSize,
		decoderOpts: o.decoderOpts,
		registry:    o.registry,
		extractor:   telemetry.NewExtractor(o.modes, o.clock.Now),
	}
}

// State returns the lifecycle state without blocking
func (r *Router) State() State {
	return State(r.state.Load())
}

// Err returns the error that put the router into Failed, or the last
// failure if it has since been stopped. It is cleared by Start.
func (r *Router) Err() error {
	if f := r.lastErr.Load(); f != nil {
		return f.err
	}
	return nil
}

// Registry returns the destination registry
func (r *Router) Registry() *destination.Registry {
	return r.registry
}

// Start opens the serial link and launches the pumps. It is only valid from
// Stopped. An open failure leaves the router Failed and wraps
// link.ErrLinkUnavailable.
func (r *Router) Start(ctx context.Context, device string, baud int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st := r.State(); st != Stopped {
		return fmt.Errorf("start while %s: %w", st, ErrInvalidState)
	}
	r.state.Store(int32(Starting))
	r.lastErr.Store(nil)
	r.logger.Info("starting router", "device", device, "baud", baud)

	l, err := r.opener(ctx, device, baud)
	if err != nil {
		if !errors.Is(err, link.ErrLinkUnavailable) {
			err = fmt.Errorf("%w: %w", link.ErrLinkUnavailable, err)
		}
		r.lastErr.Store(&failure{err})
		r.state.Store(int32(Failed))
		r.logger.Error("failed to open serial link", "device", device, "error", err)
		return err
	}

	r.stats.reset()
	r.extractor.ResetLatch()

	s := newSession(l, device, baud, r.clock.Now())
	r.session.Store(s)
	r.state.Store(int32(Running))

	for _, d := range r.registry.Snapshot() {
		r.attach(s, d)
	}
	s.wg.Add(2)
	go r.readLoop(s)
	go r.writeLoop(s)

	r.logger.Info("router running",
		"session_id", s.id,
		"device", device,
		"destinations", r.registry.Len(),
	)
	return nil
}

// Stop shuts the session down and returns to Stopped. Stopping an already
// stopped router is a no-op. Stop waits at most the stop timeout for the
// pumps; goroutines stuck beyond that are abandoned with their handles closed.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch st := r.State(); st {
	case Stopped:
		return nil
	case Running, Failed:
	default:
		return fmt.Errorf("stop while %s: %w", st, ErrInvalidState)
	}

	r.state.Store(int32(Stopping))
	if s := r.session.Load(); s != nil {
		r.shutdown(s)
		r.session.Store(nil)
	}
	r.state.Store(int32(Stopped))
	r.logger.Info("router stopped")
	return nil
}

func (r *Router) shutdown(s *session) {
	s.cancel()
	if err := s.link.Close(); err != nil && !errors.Is(err, link.ErrClosed) {
		r.logger.Debug("closing serial link", "error", err)
	}
	r.registry.DisconnectAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-r.clock.After(r.stopTimeout):
		r.logger.Warn("router goroutines still running after stop timeout",
			"session_id", s.id,
			"timeout", r.stopTimeout,
		)
	}

	// A sender may have reopened a handle while shutting down
	r.registry.DisconnectAll()
}

// AddDestination registers a destination. A running session starts
// forwarding to it immediately.
func (r *Router) AddDestination(cfg destination.Config) (destination.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.registry.Add(cfg)
	if err != nil {
		return destination.Info{}, err
	}
	if s := r.session.Load(); s != nil && s.ctx.Err() == nil {
		r.attach(s, d)
	}
	r.logger.Info("destination added", "destination", d.Name(), "addr", d.Config().Addr(), "transport", d.Config().Transport)
	return d.Info(), nil
}

// RemoveDestination unregisters a destination and closes its handle
func (r *Router) RemoveDestination(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.registry.Get(name); ok {
		if s := r.session.Load(); s != nil {
			s.detach(d)
		}
	}
	if err := r.registry.Remove(name); err != nil {
		return err
	}
	r.logger.Info("destination removed", "destination", name)
	return nil
}

// Destinations lists the registered destinations in insertion order
func (r *Router) Destinations() []destination.Info {
	return r.registry.List()
}

// Status returns a snapshot of the router. It never blocks on the pumps.
func (r *Router) Status() Status {
	st := r.State()
	status := Status{
		State:        st,
		Running:      st == Running,
		Stats:        r.stats.snapshot(),
		Destinations: r.registry.List(),
		Telemetry:    r.extractor.Snapshot(),
	}
	status.HeartbeatReceived = status.Telemetry.HeartbeatReceived
	if err := r.Err(); err != nil {
		status.Error = err.Error()
	}
	if s := r.session.Load(); s != nil {
		status.Device = s.device
		status.BaudRate = s.baud
		status.SessionID = s.id
		startedAt := s.startedAt
		status.StartedAt = &startedAt
	}
	return status
}

// linkFailed moves a running session to Failed. Failures observed after the
// session was cancelled are part of a normal stop and are ignored.
func (r *Router) linkFailed(s *session, op string, err error) {
	if s.ctx.Err() != nil {
		return
	}
	if !r.state.CompareAndSwap(int32(Running), int32(Failed)) {
		return
	}
	if !errors.Is(err, link.ErrLinkLost) {
		err = fmt.Errorf("%w: %w", link.ErrLinkLost, err)
	}
	r.lastErr.Store(&failure{fmt.Errorf("serial %s: %w", op, err)})
	r.logger.Error("serial link lost",
		"session_id", s.id,
		"device", s.device,
		"op", op,
		"error", err,
	)

	s.cancel()
	_ = s.link.Close()
}

// ============================================================
// Session
// ============================================================

// session is one Start..Stop run
type session struct {
	id        string
	device    string
	baud      int
	startedAt time.Time
	link      link.Link

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	uplink chan []byte // frames bound for the serial link

	mu      sync.RWMutex
	workers map[*destination.Destination]*worker
}

func newSession(l link.Link, device string, baud int, now time.Time) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:        uuid.NewString(),
		device:    device,
		baud:      baud,
		startedAt: now,
		link:      l,
		ctx:       ctx,
		cancel:    cancel,
		uplink:    make(chan []byte, uplinkQueueSize),
		workers:   make(map[*destination.Destination]*worker),
	}
}

func (s *session) worker(d *destination.Destination) *worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workers[d]
}

func (s *session) detach(d *destination.Destination) {
	s.mu.Lock()
	w, ok := s.workers[d]
	delete(s.workers, d)
	s.mu.Unlock()
	if ok {
		w.cancel()
	}
}

// worker carries one destination's outbox and goroutines
type worker struct {
	dest   *destination.Destination
	outbox chan []byte
	cancel context.CancelFunc
}

// enqueue queues a frame without blocking and reports whether it fit
func (w *worker) enqueue(frame []byte) bool {
	select {
	case w.outbox <- frame:
		return true
	default:
		return false
	}
}

// attach starts the sender and receiver for d. Caller holds r.mu.
func (r *Router) attach(s *session, d *destination.Destination) {
	ctx, cancel := context.WithCancel(s.ctx)
	w := &worker{
		dest:   d,
		outbox: make(chan []byte, r.queueSize),
		cancel: cancel,
	}

	s.mu.Lock()
	if old, ok := s.workers[d]; ok {
		old.cancel()
	}
	s.workers[d] = w
	s.mu.Unlock()

	s.wg.Add(2)
	go r.sendLoop(ctx, s, w)
	go r.receiveLoop(ctx, s, w)
}
