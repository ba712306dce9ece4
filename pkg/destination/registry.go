// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package destination

import (
	"fmt"
	"net"
	"slices"
	"sync"
	"time"
)

type options struct {
	dial        DialFunc
	listen      ListenFunc
	resolve     ResolveFunc
	dialTimeout time.Duration
}

// Option configures a Registry
type Option func(*options)

// WithDialer replaces the stream dialer
func WithDialer(dial DialFunc) Option {
	return func(o *options) { o.dial = dial }
}

// WithListener replaces the datagram socket factory
func WithListener(listen ListenFunc) Option {
	return func(o *options) { o.listen = listen }
}

// WithResolver replaces the host name lookup used by datagram destinations
func WithResolver(resolve ResolveFunc) Option {
	return func(o *options) { o.resolve = resolve }
}

// WithDialTimeout bounds stream connection attempts and name lookups
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// Registry is the set of destinations keyed by unique name. Iteration works
// on a snapshot so visitors never observe a half-applied add or remove.
type Registry struct {
	opts options

	mu     sync.RWMutex
	byName map[string]*Destination
	order  []*Destination // insertion order
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	var dialer net.Dialer
	var lc net.ListenConfig
	o := options{
		dial:        dialer.DialContext,
		listen:      lc.ListenPacket,
		resolve:     lookupHost,
		dialTimeout: DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		opts:   o,
		byName: make(map[string]*Destination),
	}
}

// Add registers a destination. A duplicate name fails with ErrDuplicateName
// and leaves the registry unchanged.
func (r *Registry) Add(cfg Config) (*Destination, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[cfg.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, cfg.Name)
	}
	d := newDestination(cfg, &r.opts)
	r.byName[cfg.Name] = d
	r.order = append(r.order, d)
	return d, nil
}

// Remove unregisters a destination and closes its handle
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	d, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
		r.order = slices.DeleteFunc(r.order, func(x *Destination) bool { return x == d })
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return d.Close()
}

// Get returns the destination registered under name
func (r *Registry) Get(name string) (*Destination, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// Len returns the number of registered destinations
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns the current destinations in insertion order
func (r *Registry) Snapshot() []*Destination {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// ForEach visits a snapshot of the destinations until visit returns false
func (r *Registry) ForEach(visit func(*Destination) bool) {
	for _, d := range r.Snapshot() {
		if !visit(d) {
			return
		}
	}
}

// List returns an Info for each destination
func (r *Registry) List() []Info {
	snapshot := r.Snapshot()
	infos := make([]Info, 0, len(snapshot))
	for _, d := range snapshot {
		infos = append(infos, d.Info())
	}
	return infos
}

// MarkConnected sets the liveness flag of a destination
func (r *Registry) MarkConnected(name string, connected bool) error {
	d, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	d.SetConnected(connected)
	return nil
}

// DisconnectAll closes every open handle; destinations stay registered
func (r *Registry) DisconnectAll() {
	for _, d := range r.Snapshot() {
		d.Disconnect()
	}
}

// CloseAll closes and unregisters every destination
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.order
	r.order = nil
	r.byName = make(map[string]*Destination)
	r.mu.Unlock()

	for _, d := range all {
		d.Close()
	}
}
