// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package destination

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// DialFunc opens a stream connection
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ListenFunc binds a local datagram socket
type ListenFunc func(ctx context.Context, network, addr string) (net.PacketConn, error)

// ResolveFunc looks up the addresses of a host name
type ResolveFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// DefaultDialTimeout bounds stream connection attempts and name lookups
const DefaultDialTimeout = 3 * time.Second

// resolveRetry is the minimum gap between failed datagram lookups
const resolveRetry = time.Second

func lookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// Destination is one live ground-station endpoint. Send and Receive may be
// called concurrently from one sender and one receiver goroutine.
type Destination struct {
	cfg         Config
	dial        DialFunc
	listen      ListenFunc
	resolve     ResolveFunc
	dialTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn       // stream handle
	pc      net.PacketConn // datagram handle
	raddr   net.Addr       // resolved datagram target
	changed chan struct{}  // closed and replaced whenever a handle opens or the destination closes
	closed  bool

	resolveErr error // last failed lookup, reused until resolveRetry passes
	resolveAt  time.Time

	connected atomic.Bool
	sent      atomic.Uint64
	errors    atomic.Uint64
	dropped   atomic.Uint64
	received  atomic.Uint64
}

func newDestination(cfg Config, o *options) *Destination {
	return &Destination{
		cfg:         cfg,
		dial:        o.dial,
		listen:      o.listen,
		resolve:     o.resolve,
		dialTimeout: o.dialTimeout,
		changed:     make(chan struct{}),
	}
}

// Name returns the unique destination name
func (d *Destination) Name() string { return d.cfg.Name }

// Config returns the destination config
func (d *Destination) Config() Config { return d.cfg }

// Connected reports whether the last send succeeded
func (d *Destination) Connected() bool { return d.connected.Load() }

// Info returns a snapshot of the destination state
func (d *Destination) Info() Info {
	info := Info{
		Config:    d.cfg,
		Connected: d.connected.Load(),
		Sent:      d.sent.Load(),
		Errors:    d.errors.Load(),
		Dropped:   d.dropped.Load(),
		Received:  d.received.Load(),
	}
	d.mu.Lock()
	switch {
	case d.pc != nil:
		info.LocalAddr = d.pc.LocalAddr().String()
	case d.conn != nil:
		info.LocalAddr = d.conn.LocalAddr().String()
	}
	d.mu.Unlock()
	return info
}

// SetConnected overrides the liveness flag
func (d *Destination) SetConnected(connected bool) {
	d.connected.Store(connected)
}

// RecordDrop counts a frame discarded before it reached Send
func (d *Destination) RecordDrop() {
	d.dropped.Add(1)
	d.errors.Add(1)
}

// RecordReceived counts frames that arrived from this destination
func (d *Destination) RecordReceived(frames int) {
	d.received.Add(uint64(frames))
}

// Send writes one encoded frame, opening the handle if needed. A failure
// marks the destination disconnected; stream handles are dropped and
// redialled on the next send.
func (d *Destination) Send(ctx context.Context, frame []byte) error {
	var err error
	if d.cfg.Transport == Stream {
		err = d.sendStream(ctx, frame)
	} else {
		err = d.sendDatagram(ctx, frame)
	}
	if err != nil {
		d.errors.Add(1)
		d.connected.Store(false)
		return err
	}
	d.sent.Add(1)
	d.connected.Store(true)
	return nil
}

func (d *Destination) sendDatagram(ctx context.Context, frame []byte) error {
	pc, raddr, err := d.datagramHandle(ctx)
	if err != nil {
		return err
	}
	_, err = pc.WriteTo(frame, raddr)
	return err
}

func (d *Destination) datagramHandle(ctx context.Context) (net.PacketConn, net.Addr, error) {
	d.mu.Lock()
	closed, raddr := d.closed, d.raddr
	resolveErr, resolveAt := d.resolveErr, d.resolveAt
	d.mu.Unlock()

	if closed {
		return nil, nil, ErrClosed
	}
	if raddr == nil {
		if resolveErr != nil && time.Since(resolveAt) < resolveRetry {
			return nil, nil, resolveErr
		}
		// Resolve without holding the lock so Info and Close stay responsive
		resolved, err := d.resolveUDP(ctx)
		if err != nil {
			d.mu.Lock()
			d.resolveErr, d.resolveAt = err, time.Now()
			d.mu.Unlock()
			return nil, nil, err
		}
		raddr = resolved
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, nil, ErrClosed
	}
	if d.raddr == nil {
		d.raddr = raddr
		d.resolveErr = nil
	}
	if d.pc == nil {
		pc, err := d.listen(ctx, "udp", "0.0.0.0:0")
		if err != nil {
			return nil, nil, fmt.Errorf("bind datagram socket: %w", err)
		}
		d.pc = pc
		d.signal()
	}
	return d.pc, d.raddr, nil
}

// resolveUDP looks up the datagram target, preferring IPv4 to match the
// wildcard IPv4 socket. The lookup is bounded by the dial timeout.
func (d *Destination) resolveUDP(ctx context.Context) (*net.UDPAddr, error) {
	var addrs []netip.Addr
	if ip, err := netip.ParseAddr(d.cfg.Host); err == nil {
		addrs = []netip.Addr{ip}
	} else {
		lookupCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
		addrs, err = d.resolve(lookupCtx, d.cfg.Host)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", d.cfg.Host, err)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %s: no addresses", d.cfg.Host)
	}

	addr := addrs[0].Unmap()
	for _, a := range addrs {
		if a.Unmap().Is4() {
			addr = a.Unmap()
			break
		}
	}
	return net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, uint16(d.cfg.Port))), nil
}

func (d *Destination) sendStream(ctx context.Context, frame []byte) error {
	conn, err := d.streamHandle(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Write(frame); err != nil {
		d.dropConn(conn)
		return err
	}
	return nil
}

func (d *Destination) streamHandle(ctx context.Context) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if d.conn != nil {
		return d.conn, nil
	}

	// Dial without holding the lock so Info and Receive stay responsive
	d.mu.Unlock()
	dialCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	conn, err := d.dial(dialCtx, "tcp", d.cfg.Addr())
	cancel()
	d.mu.Lock()

	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.cfg.Addr(), err)
	}
	if d.closed {
		conn.Close()
		return nil, ErrClosed
	}
	if d.conn != nil {
		conn.Close()
		return d.conn, nil
	}
	d.conn = conn
	d.signal()
	return conn, nil
}

// dropConn closes a failed stream handle if it is still the current one
func (d *Destination) dropConn(conn net.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == conn {
		d.conn.Close()
		d.conn = nil
	}
	d.connected.Store(false)
}

// dropPacketConn closes a failed datagram socket if it is still the current one
func (d *Destination) dropPacketConn(pc net.PacketConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pc == pc {
		d.pc.Close()
		d.pc = nil
	}
}

// Receive reads inbound bytes (ground station to vehicle). It waits for a
// handle to be opened by Send, then blocks on it. A read failure drops the
// handle and is returned; the caller may call Receive again.
func (d *Destination) Receive(ctx context.Context, buf []byte) (int, error) {
	for {
		d.mu.Lock()
		conn, pc, changed, closed := d.conn, d.pc, d.changed, d.closed
		d.mu.Unlock()

		switch {
		case closed:
			return 0, ErrClosed
		case ctx.Err() != nil:
			return 0, ctx.Err()
		case conn != nil:
			return d.readStream(ctx, conn, buf)
		case pc != nil:
			return d.readDatagram(ctx, pc, buf)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-changed:
		}
	}
}

func (d *Destination) readStream(ctx context.Context, conn net.Conn, buf []byte) (int, error) {
	_ = conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	n, err := conn.Read(buf)
	if n > 0 {
		return n, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if d.isClosed() {
		return 0, ErrClosed
	}
	d.dropConn(conn)
	return 0, fmt.Errorf("read %s: %w", d.cfg.Name, err)
}

func (d *Destination) readDatagram(ctx context.Context, pc net.PacketConn, buf []byte) (int, error) {
	_ = pc.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { _ = pc.SetReadDeadline(time.Now()) })
	defer stop()

	n, _, err := pc.ReadFrom(buf)
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if d.isClosed() {
		return 0, ErrClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, err
	}
	d.dropPacketConn(pc)
	return 0, fmt.Errorf("read %s: %w", d.cfg.Name, err)
}

func (d *Destination) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// signal wakes Receive callers waiting for a handle. Caller holds d.mu.
func (d *Destination) signal() {
	close(d.changed)
	d.changed = make(chan struct{})
}

// Disconnect closes any open handle. The destination stays usable and
// reopens lazily on the next send.
func (d *Destination) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeHandlesLocked()
	d.connected.Store(false)
}

// Close closes the handle permanently. Later sends and receives return
// ErrClosed.
func (d *Destination) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.closeHandlesLocked()
	d.connected.Store(false)
	d.signal()
	return nil
}

func (d *Destination) closeHandlesLocked() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	if d.pc != nil {
		d.pc.Close()
		d.pc = nil
	}
}
