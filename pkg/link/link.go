// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link owns the byte stream to the flight controller.
//
// A device string selects the transport:
//
//	/dev/ttyACM0, COM3         serial port, 8N1 at the given baud rate
//	tcp:127.0.0.1:5760         TCP client (SITL and serial-over-IP bridges)
//	ws://host/path, wss://...  websocket bridge carrying binary frames
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrLinkUnavailable is returned when the device cannot be opened
	ErrLinkUnavailable = errors.New("link unavailable")
	// ErrLinkLost is returned by Read or Write when an open device fails
	ErrLinkLost = errors.New("link lost")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("link closed")
)

// Link is an open, bidirectional byte stream to the flight controller.
// Read blocks until data arrives or the link fails. Write is serialised per
// link. Close is idempotent and may be called from any goroutine to unblock
// a pending Read.
type Link interface {
	io.ReadWriteCloser
	// Device returns the device string the link was opened with
	Device() string
}

// Opener opens a link. The router takes one so tests can supply in-memory
// links.
type Opener func(ctx context.Context, device string, baud int) (Link, error)

// Dialer holds the options for opening network-backed devices
type Dialer struct {
	Timeout       time.Duration // connect timeout for tcp and websocket devices
	Username      string        // HTTP Basic auth for websocket devices
	Password      string
	SkipTLSVerify bool
}

// DefaultTimeout bounds connection setup for network devices
const DefaultTimeout = 10 * time.Second

// Open opens a device with default options
func Open(ctx context.Context, device string, baud int) (Link, error) {
	var d Dialer
	return d.Open(ctx, device, baud)
}

// Open opens the device named by the device string. Failures wrap
// ErrLinkUnavailable.
func (d *Dialer) Open(ctx context.Context, device string, baud int) (Link, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var (
		rw  io.ReadWriteCloser
		err error
	)
	switch {
	case device == "":
		err = errors.New("no device given")
	case strings.HasPrefix(device, "tcp:"):
		rw, err = openTCP(ctx, strings.TrimPrefix(device, "tcp:"), timeout)
	case strings.HasPrefix(device, "ws://"), strings.HasPrefix(device, "wss://"):
		rw, err = openWebSocket(ctx, device, d.Username, d.Password, d.SkipTLSVerify, timeout)
	default:
		if baud <= 0 {
			err = fmt.Errorf("invalid baud rate %d", baud)
			break
		}
		rw, err = openSerial(device, baud)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLinkUnavailable, device, err)
	}
	return newLink(device, rw), nil
}

// link adds the shared error and close semantics to a raw device
type link struct {
	device    string
	rw        io.ReadWriteCloser
	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newLink(device string, rw io.ReadWriteCloser) *link {
	return &link{device: device, rw: rw}
}

func (l *link) Device() string {
	return l.device
}

func (l *link) Read(p []byte) (int, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	n, err := l.rw.Read(p)
	if n > 0 {
		return n, nil
	}
	if l.closed.Load() {
		return 0, ErrClosed
	}
	if err == nil {
		// A zero-byte read on a blocking device means it went away
		err = io.ErrUnexpectedEOF
	}
	return 0, fmt.Errorf("%w: read %s: %v", ErrLinkLost, l.device, err)
}

func (l *link) Write(p []byte) (int, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.closed.Load() {
		return 0, ErrClosed
	}
	n, err := l.rw.Write(p)
	if err != nil {
		if l.closed.Load() {
			return n, ErrClosed
		}
		return n, fmt.Errorf("%w: write %s: %v", ErrLinkLost, l.device, err)
	}
	return n, nil
}

func (l *link) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.closeErr = l.rw.Close()
	})
	return l.closeErr
}
