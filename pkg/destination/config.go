// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package destination manages the ground-station endpoints the router fans
// frames out to. Each destination opens its network handle lazily on first
// send and tracks its own liveness.
package destination

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	// ErrDuplicateName is returned when adding a name that is already registered
	ErrDuplicateName = errors.New("destination already exists")
	// ErrNotFound is returned for operations on an unknown name
	ErrNotFound = errors.New("destination not found")
	// ErrInvalidConfig is returned when a destination config fails validation
	ErrInvalidConfig = errors.New("invalid destination config")
	// ErrClosed is returned by a destination after it has been removed
	ErrClosed = errors.New("destination closed")
)

// Transport selects how frames reach a destination
type Transport string

const (
	// Datagram sends each frame as one UDP datagram from a locally bound socket
	Datagram Transport = "datagram"
	// Stream writes frames to a TCP connection
	Stream Transport = "stream"
)

// ParseTransport accepts the transport names and their udp/tcp aliases
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "datagram", "udp":
		return Datagram, nil
	case "stream", "tcp":
		return Stream, nil
	default:
		return "", fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, s)
	}
}

// Network returns the Go network name for the transport
func (t Transport) Network() string {
	if t == Stream {
		return "tcp"
	}
	return "udp"
}

// Config describes a destination. Name is the unique key.
type Config struct {
	Name      string    `json:"name" yaml:"name" mapstructure:"name"`
	Host      string    `json:"host" yaml:"host" mapstructure:"host"`
	Port      int       `json:"port" yaml:"port" mapstructure:"port"`
	Transport Transport `json:"protocol" yaml:"protocol" mapstructure:"protocol"`
}

// Normalize resolves transport aliases and fills the datagram default
func (c Config) Normalize() (Config, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Host = strings.TrimSpace(c.Host)
	if c.Transport == "" {
		c.Transport = Datagram
	}
	t, err := ParseTransport(string(c.Transport))
	if err != nil {
		return c, err
	}
	c.Transport = t
	return c, c.Validate()
}

// Validate checks that the config can be used to open a handle
func (c Config) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	case c.Host == "":
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.Transport != Datagram && c.Transport != Stream:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	return nil
}

// Addr returns host:port
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String returns a short description for logs
func (c Config) String() string {
	return fmt.Sprintf("%s (%s %s)", c.Name, c.Transport.Network(), c.Addr())
}

// Info is a point-in-time view of a destination
type Info struct {
	Config
	Connected bool   `json:"connected"`
	Sent      uint64 `json:"sent"`
	Errors    uint64 `json:"errors"`
	Dropped   uint64 `json:"dropped"`
	Received  uint64 `json:"received"`
	LocalAddr string `json:"local_addr,omitempty"`
}
