// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"io"
	"log/slog"
	"time"

	"github.com/Thermoquad/skyrelay/pkg/clock"
	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/link"
	"github.com/Thermoquad/skyrelay/pkg/mavlink"
	"github.com/Thermoquad/skyrelay/pkg/telemetry"
)

const (
	// DefaultStopTimeout bounds how long Stop waits for the pumps
	DefaultStopTimeout = 2 * time.Second
	// DefaultQueueSize is the per-destination outbox depth
	DefaultQueueSize = 256
)

type options struct {
	opener      link.Opener
	clock       clock.Clock
	logger      *slog.Logger
	stopTimeout time.Duration
	registry    *destination.Registry
	modes       telemetry.ModeTable
	queueSize   int
	decoderOpts []mavlink.DecoderOption
}

// Option configures a Router
type Option func(*options)

// WithOpener sets how the serial link is opened. Defaults to link.Open.
func WithOpener(open link.Opener) Option {
	return func(o *options) { o.opener = open }
}

// WithClock sets the clock used for timestamps and timeouts
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStopTimeout bounds how long Stop waits for goroutines to exit
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) { o.stopTimeout = d }
}

// WithRegistry shares an existing destination registry
func WithRegistry(r *destination.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithModeTable replaces the armed/mode decoders
func WithModeTable(t telemetry.ModeTable) Option {
	return func(o *options) { o.modes = t }
}

// WithQueueSize sets the per-destination outbox depth
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithDecoderOptions passes options to every frame decoder the router creates
func WithDecoderOptions(opts ...mavlink.DecoderOption) Option {
	return func(o *options) { o.decoderOpts = append(o.decoderOpts, opts...) }
}

func defaultOptions() *options {
	return &options{
		opener:      link.Open,
		clock:       clock.Real(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		stopTimeout: DefaultStopTimeout,
		modes:       telemetry.DefaultModeTable(),
		queueSize:   DefaultQueueSize,
	}
}
