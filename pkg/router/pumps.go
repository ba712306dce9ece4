// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"context"
	"errors"
	"time"

	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/mavlink"
)

const (
	readBufferSize    = 4096
	uplinkQueueSize   = 256
	receiveRetryDelay = 250 * time.Millisecond
)

// ============================================================
// Fan-out: serial -> destinations
// ============================================================

func (r *Router) readLoop(s *session) {
	defer s.wg.Done()

	decoder := mavlink.NewDecoder(r.decoderOpts...)
	buf := make([]byte, readBufferSize)
	var seenErrors uint64

	for {
		n, err := s.link.Read(buf)
		if err != nil {
			r.linkFailed(s, "read", err)
			return
		}

		// One registry snapshot per read; destinations added meanwhile
		// see traffic from the next read on.
		dests := r.registry.Snapshot()
		for frame := range decoder.Frames(buf[:n]) {
			r.forward(s, frame, dests)
		}

		if total := decoder.Stats().Errors(); total > seenErrors {
			delta := total - seenErrors
			r.stats.frameErrors.Add(delta)
			r.stats.errors.Add(delta)
			seenErrors = total
		}
	}
}

func (r *Router) forward(s *session, frame *mavlink.Frame, dests []*destination.Destination) {
	r.stats.received.Add(1)
	if frame.MsgID == mavlink.MsgHeartbeat {
		now := r.clock.Now()
		r.stats.lastHeartbeat.Store(&now)
	}
	r.extractor.Apply(frame)

	data, ok := r.encode(frame, "serial")
	if !ok {
		return
	}

	for _, d := range dests {
		w := s.worker(d)
		if w == nil {
			continue
		}
		if !w.enqueue(data) {
			d.RecordDrop()
			r.stats.dropped.Add(1)
			r.stats.errors.Add(1)
		}
	}
}

func (r *Router) sendLoop(ctx context.Context, s *session, w *worker) {
	defer s.wg.Done()
	logger := r.logger.With("destination", w.dest.Name())

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-w.outbox:
			wasConnected := w.dest.Connected()
			if err := w.dest.Send(ctx, data); err != nil {
				if ctx.Err() != nil || errors.Is(err, destination.ErrClosed) {
					return
				}
				r.stats.errors.Add(1)
				if wasConnected {
					logger.Warn("destination disconnected", "error", err)
				} else {
					logger.Debug("send failed", "error", err)
				}
				continue
			}
			r.stats.forwarded.Add(1)
			if !wasConnected {
				logger.Info("destination connected", "addr", w.dest.Config().Addr())
			}
		}
	}
}

// ============================================================
// Fan-in: destinations -> serial
// ============================================================

func (r *Router) receiveLoop(ctx context.Context, s *session, w *worker) {
	defer s.wg.Done()

	decoder := mavlink.NewDecoder(r.decoderOpts...)
	buf := make([]byte, readBufferSize)

	for {
		n, err := w.dest.Receive(ctx, buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, destination.ErrClosed) {
				return
			}
			r.logger.Debug("receive failed", "destination", w.dest.Name(), "error", err)
			select {
			case <-ctx.Done():
				return
			case <-r.clock.After(receiveRetryDelay):
			}
			continue
		}

		frames := 0
		for frame := range decoder.Frames(buf[:n]) {
			data, ok := r.encode(frame, w.dest.Name())
			if !ok {
				continue
			}
			select {
			case s.uplink <- data:
				frames++
			case <-ctx.Done():
				w.dest.RecordReceived(frames)
				return
			}
		}
		w.dest.RecordReceived(frames)
	}
}

// encode re-serializes a decoded frame for relaying. A failure costs
// only that frame.
func (r *Router) encode(frame *mavlink.Frame, source string) ([]byte, bool) {
	data, err := mavlink.Encode(frame)
	if err != nil {
		r.stats.errors.Add(1)
		r.logger.Debug("re-encode failed", "source", source, "msg", frame.Name(), "error", err)
		return nil, false
	}
	return data, true
}

// writeLoop is the only goroutine that writes to the serial link
func (r *Router) writeLoop(s *session) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.uplink:
			if _, err := s.link.Write(data); err != nil {
				r.linkFailed(s, "write", err)
				return
			}
			r.stats.uplinked.Add(1)
		}
	}
}
