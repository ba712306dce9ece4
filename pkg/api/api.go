// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api exposes the router control surface over HTTP.
//
// Routes:
//
//	POST   /api/telemetry/start              {serial_port, baud_rate}
//	POST   /api/telemetry/stop
//	GET    /api/telemetry/status
//	GET    /api/telemetry/destinations
//	POST   /api/telemetry/destinations       {name, host, port, protocol}
//	DELETE /api/telemetry/destinations/{name}
//	GET    /healthz
//
// The status feed and metrics handlers are mounted when supplied.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/link"
	"github.com/Thermoquad/skyrelay/pkg/router"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 64 << 10

// Controller is the router surface the API drives
type Controller interface {
	Start(ctx context.Context, device string, baud int) error
	Stop() error
	AddDestination(cfg destination.Config) (destination.Info, error)
	RemoveDestination(name string) error
	Destinations() []destination.Info
	Status() router.Status
}

// DestinationStore persists destination changes
type DestinationStore interface {
	Save(ctx context.Context, cfg destination.Config, enabled bool) error
	Delete(ctx context.Context, name string) error
}

// Defaults fill fields a request leaves empty
type Defaults struct {
	Device string
	Baud   int
	Port   int
}

// StartRequest is the body of POST /api/telemetry/start
type StartRequest struct {
	SerialPort string `json:"serial_port"`
	BaudRate   int    `json:"baud_rate"`
}

// Response is the body of action endpoints and errors
type Response struct {
	Status      string            `json:"status"`
	Message     string            `json:"message,omitempty"`
	Destination *destination.Info `json:"destination,omitempty"`
	Telemetry   *router.Status    `json:"telemetry,omitempty"`
}

// Server routes HTTP requests to a Controller
type Server struct {
	ctrl     Controller
	store    DestinationStore
	defaults Defaults
	logger   *slog.Logger
	feed     http.Handler
	metrics  http.Handler
	mux      *http.ServeMux
}

// Option configures a Server
type Option func(*Server)

// WithStore persists destination changes
func WithStore(s DestinationStore) Option {
	return func(srv *Server) { srv.store = s }
}

// WithDefaults sets request defaults
func WithDefaults(d Defaults) Option {
	return func(srv *Server) { srv.defaults = d }
}

// WithLogger sets the request logger
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// WithStatusFeed mounts the websocket status feed on /ws and /ws/telemetry
func WithStatusFeed(h http.Handler) Option {
	return func(srv *Server) { srv.feed = h }
}

// WithMetrics mounts h on /metrics
func WithMetrics(h http.Handler) Option {
	return func(srv *Server) { srv.metrics = h }
}

// New creates a server for ctrl
func New(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:     ctrl,
		defaults: Defaults{Device: "/dev/ttyACM0", Baud: 57600, Port: 14550},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/telemetry/start", s.handleStart)
	mux.HandleFunc("POST /api/telemetry/stop", s.handleStop)
	mux.HandleFunc("GET /api/telemetry/status", s.handleStatus)
	mux.HandleFunc("GET /api/telemetry/destinations", s.handleListDestinations)
	mux.HandleFunc("POST /api/telemetry/destinations", s.handleAddDestination)
	mux.HandleFunc("DELETE /api/telemetry/destinations/{name}", s.handleRemoveDestination)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.feed != nil {
		mux.Handle("GET /ws", s.feed)
		mux.Handle("GET /ws/telemetry", s.feed)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ============================================================
// Lifecycle
// ============================================================

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.SerialPort == "" {
		req.SerialPort = s.defaults.Device
	}
	if req.BaudRate == 0 {
		req.BaudRate = s.defaults.Baud
	}
	if req.BaudRate < 0 {
		s.writeError(w, badRequest(fmt.Errorf("invalid baud rate %d", req.BaudRate)))
		return
	}

	if err := s.ctrl.Start(r.Context(), req.SerialPort, req.BaudRate); err != nil {
		s.writeError(w, err)
		return
	}
	st := s.ctrl.Status()
	writeJSON(w, http.StatusOK, Response{
		Status:    "ok",
		Message:   fmt.Sprintf("telemetry started on %s at %d baud", req.SerialPort, req.BaudRate),
		Telemetry: &st,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Message: "telemetry stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"router": s.ctrl.Status().State.String(),
	})
}

// ============================================================
// Destinations
// ============================================================

func (s *Server) handleListDestinations(w http.ResponseWriter, r *http.Request) {
	list := s.ctrl.Destinations()
	if list == nil {
		list = []destination.Info{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAddDestination(w http.ResponseWriter, r *http.Request) {
	var cfg destination.Config
	if err := decodeBody(r, &cfg); err != nil {
		s.writeError(w, err)
		return
	}
	if cfg.Port == 0 {
		cfg.Port = s.defaults.Port
	}

	info, err := s.ctrl.AddDestination(cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.store != nil {
		if err := s.store.Save(r.Context(), info.Config, true); err != nil {
			// The destination is live; only persistence failed
			s.logger.Warn("failed to persist destination", "destination", info.Name, "error", err)
		} else {
			s.logger.Debug("persisted destination", "destination", info.String())
		}
	}

	writeJSON(w, http.StatusCreated, Response{
		Status:      "ok",
		Message:     fmt.Sprintf("destination %s added", info.Name),
		Destination: &info,
	})
}

func (s *Server) handleRemoveDestination(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.ctrl.RemoveDestination(name); err != nil {
		s.writeError(w, err)
		return
	}
	if s.store != nil {
		err := s.store.Delete(r.Context(), name)
		switch {
		case err == nil:
			s.logger.Debug("forgot destination", "destination", name)
		case !errors.Is(err, destination.ErrNotFound):
			s.logger.Warn("failed to delete persisted destination", "destination", name, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, Response{Status: "ok", Message: fmt.Sprintf("destination %s removed", name)})
}

// ============================================================
// Encoding
// ============================================================

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

// decodeBody decodes a JSON body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// StatusCode maps an operation error to an HTTP status
func StatusCode(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr), errors.Is(err, destination.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, destination.ErrDuplicateName), errors.Is(err, router.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, destination.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, link.ErrLinkUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	} else {
		s.logger.Debug("request rejected", "code", code, "error", err)
	}
	writeJSON(w, code, Response{Status: "error", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
