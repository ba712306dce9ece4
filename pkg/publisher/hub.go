// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publisher

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/Thermoquad/skyrelay/pkg/router"
)

// Envelope types
const (
	TypeStatus     = "mavlink"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeSubscribe  = "subscribe"
	TypeSubscribed = "subscribed"
)

const (
	writeTimeout = 5 * time.Second
	maxInbound   = 4096
)

// Envelope is every message exchanged with websocket clients
type Envelope struct {
	Type   string         `json:"type"`
	Data   *router.Status `json:"data,omitempty"`
	Topics []string       `json:"topics,omitempty"`
}

// Format selects the wire encoding of a client connection
type Format int

const (
	FormatJSON Format = iota // text frames
	FormatCBOR               // binary frames
)

var cborEnc cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	cborEnc, err = opts.EncMode()
	if err != nil {
		panic("publisher: CBOR encoder initialization failed: " + err.Error())
	}
}

// Encode renders an envelope in the given format
func Encode(env Envelope, format Format) (messageType int, data []byte, err error) {
	if format == FormatCBOR {
		data, err = cborEnc.Marshal(env)
		return websocket.BinaryMessage, data, err
	}
	data, err = json.Marshal(env)
	return websocket.TextMessage, data, err
}

// Hub serves the status feed over websocket. A client gets the current
// snapshot on connect and one per publisher tick afterwards; "?format=cbor"
// switches the connection to CBOR binary frames.
type Hub struct {
	pub      *Publisher
	logger   *slog.Logger
	upgrader websocket.Upgrader
	clients  atomic.Int64
}

// NewHub creates a hub fed by pub
func NewHub(pub *Publisher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = pub.logger
	}
	return &Hub{
		pub:    pub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The feed is read-only status; any origin may watch it
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

// ServeHTTP upgrades the request and streams status until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := FormatJSON
	if r.URL.Query().Get("format") == "cbor" {
		format = FormatCBOR
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxInbound)

	logger := h.logger.With("remote_addr", r.RemoteAddr)
	logger.Info("websocket client connected", "clients", h.clients.Add(1))
	defer func() {
		logger.Info("websocket client disconnected", "clients", h.clients.Add(-1))
	}()

	updates, cancel := h.pub.Subscribe()
	defer cancel()

	replies := make(chan Envelope, 4)
	readerDone := make(chan struct{})
	writerDone := make(chan struct{})
	defer close(writerDone)

	go func() {
		defer close(readerDone)
		h.readLoop(conn, replies, writerDone, logger)
	}()

	current := h.pub.Current()
	if err := h.write(conn, Envelope{Type: TypeStatus, Data: &current}, format); err != nil {
		logger.Debug("websocket write failed", "error", err)
		return
	}

	for {
		select {
		case <-readerDone:
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(conn, Envelope{Type: TypeStatus, Data: &st}, format); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		case reply := <-replies:
			if err := h.write(conn, reply, format); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// readLoop answers client control messages. Replies go through the writer
// since a websocket connection allows one writer at a time.
func (h *Hub) readLoop(conn *websocket.Conn, replies chan<- Envelope, writerDone <-chan struct{}, logger *slog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := cbor.Unmarshal(data, &msg); err != nil {
				logger.Debug("invalid client message", "len", len(data))
				continue
			}
		}

		var reply Envelope
		switch msg.Type {
		case TypePing:
			reply = Envelope{Type: TypePong}
		case TypeSubscribe:
			reply = Envelope{Type: TypeSubscribed, Topics: msg.Topics}
		default:
			continue
		}

		select {
		case replies <- reply:
		case <-writerDone:
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, env Envelope, format Format) error {
	messageType, data, err := Encode(env, format)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(messageType, data)
}
