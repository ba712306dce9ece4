// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tcpPeer starts a listener and returns the device string plus a channel
// delivering the accepted server side connection
func tcpPeer(t *testing.T) (string, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	return "tcp:" + ln.Addr().String(), accepted
}

func TestOpen_Unavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddr := ln.Addr().String()
	ln.Close()

	tests := []struct {
		name   string
		device string
		baud   int
	}{
		{"empty device", "", 57600},
		{"invalid baud", "/dev/ttyACM0", 0},
		{"missing serial device", "/dev/skyrelay-does-not-exist", 57600},
		{"refused tcp", "tcp:" + closedAddr, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Open(context.Background(), tt.device, tt.baud)
			assert.Nil(t, l)
			assert.ErrorIs(t, err, ErrLinkUnavailable)
		})
	}
}

func TestTCPLink_ReadWrite(t *testing.T) {
	device, accepted := tcpPeer(t)

	l, err := Open(context.Background(), device, 0)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, device, l.Device())

	peer := <-accepted
	defer peer.Close()

	_, err = peer.Write([]byte{0xFD, 0x01, 0x02})
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := io.ReadAtLeast(l, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFD, 0x01, 0x02}, buf[:n])

	_, err = l.Write([]byte{0xFE, 0x09})
	require.NoError(t, err)
	n, err = io.ReadAtLeast(peer, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFE, 0x09}, buf[:n])
}

func TestTCPLink_PeerCloseIsLost(t *testing.T) {
	device, accepted := tcpPeer(t)

	l, err := Open(context.Background(), device, 0)
	require.NoError(t, err)
	defer l.Close()

	peer := <-accepted
	peer.Close()

	_, err = l.Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrLinkLost)
}

func TestLink_CloseUnblocksRead(t *testing.T) {
	device, accepted := tcpPeer(t)

	l, err := Open(context.Background(), device, 0)
	require.NoError(t, err)
	peer := <-accepted
	defer peer.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := l.Read(make([]byte, 16))
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close(), "second Close should be a no-op")

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not unblock after Close")
	}

	_, err = l.Write([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWebSocketLink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xFD, 0xAA, 0xBB, 0xCC})

		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- data
		}
	}))
	defer srv.Close()

	d := Dialer{Username: "pilot", Password: "secret"}
	l, err := d.Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), 0)
	require.NoError(t, err)
	defer l.Close()

	// Short reads drain the buffered message across calls
	buf := make([]byte, 2)
	n, err := l.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFD, 0xAA}, buf[:n])
	n, err = l.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBB, 0xCC}, buf[:n])

	_, err = l.Write([]byte{0x01, 0x02})
	require.NoError(t, err)

	select {
	case data := <-received:
		assert.Equal(t, []byte{0x01, 0x02}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the write")
	}
	assert.True(t, strings.HasPrefix(gotAuth, "Basic "))
}
