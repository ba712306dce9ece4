// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/link"
	"github.com/Thermoquad/skyrelay/pkg/mavlink"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// ============================================================
// Test Helpers
// ============================================================

// fakeLink is an in-memory flight controller
type fakeLink struct {
	rx     chan []byte // bytes from the vehicle
	tx     chan []byte // bytes written by the router
	fail   chan error
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	pending []byte
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		rx:     make(chan []byte, 64),
		tx:     make(chan []byte, 64),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (l *fakeLink) open(context.Context, string, int) (link.Link, error) {
	return l, nil
}

func (l *fakeLink) Device() string { return "fake" }

func (l *fakeLink) Read(p []byte) (int, error) {
	l.mu.Lock()
	if len(l.pending) > 0 {
		n := copy(p, l.pending)
		l.pending = l.pending[n:]
		l.mu.Unlock()
		return n, nil
	}
	l.mu.Unlock()

	select {
	case b := <-l.rx:
		n := copy(p, b)
		l.mu.Lock()
		l.pending = append(l.pending, b[n:]...)
		l.mu.Unlock()
		return n, nil
	case err := <-l.fail:
		return 0, err
	case <-l.closed:
		return 0, link.ErrClosed
	}
}

func (l *fakeLink) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	select {
	case l.tx <- cp:
		return len(p), nil
	case <-l.closed:
		return 0, link.ErrClosed
	}
}

func (l *fakeLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func heartbeat(t *testing.T, seq uint8) []byte {
	t.Helper()
	hb := mavlink.Heartbeat{
		Type:           mavlink.TypeQuadrotor,
		Autopilot:      mavlink.AutopilotArduPilotMega,
		BaseMode:       mavlink.ModeFlagSafetyArmed,
		CustomMode:     5,
		MavlinkVersion: 3,
	}
	data, err := mavlink.Encode(mavlink.NewFrame(2, seq, 1, 1, mavlink.MsgHeartbeat, hb.Marshal()))
	require.NoError(t, err)
	return data
}

func sysStatus(t *testing.T, seq uint8) []byte {
	t.Helper()
	m := mavlink.SysStatus{VoltageBattery: 12600, CurrentBattery: 150, BatteryRemaining: 80}
	data, err := mavlink.Encode(mavlink.NewFrame(2, seq, 1, 1, mavlink.MsgSysStatus, m.Marshal()))
	require.NoError(t, err)
	return data
}

func udpPeer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func peerConfig(name string, peer *net.UDPConn) destination.Config {
	return destination.Config{
		Name:      name,
		Host:      "127.0.0.1",
		Port:      peer.LocalAddr().(*net.UDPAddr).Port,
		Transport: destination.Datagram,
	}
}

// closedPort returns a local TCP port with nothing listening
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// readFrames reads datagrams until want frames were decoded
func readFrames(t *testing.T, peer *net.UDPConn, want int) ([]*mavlink.Frame, net.Addr) {
	t.Helper()
	decoder := mavlink.NewDecoder()
	buf := make([]byte, 2048)
	var (
		frames []*mavlink.Frame
		from   net.Addr
	)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(waitFor)))
	for len(frames) < want {
		n, addr, err := peer.ReadFrom(buf)
		require.NoError(t, err, "got %d of %d frames", len(frames), want)
		from = addr
		for f := range decoder.Frames(buf[:n]) {
			frames = append(frames, f)
		}
	}
	return frames, from
}

func startRouter(t *testing.T, opts ...Option) (*Router, *fakeLink) {
	t.Helper()
	fl := newFakeLink()
	r := New(append([]Option{WithOpener(fl.open)}, opts...)...)
	require.NoError(t, r.Start(context.Background(), "/dev/ttyACM0", 57600))
	t.Cleanup(func() { _ = r.Stop() })
	return r, fl
}

// ============================================================
// Lifecycle Tests
// ============================================================

func TestStart_ColdStartToHeartbeat(t *testing.T) {
	r, fl := startRouter(t)

	status := r.Status()
	assert.Equal(t, Running, status.State)
	assert.True(t, status.Running)
	assert.False(t, status.HeartbeatReceived)
	assert.Equal(t, "/dev/ttyACM0", status.Device)
	assert.Equal(t, 57600, status.BaudRate)
	assert.NotEmpty(t, status.SessionID)
	require.NotNil(t, status.StartedAt)

	fl.rx <- heartbeat(t, 0)

	require.Eventually(t, func() bool {
		s := r.Status()
		return s.HeartbeatReceived && s.Stats.Received == 1
	}, waitFor, tick)

	status = r.Status()
	assert.True(t, status.Telemetry.Armed)
	require.NotNil(t, status.Telemetry.Mode)
	assert.Equal(t, "LOITER", *status.Telemetry.Mode)
	assert.NotNil(t, status.Stats.LastHeartbeat)
}

func TestStart_OpenFailure(t *testing.T) {
	r := New(WithOpener(func(context.Context, string, int) (link.Link, error) {
		return nil, errors.New("permission denied")
	}))

	err := r.Start(context.Background(), "/dev/ttyACM0", 57600)
	require.ErrorIs(t, err, link.ErrLinkUnavailable)
	assert.Equal(t, Failed, r.State())
	assert.Contains(t, r.Status().Error, "permission denied")

	// Failed must be stopped before starting again
	assert.ErrorIs(t, r.Start(context.Background(), "/dev/ttyACM0", 57600), ErrInvalidState)

	require.NoError(t, r.Stop())
	assert.Equal(t, Stopped, r.State())
}

func TestStart_WhileRunning(t *testing.T) {
	r, _ := startRouter(t)
	err := r.Start(context.Background(), "/dev/ttyACM1", 115200)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "/dev/ttyACM0", r.Status().Device)
}

func TestStop_Idempotent(t *testing.T) {
	r := New(WithOpener(newFakeLink().open))
	require.NoError(t, r.Stop())
	assert.Equal(t, Stopped, r.State())

	require.NoError(t, r.Start(context.Background(), "/dev/ttyACM0", 57600))
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())

	status := r.Status()
	assert.Equal(t, Stopped, status.State)
	assert.False(t, status.Running)
	assert.Empty(t, status.SessionID)
}

func TestStop_BoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// A link whose Read ignores Close
	stuck := &stuckLink{release: release}
	r := New(
		WithOpener(func(context.Context, string, int) (link.Link, error) { return stuck, nil }),
		WithStopTimeout(50*time.Millisecond),
	)
	require.NoError(t, r.Start(context.Background(), "/dev/ttyACM0", 57600))

	done := make(chan error, 1)
	go func() { done <- r.Stop() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, Stopped, r.State())
}

type stuckLink struct {
	release chan struct{}
}

func (s *stuckLink) Read([]byte) (int, error) {
	<-s.release
	return 0, link.ErrClosed
}
func (s *stuckLink) Write(p []byte) (int, error) { return len(p), nil }
func (s *stuckLink) Close() error                { return nil }
func (s *stuckLink) Device() string              { return "stuck" }

func TestLinkLoss_Fails(t *testing.T) {
	r, fl := startRouter(t)

	fl.fail <- fmt.Errorf("%w: device reports readiness but returned no data", link.ErrLinkLost)

	require.Eventually(t, func() bool { return r.State() == Failed }, waitFor, tick)
	status := r.Status()
	assert.False(t, status.Running)
	assert.Contains(t, status.Error, "link lost")
	assert.ErrorIs(t, r.Err(), link.ErrLinkLost)

	require.NoError(t, r.Stop())
	assert.Equal(t, Stopped, r.State())

	// The error stays visible until the next start
	assert.ErrorIs(t, r.Err(), link.ErrLinkLost)
}

// writeFailLink reads like fakeLink but every write fails
type writeFailLink struct {
	*fakeLink
	err error
}

func (l *writeFailLink) Write([]byte) (int, error) { return 0, l.err }

func TestLinkLoss_WriteFails(t *testing.T) {
	fl := newFakeLink()
	wl := &writeFailLink{fakeLink: fl, err: fmt.Errorf("%w: write: input/output error", link.ErrLinkLost)}
	r := New(WithOpener(func(context.Context, string, int) (link.Link, error) { return wl, nil }))
	require.NoError(t, r.Start(context.Background(), "/dev/ttyACM0", 57600))
	t.Cleanup(func() { _ = r.Stop() })

	peer := udpPeer(t)
	_, err := r.AddDestination(peerConfig("gcs", peer))
	require.NoError(t, err)
	fl.rx <- heartbeat(t, 0)
	_, from := readFrames(t, peer, 1)

	_, err = peer.WriteTo(heartbeat(t, 1), from)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return r.State() == Failed }, waitFor, tick)
	status := r.Status()
	assert.False(t, status.Running)
	assert.Contains(t, status.Error, "link lost")
	assert.Contains(t, status.Error, "write")
	assert.ErrorIs(t, r.Err(), link.ErrLinkLost)
	assert.Zero(t, status.Stats.Uplinked)

	require.NoError(t, r.Stop())
	assert.Equal(t, Stopped, r.State())
	assert.False(t, r.Status().Running)
}

func TestRestart_ResetsStatsAndLatch(t *testing.T) {
	fl := newFakeLink()
	r := New(WithOpener(func(ctx context.Context, dev string, baud int) (link.Link, error) {
		return fl, nil
	}))
	require.NoError(t, r.Start(context.Background(), "/dev/ttyACM0", 57600))
	fl.rx <- heartbeat(t, 0)
	require.Eventually(t, func() bool { return r.Status().Stats.Received == 1 }, waitFor, tick)
	firstSession := r.Status().SessionID
	require.NoError(t, r.Stop())

	fl = newFakeLink()
	require.NoError(t, r.Start(context.Background(), "/dev/ttyACM0", 57600))
	defer r.Stop()

	status := r.Status()
	assert.Zero(t, status.Stats.Received)
	assert.Nil(t, status.Stats.LastHeartbeat)
	assert.False(t, status.HeartbeatReceived)
	assert.NotEqual(t, firstSession, status.SessionID)
	// Last known telemetry survives a restart
	assert.True(t, status.Telemetry.Armed)
}

// ============================================================
// Destination Tests
// ============================================================

func TestAddDestination_Duplicate(t *testing.T) {
	r := New(WithOpener(newFakeLink().open))

	_, err := r.AddDestination(destination.Config{Name: "gcs", Host: "10.0.0.2", Port: 14550, Transport: destination.Datagram})
	require.NoError(t, err)
	_, err = r.AddDestination(destination.Config{Name: "gcs", Host: "10.0.0.3", Port: 14551, Transport: destination.Datagram})
	require.ErrorIs(t, err, destination.ErrDuplicateName)

	dests := r.Status().Destinations
	require.Len(t, dests, 1)
	assert.Equal(t, "10.0.0.2", dests[0].Host)
	assert.Equal(t, 14550, dests[0].Port)
}

func TestRemoveDestination_NotFound(t *testing.T) {
	r := New(WithOpener(newFakeLink().open))
	assert.ErrorIs(t, r.RemoveDestination("ghost"), destination.ErrNotFound)
}

func TestFanOut_Isolation(t *testing.T) {
	r, fl := startRouter(t)
	good1, good2 := udpPeer(t), udpPeer(t)

	_, err := r.AddDestination(peerConfig("good-1", good1))
	require.NoError(t, err)
	_, err = r.AddDestination(destination.Config{Name: "broken", Host: "127.0.0.1", Port: closedPort(t), Transport: destination.Stream})
	require.NoError(t, err)
	_, err = r.AddDestination(peerConfig("good-2", good2))
	require.NoError(t, err)

	const n = 5
	var stream []byte
	for i := range n {
		stream = append(stream, sysStatus(t, uint8(i))...)
	}
	fl.rx <- stream

	for _, peer := range []*net.UDPConn{good1, good2} {
		frames, _ := readFrames(t, peer, n)
		for i, f := range frames {
			assert.Equal(t, uint8(i), f.Seq, "order preserved")
		}
	}

	require.Eventually(t, func() bool {
		return r.Status().Stats.Forwarded == 2*n
	}, waitFor, tick)

	byName := map[string]destination.Info{}
	for _, info := range r.Status().Destinations {
		byName[info.Name] = info
	}
	assert.True(t, byName["good-1"].Connected)
	assert.True(t, byName["good-2"].Connected)
	assert.False(t, byName["broken"].Connected)
	assert.EqualValues(t, n, byName["good-1"].Sent)
	assert.NotZero(t, byName["broken"].Errors)
	assert.NotZero(t, r.Status().Stats.Errors)
}

func TestFanOut_SlowDestinationDrops(t *testing.T) {
	release := make(chan struct{})
	registry := destination.NewRegistry(destination.WithDialer(
		func(ctx context.Context, network, addr string) (net.Conn, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, errors.New("unreachable")
		}))
	r, fl := startRouter(t, WithRegistry(registry), WithQueueSize(1))
	defer close(release)

	_, err := r.AddDestination(destination.Config{Name: "slow", Host: "127.0.0.1", Port: 5760, Transport: destination.Stream})
	require.NoError(t, err)

	var stream []byte
	for i := range 8 {
		stream = append(stream, sysStatus(t, uint8(i))...)
	}
	fl.rx <- stream

	// The sender is stuck dialling, so at most two frames leave the pump
	require.Eventually(t, func() bool {
		s := r.Status()
		return s.Stats.Received == 8 && s.Stats.Dropped >= 6 &&
			len(s.Destinations) == 1 && s.Destinations[0].Dropped == s.Stats.Dropped
	}, waitFor, tick)
	assert.Zero(t, r.Status().Stats.Forwarded)
}

func TestFanIn_ToSerial(t *testing.T) {
	r, fl := startRouter(t)
	peer := udpPeer(t)
	_, err := r.AddDestination(peerConfig("gcs", peer))
	require.NoError(t, err)

	// The datagram socket is bound by the first outbound frame
	fl.rx <- heartbeat(t, 0)
	_, from := readFrames(t, peer, 1)

	uplink := heartbeat(t, 42)
	_, err = peer.WriteTo(uplink, from)
	require.NoError(t, err)

	select {
	case got := <-fl.tx:
		assert.True(t, bytes.Equal(uplink, got), "frame reaches the serial link intact")
	case <-time.After(waitFor):
		t.Fatal("uplink frame not written to serial")
	}

	require.Eventually(t, func() bool {
		s := r.Status()
		return s.Stats.Uplinked == 1 && s.Destinations[0].Received == 1
	}, waitFor, tick)
}

func TestFanIn_ConcurrentPeersWriteWholeFrames(t *testing.T) {
	r, fl := startRouter(t)
	peers := []*net.UDPConn{udpPeer(t), udpPeer(t)}
	for i, peer := range peers {
		_, err := r.AddDestination(peerConfig(fmt.Sprintf("gcs-%d", i), peer))
		require.NoError(t, err)
	}

	fl.rx <- heartbeat(t, 0)
	routerAddrs := make([]net.Addr, len(peers))
	for i, peer := range peers {
		_, routerAddrs[i] = readFrames(t, peer, 1)
	}

	const n = 20
	var wg sync.WaitGroup
	for i, peer := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hb := mavlink.Heartbeat{Type: mavlink.TypeGCS, Autopilot: mavlink.AutopilotInvalid, MavlinkVersion: 3}
			for seq := range n {
				data := mavlink.MustEncode(mavlink.NewFrame(2, uint8(seq), uint8(200+i), 190, mavlink.MsgHeartbeat, hb.Marshal()))
				_, err := peer.WriteTo(data, routerAddrs[i])
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	seqs := map[uint8][]uint8{}
	for range len(peers) * n {
		select {
		case got := <-fl.tx:
			decoder := mavlink.NewDecoder()
			var frames []*mavlink.Frame
			for f := range decoder.Frames(got) {
				frames = append(frames, f)
			}
			require.Len(t, frames, 1, "each serial write carries exactly one frame")
			assert.Equal(t, len(got), frames[0].Len(), "no bytes outside the frame")
			assert.Zero(t, decoder.Stats().Errors())
			seqs[frames[0].SysID] = append(seqs[frames[0].SysID], frames[0].Seq)
		case <-time.After(waitFor):
			t.Fatalf("only %d uplink frames written", len(seqs[200])+len(seqs[201]))
		}
	}

	for i := range peers {
		got := seqs[uint8(200+i)]
		require.Len(t, got, n)
		for j, seq := range got {
			assert.Equal(t, uint8(j), seq, "peer %d order preserved", i)
		}
	}
	require.Eventually(t, func() bool { return r.Status().Stats.Uplinked == 2*n }, waitFor, tick)
}

func TestRemoveDestination_WhileRunning(t *testing.T) {
	r, fl := startRouter(t)
	peer := udpPeer(t)
	_, err := r.AddDestination(peerConfig("gcs", peer))
	require.NoError(t, err)

	fl.rx <- heartbeat(t, 0)
	readFrames(t, peer, 1)

	require.NoError(t, r.RemoveDestination("gcs"))
	assert.Empty(t, r.Status().Destinations)

	fl.rx <- heartbeat(t, 1)
	require.Eventually(t, func() bool { return r.Status().Stats.Received == 2 }, waitFor, tick)
	assert.EqualValues(t, 1, r.Status().Stats.Forwarded)
}

func TestDestinationsSurviveRestart(t *testing.T) {
	fl := newFakeLink()
	r := New(WithOpener(func(context.Context, string, int) (link.Link, error) { return fl, nil }))
	peer := udpPeer(t)
	_, err := r.AddDestination(peerConfig("gcs", peer))
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background(), "/dev/ttyACM0", 57600))
	fl.rx <- heartbeat(t, 0)
	readFrames(t, peer, 1)
	require.NoError(t, r.Stop())
	assert.False(t, r.Status().Destinations[0].Connected)

	fl = newFakeLink()
	require.NoError(t, r.Start(context.Background(), "/dev/ttyACM0", 57600))
	defer r.Stop()
	fl.rx <- heartbeat(t, 1)
	frames, _ := readFrames(t, peer, 1)
	assert.Equal(t, uint8(1), frames[0].Seq)
}

// ============================================================
// Codec Integration Tests
// ============================================================

func TestFrameErrors_Counted(t *testing.T) {
	r, fl := startRouter(t)

	corrupt := heartbeat(t, 0)
	corrupt[len(corrupt)-1] ^= 0xFF
	stream := append(corrupt, heartbeat(t, 1)...)
	// Trailing noise lets any spurious magic inside the damaged frame
	// reach its claimed length and fail
	stream = append(stream, make([]byte, mavlink.MaxFrameLen)...)
	fl.rx <- stream

	require.Eventually(t, func() bool {
		s := r.Status()
		return s.Stats.Received == 1 && s.Stats.FrameErrors > 0
	}, waitFor, tick)
	assert.GreaterOrEqual(t, r.Status().Stats.Errors, r.Status().Stats.FrameErrors)
}

func TestRelay_DialectMessages(t *testing.T) {
	r, fl := startRouter(t)
	peer := udpPeer(t)
	_, err := r.AddDestination(peerConfig("gcs", peer))
	require.NoError(t, err)

	// EKF_STATUS_REPORT is not decoded into telemetry but must be relayed
	fl.rx <- mavlink.MustEncode(mavlink.NewFrame(2, 0, 1, 1, 193, bytes.Repeat([]byte{0x3C}, 22)))
	frames, from := readFrames(t, peer, 1)
	assert.EqualValues(t, 193, frames[0].MsgID)
	assert.Equal(t, "EKF_STATUS_REPORT", frames[0].Name())

	// MISSION_CLEAR_ALL from the ground station
	clearAll := mavlink.MustEncode(mavlink.NewFrame(2, 0, 255, 190, 45, []byte{1, 1}))
	_, err = peer.WriteTo(clearAll, from)
	require.NoError(t, err)
	select {
	case got := <-fl.tx:
		assert.True(t, bytes.Equal(clearAll, got))
	case <-time.After(waitFor):
		t.Fatal("uplink frame not written to serial")
	}

	require.Eventually(t, func() bool {
		s := r.Status().Stats
		return s.Received == 1 && s.Forwarded == 1 && s.Uplinked == 1
	}, waitFor, tick)
	stats := r.Status().Stats
	assert.Zero(t, stats.Errors)
	assert.Zero(t, stats.FrameErrors)
}

func TestEncodeFailure_CountedAndLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := New(WithOpener(newFakeLink().open), WithLogger(logger))

	_, ok := r.encode(&mavlink.Frame{Version: 3, SysID: 1, MsgID: mavlink.MsgHeartbeat}, "gcs")
	assert.False(t, ok)
	assert.EqualValues(t, 1, r.Status().Stats.Errors)
	assert.Contains(t, logs.String(), "re-encode failed")
	assert.Contains(t, logs.String(), "source=gcs")

	data, ok := r.encode(mavlink.NewFrame(2, 0, 1, 1, mavlink.MsgSysStatus, mavlink.SysStatus{}.Marshal()), "gcs")
	assert.True(t, ok)
	assert.NotEmpty(t, data)
	assert.EqualValues(t, 1, r.Status().Stats.Errors)
}

func TestStatus_StateNames(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Stopped, "stopped"},
		{Starting, "starting"},
		{Running, "running"},
		{Stopping, "stopping"},
		{Failed, "failed"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		text, err := tt.state.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(text))
	}
}
