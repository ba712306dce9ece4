// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/router"
)

type staticSource router.Status

func (s staticSource) Status() router.Status { return router.Status(s) }

func sampleStatus() router.Status {
	hb := time.Unix(1700000000, 0)
	volts := 12.6
	st := router.Status{
		State:             router.Running,
		Running:           true,
		HeartbeatReceived: true,
		Stats: router.Stats{
			Received:      10,
			Forwarded:     18,
			Errors:        3,
			FrameErrors:   1,
			Dropped:       2,
			LastHeartbeat: &hb,
		},
		Destinations: []destination.Info{
			{Config: destination.Config{Name: "qgc", Transport: destination.Datagram}, Connected: true, Sent: 9},
			{Config: destination.Config{Name: "mp", Transport: destination.Stream}, Errors: 4},
		},
	}
	st.Telemetry.BatteryVoltage = &volts
	return st
}

func TestCollector_Values(t *testing.T) {
	c := NewCollector(staticSource(sampleStatus()))

	// 5 states, 6 router counters, 2 heartbeat, 4 per destination, voltage, armed
	assert.Equal(t, 5+6+2+8+1+1, testutil.CollectAndCount(c))

	expected := `
# HELP skyrelay_frames_received_total Frames decoded from the serial link in this session
# TYPE skyrelay_frames_received_total counter
skyrelay_frames_received_total 10
# HELP skyrelay_destination_connected Whether the last send to the destination succeeded
# TYPE skyrelay_destination_connected gauge
skyrelay_destination_connected{destination="mp",transport="stream"} 0
skyrelay_destination_connected{destination="qgc",transport="datagram"} 1
# HELP skyrelay_router_state Router lifecycle state (1 for the current state)
# TYPE skyrelay_router_state gauge
skyrelay_router_state{state="failed"} 0
skyrelay_router_state{state="running"} 1
skyrelay_router_state{state="starting"} 0
skyrelay_router_state{state="stopped"} 0
skyrelay_router_state{state="stopping"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"skyrelay_frames_received_total", "skyrelay_destination_connected", "skyrelay_router_state"))
}

func TestCollector_StoppedRouter(t *testing.T) {
	c := NewCollector(staticSource(router.Status{State: router.Stopped}))
	// No heartbeat timestamp, destinations or battery yet
	assert.Equal(t, 5+6+1+1, testutil.CollectAndCount(c))
}

func TestHandler_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(staticSource(sampleStatus())))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `skyrelay_errors_total{kind="dropped"} 2`)
	assert.Contains(t, string(body), `skyrelay_battery_voltage_volts 12.6`)
	assert.Contains(t, string(body), `skyrelay_last_heartbeat_timestamp_seconds 1.7e+09`)
}

func TestNewRegistry_IncludesRuntime(t *testing.T) {
	reg := NewRegistry(staticSource(sampleStatus()))
	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["skyrelay_frames_forwarded_total"])
	assert.True(t, names["go_goroutines"])
}
