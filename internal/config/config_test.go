// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/skyrelay/pkg/destination"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skyrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0:8000", cfg.Listen)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Device)
	assert.Equal(t, 57600, cfg.Serial.Baud)
	assert.Equal(t, 14550, cfg.Telemetry.DefaultPort)
	assert.Equal(t, time.Second, cfg.Telemetry.PublishInterval)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.StopTimeout)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
listen: 127.0.0.1:9000
serial:
  device: tcp:127.0.0.1:5760
  baud: 115200
  auto_start: true
telemetry:
  publish_interval: 250ms
destinations:
  - name: qgc
    host: 192.168.1.10
  - name: mission-planner
    host: 192.168.1.11
    port: 5760
    protocol: tcp
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "tcp:127.0.0.1:5760", cfg.Serial.Device)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.True(t, cfg.Serial.AutoStart)
	assert.Equal(t, 250*time.Millisecond, cfg.Telemetry.PublishInterval)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.StopTimeout, "unset keys keep defaults")

	require.Len(t, cfg.Destinations, 2)
	assert.Equal(t, destination.Config{Name: "qgc", Host: "192.168.1.10", Port: 14550, Transport: destination.Datagram}, cfg.Destinations[0])
	assert.Equal(t, destination.Stream, cfg.Destinations[1].Transport)
	assert.Equal(t, 5760, cfg.Destinations[1].Port)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "serial:\n  device: /dev/ttyUSB0\n")
	t.Setenv("SKYRELAY_SERIAL_DEVICE", "/dev/ttyAMA0")
	t.Setenv("SKYRELAY_SERIAL_BAUD", "921600")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Device)
	assert.Equal(t, 921600, cfg.Serial.Baud)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad baud", "serial:\n  baud: 0\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"bad transport", "destinations:\n  - name: a\n    host: h\n    protocol: sctp\n"},
		{"duplicate destination", "destinations:\n  - name: a\n    host: h\n  - name: a\n    host: g\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Destinations = []destination.Config{{Name: "qgc", Host: "10.0.0.2", Port: 14550, Transport: destination.Datagram}}

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "publish_interval: 1s")

	loaded, err := Load(writeConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
