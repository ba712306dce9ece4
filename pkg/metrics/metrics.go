// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports router status as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/skyrelay/pkg/router"
)

const namespace = "skyrelay"

// StatusSource supplies router snapshots
type StatusSource interface {
	Status() router.Status
}

var (
	routerState = prometheus.NewDesc(
		namespace+"_router_state",
		"Router lifecycle state (1 for the current state)",
		[]string{"state"}, nil,
	)
	framesReceived = prometheus.NewDesc(
		namespace+"_frames_received_total",
		"Frames decoded from the serial link in this session",
		nil, nil,
	)
	framesForwarded = prometheus.NewDesc(
		namespace+"_frames_forwarded_total",
		"Frame deliveries to destinations in this session",
		nil, nil,
	)
	framesUplinked = prometheus.NewDesc(
		namespace+"_frames_uplinked_total",
		"Frames written from destinations to the serial link in this session",
		nil, nil,
	)
	routerErrors = prometheus.NewDesc(
		namespace+"_errors_total",
		"Router errors in this session",
		[]string{"kind"}, nil,
	)
	heartbeatReceived = prometheus.NewDesc(
		namespace+"_heartbeat_received",
		"Whether a heartbeat arrived in this session",
		nil, nil,
	)
	heartbeatTimestamp = prometheus.NewDesc(
		namespace+"_last_heartbeat_timestamp_seconds",
		"Unix time of the last heartbeat",
		nil, nil,
	)
	destinationConnected = prometheus.NewDesc(
		namespace+"_destination_connected",
		"Whether the last send to the destination succeeded",
		[]string{"destination", "transport"}, nil,
	)
	destinationSent = prometheus.NewDesc(
		namespace+"_destination_sent_total",
		"Frames sent to the destination",
		[]string{"destination"}, nil,
	)
	destinationErrors = prometheus.NewDesc(
		namespace+"_destination_errors_total",
		"Send failures and drops for the destination",
		[]string{"destination"}, nil,
	)
	destinationReceived = prometheus.NewDesc(
		namespace+"_destination_received_total",
		"Frames received from the destination",
		[]string{"destination"}, nil,
	)
	batteryVoltage = prometheus.NewDesc(
		namespace+"_battery_voltage_volts",
		"Last reported battery voltage",
		nil, nil,
	)
	gpsSatellites = prometheus.NewDesc(
		namespace+"_gps_satellites",
		"Last reported visible satellites",
		nil, nil,
	)
	vehicleArmed = prometheus.NewDesc(
		namespace+"_vehicle_armed",
		"Whether the vehicle reports itself armed",
		nil, nil,
	)
)

var allStates = []router.State{router.Stopped, router.Starting, router.Running, router.Stopping, router.Failed}

// Collector reads a fresh snapshot on every scrape
type Collector struct {
	source StatusSource
}

// NewCollector creates a collector over source
func NewCollector(source StatusSource) *Collector {
	return &Collector{source: source}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		routerState, framesReceived, framesForwarded, framesUplinked, routerErrors,
		heartbeatReceived, heartbeatTimestamp,
		destinationConnected, destinationSent, destinationErrors, destinationReceived,
		batteryVoltage, gpsSatellites, vehicleArmed,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Status()

	for _, s := range allStates {
		ch <- prometheus.MustNewConstMetric(routerState, prometheus.GaugeValue, boolValue(st.State == s), s.String())
	}

	stats := st.Stats
	ch <- prometheus.MustNewConstMetric(framesReceived, prometheus.CounterValue, float64(stats.Received))
	ch <- prometheus.MustNewConstMetric(framesForwarded, prometheus.CounterValue, float64(stats.Forwarded))
	ch <- prometheus.MustNewConstMetric(framesUplinked, prometheus.CounterValue, float64(stats.Uplinked))
	ch <- prometheus.MustNewConstMetric(routerErrors, prometheus.CounterValue, float64(stats.FrameErrors), "frame")
	ch <- prometheus.MustNewConstMetric(routerErrors, prometheus.CounterValue, float64(stats.Dropped), "dropped")
	ch <- prometheus.MustNewConstMetric(routerErrors, prometheus.CounterValue, float64(stats.Errors), "all")

	ch <- prometheus.MustNewConstMetric(heartbeatReceived, prometheus.GaugeValue, boolValue(st.HeartbeatReceived))
	if stats.LastHeartbeat != nil {
		ch <- prometheus.MustNewConstMetric(heartbeatTimestamp, prometheus.GaugeValue,
			float64(stats.LastHeartbeat.UnixNano())/1e9)
	}

	for _, d := range st.Destinations {
		ch <- prometheus.MustNewConstMetric(destinationConnected, prometheus.GaugeValue, boolValue(d.Connected), d.Name, string(d.Transport))
		ch <- prometheus.MustNewConstMetric(destinationSent, prometheus.CounterValue, float64(d.Sent), d.Name)
		ch <- prometheus.MustNewConstMetric(destinationErrors, prometheus.CounterValue, float64(d.Errors), d.Name)
		ch <- prometheus.MustNewConstMetric(destinationReceived, prometheus.CounterValue, float64(d.Received), d.Name)
	}

	tel := st.Telemetry
	if tel.BatteryVoltage != nil {
		ch <- prometheus.MustNewConstMetric(batteryVoltage, prometheus.GaugeValue, *tel.BatteryVoltage)
	}
	if tel.GPSSatellites != nil {
		ch <- prometheus.MustNewConstMetric(gpsSatellites, prometheus.GaugeValue, float64(*tel.GPSSatellites))
	}
	ch <- prometheus.MustNewConstMetric(vehicleArmed, prometheus.GaugeValue, boolValue(tel.Armed))
}

// NewRegistry returns a registry holding the router collector and the Go
// runtime and process collectors
func NewRegistry(source StatusSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
