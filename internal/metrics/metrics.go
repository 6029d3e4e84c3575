// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Exporter interface {
	Export() error
}

const (
	namespace = "dbpf"

	OpPack   = "pack"
	OpUnpack = "unpack"
	OpMerge  = "merge"
)

var (
	packResources = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pack",
			Name:      "resources_total",
			Help:      "The total number of resources written to archives. Broken down by whether they were compressed.",
		},
		[]string{"compressed"},
	)

	packBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pack",
			Name:      "bytes_total",
			Help:      "The total payload bytes written to archives. Broken down by raw and stored size.",
		},
		[]string{"kind"},
	)

	unpackResources = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unpack",
			Name:      "resources_total",
			Help:      "The total number of resources extracted from archives.",
		},
	)

	operationDuration = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "duration_seconds_total",
			Help:      "The total time spent in project operations. Broken down by operation.",
		},
		[]string{"op"},
	)
)

var register sync.Once
var Registry = prometheus.NewRegistry()
var exporter Exporter

func sinceInSeconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}

// Register registers metrics. This is always called only once; exp may be
// nil when nothing should be exported.
func Register(exp Exporter) {
	register.Do(func() {
		Registry.MustRegister(packResources, packBytes, unpackResources, operationDuration)
		exporter = exp
	})
}

// Export hands the registry to the exporter given to Register, if any.
func Export() error {
	if exporter == nil {
		return nil
	}
	return exporter.Export()
}

func PackedResource(compressed bool, raw, stored int) {
	packResources.WithLabelValues(strconv.FormatBool(compressed)).Inc()
	packBytes.WithLabelValues("raw").Add(float64(raw))
	packBytes.WithLabelValues("stored").Add(float64(stored))
}

func UnpackedResource() {
	unpackResources.Inc()
}

func OperationDuration(op string, start time.Time) {
	operationDuration.WithLabelValues(op).Add(sinceInSeconds(start))
}
