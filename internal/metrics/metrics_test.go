// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	Register(nil)
	require.NoError(t, Export())

	compressed := testutil.ToFloat64(packResources.WithLabelValues("true"))
	raw := testutil.ToFloat64(packBytes.WithLabelValues("raw"))
	stored := testutil.ToFloat64(packBytes.WithLabelValues("stored"))

	PackedResource(true, 1000, 120)
	PackedResource(false, 10, 10)
	UnpackedResource()

	assert.Equal(t, compressed+1, testutil.ToFloat64(packResources.WithLabelValues("true")))
	assert.Equal(t, raw+1010, testutil.ToFloat64(packBytes.WithLabelValues("raw")))
	assert.Equal(t, stored+130, testutil.ToFloat64(packBytes.WithLabelValues("stored")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(unpackResources), 1.0)

	OperationDuration(OpPack, time.Now().Add(-time.Second))
	assert.GreaterOrEqual(t, testutil.ToFloat64(operationDuration.WithLabelValues(OpPack)), 1.0)

	families, err := Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "dbpf_pack_resources_total")
	assert.Contains(t, names, "dbpf_pack_bytes_total")
	assert.Contains(t, names, "dbpf_unpack_resources_total")
	assert.Contains(t, names, "dbpf_operation_duration_seconds_total")
}
