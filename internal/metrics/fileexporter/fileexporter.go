// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package fileexporter

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sporemodder/go-dbpf/internal/metrics"
)

type FileExporter struct{ name string }

func New(name string) *FileExporter {
	return &FileExporter{
		name: name,
	}
}

func (exp *FileExporter) Export() error {
	return errors.Wrapf(prometheus.WriteToTextfile(exp.name, metrics.Registry), "write metrics to %s", exp.name)
}
