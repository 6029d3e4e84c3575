// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package project

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	dbpf "github.com/sporemodder/go-dbpf"
	"github.com/sporemodder/go-dbpf/internal/metrics"
)

// Merge combines srcPaths into dstPath. When several sources hold the same
// key, the one listed last wins. Payloads are copied as stored, without
// recompressing them.
func Merge(ctx context.Context, srcPaths []string, dstPath string, opts Options) (*Summary, error) {
	start := time.Now()
	defer metrics.OperationDuration(metrics.OpMerge, start)

	o := opts.withDefaults()
	if len(srcPaths) == 0 {
		return nil, errors.New("merge: no source archives")
	}
	if err := o.checkDestination(dstPath); err != nil {
		return nil, err
	}

	logger := o.Logger.WithField("archive", dstPath)
	chain, err := dbpf.OpenChain(srcPaths, dbpf.WithReaderLogger(logger))
	if err != nil {
		return nil, err
	}
	defer chain.Close()

	keys, err := chain.Keys()
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"sources":   len(srcPaths),
		"resources": len(keys),
	}).Info("merging archives")

	packer, err := dbpf.Create(dstPath,
		dbpf.WithPackerLogger(logger),
		dbpf.WithNameHash(o.Names.Hash))
	if err != nil {
		return nil, errors.Wrap(err, "create archive")
	}

	summary := &Summary{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			packer.Abort()
			return nil, err
		}
		payload, err := chain.ReadStored(key)
		if err == nil {
			err = packer.WritePayload(key, payload)
		}
		if err != nil {
			packer.Abort()
			return nil, errors.Wrapf(err, "merge %s", key)
		}
		summary.add(payload)
		metrics.PackedResource(payload.Compression != dbpf.CompressionNone,
			int(payload.UncompressedSize), len(payload.Data))
	}

	if err := packer.Finalize(); err != nil {
		packer.Abort()
		return nil, errors.Wrap(err, "finalize archive")
	}
	if err := packer.Close(); err != nil {
		return nil, errors.Wrap(err, "save archive")
	}

	summary.Duration = time.Since(start)
	logger.WithFields(summary.fields()).Info("merged archives")
	return summary, nil
}
