// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package project

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	dbpf "github.com/sporemodder/go-dbpf"
	"github.com/sporemodder/go-dbpf/internal/metrics"
)

// Unpack writes every resource of archivePath into the project folder
// dstDir. Stored bytes are read serially, since the reader is not safe for
// concurrent use; decoding and file writes run on a worker pool.
func Unpack(ctx context.Context, archivePath, dstDir string, opts Options) (*Summary, error) {
	start := time.Now()
	defer metrics.OperationDuration(metrics.OpUnpack, start)

	o := opts.withDefaults()
	logger := o.Logger.WithFields(logrus.Fields{
		"archive": archivePath,
		"project": dstDir,
	})

	r, err := dbpf.Open(archivePath, dbpf.WithReaderLogger(logger))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	logger.WithField("resources", r.Len()).Info("unpacking archive")

	summary := &Summary{}
	keys, err := r.Keys()
	if err != nil {
		return nil, err
	}
	size := batchSize(o.Workers)
	codec := o.codec()

	for len(keys) > 0 {
		batch := keys[:min(size, len(keys))]
		keys = keys[len(batch):]

		payloads := make([]dbpf.Payload, len(batch))
		for i, key := range batch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if payloads[i], err = r.ReadStored(key); err != nil {
				return nil, err
			}
		}

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(o.Workers)
		for i := range batch {
			i := i
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				key := batch[i]
				data, err := codec.Decode(payloads[i])
				if err != nil {
					return errors.Wrapf(err, "decode %s", key)
				}
				path := filepath.Join(dstDir, ResourcePath(o.Names, key))
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					return errors.Wrap(err, "create folder")
				}
				if err := os.WriteFile(path, data, 0644); err != nil {
					return errors.Wrapf(err, "write %s", key)
				}
				metrics.UnpackedResource()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		for _, p := range payloads {
			summary.add(p)
		}
	}

	summary.Duration = time.Since(start)
	logger.WithFields(summary.fields()).Info("unpacked archive")
	return summary, nil
}
