// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package project

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	dbpf "github.com/sporemodder/go-dbpf"
	"github.com/sporemodder/go-dbpf/internal/metrics"
)

type sourceFile struct {
	path string
	rel  string
	key  dbpf.ResourceKey
}

// Pack builds the archive dstPath from the project folder srcDir. Resources
// are compressed on a worker pool and appended in lexical path order, so
// the same folder always produces the same archive. Nothing appears at
// dstPath unless packing succeeds.
func Pack(ctx context.Context, srcDir, dstPath string, opts Options) (*Summary, error) {
	start := time.Now()
	defer metrics.OperationDuration(metrics.OpPack, start)

	o := opts.withDefaults()
	if err := o.checkDestination(dstPath); err != nil {
		return nil, err
	}

	summary := &Summary{}
	files, err := collect(srcDir, o, summary)
	if err != nil {
		return nil, err
	}

	logger := o.Logger.WithFields(logrus.Fields{
		"project": srcDir,
		"archive": dstPath,
	})
	logger.WithField("resources", len(files)).Info("packing project")

	packer, err := dbpf.Create(dstPath,
		dbpf.WithPackerLogger(logger),
		dbpf.WithNameHash(o.Names.Hash),
		dbpf.WithPackerCodec(o.codec()))
	if err != nil {
		return nil, errors.Wrap(err, "create archive")
	}

	if err := packFiles(ctx, packer, files, o, summary); err != nil {
		packer.Abort()
		return nil, err
	}
	if err := packer.Finalize(); err != nil {
		packer.Abort()
		return nil, errors.Wrap(err, "finalize archive")
	}
	if err := packer.Close(); err != nil {
		return nil, errors.Wrap(err, "save archive")
	}

	summary.Duration = time.Since(start)
	logger.WithFields(summary.fields()).Info("packed project")
	return summary, nil
}

// collect walks srcDir and maps every resource file to its key. Files that
// do not fit the layout are skipped with a warning.
func collect(srcDir string, o Options, summary *Summary) ([]sourceFile, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, errors.Wrap(err, "stat project")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", srcDir)
	}

	var files []sourceFile
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.Contains(filepath.ToSlash(rel), "/") {
				o.Logger.WithField("path", rel).Warn("skipping nested folder")
				summary.Skipped = append(summary.Skipped, rel)
				return filepath.SkipDir
			}
			return nil
		}

		key, err := ParseResourcePath(o.Names, rel)
		if err != nil {
			o.Logger.WithError(err).Warn("skipping file")
			summary.Skipped = append(summary.Skipped, rel)
			return nil
		}
		files = append(files, sourceFile{path: path, rel: rel, key: key})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walk project")
	}
	return files, nil
}

// packFiles reads and encodes one batch at a time in parallel, then appends
// the batch in order. The packer only ever sees one goroutine.
func packFiles(ctx context.Context, packer *dbpf.Packer, files []sourceFile, o Options, summary *Summary) error {
	codec := o.codec()
	size := batchSize(o.Workers)

	for len(files) > 0 {
		batch := files[:min(size, len(files))]
		files = files[len(batch):]

		payloads := make([]dbpf.Payload, len(batch))
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(o.Workers)
		for i := range batch {
			i := i
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				data, err := os.ReadFile(batch[i].path)
				if err != nil {
					return errors.Wrapf(err, "read %s", batch[i].rel)
				}
				payloads[i] = codec.Encode(data, o.Compress)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		for i, f := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := packer.WritePayload(f.key, payloads[i]); err != nil {
				return errors.Wrapf(err, "pack %s", f.rel)
			}
			summary.add(payloads[i])
			metrics.PackedResource(payloads[i].Compression != dbpf.CompressionNone,
				int(payloads[i].UncompressedSize), len(payloads[i].Data))
		}
	}
	return nil
}
