// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package project converts between project folders and archives.
//
// A project folder holds one directory per group and one file per resource,
// named after the instance and type:
//
//	<root>/<group>/<instance>.<type>
//
// Each part is a registry name or a #XXXXXXXX literal.
package project

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	dbpf "github.com/sporemodder/go-dbpf"
	"github.com/sporemodder/go-dbpf/registry"
)

// ErrProtected is returned when the destination is one of the game's own
// archives.
var ErrProtected = errors.New("archive is protected")

// Names resolves the parts of a resource key to and from folder and file
// names. *registry.Registry implements it.
type Names interface {
	Hash(name string) uint32
	Name(id uint32) string
}

type Options struct {
	// Names defaults to an empty registry: names hash with
	// dbpf.DefaultHash and IDs print as #XXXXXXXX.
	Names Names

	// Workers bounds the goroutines compressing or decoding resources.
	// Zero means one per CPU.
	Workers int

	// Compress asks for RefPack compression of every resource the codec
	// finds worthwhile.
	Compress bool

	// MinSize is the smallest resource worth compressing. Zero means
	// dbpf.DefaultMinCompressSize.
	MinSize int

	// IsProtected reports whether an archive name must never be written.
	// Nil allows every name.
	IsProtected func(archiveName string) bool

	Logger logrus.FieldLogger
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Names == nil {
		out.Names = registry.New()
	}
	if out.Workers <= 0 {
		out.Workers = runtime.NumCPU()
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	return out
}

func (o *Options) codec() dbpf.Codec {
	return dbpf.Codec{MinSize: o.MinSize}
}

func (o *Options) checkDestination(path string) error {
	if o.IsProtected != nil && o.IsProtected(filepath.Base(path)) {
		return errors.Wrapf(ErrProtected, "refusing to write %s", path)
	}
	return nil
}

// Summary describes a finished operation.
type Summary struct {
	Resources   int
	Compressed  int
	RawBytes    uint64
	StoredBytes uint64
	// Skipped lists files left out of a pack, relative to the project root.
	Skipped  []string
	Duration time.Duration
}

func (s *Summary) add(p dbpf.Payload) {
	s.Resources++
	if p.Compression != dbpf.CompressionNone {
		s.Compressed++
	}
	s.RawBytes += uint64(p.UncompressedSize)
	s.StoredBytes += uint64(len(p.Data))
}

func (s *Summary) fields() logrus.Fields {
	return logrus.Fields{
		"resources":  s.Resources,
		"compressed": s.Compressed,
		"raw":        humanize.Bytes(s.RawBytes),
		"stored":     humanize.Bytes(s.StoredBytes),
		"duration":   s.Duration.Round(time.Millisecond),
	}
}

// ResourcePath returns the project-relative path of key. Names that could
// not be parsed back are replaced by their #XXXXXXXX form.
func ResourcePath(names Names, key dbpf.ResourceKey) string {
	file := fmt.Sprintf("%s.%s", pathName(names, key.InstanceID), pathName(names, key.TypeID))
	return filepath.Join(pathName(names, key.GroupID), file)
}

func pathName(names Names, id uint32) string {
	name := names.Name(id)
	if name == "" || strings.ContainsAny(name, `./\`) || names.Hash(name) != id {
		return dbpf.HexName(id)
	}
	return name
}

// ParseResourcePath turns a project-relative path back into a key. The file
// name is split at its first dot, so types may not contain one.
func ParseResourcePath(names Names, rel string) (dbpf.ResourceKey, error) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return dbpf.ResourceKey{}, errors.Errorf("%s: expected <group>/<instance>.<type>", rel)
	}
	instance, typ, ok := strings.Cut(parts[1], ".")
	if !ok || instance == "" || typ == "" {
		return dbpf.ResourceKey{}, errors.Errorf("%s: file name needs an instance and a type", rel)
	}
	return dbpf.NewResourceKey(names.Hash(parts[0]), names.Hash(instance), names.Hash(typ)), nil
}

// batchSize is how many resources are held in memory between the parallel
// and serial halves of pack and unpack.
func batchSize(workers int) int {
	return workers * 4
}
