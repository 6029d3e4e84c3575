// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"github.com/pkg/errors"
)

// Errors returned by archive operations. Match them with errors.Is; most
// are wrapped with context about the offending key or offset.
var (
	ErrBadMagic               = errors.New("bad DBPF magic")
	ErrUnsupportedVersion     = errors.New("unsupported DBPF version")
	ErrTruncatedArchive       = errors.New("truncated archive")
	ErrCorruptPayload         = errors.New("corrupt payload")
	ErrUnsupportedCompression = errors.New("unsupported compression")
	ErrDuplicateKey           = errors.New("duplicate resource key")
	ErrNotFound               = errors.New("resource not found")
	ErrUseAfterClose          = errors.New("archive already closed")
	ErrAlreadyFinalized       = errors.New("archive already finalized")
	ErrNotFinalized           = errors.New("archive not finalized")
	ErrIOFailure              = errors.New("I/O failure")
)

// ioError marks a storage failure. It matches ErrIOFailure and unwraps to
// the underlying cause, so callers can inspect both.
type ioError struct {
	op  string
	err error
}

func (e *ioError) Error() string { return e.op + ": " + ErrIOFailure.Error() + ": " + e.err.Error() }

func (e *ioError) Unwrap() error { return e.err }

func (e *ioError) Is(target error) bool { return target == ErrIOFailure }

func ioFailure(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&ioError{op: op, err: err})
}

// IsTruncated returns true if err is due to declared extents exceeding the
// archive size.
func IsTruncated(err error) bool {
	return errors.Is(err, ErrTruncatedArchive)
}

// IsCorrupt returns true if err is due to a payload failing to decode.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptPayload)
}

// IsDuplicateKey returns true if err is due to a key written twice.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsNotFound returns true if err is due to a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIOFailure returns true if err came from the underlying storage. These are
// the only errors a caller may reasonably retry.
func IsIOFailure(err error) bool {
	return errors.Is(err, ErrIOFailure)
}
