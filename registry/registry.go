// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package registry maps human-readable names to the 32-bit IDs stored in
// resource keys, and back.
//
// Registry files hold one name per line, optionally followed by an explicit
// ID when the name does not hash to it:
//
//	// comment
//	creature
//	editor_temp	0x1A2B3C4D
package registry

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	dbpf "github.com/sporemodder/go-dbpf"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]uint32
	byID   map[uint32]string
}

func New() *Registry {
	return &Registry{
		byName: make(map[string]uint32),
		byID:   make(map[uint32]string),
	}
}

func fold(name string) string {
	return cases.Lower(language.Und).String(name)
}

// Add registers name under id. The first name registered for an id is the
// one Name returns.
func (r *Registry) Add(name string, id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[fold(name)] = id
	if _, ok := r.byID[id]; !ok {
		r.byID[id] = name
	}
}

// Load reads registry lines from rd.
func (r *Registry) Load(rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	for line := 1; scanner.Scan(); line++ {
		text, _, _ := strings.Cut(scanner.Text(), "//")
		fields := strings.Fields(text)
		switch len(fields) {
		case 0:
			continue
		case 1:
			r.Add(fields[0], dbpf.DefaultHash(fields[0]))
		case 2:
			id, ok := dbpf.ParseHexName(fields[1])
			if !ok {
				return errors.Errorf("line %d: invalid id %q", line, fields[1])
			}
			r.Add(fields[0], id)
		default:
			return errors.Errorf("line %d: expected name and optional id, got %d fields", line, len(fields))
		}
	}
	return errors.Wrap(scanner.Err(), "read registry")
}

// LoadFile reads a registry file.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open registry")
	}
	defer f.Close()
	return errors.Wrapf(r.Load(f), "load %s", path)
}

// Hash returns the ID for name: the registered one if any, else the value
// of a hex literal, else dbpf.DefaultHash. It has the dbpf.HashFunc
// signature and can be passed to dbpf.WithNameHash.
func (r *Registry) Hash(name string) uint32 {
	r.mu.RLock()
	id, ok := r.byName[fold(name)]
	r.mu.RUnlock()
	if ok {
		return id
	}
	return dbpf.DefaultHash(name)
}

// Name returns the registered name for id, or its #XXXXXXXX form.
func (r *Registry) Name(id uint32) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.byID[id]; ok {
		return name
	}
	return dbpf.HexName(id)
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
