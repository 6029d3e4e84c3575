// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package project

import (
	"path/filepath"

	"golang.org/x/text/cases"
)

// DefaultProtectedPackages are the archives shipped with the game and its
// expansion. Mods must never overwrite them.
var DefaultProtectedPackages = []string{
	"patchdata.package",
	"spore_audio1.package",
	"spore_audio2.package",
	"spore_content.package",
	"spore_game.package",
	"spore_graphics.package",
	"spore_pack_03.package",
	"bp2_data.package",
	"ep1_patchdata.package",
	"spore_ep1_content_01.package",
	"spore_ep1_content_02.package",
	"spore_ep1_data.package",
	"spore_ep1_locale_01.package",
	"spore_ep1_locale_02.package",
}

// ProtectedSet is a case-insensitive set of archive base names.
type ProtectedSet struct {
	names map[string]struct{}
}

func NewProtectedSet(names ...string) *ProtectedSet {
	s := &ProtectedSet{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		s.names[foldName(name)] = struct{}{}
	}
	return s
}

// DefaultProtectedSet protects DefaultProtectedPackages.
func DefaultProtectedSet() *ProtectedSet {
	return NewProtectedSet(DefaultProtectedPackages...)
}

// Contains reports whether the archive at path is protected. Only the base
// name is compared.
func (s *ProtectedSet) Contains(path string) bool {
	_, ok := s.names[foldName(filepath.Base(path))]
	return ok
}

func foldName(name string) string {
	return cases.Fold().String(name)
}
