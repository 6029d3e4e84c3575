// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// HashFunc maps a human-readable name to a 32-bit identifier. The toolchain's
// name registry provides one; DefaultHash is used when none is injected.
type HashFunc func(name string) uint32

// DefaultHash hashes a name the way the game does: 32-bit FNV-1 over the
// lower-cased name. Names written as hex literals (#1A2B3C4D or 0x1A2B3C4D)
// stand for their own value.
func DefaultHash(name string) uint32 {
	if v, ok := ParseHexName(name); ok {
		return v
	}
	// Casers are stateful, so one per call.
	lower := cases.Lower(language.Und).String(name)
	h := fnv.New32()
	h.Write([]byte(lower))
	return h.Sum32()
}

// ParseHexName reports whether name is a hex literal (#XXXXXXXX or
// 0xXXXXXXXX) and returns its value.
func ParseHexName(name string) (uint32, bool) {
	var digits string
	switch {
	case strings.HasPrefix(name, "#"):
		digits = name[1:]
	case strings.HasPrefix(name, "0x"), strings.HasPrefix(name, "0X"):
		digits = name[2:]
	default:
		return 0, false
	}
	if digits == "" || len(digits) > 8 {
		return 0, false
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// HexName formats id as a #XXXXXXXX literal, the name used for identifiers
// without a registered name.
func HexName(id uint32) string {
	return fmt.Sprintf("#%08X", id)
}
