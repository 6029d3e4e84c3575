// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ResourceKey addresses a resource inside an archive. Keys are comparable and
// can be used directly as map keys.
type ResourceKey struct {
	GroupID    uint32
	InstanceID uint32
	TypeID     uint32
}

// NewResourceKey builds a key from its three parts.
func NewResourceKey(groupID, instanceID, typeID uint32) ResourceKey {
	return ResourceKey{GroupID: groupID, InstanceID: instanceID, TypeID: typeID}
}

// Compare orders keys by group, then instance, then type. It returns -1, 0
// or +1.
func (k ResourceKey) Compare(other ResourceKey) int {
	switch {
	case k.GroupID != other.GroupID:
		return cmpUint32(k.GroupID, other.GroupID)
	case k.InstanceID != other.InstanceID:
		return cmpUint32(k.InstanceID, other.InstanceID)
	default:
		return cmpUint32(k.TypeID, other.TypeID)
	}
}

// Less reports whether k sorts before other.
func (k ResourceKey) Less(other ResourceKey) bool {
	return k.Compare(other) < 0
}

// String formats the key as GGGGGGGG!IIIIIIII.TTTTTTTT.
func (k ResourceKey) String() string {
	return fmt.Sprintf("%08X!%08X.%08X", k.GroupID, k.InstanceID, k.TypeID)
}

// ParseResourceKey parses the form produced by String. Each part may carry
// an optional 0x prefix.
func ParseResourceKey(s string) (ResourceKey, error) {
	group, rest, ok := strings.Cut(s, "!")
	if !ok {
		return ResourceKey{}, errors.Errorf("parse resource key %q: missing '!'", s)
	}
	instance, typ, ok := strings.Cut(rest, ".")
	if !ok {
		return ResourceKey{}, errors.Errorf("parse resource key %q: missing '.'", s)
	}

	var parts [3]uint32
	for i, field := range []string{group, instance, typ} {
		v, err := parseHex32(field)
		if err != nil {
			return ResourceKey{}, errors.Wrapf(err, "parse resource key %q", s)
		}
		parts[i] = v
	}
	return NewResourceKey(parts[0], parts[1], parts[2]), nil
}

func parseHex32(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, errors.New("empty hex field")
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func cmpUint32(a, b uint32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
