// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Compression identifies how a resource is stored in the archive. The values
// are the ones written to the index.
type Compression uint16

const (
	CompressionNone    Compression = 0x0000
	CompressionRefPack Compression = 0xFFFF
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionRefPack:
		return "refpack"
	default:
		return fmt.Sprintf("unknown(0x%04X)", uint16(c))
	}
}

// DefaultMinCompressSize is the smallest payload the codec will try to
// compress. Smaller payloads are stored raw.
const DefaultMinCompressSize = 32

// RefPack framing and encoder limits
const (
	refpackMagic             = 0xFB
	refpackFlag              = 0x10
	refpackFlagMask          = 0x3E
	refpackBigSize           = 0x80 // sizes are 4 bytes instead of 3
	refpackHasCompressedSize = 0x01 // compressed size precedes the uncompressed size

	refpackWindow        = 1 << 17
	refpackMaxMatch      = 1028
	refpackMaxLiteralRun = 112
	refpackHashBits      = 16
	refpackMaxChain      = 64
)

// Codec compresses and decompresses resource payloads with RefPack, the
// LZ77 variant the game's own reader expects. A Codec holds no state and is
// safe for concurrent use; the zero value uses DefaultMinCompressSize.
type Codec struct {
	MinSize int
}

// Payload is a resource as it is stored: possibly compressed bytes plus the
// metadata needed to decode them.
type Payload struct {
	Data             []byte
	UncompressedSize uint32
	Compression      Compression
}

// Compress encodes data with the zero Codec.
func Compress(data []byte) ([]byte, bool) {
	return Codec{}.Compress(data)
}

// Decompress decodes src with the zero Codec.
func Decompress(src []byte, uncompressedSize uint32) ([]byte, error) {
	return Codec{}.Decompress(src, uncompressedSize)
}

// Encode prepares data for storage with the zero Codec.
func Encode(data []byte, compress bool) Payload {
	return Codec{}.Encode(data, compress)
}

func (c Codec) minSize() int {
	if c.MinSize <= 0 {
		return DefaultMinCompressSize
	}
	return c.MinSize
}

// Encode prepares data for storage. When compress is false, or the codec
// declines, the payload is stored raw.
func (c Codec) Encode(data []byte, compress bool) Payload {
	p := Payload{
		Data:             data,
		UncompressedSize: uint32(len(data)),
		Compression:      CompressionNone,
	}
	if !compress {
		return p
	}
	if out, ok := c.Compress(data); ok {
		p.Data = out
		p.Compression = CompressionRefPack
	}
	return p
}

// Decode turns a stored payload into resource bytes.
func (c Codec) Decode(p Payload) ([]byte, error) {
	if p.Compression == CompressionNone {
		if uint64(len(p.Data)) != uint64(p.UncompressedSize) {
			return nil, errors.Wrapf(ErrCorruptPayload, "raw payload is %d bytes, index declares %d",
				len(p.Data), p.UncompressedSize)
		}
		return p.Data, nil
	}
	return c.Decompress(p.Data, p.UncompressedSize)
}

// Compress encodes data. It returns the input unchanged and false when the
// payload is below the minimum size or would not shrink.
func (c Codec) Compress(data []byte) ([]byte, bool) {
	if len(data) < c.minSize() || uint64(len(data)) > math.MaxUint32 {
		return data, false
	}
	out := refpackEncode(data)
	if len(out) >= len(data) {
		return data, false
	}
	return out, true
}

// Decompress decodes a RefPack stream. The decoded length must equal
// uncompressedSize exactly; the format has no other integrity check.
func (c Codec) Decompress(src []byte, uncompressedSize uint32) ([]byte, error) {
	if len(src) < 2 || src[0]&refpackFlagMask != refpackFlag || src[1] != refpackMagic {
		return nil, errors.Wrap(ErrCorruptPayload, "refpack: bad header")
	}
	flags := src[0]
	sizeLen := 3
	if flags&refpackBigSize != 0 {
		sizeLen = 4
	}
	pos := 2
	if flags&refpackHasCompressedSize != 0 {
		pos += sizeLen
	}
	if len(src) < pos+sizeLen {
		return nil, errors.Wrap(ErrCorruptPayload, "refpack: short header")
	}
	var declared uint32
	for _, b := range src[pos : pos+sizeLen] {
		declared = declared<<8 | uint32(b)
	}
	pos += sizeLen
	if declared != uncompressedSize {
		return nil, errors.Wrapf(ErrCorruptPayload, "refpack: stream declares %d bytes, index declares %d", declared, uncompressedSize)
	}

	want := int(uncompressedSize)
	dst := make([]byte, 0, want)
	for {
		if pos >= len(src) {
			return nil, errors.Wrap(ErrCorruptPayload, "refpack: missing stop code")
		}
		b0 := int(src[pos])
		var literals, length, offset int
		stop := false

		switch {
		case b0 < 0x80:
			if pos+2 > len(src) {
				return nil, errors.Wrap(ErrCorruptPayload, "refpack: truncated command")
			}
			b1 := int(src[pos+1])
			literals = b0 & 0x03
			length = (b0&0x1C)>>2 + 3
			offset = (b0&0x60)<<3 + b1 + 1
			pos += 2
		case b0 < 0xC0:
			if pos+3 > len(src) {
				return nil, errors.Wrap(ErrCorruptPayload, "refpack: truncated command")
			}
			b1, b2 := int(src[pos+1]), int(src[pos+2])
			literals = b1 >> 6
			length = b0&0x3F + 4
			offset = (b1&0x3F)<<8 + b2 + 1
			pos += 3
		case b0 < 0xE0:
			if pos+4 > len(src) {
				return nil, errors.Wrap(ErrCorruptPayload, "refpack: truncated command")
			}
			b1, b2, b3 := int(src[pos+1]), int(src[pos+2]), int(src[pos+3])
			literals = b0 & 0x03
			length = (b0&0x0C)<<6 + b3 + 5
			offset = (b0&0x10)<<12 + b1<<8 + b2 + 1
			pos += 4
		case b0 < 0xFC:
			literals = (b0&0x1F)<<2 + 4
			pos++
		default:
			literals = b0 & 0x03
			stop = true
			pos++
		}

		if pos+literals > len(src) {
			return nil, errors.Wrap(ErrCorruptPayload, "refpack: literal run past end of input")
		}
		if len(dst)+literals+length > want {
			return nil, errors.Wrapf(ErrCorruptPayload, "refpack: output exceeds %d bytes", want)
		}
		dst = append(dst, src[pos:pos+literals]...)
		pos += literals

		if length > 0 {
			if offset > len(dst) {
				return nil, errors.Wrapf(ErrCorruptPayload, "refpack: back-reference %d before start of output", offset)
			}
			// Byte at a time: source and destination may overlap.
			start := len(dst) - offset
			for i := 0; i < length; i++ {
				dst = append(dst, dst[start+i])
			}
		}
		if stop {
			break
		}
	}

	if len(dst) != want {
		return nil, errors.Wrapf(ErrCorruptPayload, "refpack: decoded %d bytes, want %d", len(dst), want)
	}
	return dst, nil
}

// refpackEncode is a greedy LZ77 encoder over 3-byte hash chains.
func refpackEncode(src []byte) []byte {
	n := len(src)
	out := make([]byte, 0, n/2+16)
	if n > 0xFFFFFF {
		out = append(out, refpackFlag|refpackBigSize, refpackMagic, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	} else {
		out = append(out, refpackFlag, refpackMagic, byte(n>>16), byte(n>>8), byte(n))
	}

	head := make([]int32, 1<<refpackHashBits)
	for i := range head {
		head[i] = -1
	}
	prev := make([]int32, n)
	insert := func(pos int) {
		if pos+3 > n {
			return
		}
		h := hash3(src[pos:])
		prev[pos] = head[h]
		head[h] = int32(pos)
	}

	pos, litStart := 0, 0
	for pos+3 <= n {
		length, dist := longestMatch(src, pos, head, prev)
		if length == 0 {
			insert(pos)
			pos++
			continue
		}

		var rest []byte
		out, rest = appendLiteralRuns(out, src[litStart:pos])
		out = appendCopy(out, rest, length, dist)

		for i := 0; i < length; i++ {
			insert(pos + i)
		}
		pos += length
		litStart = pos
	}

	var rest []byte
	out, rest = appendLiteralRuns(out, src[litStart:])
	out = append(out, 0xFC|byte(len(rest)))
	return append(out, rest...)
}

func hash3(b []byte) uint32 {
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return (v * 2654435761) >> (32 - refpackHashBits)
}

// minMatch is the shortest copy each offset range can encode.
func minMatch(dist int) int {
	switch {
	case dist <= 1024:
		return 3
	case dist <= 16384:
		return 4
	default:
		return 5
	}
}

func longestMatch(src []byte, pos int, head, prev []int32) (int, int) {
	maxLen := len(src) - pos
	if maxLen > refpackMaxMatch {
		maxLen = refpackMaxMatch
	}

	bestLen, bestDist := 0, 0
	cand := head[hash3(src[pos:])]
	for chain := 0; cand >= 0 && chain < refpackMaxChain; chain++ {
		c := int(cand)
		dist := pos - c
		if dist > refpackWindow {
			break
		}
		if bestLen == 0 || src[c+bestLen] == src[pos+bestLen] {
			l := 0
			for l < maxLen && src[c+l] == src[pos+l] {
				l++
			}
			if l > bestLen && l >= minMatch(dist) {
				bestLen, bestDist = l, dist
				if l == maxLen {
					break
				}
			}
		}
		cand = prev[c]
	}
	return bestLen, bestDist
}

// appendLiteralRuns writes lits as 4-aligned literal commands and returns the
// 0-3 bytes that must ride along with the next command.
func appendLiteralRuns(out, lits []byte) ([]byte, []byte) {
	for len(lits) >= 4 {
		n := len(lits) &^ 3
		if n > refpackMaxLiteralRun {
			n = refpackMaxLiteralRun
		}
		out = append(out, 0xE0|byte((n-4)>>2))
		out = append(out, lits[:n]...)
		lits = lits[n:]
	}
	return out, lits
}

func appendCopy(out, lits []byte, length, dist int) []byte {
	p := len(lits)
	d := dist - 1
	switch {
	case length <= 10 && dist <= 1024:
		out = append(out, byte((d>>8)<<5|(length-3)<<2|p), byte(d))
	case length <= 67 && dist <= 16384:
		out = append(out, 0x80|byte(length-4), byte(p<<6|d>>8), byte(d))
	default:
		out = append(out, 0xC0|byte((d>>16)<<4|((length-5)>>8)<<2|p), byte(d>>8), byte(d), byte(length-5))
	}
	return append(out, lits...)
}
