// Package bitmap provides densely-packed bit strings for sifted key material,
// outcome masks and hashing seeds.
//
// Bits are stored least-significant-bit first within each byte. Callers that
// need a different external packing (e.g. session keys) must convert
// explicitly.
package bitmap

import (
	"fmt"
	"math/bits"

	"google.golang.org/protobuf/encoding/protowire"
)

const byteSize = 8

// Wire field numbers of an encoded Dense.
const (
	fieldBits protowire.Number = 1
	fieldLen  protowire.Number = 2
)

// Select selects a subset of bits from data, according to which bits are set in
// mask.
func Select(data, mask Dense) Dense {
	var d Dense
	for i := 0; i < data.Size(); i++ {
		if !mask.Get(i) {
			continue
		}
		d.AppendBit(data.Get(i))
	}
	return d
}

// Empty returns an empty bitmap.
func Empty() Dense {
	return Dense{}
}

// FromBools builds a bitmap holding bs in order.
func FromBools(bs []bool) Dense {
	d := NewDense(nil, len(bs))
	for i, b := range bs {
		d.Set(i, b)
	}
	return d
}

// FromString converts a string of '1's and '0's to a Dense. Spaces are
// ignored.
func FromString(s string) (Dense, error) {
	d := Dense{}
	for _, c := range s {
		switch c {
		case '1':
			d.AppendBit(true)
		case '0':
			d.AppendBit(false)
		case ' ':
			continue
		default:
			return Dense{}, fmt.Errorf("invalid bitmap string rep: %s", s)
		}
	}
	return d, nil
}

// Parity returns the overall parity of d, with true corresponding to 1 and
// false to 0.
func Parity(d Dense) bool {
	var sum byte
	for _, b := range d.bits {
		sum ^= b
	}
	return bits.OnesCount8(sum)%2 == 1
}

// CountOnes returns the total number of bits set in d.
func CountOnes(d Dense) int {
	var sum int
	for _, b := range d.bits {
		sum += bits.OnesCount8(b)
	}
	return sum
}

// Equal returns true iff a and b have the same length and contain the same
// bits.
func Equal(a, b Dense) bool {
	return a.len == b.len && CountOnes(XOr(a, b)) == 0
}

// BytesFor returns the number of bytes necessary to hold the provided number of
// bits.
func BytesFor(bits int) int {
	return (bits + byteSize - 1) / byteSize
}

// AppendWire appends the protobuf wire encoding of d, as an embedded message
// {1: bytes bits, 2: varint len}, to b.
func AppendWire(b []byte, d Dense) []byte {
	b = protowire.AppendTag(b, fieldBits, protowire.BytesType)
	b = protowire.AppendBytes(b, d.bits)
	b = protowire.AppendTag(b, fieldLen, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(d.len))
}

// ParseWire decodes a Dense previously encoded by AppendWire.
func ParseWire(b []byte) (Dense, error) {
	var (
		data []byte
		bLen int
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Dense{}, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldBits && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Dense{}, protowire.ParseError(n)
			}
			data = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldLen && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Dense{}, protowire.ParseError(n)
			}
			bLen = int(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Dense{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	// The length must be covered by the bytes actually carried, so a forged
	// length cannot force a large allocation.
	if bLen < 0 || bLen > len(data)*byteSize || BytesFor(bLen) < len(data) {
		return Dense{}, fmt.Errorf("bitmap of %d bits carries %d bytes", bLen, len(data))
	}
	return NewDense(data, bLen), nil
}
