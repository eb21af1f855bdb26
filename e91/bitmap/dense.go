package bitmap

import (
	"fmt"
	"math/rand"
)

// A Dense is a bitmap where every bit is explicitly represented. Bits past
// Size() in the final byte are always zero.
type Dense struct {
	bits []byte
	len  int
}

// NewDense returns a new dense bitmap holding a copy of data, whose length is
// bitLen. If bitLen is longer than data, then trailing zeros are added. If
// bitLen is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	r := Dense{
		bits: make([]byte, BytesFor(bitLen)),
		len:  bitLen,
	}
	copy(r.bits, data)
	r.clearTail()
	return r
}

// Get returns the i-th bit in this bitmap. Bits past the end read as zero.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	return d.bits[i/byteSize]&(1<<(i%byteSize)) != 0
}

// Set assigns the i-th bit. Setting past the end grows the bitmap with zeros.
func (d *Dense) Set(i int, bit bool) {
	for d.len <= i {
		d.AppendBit(false)
	}
	j, pos := i/byteSize, i%byteSize
	if bit {
		d.bits[j] |= 1 << pos
	} else {
		d.bits[j] &^= 1 << pos
	}
}

// Flip inverts the i-th bit.
func (d *Dense) Flip(i int) {
	d.bits[i/byteSize] ^= 1 << (i % byteSize)
}

// Size returns the number of bits in this bitmap.
func (d Dense) Size() int {
	return d.len
}

// SizeBytes returns the number of bytes used to hold this bitmap.
func (d Dense) SizeBytes() int {
	return BytesFor(d.len)
}

// Data returns a view of the bytes underlying this bitmap. Modifying the
// returned slice modifies this bitmap.
func (d Dense) Data() []byte {
	return d.bits
}

// Clone returns a deep copy of d.
func (d Dense) Clone() Dense {
	return NewDense(d.bits, d.len)
}

// String renders d as '0' and '1' characters, grouped in bytes.
func (d Dense) String() string {
	r := make([]byte, 0, d.len+d.len/byteSize)
	for i := 0; i < d.len; i++ {
		if i > 0 && i%byteSize == 0 {
			r = append(r, ' ')
		}
		if d.Get(i) {
			r = append(r, '1')
		} else {
			r = append(r, '0')
		}
	}
	return string(r)
}

// Shuffle randomly permutes the contents of d, using r as a source of
// randomness.
func (d *Dense) Shuffle(r *rand.Rand) {
	r.Shuffle(d.len, d.swap)
}

func (d *Dense) swap(i, j int) {
	if d.Get(i) == d.Get(j) {
		return
	}
	d.Flip(i)
	d.Flip(j)
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	d.len++
	if pos == 0 {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[i] |= 1 << pos
	}
}

func (d *Dense) clearTail() {
	if off := d.len % byteSize; off != 0 {
		d.bits[len(d.bits)-1] &= 0xFF >> (byteSize - off)
	}
}

// Slice returns a copy of bits [start, end) of d.
func Slice(d Dense, start, end int) (Dense, error) {
	if start < 0 {
		return Dense{}, fmt.Errorf("slicing bitmap with negative start: %d", start)
	}
	if end < start {
		return Dense{}, fmt.Errorf("slicing bitmap to negative length: %d", end-start)
	}
	if end > d.len {
		return Dense{}, fmt.Errorf("slicing bitmap of len %d up to %d", d.len, end)
	}
	if start%byteSize == 0 {
		j := start / byteSize
		return NewDense(d.bits[j:j+BytesFor(end-start)], end-start), nil
	}
	r := NewDense(nil, 0)
	for i := start; i < end; i++ {
		r.AppendBit(d.Get(i))
	}
	return r, nil
}

// And returns the bitwise AND of two bitmaps, truncated to the shorter one.
func And(a, b Dense) Dense {
	short, long := a, b
	if b.len < a.len {
		short, long = b, a
	}
	r := Dense{
		bits: make([]byte, len(short.bits)),
		len:  short.len,
	}
	for i := range short.bits {
		r.bits[i] = short.bits[i] & long.bits[i]
	}
	return r
}

// XOr returns the bitwise XOR of two bitmaps. The shorter one is implicitly
// extended with zeros.
func XOr(a, b Dense) Dense {
	short, long := a, b
	if b.len < a.len {
		short, long = b, a
	}
	r := long.Clone()
	for i := range short.bits {
		r.bits[i] ^= short.bits[i]
	}
	return r
}
