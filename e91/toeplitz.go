package e91

import (
	"fmt"

	"github.com/alan-christopher/e91/e91/bitmap"
)

// A toeplitz represents a matrix whose diagonals are all constant. It operates
// in F_2, i.e. all of its scalars are 0 or 1. Multiplying by a random
// toeplitz matrix is a 2-universal hash, which we use both for message
// authentication and for privacy amplification.
type toeplitz struct {
	// The diagonal constants for this toeplitz matrix, starting from the bottom
	// left and ending with the top right.
	diags bitmap.Dense

	m int
	n int
}

// seedBits returns the number of diagonal bits an m x n toeplitz matrix needs.
func seedBits(m, n int) int {
	return m + n - 1
}

// Mul computes the matrix product Av between the toeplitz matrix t and the
// provided vector.
func (t toeplitz) Mul(vec bitmap.Dense) (bitmap.Dense, error) {
	if t.diags.Size() < seedBits(t.m, t.n) {
		return bitmap.Empty(), fmt.Errorf("improper toeplitz construction, has %d diagonals, needs %d", t.diags.Size(), seedBits(t.m, t.n))
	}
	if t.n != vec.Size() {
		return bitmap.Empty(), fmt.Errorf("multiplying %dx%d matrix into %d-dim vector", t.m, t.n, vec.Size())
	}

	r := bitmap.Empty()
	for off := t.m - 1; off >= 0; off-- {
		row, err := bitmap.Slice(t.diags, off, off+t.n)
		if err != nil {
			return bitmap.Empty(), err
		}
		r.AppendBit(bitmap.Parity(bitmap.And(row, vec)))
	}
	return r, nil
}

// Amplify compresses bits to outBits by hashing them with the toeplitz matrix
// whose diagonals are seed. Both parties must use the same public seed, which
// needs at least outBits+bits.Size()-1 bits.
func Amplify(bits, seed bitmap.Dense, outBits int) (bitmap.Dense, error) {
	if outBits <= 0 {
		return bitmap.Empty(), fmt.Errorf("%w: amplifying to %d bits", ErrInvalidConfiguration, outBits)
	}
	if outBits > bits.Size() {
		return bitmap.Empty(), fmt.Errorf("%w: cannot amplify %d bits into %d",
			ErrInsufficientKeyMaterial, bits.Size(), outBits)
	}
	t := toeplitz{diags: seed, m: outBits, n: bits.Size()}
	return t.Mul(bits)
}
