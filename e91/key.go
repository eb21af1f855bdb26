package e91

import (
	"encoding/hex"
	"fmt"
	"runtime"

	"github.com/alan-christopher/e91/e91/bitmap"
)

// A SessionKey is symmetric key material derived from one run. It must not be
// reused across runs.
type SessionKey []byte

// Derive packs the first n*8 bits into an n-byte key, most significant bit
// first within each byte: bit 0 becomes the top bit of key[0].
//
// If fewer than n*8 bits are available Derive returns an error wrapping
// ErrInsufficientKeyMaterial; the caller must run more trials. It never pads
// or repeats bits.
func Derive(bits bitmap.Dense, n int) (SessionKey, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: key length must be positive, got %d", ErrInvalidConfiguration, n)
	}
	if bits.Size() < n*8 {
		return nil, fmt.Errorf("%w: have %d bits, need %d", ErrInsufficientKeyMaterial, bits.Size(), n*8)
	}
	key := make(SessionKey, n)
	for i := 0; i < n*8; i++ {
		if bits.Get(i) {
			key[i/8] |= 0x80 >> (i % 8)
		}
	}
	return key, nil
}

func (k SessionKey) String() string {
	return hex.EncodeToString(k)
}

// Wipe zeroes the key in place.
//
//go:noinline
func (k SessionKey) Wipe() {
	for i := range k {
		k[i] = 0
	}
	runtime.KeepAlive(k)
}
