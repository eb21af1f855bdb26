package blockcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/blowfish"
)

var (
	ErrInvalidKeyLength    = errors.New("invalid key length")
	ErrUnknownAlgorithm    = errors.New("unknown cipher algorithm")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
)

// An Algorithm names a block cipher.
type Algorithm string

const (
	DES      Algorithm = "des"
	AES      Algorithm = "aes"
	Blowfish Algorithm = "blowfish"

	Default = DES
)

type algorithm struct {
	keySize int
	build   func(key []byte) (cipher.Block, error)
}

var algorithms = map[Algorithm]algorithm{
	DES:      {keySize: des.BlockSize, build: des.NewCipher},
	AES:      {keySize: 16, build: aes.NewCipher},
	Blowfish: {keySize: 16, build: newBlowfish},
}

func newBlowfish(key []byte) (cipher.Block, error) {
	return blowfish.NewCipher(key)
}

// Algorithms lists the supported algorithm names in sorted order.
func Algorithms() []Algorithm {
	as := make([]Algorithm, 0, len(algorithms))
	for a := range algorithms {
		as = append(as, a)
	}
	sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	return as
}

// KeySize returns the key length, in bytes, that alg requires.
func KeySize(alg Algorithm) (int, error) {
	a, ok := algorithms[alg]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	return a.keySize, nil
}

// A Channel encrypts and decrypts with one algorithm. It holds no key and is
// safe for concurrent use.
type Channel struct {
	alg Algorithm
}

// New returns a Channel for alg; the empty name selects Default.
func New(alg Algorithm) (*Channel, error) {
	if alg == "" {
		alg = Default
	}
	if _, ok := algorithms[alg]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	return &Channel{alg: alg}, nil
}

func (c *Channel) Algorithm() Algorithm {
	return c.alg
}

// KeySize returns the key length c requires.
func (c *Channel) KeySize() int {
	return algorithms[c.alg].keySize
}

func (c *Channel) block(key []byte) (cipher.Block, error) {
	a := algorithms[c.alg]
	if len(key) != a.keySize {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidKeyLength, c.alg, a.keySize, len(key))
	}
	return a.build(key)
}

// Encrypt pads plaintext and encrypts it block by block under key.
func (c *Channel) Encrypt(plaintext, key []byte) ([]byte, error) {
	b, err := c.block(key)
	if err != nil {
		return nil, err
	}
	bs := b.BlockSize()
	out := pad(plaintext, bs)
	for i := 0; i < len(out); i += bs {
		b.Encrypt(out[i:i+bs], out[i:i+bs])
	}
	return out, nil
}

// Decrypt reverses Encrypt. Under the wrong key it still succeeds; see the
// package documentation.
func (c *Channel) Decrypt(ciphertext, key []byte) ([]byte, error) {
	b, err := c.block(key)
	if err != nil {
		return nil, err
	}
	bs := b.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a positive multiple of the %d byte block",
			ErrMalformedCiphertext, len(ciphertext), bs)
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(out); i += bs {
		b.Decrypt(out[i:i+bs], ciphertext[i:i+bs])
	}
	out, _ = unpad(out, bs)
	return out, nil
}

// EncryptText encrypts msg and encodes the ciphertext as standard base64.
func (c *Channel) EncryptText(msg string, key []byte) (string, error) {
	ct, err := c.Encrypt([]byte(msg), key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptText decodes a base64 ciphertext produced by EncryptText and decrypts
// it.
func (c *Channel) DecryptText(encoded string, key []byte) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	pt, err := c.Decrypt(ct, key)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
