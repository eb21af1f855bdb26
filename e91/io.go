package e91

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/alan-christopher/e91/e91/bitmap"
)

// A framer reads and writes framed messages to the classical channel.
// The structure of the frame is trivial:  length | message | mac
//
// MACs are computed by applying a secret toeplitz matrix to create a hash,
// then applying a one-time pad to the hash to allow for unconditional
// security. See also, https://arxiv.org/abs/1603.08387.
type framer struct {
	rw     io.ReadWriter
	secret io.Reader
	t      toeplitz

	// maxBytes bounds the size of a single message; the toeplitz diagonals
	// are sized for it.
	maxBytes int
}

// newFramer consumes enough of secret to authenticate messages of up to
// maxBytes with macBits-bit tags. macBits is rounded up to whole bytes.
func newFramer(rw io.ReadWriter, secret io.Reader, macBits, maxBytes int) (*framer, error) {
	macBits = bitmap.BytesFor(macBits) * 8
	nDiags := seedBits(macBits, maxBytes*8)
	diags := make([]byte, bitmap.BytesFor(nDiags))
	if _, err := io.ReadFull(secret, diags); err != nil {
		return nil, fmt.Errorf("reading authentication secret: %w", err)
	}
	return &framer{
		rw:       rw,
		secret:   secret,
		t:        toeplitz{diags: bitmap.NewDense(diags, nDiags), m: macBits},
		maxBytes: maxBytes,
	}, nil
}

func (p *framer) Write(m message, s *Stats) error {
	marshalled := m.appendWire(nil)
	if len(marshalled) > p.maxBytes {
		return fmt.Errorf("message of %d bytes exceeds limit of %d", len(marshalled), p.maxBytes)
	}
	if err := binary.Write(p.rw, binary.LittleEndian, int32(len(marshalled))); err != nil {
		return err
	}
	if _, err := p.rw.Write(marshalled); err != nil {
		return err
	}
	mac, err := p.buildMAC(marshalled)
	if err != nil {
		return err
	}
	if _, err := p.rw.Write(mac); err != nil {
		return err
	}
	s.MessagesSent++
	s.BytesSent += 4 + len(marshalled) + len(mac)
	return nil
}

func (p *framer) Read(m message, s *Stats) error {
	var mLen int32
	if err := binary.Read(p.rw, binary.LittleEndian, &mLen); err != nil {
		return err
	}
	if mLen < 0 || int(mLen) > p.maxBytes {
		return fmt.Errorf("invalid message length %d", mLen)
	}
	marshalled := make([]byte, mLen)
	if _, err := io.ReadFull(p.rw, marshalled); err != nil {
		return err
	}
	mac := make([]byte, p.t.m/8)
	if _, err := io.ReadFull(p.rw, mac); err != nil {
		return err
	}
	emac, err := p.buildMAC(marshalled)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(mac, emac) != 1 {
		return fmt.Errorf("invalid mac: got %x, expected %x", mac, emac)
	}
	s.MessagesReceived++
	s.BytesRead += 4 + len(marshalled) + len(mac)
	return m.parseWire(marshalled)
}

func (p *framer) buildMAC(msg []byte) ([]byte, error) {
	t := p.t
	t.n = len(msg) * 8
	hash, err := t.Mul(bitmap.NewDense(msg, -1))
	if err != nil {
		return nil, err
	}
	otp := make([]byte, hash.SizeBytes())
	if _, err := io.ReadFull(p.secret, otp); err != nil {
		return nil, err
	}
	return bitmap.XOr(hash, bitmap.NewDense(otp, -1)).Data(), nil
}
