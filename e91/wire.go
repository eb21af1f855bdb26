package e91

import (
	"math"

	"github.com/alan-christopher/e91/e91/bitmap"
	"google.golang.org/protobuf/encoding/protowire"
)

// A message is a classical-channel announcement, encoded in the protobuf wire
// format.
type message interface {
	appendWire(b []byte) []byte
	parseWire(b []byte) error
}

// basisAnnouncement publishes the index, within the announcing party's basis
// set, of every basis it measured along.
type basisAnnouncement struct {
	bases []byte // 1
}

// outcomeAnnouncement publishes the announcing party's outcomes on the test
// trials, in trial order. Set bits are +1.
type outcomeAnnouncement struct {
	outcomes bitmap.Dense // 1
}

// bitAnnouncement publishes a sample of key bits chosen by shuffling with
// shuffleSeed.
type bitAnnouncement struct {
	bits        bitmap.Dense // 1
	shuffleSeed int64        // 2
}

type qberAnnouncement struct {
	qber float64 // 1
}

// seedAnnouncement publishes the toeplitz diagonals for privacy amplification
// and the number of output bits.
type seedAnnouncement struct {
	seed    bitmap.Dense // 1
	outBits int          // 2
}

// eachField calls visit for every field in b. visit returns the number of bytes
// of the field value it consumed, or -1 to skip the field.
func eachField(b []byte, visit func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			if n = protowire.ConsumeFieldValue(num, typ, b); n < 0 {
				return protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func consumeBytes(b []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeDense(b []byte) (bitmap.Dense, int, error) {
	v, n, err := consumeBytes(b)
	if err != nil {
		return bitmap.Empty(), 0, err
	}
	d, err := bitmap.ParseWire(v)
	return d, n, err
}

func consumeVarint(b []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func appendDense(b []byte, num protowire.Number, d bitmap.Dense) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, bitmap.AppendWire(nil, d))
}

func (m *basisAnnouncement) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, m.bases)
}

func (m *basisAnnouncement) parseWire(b []byte) error {
	return eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != 1 || typ != protowire.BytesType {
			return -1, nil
		}
		bases, n, err := consumeBytes(v)
		m.bases = append([]byte(nil), bases...)
		return n, err
	})
}

func (m *outcomeAnnouncement) appendWire(b []byte) []byte {
	return appendDense(b, 1, m.outcomes)
}

func (m *outcomeAnnouncement) parseWire(b []byte) error {
	return eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != 1 || typ != protowire.BytesType {
			return -1, nil
		}
		var (
			n   int
			err error
		)
		m.outcomes, n, err = consumeDense(v)
		return n, err
	})
}

func (m *bitAnnouncement) appendWire(b []byte) []byte {
	b = appendDense(b, 1, m.bits)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(m.shuffleSeed))
}

func (m *bitAnnouncement) parseWire(b []byte) error {
	return eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			var (
				n   int
				err error
			)
			m.bits, n, err = consumeDense(v)
			return n, err
		case num == 2 && typ == protowire.VarintType:
			x, n, err := consumeVarint(v)
			m.shuffleSeed = int64(x)
			return n, err
		}
		return -1, nil
	})
}

func (m *qberAnnouncement) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(m.qber))
}

func (m *qberAnnouncement) parseWire(b []byte) error {
	return eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != 1 || typ != protowire.Fixed64Type {
			return -1, nil
		}
		x, n := protowire.ConsumeFixed64(v)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		m.qber = math.Float64frombits(x)
		return n, nil
	})
}

func (m *seedAnnouncement) appendWire(b []byte) []byte {
	b = appendDense(b, 1, m.seed)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(m.outBits))
}

func (m *seedAnnouncement) parseWire(b []byte) error {
	return eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			var (
				n   int
				err error
			)
			m.seed, n, err = consumeDense(v)
			return n, err
		case num == 2 && typ == protowire.VarintType:
			x, n, err := consumeVarint(v)
			m.outBits = int(x)
			return n, err
		}
		return -1, nil
	})
}
