package bitmap

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func mustDense(t *testing.T, s string) Dense {
	d, err := FromString(s)
	if err != nil {
		t.Fatalf("bugged test setup: %v", err)
	}
	return d
}

func TestSelect(t *testing.T) {
	tcs := []struct {
		name string
		data Dense
		mask Dense
		eout Dense
	}{
		{
			name: "all",
			data: mustDense(t, "101"),
			mask: mustDense(t, "111"),
			eout: mustDense(t, "101"),
		}, {
			name: "some",
			data: mustDense(t, "10100011"),
			mask: mustDense(t, "11111100"),
			eout: mustDense(t, "101000"),
		}, {
			name: "none",
			data: mustDense(t, "10100011 111"),
			mask: mustDense(t, "00000000 000"),
			eout: mustDense(t, ""),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := Select(tc.data, tc.mask)
			if out.len != tc.eout.len {
				t.Errorf("got bitmap of len %d, want %d", out.len, tc.eout.len)
			}
			if !bytes.Equal(out.bits, tc.eout.bits) {
				t.Errorf("Select(%v, %v) == %v, want %v", tc.data, tc.mask, out, tc.eout)
			}
		})
	}
}

func TestParity(t *testing.T) {
	tcs := []struct {
		name string
		data Dense
		eout bool
	}{
		{"short even", mustDense(t, "101"), false},
		{"short odd", mustDense(t, "111"), true},
		{"empty", mustDense(t, ""), false},
		{"multibyte even", mustDense(t, "1111 1111 11"), false},
		{"multibyte odd", mustDense(t, "1111 1111 10"), true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if out := Parity(tc.data); out != tc.eout {
				t.Errorf("Parity(%v) == %v, want %v", tc.data, out, tc.eout)
			}
		})
	}
}

func TestCountOnes(t *testing.T) {
	tcs := []struct {
		name string
		data Dense
		eout int
	}{
		{"short", mustDense(t, "101"), 2},
		{"empty", mustDense(t, ""), 0},
		{"multibyte one", mustDense(t, "1111 1111 11"), 10},
		{"multibyte two", mustDense(t, "1011 1011 10"), 7},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if out := CountOnes(tc.data); out != tc.eout {
				t.Errorf("CountOnes(%v) == %v, want %v", tc.data, out, tc.eout)
			}
		})
	}
}

func TestNewDenseClearsTail(t *testing.T) {
	d := NewDense([]byte{0xFF, 0xFF}, 10)
	if got := CountOnes(d); got != 10 {
		t.Errorf("CountOnes == %d, want 10", got)
	}
	if d.SizeBytes() != 2 {
		t.Errorf("SizeBytes == %d, want 2", d.SizeBytes())
	}
}

func TestFromBools(t *testing.T) {
	d := FromBools([]bool{true, false, true, true})
	if want := mustDense(t, "1011"); !Equal(d, want) {
		t.Errorf("FromBools == %v, want %v", d, want)
	}
}

func TestWireRoundTrip(t *testing.T) {
	tcs := []struct {
		name string
		data Dense
	}{
		{"empty", mustDense(t, "")},
		{"short", mustDense(t, "101")},
		{"multibyte", mustDense(t, "10110011 01000111 1")},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out, err := ParseWire(AppendWire(nil, tc.data))
			if err != nil {
				t.Fatalf("ParseWire: %v", err)
			}
			if !Equal(out, tc.data) {
				t.Errorf("ParseWire(AppendWire(%v)) == %v", tc.data, out)
			}
		})
	}
}

func TestParseWireRejectsOversizedData(t *testing.T) {
	// A length too short for the payload.
	bad := AppendWire(nil, Dense{bits: []byte{1, 2, 3}, len: 3})
	if _, err := ParseWire(bad); err == nil {
		t.Errorf("ParseWire accepted 3 bytes for a 3-bit bitmap")
	}
}

func TestParseWireRejectsInflatedLength(t *testing.T) {
	tcs := []struct {
		name string
		len  uint64
	}{
		{"one bit past payload", 17},
		{"huge", 1 << 40},
		{"overflows int", 1<<64 - 1},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			b := protowire.AppendTag(nil, fieldBits, protowire.BytesType)
			b = protowire.AppendBytes(b, []byte{0xff, 0x01})
			b = protowire.AppendTag(b, fieldLen, protowire.VarintType)
			b = protowire.AppendVarint(b, tc.len)
			if d, err := ParseWire(b); err == nil {
				t.Errorf("ParseWire accepted a %d-bit bitmap carried in 2 bytes: %v", tc.len, d.Size())
			}
		})
	}
}
