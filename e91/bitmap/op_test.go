package bitmap

import (
	"bytes"
	"testing"
)

func TestBinaryOperators(t *testing.T) {
	tcs := []struct {
		name string
		a, b Dense
		eout Dense
		op   func(a, b Dense) Dense
	}{
		{
			name: "AND aligned",
			a:    mustDense(t, "10100000"),
			b:    mustDense(t, "01100000"),
			eout: mustDense(t, "00100000"),
			op:   And,
		}, {
			name: "AND short a",
			a:    mustDense(t, "101"),
			b:    mustDense(t, "01111000"),
			eout: mustDense(t, "001"),
			op:   And,
		}, {
			name: "AND multibyte",
			b:    mustDense(t, "0111 1000 1011 1011"),
			a:    mustDense(t, "1010 1010 1100 0110"),
			eout: mustDense(t, "0010 1000 1000 0010"),
			op:   And,
		}, {
			name: "XOR aligned",
			a:    mustDense(t, "10100000"),
			b:    mustDense(t, "01100000"),
			eout: mustDense(t, "11000000"),
			op:   XOr,
		}, {
			name: "XOR short a",
			a:    mustDense(t, "101"),
			b:    mustDense(t, "01111000"),
			eout: mustDense(t, "11011000"),
			op:   XOr,
		}, {
			name: "XOR short b",
			a:    mustDense(t, "01111000"),
			b:    mustDense(t, "101"),
			eout: mustDense(t, "11011000"),
			op:   XOr,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.op(tc.a, tc.b)
			if out.Size() != tc.eout.Size() {
				t.Errorf("got bitmap of len %d, want %d", out.Size(), tc.eout.Size())
			}
			if !bytes.Equal(out.Data(), tc.eout.Data()) {
				t.Errorf("op(%v, %v) == %v, want %v", tc.a, tc.b, out, tc.eout)
			}
		})
	}
}

func TestXOrDoesNotAlias(t *testing.T) {
	a := mustDense(t, "1111")
	b := mustDense(t, "0101")
	XOr(a, b)
	if !Equal(a, mustDense(t, "1111")) || !Equal(b, mustDense(t, "0101")) {
		t.Errorf("XOr modified its operands: %v, %v", a, b)
	}
}

func TestSlice(t *testing.T) {
	tcs := []struct {
		name       string
		bits       Dense
		start, end int
		eout       Dense
	}{
		{
			name:  "full slice",
			bits:  mustDense(t, "11101101"),
			start: 0,
			end:   8,
			eout:  mustDense(t, "11101101"),
		}, {
			name: "empty slice",
			bits: mustDense(t, "11101101"),
			eout: mustDense(t, ""),
		}, {
			name:  "aligned",
			bits:  mustDense(t, "10000010 11101101 01000001"),
			start: 8,
			end:   16,
			eout:  mustDense(t, "11101101"),
		}, {
			name:  "unaligned start",
			bits:  mustDense(t, "10000010 11101101 01000001"),
			start: 1,
			end:   16,
			eout:  mustDense(t, "0000010 11101101"),
		}, {
			name:  "unaligned end",
			bits:  mustDense(t, "11111111 00000000 1000 0000"),
			start: 8,
			end:   17,
			eout:  mustDense(t, "00000000 1"),
		}, {
			name:  "long slice",
			bits:  NewDense([]byte{1, 2, 3, 4, 5, 6}, 48),
			start: 8,
			end:   48,
			eout:  NewDense([]byte{2, 3, 4, 5, 6}, 40),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Slice(tc.bits, tc.start, tc.end)
			if err != nil {
				t.Fatalf("slice(%d, %d) = %v, want nil error", tc.start, tc.end, err)
			}
			if out.Size() != tc.eout.Size() {
				t.Errorf("got bitmap of len %d, want %d", out.Size(), tc.eout.Size())
			}
			if !bytes.Equal(out.Data(), tc.eout.Data()) {
				t.Errorf("Data() == %v, want %v", out.Data(), tc.eout.Data())
			}
		})
	}
}

func TestSliceBounds(t *testing.T) {
	d := mustDense(t, "10101")
	for _, r := range [][2]int{{-1, 2}, {3, 2}, {0, 6}} {
		if _, err := Slice(d, r[0], r[1]); err == nil {
			t.Errorf("Slice(%d, %d) on %d bits succeeded", r[0], r[1], d.Size())
		}
	}
}
