package bitmap

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestDenseGet(t *testing.T) {
	tcs := []struct {
		name  string
		data  Dense
		edata []bool
	}{
		{"implicit zeros", NewDense(nil, 3), []bool{false, false, false}},
		{"aligned", mustDense(t, "10101010"), []bool{true, false, true, false, true, false, true, false}},
		{"multibyte",
			mustDense(t, "00000000 101"),
			[]bool{false, false, false, false, false, false, false, false, true, false, true}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var d []bool
			for i := 0; i < tc.data.Size(); i++ {
				d = append(d, tc.data.Get(i))
			}
			if !reflect.DeepEqual(d, tc.edata) {
				t.Errorf("t.Get() == %v, want %v", d, tc.edata)
			}
		})
	}
}

func TestDenseSwap(t *testing.T) {
	tcs := []struct {
		name string
		d    Dense
		i, j int
		eout Dense
	}{
		{"zeros", mustDense(t, "00"), 0, 1, mustDense(t, "00")},
		{"ones", mustDense(t, "11"), 0, 1, mustDense(t, "11")},
		{"one zero", mustDense(t, "10"), 0, 1, mustDense(t, "01")},
		{"zero one", mustDense(t, "01"), 0, 1, mustDense(t, "10")},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			tc.d.swap(tc.i, tc.j)
			if !Equal(tc.d, tc.eout) {
				t.Errorf("got %v, want %v", tc.d, tc.eout)
			}
		})
	}
}

func TestDenseSet(t *testing.T) {
	d := mustDense(t, "000")
	d.Set(1, true)
	d.Set(9, true)
	if want := mustDense(t, "01000000 01"); !Equal(d, want) {
		t.Errorf("got %v, want %v", d, want)
	}
	d.Set(1, false)
	if d.Get(1) {
		t.Errorf("bit 1 still set after clearing")
	}
}

func TestShufflePreservesWeight(t *testing.T) {
	d := mustDense(t, "11110000 11001010 1")
	before := CountOnes(d)
	d.Shuffle(rand.New(rand.NewSource(7)))
	if after := CountOnes(d); after != before {
		t.Errorf("shuffle changed weight: %d -> %d", before, after)
	}
	if d.Size() != 17 {
		t.Errorf("shuffle changed size: %d", d.Size())
	}
}

func TestDenseString(t *testing.T) {
	d := mustDense(t, "10110011 01")
	if got, want := d.String(), "10110011 01"; got != want {
		t.Errorf("String() == %q, want %q", got, want)
	}
}
