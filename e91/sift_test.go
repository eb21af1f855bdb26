package e91

import (
	"context"
	"math/rand"
	"reflect"
	"testing"

	"github.com/alan-christopher/e91/e91/bitmap"
)

func trial(i int, sb Basis, so Outcome, rb Basis, ro Outcome) Trial {
	return Trial{
		Index:    i,
		Sender:   Measurement{Basis: sb, Outcome: so},
		Receiver: Measurement{Basis: rb, Outcome: ro},
	}
}

func TestSift(t *testing.T) {
	trials := []Trial{
		trial(0, AngleEighth, Plus, AngleEighth, Minus),
		trial(1, AngleZero, Plus, AngleEighth, Plus),
		trial(2, AngleZero, Minus, AngleQuarter, Plus),
		trial(3, AngleQuarter, Minus, AngleQuarter, Plus),
		trial(4, AngleQuarter, Plus, AngleThreeEighths, Minus),
		trial(5, AngleEighth, Plus, AngleThreeEighths, Plus),
		// The receiver's outcome disagrees with the sender's key bit.
		trial(6, AngleEighth, Plus, AngleEighth, Plus),
		trial(7, AngleZero, Minus, AngleThreeEighths, Minus),
		trial(8, AngleEighth, Minus, AngleQuarter, Plus),
		trial(9, AngleQuarter, Plus, AngleEighth, Plus),
	}
	res := DefaultSiftRule().Sift(trials)

	if len(res.KeyTrials) != 3 || len(res.Test) != 4 || res.Discarded != 3 {
		t.Fatalf("got %d key, %d test, %d discarded; want 3, 4, 3",
			len(res.KeyTrials), len(res.Test), res.Discarded)
	}
	if want := bitmap.FromBools([]bool{true, false, true}); !bitmap.Equal(res.Bits, want) {
		t.Errorf("sender bits = %v, want %v", res.Bits, want)
	}
	if want := bitmap.FromBools([]bool{true, false, false}); !bitmap.Equal(res.PartyBits(Receiver), want) {
		t.Errorf("receiver bits = %v, want %v", res.PartyBits(Receiver), want)
	}
	if got := res.PartyBits(Adversary).Size(); got != 0 {
		t.Errorf("adversary holds %d bits of unintercepted trials", got)
	}
	if got := QBER(res.Bits, res.PartyBits(Receiver)); got != 1.0/3 {
		t.Errorf("QBER = %v, want 1/3", got)
	}
	for i, tr := range res.Test {
		if i > 0 && tr.Index <= res.Test[i-1].Index {
			t.Errorf("test trials out of order: %d after %d", tr.Index, res.Test[i-1].Index)
		}
	}
}

func TestPartyBitsPartialInterception(t *testing.T) {
	intercept := func(tr Trial, eo Outcome) Trial {
		tr.Intercepted = true
		tr.Eve = Measurement{Basis: tr.Sender.Basis, Outcome: eo}
		return tr
	}
	trials := []Trial{
		intercept(trial(0, AngleEighth, Plus, AngleEighth, Minus), Minus),
		trial(1, AngleQuarter, Minus, AngleQuarter, Plus),
		intercept(trial(2, AngleQuarter, Plus, AngleQuarter, Minus), Plus),
		trial(3, AngleEighth, Plus, AngleEighth, Minus),
		intercept(trial(4, AngleZero, Plus, AngleEighth, Minus), Minus),
	}
	res := DefaultSiftRule().Sift(trials)
	if len(res.KeyTrials) != 4 {
		t.Fatalf("got %d key trials, want 4", len(res.KeyTrials))
	}
	// Only trials 0 and 2 are both key trials and intercepted.
	want := bitmap.FromBools([]bool{true, false})
	if got := res.PartyBits(Adversary); !bitmap.Equal(got, want) {
		t.Errorf("adversary bits = %v, want %v", got, want)
	}
}

func TestSiftDeterministic(t *testing.T) {
	rn, err := NewRunner(RunnerOpts{Rand: rand.New(rand.NewSource(31))})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	trials, err := rn.Run(context.Background(), 500, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rule := DefaultSiftRule()
	a, b := rule.Sift(trials), rule.Sift(trials)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("sifting the same trials twice gave different results")
	}
	if got := len(a.KeyTrials) + len(a.Test) + a.Discarded; got != len(trials) {
		t.Errorf("partition covers %d trials, want %d", got, len(trials))
	}
	if a.PartyBits(Adversary).Size() != len(a.KeyTrials) {
		t.Errorf("adversary holds %d bits for %d intercepted key trials",
			a.PartyBits(Adversary).Size(), len(a.KeyTrials))
	}
}

func TestKeyBit(t *testing.T) {
	tcs := []struct {
		p    Party
		o    Outcome
		want bool
	}{
		{Sender, Plus, true},
		{Sender, Minus, false},
		{Receiver, Plus, false},
		{Receiver, Minus, true},
		{Adversary, Minus, true},
	}
	for _, tc := range tcs {
		if got := KeyBit(tc.p, tc.o); got != tc.want {
			t.Errorf("KeyBit(%v, %d) = %v, want %v", tc.p, tc.o, got, tc.want)
		}
	}
}

func TestQBEREmpty(t *testing.T) {
	if got := QBER(bitmap.Empty(), bitmap.FromBools([]bool{true})); got != 0 {
		t.Errorf("QBER of empty input = %v, want 0", got)
	}
}
