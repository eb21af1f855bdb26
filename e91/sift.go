package e91

import (
	"github.com/alan-christopher/e91/e91/bitmap"
)

// A Term is one weighted expectation value in a CHSH-style combination.
type Term struct {
	Pair   BasisPair
	Weight float64
}

// A SiftRule decides, from basis pairs alone, which trials yield key bits and
// which feed the correlation test. A pair listed in both Key and Test is
// treated as a key pair.
type SiftRule struct {
	Key  []BasisPair
	Test []Term
}

// DefaultSiftRule returns the E91 partition for DefaultBasisSets: equal
// angles form the key, and the CHSH combination
//
//	S = E(0, π/8) - E(0, 3π/8) + E(π/4, π/8) + E(π/4, 3π/8)
//
// forms the test.
func DefaultSiftRule() SiftRule {
	return SiftRule{
		Key: []BasisPair{
			{AngleEighth, AngleEighth},
			{AngleQuarter, AngleQuarter},
		},
		Test: []Term{
			{BasisPair{AngleZero, AngleEighth}, 1},
			{BasisPair{AngleZero, AngleThreeEighths}, -1},
			{BasisPair{AngleQuarter, AngleEighth}, 1},
			{BasisPair{AngleQuarter, AngleThreeEighths}, 1},
		},
	}
}

// A SiftResult is the partition of a trial sequence.
type SiftResult struct {
	// Bits holds the sender's key bit for each key trial, in trial order.
	Bits bitmap.Dense

	// KeyTrials are the trials that produced Bits.
	KeyTrials []Trial

	// Test are the trials used for the correlation check.
	Test []Trial

	// Discarded counts trials matching neither set.
	Discarded int
}

func (sr SiftRule) isKey(bp BasisPair) bool {
	for _, k := range sr.Key {
		if k == bp {
			return true
		}
	}
	return false
}

func (sr SiftRule) isTest(bp BasisPair) bool {
	for _, t := range sr.Test {
		if t.Pair == bp {
			return true
		}
	}
	return false
}

// Sift partitions trials. The partition depends only on basis pairs, never on
// outcomes, so sifting the same trials twice gives identical results.
func (sr SiftRule) Sift(trials []Trial) SiftResult {
	var res SiftResult
	for _, t := range trials {
		bp := t.Pair()
		switch {
		case sr.isKey(bp):
			res.KeyTrials = append(res.KeyTrials, t)
			res.Bits.AppendBit(KeyBit(Sender, t.Sender.Outcome))
		case sr.isTest(bp):
			res.Test = append(res.Test, t)
		default:
			res.Discarded++
		}
	}
	return res
}

// KeyBit maps a key-trial outcome observed by p to a key bit. The sender
// reads +1 as 1; the receiver and the eavesdropper sit on the anti-correlated
// side of the pair and read -1 as 1.
func KeyBit(p Party, o Outcome) bool {
	if p == Sender {
		return o == Plus
	}
	return o == Minus
}

// PartyBits returns the raw key bits p holds for the key trials. The
// adversary only holds bits for trials it intercepted.
func (res SiftResult) PartyBits(p Party) bitmap.Dense {
	var d, intercepted bitmap.Dense
	for _, t := range res.KeyTrials {
		switch p {
		case Sender:
			d.AppendBit(KeyBit(p, t.Sender.Outcome))
		case Receiver:
			d.AppendBit(KeyBit(p, t.Receiver.Outcome))
		case Adversary:
			d.AppendBit(KeyBit(p, t.Eve.Outcome))
			intercepted.AppendBit(t.Intercepted)
		}
	}
	if p == Adversary {
		return bitmap.Select(d, intercepted)
	}
	return d
}

// QBER returns the fraction of positions at which a and b disagree, over the
// length of the shorter one. It returns 0 for empty input.
func QBER(a, b bitmap.Dense) float64 {
	n := a.Size()
	if b.Size() < n {
		n = b.Size()
	}
	if n == 0 {
		return 0
	}
	var errs int
	for i := 0; i < n; i++ {
		if a.Get(i) != b.Get(i) {
			errs++
		}
	}
	return float64(errs) / float64(n)
}
