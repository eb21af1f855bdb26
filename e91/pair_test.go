package e91

import (
	"math"
	"math/rand"
	"testing"
)

const lawSamples = 20000

func TestGenerateFollowsPairLaw(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for _, a := range DefaultBasisSets().Sender {
		for _, b := range DefaultBasisSets().Receiver {
			bp := BasisPair{a, b}
			t.Run(bp.String(), func(t *testing.T) {
				var sum float64
				for i := 0; i < lawSamples; i++ {
					s, o := Generate(r, a, b)
					sum += float64(s) * float64(o)
				}
				got := sum / lawSamples
				if want := Correlation(a, b); math.Abs(got-want) > 0.05 {
					t.Errorf("E[s*r] = %.3f, want %.3f", got, want)
				}
			})
		}
	}
}

func TestEqualAnglesAreAntiCorrelated(t *testing.T) {
	r := rand.New(rand.NewSource(12))
	for i := 0; i < 1000; i++ {
		s, o := Generate(r, AngleEighth, AngleEighth)
		if s != o.Flip() {
			t.Fatalf("trial %d: equal angles gave outcomes %d, %d", i, s, o)
		}
	}
}

func TestInterceptHalvesCorrelation(t *testing.T) {
	r := rand.New(rand.NewSource(13))
	ev := Eavesdropper{Bases: DefaultBasisSets().Adversary}
	tcs := []BasisPair{
		{AngleZero, AngleEighth},
		{AngleZero, AngleThreeEighths},
		{AngleQuarter, AngleQuarter},
	}
	for _, bp := range tcs {
		t.Run(bp.String(), func(t *testing.T) {
			var sum float64
			for i := 0; i < lawSamples; i++ {
				s := coin(r)
				o, own := ev.Intercept(r, s, bp.Sender, bp.Receiver)
				if DefaultBasisSets().Index(Adversary, own.Basis) < 0 {
					t.Fatalf("eavesdropper measured along %v, outside its set", own.Basis)
				}
				sum += float64(s) * float64(o)
			}
			got := sum / lawSamples
			if want := Correlation(bp.Sender, bp.Receiver) / 2; math.Abs(got-want) > 0.05 {
				t.Errorf("E[s*r] = %.3f, want %.3f", got, want)
			}
		})
	}
}
