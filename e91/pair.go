package e91

import (
	"math"
	"math/rand"
)

// Correlation returns the expectation E[s*r] of outcomes measured on an
// undisturbed pair at sender basis a and receiver basis b: -cos(2(a-b)).
func Correlation(a, b Basis) float64 {
	return -math.Cos(2 * float64(a-b))
}

// pairAgreement is P(r == s) for the two halves of an entangled pair measured
// at a and b. Equal angles give perfectly opposite outcomes.
func pairAgreement(a, b Basis) float64 {
	s := math.Sin(float64(a - b))
	return s * s
}

// prepAgreement is P(r == e) for a particle prepared in the state e observed
// along a and then measured along b.
func prepAgreement(a, b Basis) float64 {
	c := math.Cos(float64(a - b))
	return c * c
}

// Generate measures a fresh entangled pair at bases s and rb, returning the
// sender's and the receiver's outcomes. The sender's outcome is uniform; the
// receiver's agrees with it with probability sin²(s-rb).
func Generate(r *rand.Rand, s, rb Basis) (Outcome, Outcome) {
	so := coin(r)
	return so, respond(r, so, pairAgreement(s, rb))
}

func coin(r *rand.Rand) Outcome {
	if r.Intn(2) == 0 {
		return Minus
	}
	return Plus
}

// respond returns o with probability pAgree and its opposite otherwise.
func respond(r *rand.Rand, o Outcome, pAgree float64) Outcome {
	if r.Float64() < pAgree {
		return o
	}
	return o.Flip()
}

// An Eavesdropper intercepts the receiver's half of each pair, measures it in
// a basis of its own choosing and forwards a freshly prepared particle in the
// state it observed. It cannot forward the original entangled half.
type Eavesdropper struct {
	// Bases are the angles the eavesdropper picks from uniformly.
	Bases []Basis
}

// Intercept measures the receiver's half of a pair whose sender observed sOut
// along sBasis, then returns what the receiver observes along rBasis on the
// relayed particle, together with the eavesdropper's own measurement.
//
// The relayed outcome is correlated only with the eavesdropper's outcome, so
// on average E[s*r] = -cos(2(sBasis-e))·cos(2(e-rBasis)).
func (ev Eavesdropper) Intercept(r *rand.Rand, sOut Outcome, sBasis, rBasis Basis) (Outcome, Measurement) {
	own := Measurement{Basis: ev.Bases[r.Intn(len(ev.Bases))]}
	own.Outcome = respond(r, sOut, pairAgreement(sBasis, own.Basis))
	relayed := respond(r, own.Outcome, prepAgreement(own.Basis, rBasis))
	return relayed, own
}
