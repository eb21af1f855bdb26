// Package e91 simulates the E91 entangled-pair key distribution protocol: it
// draws measurement bases, produces correlated outcome pairs, optionally routes
// them through an intercept-resend adversary, sifts the trials into key and
// test subsets, checks the CHSH correlation for disturbance and derives a
// fixed-length session key.
//
// Entanglement is modelled as a correlation law on outcome pairs, not as a
// state-vector simulation. All randomness is drawn from explicitly provided
// *rand.Rand values.
package e91

import (
	"errors"
	"fmt"
	"math"
)

// Errors reported by the protocol. Callers should match them with errors.Is;
// returned errors usually wrap one of these with additional context.
var (
	ErrInvalidConfiguration    = errors.New("invalid configuration")
	ErrInsufficientSamples     = errors.New("insufficient samples")
	ErrInsufficientKeyMaterial = errors.New("insufficient key material")
)

var (
	// DefaultMinSamples is the number of test trials required for each CHSH
	// basis pair before a verdict is trusted.
	DefaultMinSamples = 25

	// DefaultTolerance is how far |S| may fall below QuantumBound before an
	// eavesdropper is reported. It places the threshold halfway between the
	// undisturbed value 2√2 and the full intercept-resend value √2.
	DefaultTolerance = math.Sqrt2 / 2

	// DefaultChunkSize is the number of trials generated per unit of work by
	// a Runner.
	DefaultChunkSize = 256
)

const (
	// QuantumBound is the CHSH value |S| reached by undisturbed entangled
	// pairs (Tsirelson's bound).
	QuantumBound = 2 * math.Sqrt2

	// ClassicalBound is the largest |S| any local hidden-variable model can
	// produce.
	ClassicalBound = 2.0

	// MaxTolerance bounds the tolerance from above. Tolerances must stay
	// strictly below it so that the detection threshold stays above
	// ClassicalBound and a passing run always violates the CHSH inequality.
	MaxTolerance = QuantumBound - ClassicalBound
)

// A Party identifies one of the participants measuring halves of a pair.
type Party int

const (
	Sender Party = iota
	Receiver
	Adversary
)

func (p Party) String() string {
	switch p {
	case Sender:
		return "sender"
	case Receiver:
		return "receiver"
	case Adversary:
		return "adversary"
	}
	return fmt.Sprintf("Party(%d)", int(p))
}

// ParseParty is the inverse of Party.String.
func ParseParty(s string) (Party, error) {
	for _, p := range []Party{Sender, Receiver, Adversary} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown party %q", s)
}

// An Outcome is the result of a single measurement, either -1 or +1.
type Outcome int8

const (
	Minus Outcome = -1
	Plus  Outcome = 1
)

// Flip returns the opposite outcome.
func (o Outcome) Flip() Outcome {
	return -o
}

// Measurement is one party's basis choice together with what it observed.
type Measurement struct {
	Basis   Basis
	Outcome Outcome
}

// A Trial records a single entangled pair. Trials are created once by a Runner
// and never modified afterwards.
type Trial struct {
	Index    int
	Sender   Measurement
	Receiver Measurement

	// Intercepted reports whether an adversary measured this pair in
	// transit, in which case Eve holds its measurement.
	Intercepted bool
	Eve         Measurement
}

// Pair returns the basis pair used in t.
func (t Trial) Pair() BasisPair {
	return BasisPair{Sender: t.Sender.Basis, Receiver: t.Receiver.Basis}
}

// Product returns outcome_s * outcome_r.
func (t Trial) Product() float64 {
	return float64(t.Sender.Outcome) * float64(t.Receiver.Outcome)
}

// Stats packages together a collection of potentially interesting metrics
// pertaining to one key exchange.
type Stats struct {
	Trials     int
	KeyTrials  int
	TestTrials int
	Discarded  int

	// QBER is the observed disagreement rate between the sender's and the
	// receiver's key bits (or the sampled subset of them).
	QBER float64

	MessagesSent     int
	MessagesReceived int
	BytesRead        int
	BytesSent        int
}
