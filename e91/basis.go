package e91

import (
	"fmt"
	"math"
	"math/rand"
)

// A Basis is a measurement angle in radians.
type Basis float64

// Standard E91 angles.
const (
	AngleZero         Basis = 0
	AngleEighth       Basis = math.Pi / 8
	AngleQuarter      Basis = math.Pi / 4
	AngleThreeEighths Basis = 3 * math.Pi / 8
)

// Degrees returns b in degrees, for display.
func (b Basis) Degrees() float64 {
	return float64(b) * 180 / math.Pi
}

func (b Basis) String() string {
	return fmt.Sprintf("%g°", b.Degrees())
}

// A BasisPair is the combination of sender and receiver bases used in a
// trial.
type BasisPair struct {
	Sender   Basis
	Receiver Basis
}

func (bp BasisPair) String() string {
	return fmt.Sprintf("(%v, %v)", bp.Sender, bp.Receiver)
}

// BasisSets holds the fixed set of angles each party draws from.
type BasisSets struct {
	Sender    []Basis
	Receiver  []Basis
	Adversary []Basis
}

// DefaultBasisSets returns Ekert's original choice of angles. The adversary
// covers every angle either legitimate party might use.
func DefaultBasisSets() BasisSets {
	return BasisSets{
		Sender:    []Basis{AngleZero, AngleEighth, AngleQuarter},
		Receiver:  []Basis{AngleEighth, AngleQuarter, AngleThreeEighths},
		Adversary: []Basis{AngleZero, AngleEighth, AngleQuarter, AngleThreeEighths},
	}
}

// For returns the set of angles available to p.
func (s BasisSets) For(p Party) []Basis {
	switch p {
	case Sender:
		return s.Sender
	case Receiver:
		return s.Receiver
	case Adversary:
		return s.Adversary
	}
	return nil
}

// Index returns the position of b in p's set, or -1.
func (s BasisSets) Index(p Party, b Basis) int {
	for i, c := range s.For(p) {
		if c == b {
			return i
		}
	}
	return -1
}

func (s BasisSets) validate() error {
	for _, p := range []Party{Sender, Receiver, Adversary} {
		if len(s.For(p)) == 0 {
			return fmt.Errorf("%w: empty basis set for %v", ErrInvalidConfiguration, p)
		}
		if len(s.For(p)) > 255 {
			return fmt.Errorf("%w: %d bases for %v", ErrInvalidConfiguration, len(s.For(p)), p)
		}
	}
	return nil
}

// A BasisSource draws independent, uniformly distributed basis choices. It is
// not safe for concurrent use; give each goroutine its own.
type BasisSource struct {
	rand *rand.Rand
	sets BasisSets
}

// NewBasisSource returns a BasisSource drawing from sets using r.
func NewBasisSource(r *rand.Rand, sets BasisSets) *BasisSource {
	return &BasisSource{rand: r, sets: sets}
}

// Draw returns a basis for p chosen uniformly from its set.
func (bs *BasisSource) Draw(p Party) Basis {
	set := bs.sets.For(p)
	return set[bs.rand.Intn(len(set))]
}
