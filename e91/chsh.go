package e91

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// A CorrelationStatistic is the empirical expectation of outcome products for
// one basis pair.
type CorrelationStatistic struct {
	Pair        BasisPair
	Expectation float64
	// StdErr is the standard error of Expectation.
	StdErr  float64
	Samples int
}

// A Verdict is the outcome of the correlation test for one run.
type Verdict struct {
	// S is the weighted combination of the per-pair expectations.
	S float64
	// Threshold is the value |S| must reach for the channel to be trusted.
	Threshold float64
	// StdErr is the standard error of S, assuming independent pairs.
	StdErr float64

	EavesdropperDetected bool
	Statistics           []CorrelationStatistic
}

// Violation reports how many standard errors |S| lies above the classical
// limit.
func (v Verdict) Violation() float64 {
	if v.StdErr == 0 {
		return math.Inf(1)
	}
	return (math.Abs(v.S) - ClassicalBound) / v.StdErr
}

// An Analyzer evaluates test trials against the undisturbed quantum bound.
type Analyzer struct {
	// Terms are the weighted basis pairs combined into S.
	Terms []Term
	// Tolerance is how far |S| may fall below QuantumBound. Defaults to
	// DefaultTolerance; must lie in [0, MaxTolerance).
	Tolerance float64
	// MinSamples is the number of trials each term needs. Defaults to
	// DefaultMinSamples.
	MinSamples int
}

// NewAnalyzer returns an Analyzer for rule's test terms with default limits.
func NewAnalyzer(rule SiftRule) Analyzer {
	return Analyzer{
		Terms:      rule.Test,
		Tolerance:  DefaultTolerance,
		MinSamples: DefaultMinSamples,
	}
}

func checkTolerance(tol float64) error {
	if !(tol >= 0 && tol < MaxTolerance) {
		return fmt.Errorf("%w: tolerance %v outside [0, %.4f)", ErrInvalidConfiguration, tol, MaxTolerance)
	}
	return nil
}

// Analyze computes the per-pair expectations over test and combines them into
// a verdict. If any term has fewer than MinSamples trials the estimate is too
// noisy to trust and an error wrapping ErrInsufficientSamples is returned
// instead.
func (a Analyzer) Analyze(test []Trial) (Verdict, error) {
	if len(a.Terms) == 0 {
		return Verdict{}, fmt.Errorf("%w: no correlation terms", ErrInvalidConfiguration)
	}
	if err := checkTolerance(a.Tolerance); err != nil {
		return Verdict{}, err
	}
	tol := a.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	minSamples := a.MinSamples
	if minSamples == 0 {
		minSamples = DefaultMinSamples
	}
	// A standard error needs at least two samples.
	if minSamples < 2 {
		minSamples = 2
	}

	products := make(map[BasisPair][]float64, len(a.Terms))
	for _, t := range test {
		products[t.Pair()] = append(products[t.Pair()], t.Product())
	}

	v := Verdict{Threshold: QuantumBound - tol}
	var variance float64
	for _, term := range a.Terms {
		xs := products[term.Pair]
		if len(xs) < minSamples {
			return Verdict{}, fmt.Errorf("%w: %d trials for %v, need %d",
				ErrInsufficientSamples, len(xs), term.Pair, minSamples)
		}
		mean, std := stat.MeanStdDev(xs, nil)
		se := std / math.Sqrt(float64(len(xs)))
		v.Statistics = append(v.Statistics, CorrelationStatistic{
			Pair:        term.Pair,
			Expectation: mean,
			StdErr:      se,
			Samples:     len(xs),
		})
		v.S += term.Weight * mean
		variance += term.Weight * term.Weight * se * se
	}
	v.StdErr = math.Sqrt(variance)
	v.EavesdropperDetected = math.Abs(v.S) < v.Threshold
	return v, nil
}
