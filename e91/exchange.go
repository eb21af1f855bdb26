package e91

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/alan-christopher/e91/e91/bitmap"
	log "github.com/sirupsen/logrus"
)

// An ExchangeOpts packages together the parameters of a single in-process
// exchange, in which one simulator observes both halves of every pair.
type ExchangeOpts struct {
	// Rand drives every random choice in the exchange. Must be non-nil.
	Rand *rand.Rand

	// Trials is the number of entangled pairs to measure. Must be positive.
	Trials int

	// Adversary routes every pair through an intercept-resend eavesdropper.
	Adversary bool

	// KeyBytes is the length of the derived session key. Must be positive.
	KeyBytes int

	// Workers bounds the parallelism of trial generation. Defaults as in
	// RunnerOpts.
	Workers int

	// Bases and Rule default to DefaultBasisSets() and DefaultSiftRule().
	Bases *BasisSets
	Rule  *SiftRule

	// Tolerance and MinSamples configure the correlation test; zero values
	// select DefaultTolerance and DefaultMinSamples.
	Tolerance  float64
	MinSamples int

	// AmplifyRatio, if non-zero, compresses the sifted bits to this fraction
	// of their length by toeplitz hashing before the key is derived. Must lie
	// in (0, 1].
	AmplifyRatio float64

	// Logger receives progress and verdict logs. Defaults to the logrus
	// standard logger.
	Logger log.FieldLogger
}

// A Result holds everything one exchange produced. It lives only in memory;
// call Wipe once the key is no longer needed.
type Result struct {
	Trials  []Trial
	Sifted  SiftResult
	Verdict Verdict
	Key     SessionKey
	Stats   Stats

	// Amplification parameters, shared by every party's key.
	seed    bitmap.Dense
	outBits int
}

// Exchange runs the whole protocol: trial generation, sifting, the
// correlation test and key derivation.
//
// A detected eavesdropper is reported in Result.Verdict, not as an error; it
// is up to the caller to discard the key. Errors wrap ErrInvalidConfiguration,
// ErrInsufficientSamples or ErrInsufficientKeyMaterial.
func Exchange(ctx context.Context, opts ExchangeOpts) (*Result, error) {
	if opts.Rand == nil {
		return nil, errors.New("must provide Rand")
	}
	if opts.KeyBytes <= 0 {
		return nil, fmt.Errorf("%w: key length must be positive, got %d", ErrInvalidConfiguration, opts.KeyBytes)
	}
	if opts.AmplifyRatio < 0 || opts.AmplifyRatio > 1 {
		return nil, fmt.Errorf("%w: amplify ratio %v outside (0, 1]", ErrInvalidConfiguration, opts.AmplifyRatio)
	}
	if err := checkTolerance(opts.Tolerance); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	rule := DefaultSiftRule()
	if opts.Rule != nil {
		rule = *opts.Rule
	}
	analyzer := NewAnalyzer(rule)
	if opts.Tolerance != 0 {
		analyzer.Tolerance = opts.Tolerance
	}
	if opts.MinSamples != 0 {
		analyzer.MinSamples = opts.MinSamples
	}

	runner, err := NewRunner(RunnerOpts{Rand: opts.Rand, Bases: opts.Bases, Workers: opts.Workers})
	if err != nil {
		return nil, err
	}
	logger = logger.WithFields(log.Fields{"trials": opts.Trials, "adversary": opts.Adversary})
	logger.Debug("generating trials")
	trials, err := runner.Run(ctx, opts.Trials, opts.Adversary)
	if err != nil {
		return nil, fmt.Errorf("running trials: %w", err)
	}

	res := &Result{Trials: trials}
	res.Sifted = rule.Sift(trials)
	res.Stats = Stats{
		Trials:     len(trials),
		KeyTrials:  len(res.Sifted.KeyTrials),
		TestTrials: len(res.Sifted.Test),
		Discarded:  res.Sifted.Discarded,
		QBER:       QBER(res.Sifted.Bits, res.Sifted.PartyBits(Receiver)),
	}

	res.Verdict, err = analyzer.Analyze(res.Sifted.Test)
	if err != nil {
		return nil, fmt.Errorf("analyzing correlations: %w", err)
	}
	vlog := logger.WithFields(log.Fields{
		"s":         res.Verdict.S,
		"threshold": res.Verdict.Threshold,
		"qber":      res.Stats.QBER,
	})
	if res.Verdict.EavesdropperDetected {
		vlog.Warn("correlations below threshold, eavesdropper detected")
	} else {
		vlog.Info("correlations consistent with undisturbed pairs")
	}

	if opts.AmplifyRatio > 0 {
		n := res.Sifted.Bits.Size()
		res.outBits = int(opts.AmplifyRatio * float64(n))
		if res.outBits < opts.KeyBytes*8 {
			return nil, fmt.Errorf("%w: amplification leaves %d bits, need %d",
				ErrInsufficientKeyMaterial, res.outBits, opts.KeyBytes*8)
		}
		seed := make([]byte, bitmap.BytesFor(seedBits(res.outBits, n)))
		opts.Rand.Read(seed)
		res.seed = bitmap.NewDense(seed, seedBits(res.outBits, n))
	}
	res.Key, err = res.PartyKey(Sender, opts.KeyBytes)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PartyKey derives an n-byte key from the raw bits p holds, applying the same
// amplification as the exchange did. Sender and receiver keys agree exactly
// when their bits do.
func (r *Result) PartyKey(p Party, n int) (SessionKey, error) {
	m := r.Material(p)
	defer m.Wipe()
	return m.Key(n)
}

// KeyMaterial is what one party needs to rebuild its key: its raw key bits
// and the public amplification parameters. It shares no memory with the
// Result it was taken from, so it stays usable after that Result is wiped.
type KeyMaterial struct {
	Party Party
	Bits  bitmap.Dense

	seed    bitmap.Dense
	outBits int
}

// Material copies out the key material p holds in r.
func (r *Result) Material(p Party) KeyMaterial {
	return KeyMaterial{
		Party:   p,
		Bits:    r.Sifted.PartyBits(p),
		seed:    r.seed.Clone(),
		outBits: r.outBits,
	}
}

// Key derives an n-byte key from m.
func (m KeyMaterial) Key(n int) (SessionKey, error) {
	bits := m.Bits
	if m.outBits > 0 {
		if bits.Size() < m.outBits {
			return nil, fmt.Errorf("%w: %v holds %d bits, amplification needs %d",
				ErrInsufficientKeyMaterial, m.Party, bits.Size(), m.outBits)
		}
		var err error
		if bits, err = Amplify(bits, m.seed, m.outBits); err != nil {
			return nil, fmt.Errorf("amplifying %v bits: %w", m.Party, err)
		}
	}
	key, err := Derive(bits, n)
	if err != nil {
		return nil, fmt.Errorf("deriving %v key: %w", m.Party, err)
	}
	return key, nil
}

// Wipe zeroes the raw bits held by m.
func (m KeyMaterial) Wipe() {
	SessionKey(m.Bits.Data()).Wipe()
}

// Wipe zeroes the session key and the sifted bits held by r and drops its
// trials. PartyKey cannot be used afterwards.
func (r *Result) Wipe() {
	r.Key.Wipe()
	SessionKey(r.Sifted.Bits.Data()).Wipe()
	r.Sifted.KeyTrials = nil
	r.Sifted.Test = nil
	r.Trials = nil
}
