package e91

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/alan-christopher/e91/e91/bitmap"
)

var (
	DefaultPeerTrials       = 4096
	DefaultKeyBytes         = 8
	DefaultEpsilon          = 1e-12
	DefaultSampleProportion = 0.25
	DefaultAmplifyRatio     = 0.5
)

// A Peer represents one of the two legitimate participants in an E91 key
// exchange, holding only its own half of each pair.
type Peer interface {
	// NegotiateKey performs one round of E91 key exchange: measurement, basis
	// announcement, the correlation test, error estimation and privacy
	// amplification. A detected eavesdropper is reported in the Verdict; the
	// key is still returned and it is up to the caller to discard it.
	NegotiateKey() (SessionKey, Verdict, Stats, error)
}

// A PeerOpts packages together the arguments necessary to construct a new
// Peer. Many of the fields of a PeerOpts do *not* have reasonable defaults,
// and leaving those fields to zero-initialize will result in NewPeer returning
// an error.
type PeerOpts struct {
	// Sender/Receiver measures this peer's halves of the entangled pairs.
	// Exactly one must be non-nil.
	Sender   SenderLink
	Receiver ReceiverLink

	// ClassicalChannel provides a channel for classical communications. Must be
	// non-nil.
	ClassicalChannel io.ReadWriter

	// Rand provides a source of randomness. This may use pRNG for experimental
	// and/or testing, but for unconditional security this must be
	// truly random. Must be non-nil.
	Rand *rand.Rand

	// Secret provides a bootstrap secret shared between the peers for
	// authentication. Must be non-nil.
	Secret io.Reader

	// Trials specifies the number of pairs to measure per call to
	// NegotiateKey. Defaults to DefaultPeerTrials.
	Trials int

	// KeyBytes specifies the length of the negotiated key. Defaults to
	// DefaultKeyBytes.
	KeyBytes int

	// EpsilonAuth specifies the probability that we are willing to accept that
	// Eve can forge a message. Each classical message exchanged spends
	// log_2(1/EpsilonAuth) bits of Secret, rounded up to the nearest byte.
	// Defaults to DefaultEpsilon.
	EpsilonAuth float64

	// SampleProportion specifies the proportion of key bits to sacrifice
	// during error rate estimation. Defaults to DefaultSampleProportion.
	SampleProportion float64

	// AmplifyRatio specifies the proportion of the remaining key bits kept by
	// privacy amplification. Defaults to DefaultAmplifyRatio.
	AmplifyRatio float64

	// Bases and Rule must agree between the peers. They default to
	// DefaultBasisSets() and DefaultSiftRule().
	Bases *BasisSets
	Rule  *SiftRule

	// Tolerance and MinSamples configure the correlation test.
	Tolerance  float64
	MinSamples int
}

// NewPeer returns a new Peer, configured in accordance with opts, or an error
// if the options are nonsensical.
func NewPeer(opts PeerOpts) (Peer, error) {
	if (opts.Sender == nil) == (opts.Receiver == nil) {
		return nil, errors.New("exactly one of {Sender, Receiver} must be specified")
	}
	if opts.ClassicalChannel == nil {
		return nil, errors.New("must provide ClassicalChannel")
	}
	if opts.Rand == nil {
		return nil, errors.New("must provide Rand")
	}
	if opts.Secret == nil {
		return nil, errors.New("must provide Secret")
	}
	trials := opts.Trials
	if trials == 0 {
		trials = DefaultPeerTrials
	}
	keyBytes := opts.KeyBytes
	if keyBytes == 0 {
		keyBytes = DefaultKeyBytes
	}
	if trials < 0 || keyBytes < 0 {
		return nil, fmt.Errorf("%w: trials=%d key bytes=%d", ErrInvalidConfiguration, trials, keyBytes)
	}
	epsAuth := opts.EpsilonAuth
	if epsAuth == 0 {
		epsAuth = DefaultEpsilon
	}
	sampleProp := opts.SampleProportion
	if sampleProp == 0 {
		sampleProp = DefaultSampleProportion
	}
	ampRatio := opts.AmplifyRatio
	if ampRatio == 0 {
		ampRatio = DefaultAmplifyRatio
	}
	if sampleProp < 0 || sampleProp >= 1 || ampRatio < 0 || ampRatio > 1 {
		return nil, fmt.Errorf("%w: sample proportion %v, amplify ratio %v",
			ErrInvalidConfiguration, sampleProp, ampRatio)
	}
	if err := checkTolerance(opts.Tolerance); err != nil {
		return nil, err
	}
	bases := DefaultBasisSets()
	if opts.Bases != nil {
		bases = *opts.Bases
	}
	if err := bases.validate(); err != nil {
		return nil, err
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

	// The largest message is a basis announcement: one byte per trial plus
	// framing.
	pf, err := newFramer(opts.ClassicalChannel, opts.Secret,
		int(math.Ceil(math.Log2(1/epsAuth))), trials+64)
	if err != nil {
		return nil, err
	}
	p := &peer{
		channel:    pf,
		rand:       opts.Rand,
		bases:      bases,
		rule:       rule,
		analyzer:   analyzer,
		trials:     trials,
		keyBytes:   keyBytes,
		sampleProp: sampleProp,
		ampRatio:   ampRatio,
	}
	if opts.Sender != nil {
		p.party, p.link = Sender, opts.Sender
	} else {
		p.party, p.link = Receiver, opts.Receiver
	}
	return p, nil
}

// A peer is either participant; the sender speaks first in every exchange
// except the basis announcement, and chooses all public randomness.
type peer struct {
	party    Party
	link     interface{ Measure([]Basis) ([]Outcome, error) }
	channel  *framer
	rand     *rand.Rand
	bases    BasisSets
	rule     SiftRule
	analyzer Analyzer

	trials     int
	keyBytes   int
	sampleProp float64
	ampRatio   float64
}

func (p *peer) other() Party {
	if p.party == Sender {
		return Receiver
	}
	return Sender
}

// NegotiateKey implements the Peer interface.
func (p *peer) NegotiateKey() (key SessionKey, v Verdict, stats Stats, err error) {
	own, err := p.measure()
	if err != nil {
		return
	}
	theirs, err := p.exchangeBases(own, &stats)
	if err != nil {
		return
	}
	trials := p.assemble(own, theirs)
	sifted := p.rule.Sift(trials)
	stats.Trials = len(trials)
	stats.KeyTrials = len(sifted.KeyTrials)
	stats.TestTrials = len(sifted.Test)
	stats.Discarded = sifted.Discarded

	v, err = p.testCorrelations(sifted.Test, &stats)
	if err != nil {
		return
	}
	unleaked, err := p.estimateQBER(sifted.PartyBits(p.party), &stats)
	if err != nil {
		return
	}
	seed, outBits, err := p.exchangeSeed(unleaked.Size(), &stats)
	if err != nil {
		return
	}
	amplified, err := Amplify(unleaked, seed, outBits)
	if err != nil {
		return
	}
	key, err = Derive(amplified, p.keyBytes)
	return
}

func (p *peer) measure() ([]Measurement, error) {
	bs := NewBasisSource(p.rand, p.bases)
	bases := make([]Basis, p.trials)
	for i := range bases {
		bases[i] = bs.Draw(p.party)
	}
	outcomes, err := p.link.Measure(bases)
	if err != nil {
		return nil, fmt.Errorf("measuring pairs: %w", err)
	}
	if len(outcomes) != len(bases) {
		return nil, fmt.Errorf("measured %d outcomes for %d bases", len(outcomes), len(bases))
	}
	ms := make([]Measurement, len(bases))
	for i := range ms {
		ms[i] = Measurement{Basis: bases[i], Outcome: outcomes[i]}
	}
	return ms, nil
}

// exchangeBases announces this peer's bases and returns the other peer's.
// The receiver announces first.
func (p *peer) exchangeBases(own []Measurement, s *Stats) ([]Basis, error) {
	out := &basisAnnouncement{bases: make([]byte, len(own))}
	for i, m := range own {
		out.bases[i] = byte(p.bases.Index(p.party, m.Basis))
	}
	in := new(basisAnnouncement)
	if p.party == Receiver {
		if err := p.channel.Write(out, s); err != nil {
			return nil, fmt.Errorf("announcing bases: %w", err)
		}
		if err := p.channel.Read(in, s); err != nil {
			return nil, fmt.Errorf("receiving basis announcement: %w", err)
		}
	} else {
		if err := p.channel.Read(in, s); err != nil {
			return nil, fmt.Errorf("receiving basis announcement: %w", err)
		}
		if err := p.channel.Write(out, s); err != nil {
			return nil, fmt.Errorf("announcing bases: %w", err)
		}
	}
	if len(in.bases) != len(own) {
		return nil, fmt.Errorf("peer announced %d bases, measured %d pairs", len(in.bases), len(own))
	}
	set := p.bases.For(p.other())
	theirs := make([]Basis, len(in.bases))
	for i, idx := range in.bases {
		if int(idx) >= len(set) {
			return nil, fmt.Errorf("peer announced basis index %d, set has %d", idx, len(set))
		}
		theirs[i] = set[idx]
	}
	return theirs, nil
}

// assemble builds trials holding this peer's measurements and the other
// peer's bases. The other peer's outcomes stay unset until announced.
func (p *peer) assemble(own []Measurement, theirs []Basis) []Trial {
	trials := make([]Trial, len(own))
	for i := range own {
		t := Trial{Index: i}
		if p.party == Sender {
			t.Sender, t.Receiver.Basis = own[i], theirs[i]
		} else {
			t.Receiver, t.Sender.Basis = own[i], theirs[i]
		}
		trials[i] = t
	}
	return trials
}

// testCorrelations reveals both peers' outcomes on the test trials and
// analyzes them. Both peers reach the same verdict.
func (p *peer) testCorrelations(test []Trial, s *Stats) (Verdict, error) {
	var mine bitmap.Dense
	for _, t := range test {
		if p.party == Sender {
			mine.AppendBit(t.Sender.Outcome == Plus)
		} else {
			mine.AppendBit(t.Receiver.Outcome == Plus)
		}
	}
	out := &outcomeAnnouncement{outcomes: mine}
	in := new(outcomeAnnouncement)
	if p.party == Sender {
		if err := p.channel.Write(out, s); err != nil {
			return Verdict{}, fmt.Errorf("announcing test outcomes: %w", err)
		}
		if err := p.channel.Read(in, s); err != nil {
			return Verdict{}, fmt.Errorf("receiving test outcomes: %w", err)
		}
	} else {
		if err := p.channel.Read(in, s); err != nil {
			return Verdict{}, fmt.Errorf("receiving test outcomes: %w", err)
		}
		if err := p.channel.Write(out, s); err != nil {
			return Verdict{}, fmt.Errorf("announcing test outcomes: %w", err)
		}
	}
	if in.outcomes.Size() != len(test) {
		return Verdict{}, fmt.Errorf("peer announced %d test outcomes, expected %d", in.outcomes.Size(), len(test))
	}
	full := make([]Trial, len(test))
	for i, t := range test {
		o := Minus
		if in.outcomes.Get(i) {
			o = Plus
		}
		if p.party == Sender {
			t.Receiver.Outcome = o
		} else {
			t.Sender.Outcome = o
		}
		full[i] = t
	}
	v, err := p.analyzer.Analyze(full)
	if err != nil {
		return Verdict{}, fmt.Errorf("analyzing correlations: %w", err)
	}
	return v, nil
}

// estimateQBER sacrifices a sample of the key bits to estimate the error
// rate, returning the bits that were not disclosed.
func (p *peer) estimateQBER(bits bitmap.Dense, s *Stats) (bitmap.Dense, error) {
	if p.party == Sender {
		seed := p.rand.Int63()
		unsampled, sampled, err := sample(bits, p.sampleProp, seed)
		if err != nil {
			return bitmap.Empty(), err
		}
		ba := &bitAnnouncement{bits: sampled, shuffleSeed: seed}
		if err := p.channel.Write(ba, s); err != nil {
			return bitmap.Empty(), fmt.Errorf("announcing sampled bits: %w", err)
		}
		qa := new(qberAnnouncement)
		if err := p.channel.Read(qa, s); err != nil {
			return bitmap.Empty(), fmt.Errorf("receiving QBER announcement: %w", err)
		}
		s.QBER = qa.qber
		return unsampled, nil
	}

	ba := new(bitAnnouncement)
	if err := p.channel.Read(ba, s); err != nil {
		return bitmap.Empty(), fmt.Errorf("receiving sampled bits: %w", err)
	}
	unsampled, sampled, err := sample(bits, p.sampleProp, ba.shuffleSeed)
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("sampling bits: %w", err)
	}
	if sampled.Size() != ba.bits.Size() {
		return bitmap.Empty(), fmt.Errorf("peer sampled %d bits, expected %d", ba.bits.Size(), sampled.Size())
	}
	s.QBER = QBER(ba.bits, sampled)
	if err := p.channel.Write(&qberAnnouncement{qber: s.QBER}, s); err != nil {
		return bitmap.Empty(), fmt.Errorf("sending QBER announcement: %w", err)
	}
	return unsampled, nil
}

// exchangeSeed has the sender choose and announce the amplification seed for
// n bits.
func (p *peer) exchangeSeed(n int, s *Stats) (bitmap.Dense, int, error) {
	if p.party == Sender {
		outBits := int(p.ampRatio * float64(n))
		if outBits < p.keyBytes*8 {
			return bitmap.Empty(), 0, fmt.Errorf("%w: amplification leaves %d bits, need %d",
				ErrInsufficientKeyMaterial, outBits, p.keyBytes*8)
		}
		need := seedBits(outBits, n)
		buf := make([]byte, bitmap.BytesFor(need))
		p.rand.Read(buf)
		seed := bitmap.NewDense(buf, need)
		if err := p.channel.Write(&seedAnnouncement{seed: seed, outBits: outBits}, s); err != nil {
			return bitmap.Empty(), 0, fmt.Errorf("announcing amplification seed: %w", err)
		}
		return seed, outBits, nil
	}
	sa := new(seedAnnouncement)
	if err := p.channel.Read(sa, s); err != nil {
		return bitmap.Empty(), 0, fmt.Errorf("receiving amplification seed: %w", err)
	}
	if sa.outBits > n {
		return bitmap.Empty(), 0, fmt.Errorf("%w: peer asked for %d bits out of %d",
			ErrInsufficientKeyMaterial, sa.outBits, n)
	}
	return sa.seed, sa.outBits, nil
}

// sample shuffles a copy of bits with a stream seeded by seed and splits off
// the last proportion of them.
func sample(bits bitmap.Dense, proportion float64, seed int64) (unsampled, sampled bitmap.Dense, err error) {
	bits = bits.Clone()
	bits.Shuffle(rand.New(rand.NewSource(seed)))
	n := bits.Size()
	k := int(proportion * float64(n))
	unsampled, err = bitmap.Slice(bits, 0, n-k)
	if err != nil {
		return bitmap.Empty(), bitmap.Empty(), err
	}
	sampled, err = bitmap.Slice(bits, n-k, n)
	if err != nil {
		return bitmap.Empty(), bitmap.Empty(), err
	}
	return unsampled, sampled, nil
}
