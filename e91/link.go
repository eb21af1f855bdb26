package e91

import (
	"fmt"
	"math/rand"
)

// A SenderLink measures the sender's halves of a stream of entangled pairs.
type SenderLink interface {
	// Measure measures the next len(bases) pairs, the i-th along bases[i],
	// and returns the observed outcomes.
	Measure(bases []Basis) ([]Outcome, error)
}

// A ReceiverLink measures the receiver's halves of a stream of entangled
// pairs, in the same order the sender measured them.
type ReceiverLink interface {
	// Measure measures the next len(bases) pairs, the i-th along bases[i],
	// and returns the observed outcomes.
	Measure(bases []Basis) ([]Outcome, error)
}

// NewSimulatedLink creates a (sender, receiver) pair simulating a source of
// entangled pairs. Each call to the sender's Measure must be mirrored by a call
// to the receiver's Measure with the same batch size. Expect sender calls to
// hang if more than bufSize batches are outstanding.
func NewSimulatedLink(bufSize int, sendRand, receiveRand *rand.Rand) (*SimulatedSender, *SimulatedReceiver) {
	ch := make(chan []Measurement, bufSize)
	return &SimulatedSender{rand: sendRand, out: ch}, &SimulatedReceiver{rand: receiveRand, in: ch}
}

type SimulatedSender struct {
	rand *rand.Rand
	out  chan<- []Measurement
}

type SimulatedReceiver struct {
	// Eavesdropper, if non-nil, intercepts every pair before it reaches the
	// receiver.
	Eavesdropper *Eavesdropper

	// Intercepted accumulates the eavesdropper's measurements, in pair order.
	Intercepted []Measurement

	rand *rand.Rand
	in   <-chan []Measurement
}

func (ss *SimulatedSender) Measure(bases []Basis) ([]Outcome, error) {
	batch := make([]Measurement, len(bases))
	outcomes := make([]Outcome, len(bases))
	for i, b := range bases {
		outcomes[i] = coin(ss.rand)
		batch[i] = Measurement{Basis: b, Outcome: outcomes[i]}
	}
	ss.out <- batch
	return outcomes, nil
}

func (sr *SimulatedReceiver) Measure(bases []Basis) ([]Outcome, error) {
	batch, ok := <-sr.in
	if !ok {
		return nil, fmt.Errorf("simulated link closed")
	}
	if len(batch) != len(bases) {
		return nil, fmt.Errorf("receive batch size must match send batch size: %d != %d", len(bases), len(batch))
	}
	outcomes := make([]Outcome, len(bases))
	for i, s := range batch {
		if sr.Eavesdropper == nil {
			outcomes[i] = respond(sr.rand, s.Outcome, pairAgreement(s.Basis, bases[i]))
			continue
		}
		var own Measurement
		outcomes[i], own = sr.Eavesdropper.Intercept(sr.rand, s.Outcome, s.Basis, bases[i])
		sr.Intercepted = append(sr.Intercepted, own)
	}
	return outcomes, nil
}

// Close releases a receiver blocked in Measure.
func (ss *SimulatedSender) Close() {
	close(ss.out)
}
