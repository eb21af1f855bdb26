package e91

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
)

// A RunnerOpts packages together the arguments necessary to construct a new
// Runner.
type RunnerOpts struct {
	// Rand seeds every chunk of trials. May be a pRNG; must be non-nil.
	Rand *rand.Rand

	// Bases specifies the angles available to each party. Defaults to
	// DefaultBasisSets().
	Bases *BasisSets

	// Workers is the number of goroutines generating trials. Defaults to
	// runtime.GOMAXPROCS(0).
	Workers int

	// ChunkSize is the number of consecutive trials generated from a single
	// seed. Defaults to DefaultChunkSize.
	ChunkSize int
}

// A Runner orchestrates protocol trials. A Runner is not safe for concurrent
// use, but Run parallelizes internally.
type Runner struct {
	rand      *rand.Rand
	bases     BasisSets
	workers   int
	chunkSize int
}

// NewRunner returns a new Runner, configured in accordance with opts, or an
// error if the options are nonsensical.
func NewRunner(opts RunnerOpts) (*Runner, error) {
	if opts.Rand == nil {
		return nil, errors.New("must provide Rand")
	}
	bases := DefaultBasisSets()
	if opts.Bases != nil {
		bases = *opts.Bases
	}
	if err := bases.validate(); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if workers < 0 || chunkSize < 0 {
		return nil, fmt.Errorf("%w: workers=%d chunk size=%d", ErrInvalidConfiguration, workers, chunkSize)
	}
	return &Runner{
		rand:      opts.Rand,
		bases:     bases,
		workers:   workers,
		chunkSize: chunkSize,
	}, nil
}

// Bases returns the angle sets the runner draws from.
func (rn *Runner) Bases() BasisSets {
	return rn.bases
}

// Run generates trialCount independent trials, routing every pair through an
// eavesdropper if adversaryPresent. Trials are returned in index order. For a
// given Rand state the result does not depend on the number of workers.
//
// Run checks ctx between chunks; on cancellation it returns ctx.Err() and no
// trials.
func (rn *Runner) Run(ctx context.Context, trialCount int, adversaryPresent bool) ([]Trial, error) {
	if trialCount <= 0 {
		return nil, fmt.Errorf("%w: trial count must be positive, got %d", ErrInvalidConfiguration, trialCount)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunks := (trialCount + rn.chunkSize - 1) / rn.chunkSize
	// Seeds are drawn up front, in chunk order, so that scheduling cannot
	// change which stream produces which trial.
	seeds := make([]int64, chunks)
	for i := range seeds {
		seeds[i] = rn.rand.Int63()
	}

	var eve *Eavesdropper
	if adversaryPresent {
		eve = &Eavesdropper{Bases: rn.bases.Adversary}
	}
	trials := make([]Trial, trialCount)
	work := make(chan int)
	var wg sync.WaitGroup
	workers := rn.workers
	if workers > chunks {
		workers = chunks
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				start := c * rn.chunkSize
				end := start + rn.chunkSize
				if end > trialCount {
					end = trialCount
				}
				rn.fill(trials[start:end], start, seeds[c], eve)
			}
		}()
	}

	var err error
feed:
	for c := 0; c < chunks; c++ {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case work <- c:
		}
	}
	close(work)
	wg.Wait()
	if err != nil {
		return nil, err
	}
	return trials, nil
}

// fill generates trials for dst, whose first element has index first, from a
// stream seeded by seed.
func (rn *Runner) fill(dst []Trial, first int, seed int64, eve *Eavesdropper) {
	r := rand.New(rand.NewSource(seed))
	bs := NewBasisSource(r, rn.bases)
	for i := range dst {
		t := Trial{Index: first + i}
		t.Sender.Basis = bs.Draw(Sender)
		t.Receiver.Basis = bs.Draw(Receiver)
		if eve == nil {
			t.Sender.Outcome, t.Receiver.Outcome = Generate(r, t.Sender.Basis, t.Receiver.Basis)
		} else {
			t.Sender.Outcome = coin(r)
			t.Receiver.Outcome, t.Eve = eve.Intercept(r, t.Sender.Outcome, t.Sender.Basis, t.Receiver.Basis)
			t.Intercepted = true
		}
		dst[i] = t
	}
}
