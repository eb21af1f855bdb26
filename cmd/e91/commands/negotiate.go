package commands

import (
	"bytes"
	"fmt"
	"math/rand"
	"net"

	"github.com/alan-christopher/e91/e91"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type peerResult struct {
	party   e91.Party
	key     e91.SessionKey
	verdict e91.Verdict
	stats   e91.Stats
	err     error
}

// negotiate: the two-party protocol, each peer holding only its own halves,
// over an in-memory authenticated channel.
func negotiateCmd() *cobra.Command {
	var (
		trials    int
		adversary bool
		secretLen int
	)
	cmd := &cobra.Command{
		Use:   "negotiate",
		Short: "Run sender and receiver peers against each other over an in-process channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRand()
			sender, receiver := e91.NewSimulatedLink(1,
				rand.New(rand.NewSource(r.Int63())),
				rand.New(rand.NewSource(r.Int63())))
			if adversary {
				receiver.Eavesdropper = &e91.Eavesdropper{Bases: e91.DefaultBasisSets().Adversary}
			}
			secret := make([]byte, secretLen)
			r.Read(secret)
			l, rw := net.Pipe()
			defer l.Close()
			defer rw.Close()

			base := e91.PeerOpts{
				Trials:       trials,
				KeyBytes:     cfg.Exchange.KeyBytes,
				Tolerance:    cfg.Exchange.Tolerance,
				MinSamples:   cfg.Exchange.MinSamples,
				AmplifyRatio: cfg.Exchange.AmplifyRatio,
			}
			aOpts, bOpts := base, base
			aOpts.Sender, aOpts.ClassicalChannel = sender, l
			aOpts.Rand, aOpts.Secret = rand.New(rand.NewSource(r.Int63())), bytes.NewReader(secret)
			bOpts.Receiver, bOpts.ClassicalChannel = receiver, rw
			bOpts.Rand, bOpts.Secret = rand.New(rand.NewSource(r.Int63())), bytes.NewReader(secret)

			alice, err := e91.NewPeer(aOpts)
			if err != nil {
				return errors.Wrap(err, "building sender")
			}
			bob, err := e91.NewPeer(bOpts)
			if err != nil {
				return errors.Wrap(err, "building receiver")
			}

			results := make(chan peerResult, 2)
			run := func(p e91.Party, peer e91.Peer) {
				k, v, s, err := peer.NegotiateKey()
				results <- peerResult{p, k, v, s, err}
			}
			go run(e91.Sender, alice)
			go run(e91.Receiver, bob)

			out := cmd.OutOrStdout()
			var keys []e91.SessionKey
			for i := 0; i < 2; i++ {
				res := <-results
				if res.err != nil {
					// The other peer is blocked on the channel; closing it
					// releases it.
					l.Close()
					rw.Close()
					return errors.Wrapf(res.err, "%v failed", res.party)
				}
				log.WithFields(log.Fields{
					"party":    res.party,
					"sent":     res.stats.BytesSent,
					"received": res.stats.BytesRead,
				}).Debug("negotiation finished")
				fmt.Fprintf(out, "== %v ==\n", res.party)
				printVerdict(cmd, res.verdict, res.stats)
				fmt.Fprintf(out, "key: %v\n", res.key)
				keys = append(keys, res.key)
			}
			if bytes.Equal(keys[0], keys[1]) {
				fmt.Fprintln(out, "keys agree")
			} else {
				fmt.Fprintln(out, "keys DISAGREE")
			}
			for _, k := range keys {
				k.Wipe()
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&trials, "trials", "n", e91.DefaultPeerTrials, "number of entangled pairs")
	cmd.Flags().BoolVarP(&adversary, "adversary", "a", false, "intercept every pair")
	cmd.Flags().IntVar(&secretLen, "secret-bytes", 1<<16, "size of the pre-shared authentication secret")
	return cmd
}
