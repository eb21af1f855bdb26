package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alan-christopher/e91/e91"
	"github.com/alan-christopher/e91/e91/blockcipher"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// demo: one exchange, end to end.
func demoCmd() *cobra.Command {
	var (
		trials     int
		adversary  bool
		message    string
		showTrials int
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run one exchange, report the verdict and encrypt a message with the key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("trials") {
				cfg.Exchange.Trials = trials
			}
			if cmd.Flags().Changed("adversary") {
				cfg.Exchange.Adversary = adversary
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ch, err := blockcipher.New(cfg.Cipher.Algorithm)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			opts := cfg.Exchange.ExchangeOpts()
			opts.Rand = newRand()
			res, err := e91.Exchange(ctx, opts)
			if err != nil {
				return errors.Wrap(err, "exchange failed")
			}
			defer res.Wipe()

			out := cmd.OutOrStdout()
			for i, t := range res.Trials {
				if i >= showTrials {
					break
				}
				fmt.Fprintf(out, "trial %4d  sender %-6v %+d  receiver %-6v %+d  intercepted=%v\n",
					t.Index, t.Sender.Basis, t.Sender.Outcome, t.Receiver.Basis, t.Receiver.Outcome, t.Intercepted)
			}
			printVerdict(cmd, res.Verdict, res.Stats)
			fmt.Fprintf(out, "session key: %v\n", res.Key)

			ct, err := ch.EncryptText(message, res.Key)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ciphertext:  %s\n", ct)
			for _, p := range []e91.Party{e91.Receiver, e91.Adversary} {
				key, err := res.PartyKey(p, cfg.Exchange.KeyBytes)
				if err != nil {
					fmt.Fprintf(out, "%-9v cannot build a key: %v\n", p, err)
					continue
				}
				pt, err := ch.DecryptText(ct, key)
				key.Wipe()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-9v decrypts: %q\n", p, pt)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&trials, "trials", "n", 0, "number of entangled pairs (default from config)")
	cmd.Flags().BoolVarP(&adversary, "adversary", "a", false, "intercept every pair")
	cmd.Flags().StringVarP(&message, "message", "m", "Hello World!", "message to encrypt")
	cmd.Flags().IntVar(&showTrials, "show-trials", 0, "print the first N trials")
	return cmd
}

func printVerdict(cmd *cobra.Command, v e91.Verdict, s e91.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "trials: %d key, %d test, %d discarded\n", s.KeyTrials, s.TestTrials, s.Discarded)
	for _, st := range v.Statistics {
		fmt.Fprintf(out, "  E%v = %+.3f ± %.3f (%d samples)\n", st.Pair, st.Expectation, st.StdErr, st.Samples)
	}
	fmt.Fprintf(out, "S = %+.3f ± %.3f, threshold |S| >= %.3f, QBER %.3f\n", v.S, v.StdErr, v.Threshold, s.QBER)
	if v.EavesdropperDetected {
		fmt.Fprintln(out, "EAVESDROPPER DETECTED: discard this key")
	} else {
		fmt.Fprintf(out, "no eavesdropper detected (%.1f standard errors above the classical bound)\n", v.Violation())
	}
}
