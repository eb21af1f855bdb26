package commands

import (
	"math/rand"
	"time"

	"github.com/alan-christopher/e91/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	seed       int64

	cfg config.Config
)

func Execute() error {
	root := &cobra.Command{
		Use:           "e91",
		Short:         "Simulate E91 entangled-pair key distribution",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Default()
			if configPath != "" {
				c, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = c
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("seed") {
				cfg.Exchange.Seed = seed
			}
			level, err := cfg.Level()
			if err != nil {
				return err
			}
			log.SetLevel(level)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Int64Var(&seed, "seed", 0, "random seed; 0 seeds from the clock")

	root.AddCommand(demoCmd(), negotiateCmd(), serveCmd())
	err := root.Execute()
	if err != nil {
		log.Error(err)
	}
	return err
}

// newRand returns the random source for one command invocation.
func newRand() *rand.Rand {
	s := cfg.Exchange.Seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	log.WithField("seed", s).Debug("seeding random source")
	return rand.New(rand.NewSource(s))
}
