// Package config loads the YAML configuration shared by the e91 commands.
package config

import (
	"io/ioutil"

	"github.com/alan-christopher/e91/e91"
	"github.com/alan-christopher/e91/e91/blockcipher"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config is the Go struct for the contents of e91.yaml.
type Config struct {
	LogLevel string   `yaml:"logLevel"`
	Exchange Exchange `yaml:"exchange"`
	Cipher   Cipher   `yaml:"cipher"`
	Server   Server   `yaml:"server"`
}

// Exchange holds the parameters of a single key exchange.
type Exchange struct {
	Trials    int  `yaml:"trials"`
	Adversary bool `yaml:"adversary"`
	// KeyBytes must match the key size of Cipher.Algorithm.
	KeyBytes     int     `yaml:"keyBytes"`
	Tolerance    float64 `yaml:"tolerance"`
	MinSamples   int     `yaml:"minSamples"`
	Workers      int     `yaml:"workers"`
	AmplifyRatio float64 `yaml:"amplifyRatio"`
	// Seed fixes the random source. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`
}

type Cipher struct {
	Algorithm blockcipher.Algorithm `yaml:"algorithm"`
}

// Server configures the HTTP demo API.
type Server struct {
	Port int `yaml:"port"`
	// Node is the snowflake node number used to mint run IDs.
	Node int64 `yaml:"node"`
	// MaxRuns bounds the number of runs held in memory at once.
	MaxRuns int `yaml:"maxRuns"`
}

// Default returns the configuration used when no file is given. Fields
// missing from a file keep these values.
func Default() Config {
	return Config{
		LogLevel: "info",
		Exchange: Exchange{
			Trials:     2000,
			KeyBytes:   8,
			Tolerance:  e91.DefaultTolerance,
			MinSamples: e91.DefaultMinSamples,
		},
		Cipher: Cipher{Algorithm: blockcipher.Default},
		Server: Server{
			Port:    8080,
			Node:    1,
			MaxRuns: 64,
		},
	}
}

// Load reads the YAML file at path over Default and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	yamlBytes, err := ioutil.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "cannot read config file '%v'", path)
	}
	if err := yaml.UnmarshalStrict(yamlBytes, &c); err != nil {
		return c, errors.Wrapf(err, "cannot parse config file '%v'", path)
	}
	if err := c.Validate(); err != nil {
		return c, errors.Wrapf(err, "invalid config file '%v'", path)
	}
	return c, nil
}

// Validate reports the first nonsensical setting in c.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	x := c.Exchange
	if x.Trials <= 0 {
		return errors.Errorf("exchange.trials must be positive, got %d", x.Trials)
	}
	if x.KeyBytes <= 0 {
		return errors.Errorf("exchange.keyBytes must be positive, got %d", x.KeyBytes)
	}
	if !(x.Tolerance >= 0 && x.Tolerance < e91.MaxTolerance) {
		return errors.Errorf("exchange.tolerance must lie in [0, %.4f), got %v", e91.MaxTolerance, x.Tolerance)
	}
	if x.MinSamples < 0 || x.Workers < 0 {
		return errors.Errorf("exchange.minSamples and exchange.workers must not be negative")
	}
	if x.AmplifyRatio < 0 || x.AmplifyRatio > 1 {
		return errors.Errorf("exchange.amplifyRatio must lie in [0, 1], got %v", x.AmplifyRatio)
	}
	keySize, err := blockcipher.KeySize(c.Cipher.Algorithm)
	if err != nil {
		return errors.Wrap(err, "cipher.algorithm")
	}
	if keySize != x.KeyBytes {
		return errors.Errorf("exchange.keyBytes is %d but %s needs %d byte keys",
			x.KeyBytes, c.Cipher.Algorithm, keySize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.Node < 0 || c.Server.Node > 1023 {
		return errors.Errorf("server.node must lie in [0, 1023], got %d", c.Server.Node)
	}
	if c.Server.MaxRuns <= 0 {
		return errors.Errorf("server.maxRuns must be positive, got %d", c.Server.MaxRuns)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (log.Level, error) {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return l, errors.Wrap(err, "logLevel")
	}
	return l, nil
}

// ExchangeOpts converts the exchange settings into options for e91.Exchange.
// The caller supplies the random source.
func (x Exchange) ExchangeOpts() e91.ExchangeOpts {
	return e91.ExchangeOpts{
		Trials:       x.Trials,
		Adversary:    x.Adversary,
		KeyBytes:     x.KeyBytes,
		Workers:      x.Workers,
		Tolerance:    x.Tolerance,
		MinSamples:   x.MinSamples,
		AmplifyRatio: x.AmplifyRatio,
	}
}
