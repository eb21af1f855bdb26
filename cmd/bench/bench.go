// bench.go runs a round of E91 key exchange for each entry in the cartesian
// product of a collection of different tuning parameters, e.g. pairs measured
// and detection tolerance, and outputs a CSV of relevant statistics for each
// different combination, e.g. the CHSH value and final key length.
package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"net"
	"os"
	"strings"
	"text/template"

	"github.com/alan-christopher/e91/e91"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var (
	trials     = flag.IntSlice("trials", []int{2000}, "The number of entangled pairs to measure per exchange.")
	adversary  = flag.BoolSlice("adversary", []bool{false, true}, "Whether an eavesdropper intercepts every pair.")
	tolerance  = flag.Float64Slice("tolerance", []float64{e91.DefaultTolerance}, "How far |S| may fall below 2√2 before an eavesdropper is reported.")
	minSamples = flag.IntSlice("minSamples", []int{e91.DefaultMinSamples}, "The minimum number of test trials per CHSH basis pair.")
	peers      = flag.BoolSlice("peers", []bool{false}, "Run the two-party protocol over a classical channel instead of a single in-process exchange.")
	repeats    = flag.Int("repeats", 1, "The number of exchanges to run per parameterization.")
	seed       = flag.Int64("seed", 1, "Seed for the first exchange; later exchanges increment it.")
)

var (
	inputs  = []string{"trials", "adversary", "tolerance", "minSamples", "peers"}
	columns = []string{"Trials", "Adversary", "Tolerance", "MinSamples", "Peers", "Seed",
		"S", "StdErr", "Detected", "KeyTrials", "TestTrials", "QBER", "KeyBytes",
		"MessagesSent", "BytesSent", "Succeeded"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	Trials     int
	Adversary  bool
	Tolerance  float64
	MinSamples int
	Peers      bool
	Seed       int64

	// Fields corresponding to experiment results
	S            float64
	StdErr       float64
	Detected     bool
	KeyTrials    int
	TestTrials   int
	QBER         float64
	KeyBytes     int
	MessagesSent int
	BytesSent    int
	Succeeded    bool
}

func main() {
	flag.Parse()
	fmt.Println(header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(inp))
	}
	s := *seed
	applyCartesian(func(args []interface{}) {
		for i := 0; i < *repeats; i++ {
			exp := &Experiment{
				Trials:     args[inpIndex("trials")].(int),
				Adversary:  args[inpIndex("adversary")].(bool),
				Tolerance:  args[inpIndex("tolerance")].(float64),
				MinSamples: args[inpIndex("minSamples")].(int),
				Peers:      args[inpIndex("peers")].(bool),
				Seed:       s,
			}
			s++
			run := bench
			if exp.Peers {
				run = benchPeers
			}
			if err := run(exp); err != nil {
				log.WithField("experiment", fmt.Sprintf("%+v", *exp)).Warnf("benching: %v", err)
			}
			if err := tmpl.Execute(os.Stdout, exp); err != nil {
				log.Fatalf("BUG: could not fill in line template: %v", err)
			}
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

func bench(exp *Experiment) error {
	res, err := e91.Exchange(context.Background(), e91.ExchangeOpts{
		Rand:       rand.New(rand.NewSource(exp.Seed)),
		Trials:     exp.Trials,
		Adversary:  exp.Adversary,
		KeyBytes:   e91.DefaultKeyBytes,
		Tolerance:  exp.Tolerance,
		MinSamples: exp.MinSamples,
		Logger:     log.WithField("seed", exp.Seed),
	})
	if err != nil {
		return err
	}
	defer res.Wipe()
	record(exp, res.Key, res.Verdict, res.Stats)
	return nil
}

func benchPeers(exp *Experiment) error {
	l, r := net.Pipe()
	defer l.Close()
	defer r.Close()
	master := rand.New(rand.NewSource(exp.Seed))
	sender, receiver := e91.NewSimulatedLink(1,
		rand.New(rand.NewSource(master.Int63())), // sendRand
		rand.New(rand.NewSource(master.Int63())), // receiveRand
	)
	if exp.Adversary {
		receiver.Eavesdropper = &e91.Eavesdropper{Bases: e91.DefaultBasisSets().Adversary}
	}
	// The hash diagonals need one secret bit per bit of the largest message,
	// which is about a byte per trial.
	otp := make([]byte, 2*exp.Trials+(1<<12))
	master.Read(otp)
	a, err := e91.NewPeer(e91.PeerOpts{
		Sender:           sender,
		ClassicalChannel: l,
		Rand:             rand.New(rand.NewSource(master.Int63())),
		Secret:           bytes.NewBuffer(otp),
		Trials:           exp.Trials,
		Tolerance:        exp.Tolerance,
		MinSamples:       exp.MinSamples,
	})
	if err != nil {
		return err
	}
	b, err := e91.NewPeer(e91.PeerOpts{
		Receiver:         receiver,
		ClassicalChannel: r,
		Rand:             rand.New(rand.NewSource(master.Int63())),
		Secret:           bytes.NewBuffer(otp),
		Trials:           exp.Trials,
		Tolerance:        exp.Tolerance,
		MinSamples:       exp.MinSamples,
	})
	if err != nil {
		return err
	}

	go b.NegotiateKey()
	k, v, stats, err := a.NegotiateKey()
	if err != nil {
		return err
	}
	record(exp, k, v, stats)
	return nil
}

func record(exp *Experiment, k e91.SessionKey, v e91.Verdict, s e91.Stats) {
	exp.S = math.Abs(v.S)
	exp.StdErr = v.StdErr
	exp.Detected = v.EavesdropperDetected
	exp.KeyTrials = s.KeyTrials
	exp.TestTrials = s.TestTrials
	exp.QBER = s.QBER
	exp.KeyBytes = len(k)
	exp.MessagesSent = s.MessagesSent
	exp.BytesSent = s.BytesSent
	exp.Succeeded = true
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetBoolSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatalf("Unknown type for input %s", name)
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
