// Package server exposes key exchanges over a small HTTP API. Runs and their
// keys are held in memory only and are wiped when deleted or when the server
// shuts down.
package server

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/alan-christopher/e91/e91"
	"github.com/alan-christopher/e91/e91/blockcipher"
	"github.com/alan-christopher/e91/internal/config"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// A Server holds completed runs and serves the API over them.
type Server struct {
	cfg    config.Config
	node   *snowflake.Node
	cipher *blockcipher.Channel
	logger log.FieldLogger

	mu   sync.Mutex
	rand *rand.Rand
	runs map[snowflake.ID]*storedRun
}

// A storedRun is one completed exchange. Its Result is only touched with the
// Server's mu held.
type storedRun struct {
	ID      snowflake.ID
	Created time.Time
	Result  *e91.Result
}

// New returns a Server for cfg. Exchanges that fix no seed of their own draw
// one from a source seeded by cfg.Exchange.Seed, or by the clock if that is
// zero.
func New(cfg config.Config, logger log.FieldLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	node, err := snowflake.NewNode(cfg.Server.Node)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create ID generator")
	}
	ch, err := blockcipher.New(cfg.Cipher.Algorithm)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	seed := cfg.Exchange.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Server{
		cfg:    cfg,
		node:   node,
		cipher: ch,
		logger: logger,
		rand:   rand.New(rand.NewSource(seed)),
		runs:   make(map[snowflake.ID]*storedRun),
	}, nil
}

// Router returns the HTTP handler for the API, rooted at /api/v1.
func (s *Server) Router() (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests)
	apiv1Group := router.Group("/api/v1")
	if err := RegisterHandlers(apiv1Group, &RunController{GroupName: "/runs", Svc: s}); err != nil {
		return nil, err
	}
	return router, nil
}

// ListenAndServe serves the API on the configured port until ctx is done, then
// shuts down gracefully and wipes every held key.
func (s *Server) ListenAndServe(ctx context.Context) error {
	router, err := s.Router()
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%v", s.cfg.Server.Port),
		Handler: router,
	}
	defer s.WipeAll()

	chanError := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", httpServer.Addr).Info("serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			chanError <- errors.Wrap(err, "cannot start HTTP server")
		}
	}()
	select {
	case err := <-chanError:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.WithFields(log.Fields{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start),
	}).Debug("request")
}

var (
	// errTooManyRuns is returned when the run store is full.
	errTooManyRuns = errors.New("too many runs held; delete some first")
	// errRunNotFound is returned for unknown or deleted runs.
	errRunNotFound = errors.New("no such run")
)

// RunRequest carries the parameters of a new run. Zero fields take the
// configured defaults.
type RunRequest struct {
	Trials    int    `json:"trials"`
	Adversary *bool  `json:"adversary"`
	Seed      *int64 `json:"seed"`
}

// CreateRun performs an exchange, stores its result and describes it.
func (s *Server) CreateRun(ctx context.Context, req RunRequest) (RunInfo, error) {
	opts := s.cfg.Exchange.ExchangeOpts()
	opts.KeyBytes = s.cipher.KeySize()
	if req.Trials != 0 {
		opts.Trials = req.Trials
	}
	if req.Adversary != nil {
		opts.Adversary = *req.Adversary
	}

	s.mu.Lock()
	if len(s.runs) >= s.cfg.Server.MaxRuns {
		s.mu.Unlock()
		return RunInfo{}, errTooManyRuns
	}
	id := s.node.Generate()
	seed := s.rand.Int63()
	s.mu.Unlock()
	if req.Seed != nil {
		seed = *req.Seed
	}
	opts.Rand = rand.New(rand.NewSource(seed))
	opts.Logger = s.logger.WithField("run", id.String())

	res, err := e91.Exchange(ctx, opts)
	if err != nil {
		return RunInfo{}, err
	}
	// Trials are only needed for the exchange itself; the store keeps the
	// sifted result.
	res.Trials = nil
	r := &storedRun{ID: id, Created: time.Now(), Result: res}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) >= s.cfg.Server.MaxRuns {
		res.Wipe()
		return RunInfo{}, errTooManyRuns
	}
	s.runs[id] = r
	return newRunInfo(r), nil
}

// lookup finds a run by its string ID. s.mu must be held.
func (s *Server) lookup(idStr string) (*storedRun, error) {
	id, err := snowflake.ParseString(idStr)
	if err != nil {
		return nil, errRunNotFound
	}
	r, ok := s.runs[id]
	if !ok {
		return nil, errRunNotFound
	}
	return r, nil
}

// Info describes the run named idStr.
func (s *Server) Info(idStr string) (RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.lookup(idStr)
	if err != nil {
		return RunInfo{}, err
	}
	return newRunInfo(r), nil
}

// DeleteRun wipes and forgets a run.
func (s *Server) DeleteRun(idStr string) bool {
	id, err := snowflake.ParseString(idStr)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return false
	}
	r.Result.Wipe()
	delete(s.runs, id)
	return true
}

// WipeAll wipes and forgets every run.
func (s *Server) WipeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.runs {
		r.Result.Wipe()
		delete(s.runs, id)
	}
}

// Encrypt encrypts msg under the sender's key of the run named idStr.
func (s *Server) Encrypt(idStr, msg string) (string, error) {
	s.mu.Lock()
	r, err := s.lookup(idStr)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	key := append(e91.SessionKey(nil), r.Result.Key...)
	s.mu.Unlock()
	defer key.Wipe()
	return s.cipher.EncryptText(msg, key)
}

// Decrypt decrypts ciphertext with the key party p derives from its own bits
// in the run named idStr. The key is wiped before returning.
func (s *Server) Decrypt(idStr string, p e91.Party, ciphertext string) (string, error) {
	s.mu.Lock()
	r, err := s.lookup(idStr)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	m := r.Result.Material(p)
	s.mu.Unlock()
	defer m.Wipe()

	key, err := m.Key(s.cipher.KeySize())
	if err != nil {
		return "", err
	}
	defer key.Wipe()
	return s.cipher.DecryptText(ciphertext, key)
}
