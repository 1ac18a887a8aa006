// Package httpapi implements the JSON HTTP surface (spec.md §6): the
// pool's read endpoints (root, path, memos, nullifier, commitment),
// discovery, and the relay's simulate/submit endpoints. Grounded on
// AKJUS-bsc-erigon's go-chi/chi/v5 + go-chi/cors router setup (the
// teacher itself exposes no HTTP API of its own).
package httpapi

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/notfartdev/zdoge-sub003/internal/chain"
	"github.com/notfartdev/zdoge-sub003/internal/pool"
	"github.com/notfartdev/zdoge-sub003/internal/relay"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

// PoolHandle bundles the read/write surface one pool exposes to the
// HTTP layer: State for reads, Actor for the indexer-owned write path
// (the HTTP layer never mutates State directly).
type PoolHandle struct {
	State *pool.State
	Actor *pool.Actor
}

// Server wires the pool registry, chain client, and relay executor
// behind chi's router.
type Server struct {
	pools      map[types.Address]*PoolHandle
	chainClient *chain.Client
	exec       *relay.Executor
	feePolicy  relay.FeePolicy
	limiter    *relay.IPLimiter
	log        *logrus.Entry
	router     chi.Router
}

// NewServer builds the router for the given pool registry. exec may be
// nil for an indexer-only deployment that serves reads but not relay
// endpoints.
func NewServer(pools map[types.Address]*PoolHandle, chainClient *chain.Client, exec *relay.Executor, feePolicy relay.FeePolicy, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		pools:       pools,
		chainClient: chainClient,
		exec:        exec,
		feePolicy:   feePolicy,
		limiter:     relay.NewIPLimiter(),
		log:         log,
	}
	s.router = s.routes()
	return s
}

// Router returns the http.Handler to pass to http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/pool/{addr}", func(r chi.Router) {
		r.Use(s.rateLimitReadOnly)
		r.Get("/root", s.handleRoot)
		r.Get("/path/{leafIndex}", s.handlePath)
		r.Get("/memos", s.handleMemos)
		r.Get("/nullifier/{hash}", s.handleNullifier)
		r.Get("/commitment/{hash}", s.handleCommitment)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimitReadOnly)
		r.Post("/discover", s.handleDiscover)
	})

	r.Route("/relay", func(r chi.Router) {
		r.Use(s.rateLimitRelay)
		r.Post("/info", s.handleRelayInfo)
		r.Post("/simulate", s.handleSimulate)
		r.Post("/unshield", s.handleUnshield)
		r.Post("/transfer", s.handleTransfer)
		r.Post("/transfer-multi", s.handleTransferMulti)
		r.Post("/swap", s.handleSwap)
		r.Post("/batch-transfer", s.handleBatchTransfer)
		r.Post("/batch-unshield", s.handleBatchUnshield)
	})

	return r
}

func (s *Server) rateLimitReadOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.AllowReadOnly(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, CodeRateLimited, "too many read requests from this address")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitRelay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.AllowRelay(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, CodeRateLimited, "too many relay requests from this address")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

var errUnknownPool = errors.New("httpapi: no pool registered at this address")

func (s *Server) poolByAddrParam(r *http.Request) (*PoolHandle, types.Address, error) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		return nil, addr, err
	}
	h, ok := s.pools[addr]
	if !ok {
		return nil, addr, errUnknownPool
	}
	return h, addr, nil
}
