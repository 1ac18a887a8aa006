// Indexer daemon: follows one or more shielded-pool contracts' event
// logs and serves their read API (spec.md §4.4, §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/notfartdev/zdoge-sub003/internal/chain"
	"github.com/notfartdev/zdoge-sub003/internal/config"
	"github.com/notfartdev/zdoge-sub003/internal/field"
	"github.com/notfartdev/zdoge-sub003/internal/httpapi"
	"github.com/notfartdev/zdoge-sub003/internal/indexer"
	"github.com/notfartdev/zdoge-sub003/internal/pool"
	"github.com/notfartdev/zdoge-sub003/internal/relay"
	"github.com/notfartdev/zdoge-sub003/internal/storage"
	"github.com/notfartdev/zdoge-sub003/pkg/types"
)

const (
	version = "0.1.0"
	banner  = `
 ____  ____ ____ ____ ____ ____ ____ ____
||i |||n |||d |||e |||x |||e |||r |||d ||
||__|||__|||__|||__|||__|||__|||__|||__||
|/__\|/__\|/__\|/__\|/__\|/__\|/__\|/__\|

  indexerd v%s
`
)

func main() {
	cfg := &config.Config{}
	fs := config.Flags(cfg)
	fs.Parse(os.Args[1:])

	log := newLogger(cfg.LogLevel)
	fmt.Printf(banner, version)

	if err := field.SelfTest(); err != nil {
		log.WithError(err).Fatal("cryptographic self-test failed, refusing to serve")
	}

	if err := cfg.ParsePools(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cancel, cfg, log); err != nil {
		log.WithError(err).Fatal("indexerd exited with error")
	}
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return logrus.NewEntry(l)
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, log *logrus.Entry) error {
	log.Info("dialing chain rpc")
	chainClient, err := chain.Dial(ctx, cfg.RPCHTTPEndpoint, cfg.RPCWSEndpoint, log)
	if err != nil {
		return fmt.Errorf("dial chain: %w", err)
	}
	if !chainClient.HasLiveSubscription() {
		log.Warn("no websocket endpoint configured; indexer will run catch-up-only")
	}

	indexCfg := indexer.DefaultConfig()
	if cfg.BacklogThreshold > 0 {
		indexCfg.BacklogThreshold = cfg.BacklogThreshold
	}

	pools := make(map[types.Address]*httpapi.PoolHandle, len(cfg.PoolAddresses))
	var wg sync.WaitGroup
	errCh := make(chan error, len(cfg.PoolAddresses)+1)

	for _, addr := range cfg.PoolAddresses {
		poolLog := log.WithField("pool", addr.Hex())

		store, err := storage.NewPostgresStore(ctx, cfg.StorageConfig(), addr)
		if err != nil {
			return fmt.Errorf("open storage for pool %s: %w", addr.Hex(), err)
		}
		defer store.Close()

		state, err := pool.New(ctx, addr, store, store)
		if err != nil {
			return fmt.Errorf("load pool %s: %w", addr.Hex(), err)
		}
		actor := pool.NewActor(state, poolLog)
		defer actor.Close()

		pools[addr] = &httpapi.PoolHandle{State: state, Actor: actor}

		ix := indexer.New(chainClient, actor, addr, store, indexCfg, poolLog)
		wg.Add(1)
		go func(addrHex string) {
			defer wg.Done()
			if err := ix.Run(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("indexer for pool %s stopped: %w", addrHex, err)
			}
		}(addr.Hex())
	}

	srv := httpapi.NewServer(pools, chainClient, nil, relay.FeePolicy{}, log)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Router()}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("serving read api")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = httpSrv.Close()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}
	wg.Wait()
	return nil
}
