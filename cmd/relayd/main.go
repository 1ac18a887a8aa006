// Relay daemon: submits shielded-pool transactions on behalf of
// fee-paying clients, fronted by the JSON relay API (spec.md §4.5, §6).
//
// relayd runs its own indexer loop per pool, same as indexerd, because
// the nullifier gate (internal/relay's RunGates) reads live pool.State;
// a relay with a stale view of spent nullifiers
// would accept requests the chain has already invalidated.
package main

import (
	"context"
	"crypto/ecdsa"
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
 ____  _____ _      _ __   ____
||r |||e |||l |||a |||y |||d ||
||__|||__|||__|||__|||__|||__||
|/__\|/__\|/__\|/__\|/__\|/__\|

  relayd v%s
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
	key, err := cfg.ExecutorKey()
	if err != nil {
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

	if err := run(ctx, cancel, cfg, key, log); err != nil {
		log.WithError(err).Fatal("relayd exited with error")
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

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, key *ecdsa.PrivateKey, log *logrus.Entry) error {
	log.Info("dialing chain rpc")
	chainClient, err := chain.Dial(ctx, cfg.RPCHTTPEndpoint, cfg.RPCWSEndpoint, log)
	if err != nil {
		return fmt.Errorf("dial chain: %w", err)
	}
	if !chainClient.HasLiveSubscription() {
		log.Warn("no websocket endpoint configured; pool state will trail by poll interval")
	}

	exec := relay.NewExecutor(chainClient, key, cfg.ChainIDBig(), log)
	log.WithField("address", exec.Address().Hex()).Info("relay executor ready")

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

	feePolicy := relay.DefaultFeePolicy(18)
	srv := httpapi.NewServer(pools, chainClient, exec, feePolicy, log)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Router()}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("serving relay api")
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
