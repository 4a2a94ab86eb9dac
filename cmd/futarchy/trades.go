package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/futarchy/internal/adapters/onchain"
	"github.com/alejandrodnm/futarchy/internal/adapters/realtime"
	"github.com/alejandrodnm/futarchy/internal/adapters/subgraph"
	"github.com/alejandrodnm/futarchy/internal/application/registry"
	"github.com/alejandrodnm/futarchy/internal/application/trades"
)

// loadRegistry arma el registry desde la config y, si hay RPC, completa
// símbolos y nombres leyendo los ERC20. Si el RPC falla se sigue con la config.
func (a *app) loadRegistry(ctx context.Context, client *onchain.Client) *registry.Registry {
	meta := a.cfg.Market
	reg := registry.New(&meta)
	if client == nil {
		return reg
	}
	if err := reg.Load(ctx, onchain.NewMetadataReader(client, meta)); err != nil {
		slog.Warn("metadata read failed, using configured token table", "err", err)
	}
	return reg
}

// readOnlyClient conecta al RPC sin clave; nil si no hay RPC disponible.
func (a *app) readOnlyClient() *onchain.Client {
	client, err := onchain.Dial(a.cfg.Chain.RPCURL, "", a.cfg.Chain.User, a.cfg.Chain.ChainID, a.cfg.Chain.Name)
	if err != nil {
		slog.Warn("rpc unavailable", "err", err)
		return nil
	}
	return client
}

func (a *app) tradesService(ctx context.Context) (*trades.Service, func()) {
	client := a.readOnlyClient()
	cleanup := func() {
		if client != nil {
			client.Close()
		}
	}
	reg := a.loadRegistry(ctx, client)

	svcCfg := trades.Config{
		Pools:    a.cfg.PoolAddresses(),
		Interval: a.cfg.PollInterval(),
		Lookback: a.cfg.Lookback(),
		Workers:  a.cfg.Trades.Workers,
		Once:     a.once,
	}
	provider := subgraph.NewClient(a.cfg.Trades.SubgraphURL)
	classifier := trades.NewClassifier(a.cfg.Market.Chain)
	return trades.NewService(svcCfg, provider, reg, classifier, a.store, a.console), cleanup
}

func (a *app) runTrades(ctx context.Context) error {
	if a.cfg.Trades.SubgraphURL == "" {
		return fmt.Errorf("trades: no subgraph_url configured")
	}
	if len(a.cfg.Trades.Pools) == 0 {
		return fmt.Errorf("trades: no pools configured")
	}

	svc, cleanup := a.tradesService(ctx)
	defer cleanup()
	return svc.Run(ctx)
}

func (a *app) runFollow(ctx context.Context) error {
	pools := make([]realtime.Pool, 0, len(a.cfg.Trades.Pools))
	for _, p := range a.cfg.Trades.Pools {
		if p.Token0 == "" || p.Token1 == "" {
			slog.Warn("pool without token0/token1, not followed", "pool", p.Address)
			continue
		}
		pools = append(pools, realtime.Pool{Address: p.Address, Token0: p.Token0, Token1: p.Token1})
	}

	svc, cleanup := a.tradesService(ctx)
	defer cleanup()

	feed := realtime.NewFeed(a.cfg.Trades.WSURL, pools)
	slog.Info("following swaps", "ws", a.cfg.Trades.WSURL, "pools", len(pools))
	return svc.Follow(ctx, feed)
}

func (a *app) runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	hours := fs.Int("hours", 24, "window to summarize, in hours")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, cleanup := a.tradesService(ctx)
	defer cleanup()

	to := time.Now().UTC()
	from := to.Add(-time.Duration(*hours) * time.Hour)
	stored, summary, err := svc.History(ctx, from, to)
	if err != nil {
		return err
	}
	return a.console.Notify(ctx, stored, summary)
}
