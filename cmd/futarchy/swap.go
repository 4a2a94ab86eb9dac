package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/futarchy/internal/adapters/onchain"
	"github.com/alejandrodnm/futarchy/internal/application/registry"
	"github.com/alejandrodnm/futarchy/internal/application/swap"
	"github.com/alejandrodnm/futarchy/internal/domain"
)

// swapStack agrupa los colaboradores del write path.
type swapStack struct {
	client     *onchain.Client
	registry   *registry.Registry
	swaps      *onchain.SwapRouter
	collateral *onchain.CollateralRouter
	approvals  *swap.ApprovalCache
	analyzer   *swap.Analyzer
	orch       *swap.Orchestrator
}

func (a *app) buildSwapStack(ctx context.Context) (*swapStack, error) {
	client, err := onchain.Dial(a.cfg.Chain.RPCURL, a.cfg.Chain.PrivateKey, a.cfg.Chain.User, a.cfg.Chain.ChainID, a.cfg.Chain.Name)
	if err != nil {
		return nil, err
	}

	strategies := make([]onchain.Strategy, 0, len(a.cfg.Swap.Strategies))
	for _, s := range a.cfg.Swap.Strategies {
		strategies = append(strategies, onchain.Strategy{
			Name:        s.Name,
			DisplayName: s.DisplayName,
			Kind:        s.Kind,
			Router:      s.Router,
			Fee:         s.Fee,
			GasLimit:    s.GasLimit,
		})
	}
	router, err := onchain.NewSwapRouter(client, strategies)
	if err != nil {
		client.Close()
		return nil, err
	}

	reg := a.loadRegistry(ctx, client)
	balances := onchain.NewBalanceCache(client, a.cfg.BalanceTTL())
	collateral := onchain.NewCollateralRouter(client, a.cfg.Chain.Router, func() domain.MarketMetadata {
		return reg.Snapshot().Metadata()
	})
	approvals := swap.NewApprovalCache(router)
	analyzer := swap.NewAnalyzer(balances, reg, client.Address())

	orch := swap.NewOrchestrator(swap.Config{
		SplitTimeout:  a.cfg.SplitTimeout(),
		SettlingDelay: a.cfg.SettlingDelay(),
	}, swap.Deps{
		Collateral: collateral,
		Swaps:      router,
		Registry:   reg,
		Approvals:  approvals,
		Analyzer:   analyzer,
		Refresher:  balances,
		Journal:    a.store,
	})

	return &swapStack{
		client:     client,
		registry:   reg,
		swaps:      router,
		collateral: collateral,
		approvals:  approvals,
		analyzer:   analyzer,
		orch:       orch,
	}, nil
}

func (a *app) runAnalyze(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("analyze: want <token> <amount>")
	}
	st, err := a.buildSwapStack(ctx)
	if err != nil {
		return err
	}
	defer st.client.Close()

	token, err := resolveToken(st.registry.Snapshot(), args[0])
	if err != nil {
		return err
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	analysis := st.analyzer.Analyze(ctx, token, amount)
	a.console.PrintAnalysis(analysis)
	if analysis.Err != nil {
		return analysis.Err
	}

	for _, name := range st.swaps.AvailableStrategies() {
		plan := swap.Plan(analysis, name)
		a.console.PrintPlan(plan)
	}
	return nil
}

func (a *app) runSwap(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("swap", flag.ContinueOnError)
	strategy := fs.String("strategy", "", "swap strategy (default: first configured)")
	autoSplit := fs.Bool("auto-split", a.cfg.Swap.AutoSplit, "split collateral automatically when needed")
	yes := fs.Bool("yes", false, "run suggested manual actions without asking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return fmt.Errorf("swap: want <tokenIn> <tokenOut> <amount>")
	}

	st, err := a.buildSwapStack(ctx)
	if err != nil {
		return err
	}
	defer st.client.Close()

	table := st.registry.Snapshot()
	tokenIn, err := resolveToken(table, fs.Arg(0))
	if err != nil {
		return err
	}
	tokenOut, err := resolveToken(table, fs.Arg(1))
	if err != nil {
		return err
	}
	amount, err := parseAmount(fs.Arg(2))
	if err != nil {
		return err
	}

	name := *strategy
	if name == "" {
		available := st.swaps.AvailableStrategies()
		if len(available) == 0 {
			return fmt.Errorf("swap: no strategies configured")
		}
		name = available[0]
	}

	analysis := st.analyzer.Analyze(ctx, tokenIn, amount)
	a.console.PrintAnalysis(analysis)
	if analysis.Err != nil {
		return analysis.Err
	}
	if !analysis.Sufficient && !analysis.CanAutoSplit {
		return fmt.Errorf("swap: insufficient funds")
	}

	approved := st.approvals.Check(ctx, st.swaps.AvailableStrategies(), tokenIn, amount, false)
	slog.Info("router approvals", "strategy", name, "approved", approved[name])

	plan := swap.Plan(analysis, name)
	a.console.PrintPlan(plan)

	stop := a.printEvents(st.orch)
	defer stop()

	req := swap.Request{Plan: plan, TokenIn: tokenIn, TokenOut: tokenOut, Amount: amount, AutoSplit: *autoSplit}
	res, err := st.orch.Start(ctx, req)
	if errors.Is(err, swap.ErrManualAction) {
		actions := st.orch.State().ManualActions
		if !*yes && !confirm(fmt.Sprintf("run %d manual action(s)?", len(actions))) {
			st.orch.Reset()
			return err
		}
		for _, act := range actions {
			if _, err := st.orch.ExecuteAction(ctx, act); err != nil {
				return err
			}
		}
		res, err = st.orch.Retry(ctx)
	}
	if err != nil {
		return err
	}

	slog.Info("swap confirmed", "strategy", res.StrategyName, "tx", res.TxHash, "url", res.ExplorerURL)
	return nil
}

// runPosition hace split (merge=false) o merge del colateral de una categoría.
func (a *app) runPosition(ctx context.Context, args []string, merge bool) error {
	if len(args) != 2 {
		return fmt.Errorf("want <company|currency> <amount>")
	}
	category := domain.Category(strings.ToLower(args[0]))
	if category != domain.CategoryCompany && category != domain.CategoryCurrency {
		return fmt.Errorf("unknown category %q", args[0])
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	st, err := a.buildSwapStack(ctx)
	if err != nil {
		return err
	}
	defer st.client.Close()

	var res domain.TxResult
	if merge {
		table := st.registry.Snapshot()
		collateral, ok := table.Collateral(category)
		if !ok {
			return fmt.Errorf("merge: no %s collateral in token table", category)
		}
		res, err = st.collateral.Merge(ctx, domain.SplitRequest{
			Category:     category,
			Amount:       amount,
			MarketID:     table.Metadata().MarketID,
			TokenAddress: collateral.Address,
		})
	} else {
		res, err = st.orch.ExecuteAction(ctx, domain.Action{
			Kind:       domain.ActionSplitCollateral,
			Category:   category,
			Amount:     amount,
			Executable: true,
		})
	}
	if err != nil {
		return err
	}

	slog.Info("position updated", "merge", merge, "tx", res.TxHash, "url", res.ExplorerURL, "gas", res.GasUsed)
	return nil
}

func (a *app) runExecutions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("executions", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	recs, err := a.store.GetExecutions(ctx, *limit)
	if err != nil {
		return err
	}
	a.console.PrintExecutions(recs)
	return nil
}

// printEvents imprime el stream del orquestador hasta que se llama a stop.
func (a *app) printEvents(o *swap.Orchestrator) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case ev := <-o.Events():
				a.console.PrintEvent(ev)
			case <-done:
				for {
					select {
					case ev := <-o.Events():
						a.console.PrintEvent(ev)
					default:
						return
					}
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// resolveToken acepta una dirección o un símbolo de la tabla.
func resolveToken(table *domain.TokenTable, s string) (string, error) {
	if strings.HasPrefix(s, "0x") && len(s) == 42 {
		return domain.NormalizeAddress(s), nil
	}
	meta := table.Metadata()
	for _, g := range []domain.TokenGroup{meta.Company, meta.Currency, meta.Base} {
		for _, t := range []domain.TokenInfo{g.Base, g.Yes, g.No} {
			if t.Address != "" && strings.EqualFold(t.Symbol, s) {
				return domain.NormalizeAddress(t.Address), nil
			}
		}
	}
	return "", fmt.Errorf("unknown token %q", s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", s)
	}
	return d, nil
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	ok, err := strconv.ParseBool(strings.TrimSpace(line))
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(line), "y")
	}
	return ok
}
