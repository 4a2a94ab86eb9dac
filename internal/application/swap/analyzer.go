package swap

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/futarchy/internal/application/registry"
	"github.com/alejandrodnm/futarchy/internal/domain"
	"github.com/alejandrodnm/futarchy/internal/ports"
)

// Analyze verifica si los balances cubren required unidades de tokenIn y, para
// tokens condicionales, si el faltante se puede mintear haciendo split del
// colateral de su categoría. Solo lee sus inputs: llamarla dos veces sobre
// el mismo snapshot da el mismo resultado.
func Analyze(tokenIn string, required decimal.Decimal, balances domain.Balances, table *domain.TokenTable) domain.TokenAnalysis {
	current := balances.Get(tokenIn)
	a := domain.TokenAnalysis{
		TokenIn:             domain.NormalizeAddress(tokenIn),
		Required:            required,
		CurrentBalance:      current,
		Shortage:            decimal.Zero,
		CollateralAvailable: decimal.Zero,
	}

	shortage := decimal.Max(decimal.Zero, required.Sub(current))
	role, known := table.Classify(tokenIn)

	if !known || !role.IsConditional() {
		a.Sufficient = current.GreaterThanOrEqual(required)
		if !a.Sufficient {
			a.Shortage = shortage
			a.Actions = []domain.Action{{
				Kind:   domain.ActionInsufficientFunds,
				Amount: shortage,
				Symbol: role.Symbol,
			}}
		}
		return a
	}

	a.Shortage = shortage
	if shortage.IsZero() {
		a.Sufficient = true
		return a
	}

	collateral, ok := table.Collateral(role.Category)
	if ok {
		a.CollateralAvailable = balances.Get(collateral.Address)
		a.CollateralSymbol = collateral.Symbol
	}
	a.CanAutoSplit = ok && a.CollateralAvailable.GreaterThanOrEqual(shortage)

	if a.CanAutoSplit {
		a.Actions = []domain.Action{{
			Kind:       domain.ActionSplitCollateral,
			Category:   role.Category,
			Amount:     shortage,
			Symbol:     collateral.Symbol,
			Executable: true,
		}}
		return a
	}

	a.Actions = []domain.Action{{
		Kind:     domain.ActionInsufficientFunds,
		Category: role.Category,
		Amount:   shortage,
		Symbol:   collateral.Symbol,
	}}
	return a
}

// Analyzer carga un snapshot de balances del usuario y corre Analyze.
type Analyzer struct {
	balances ports.BalanceProvider
	registry *registry.Registry
	user     string
}

// NewAnalyzer crea un analyzer para la wallet dada.
func NewAnalyzer(balances ports.BalanceProvider, reg *registry.Registry, user string) *Analyzer {
	return &Analyzer{balances: balances, registry: reg, user: user}
}

// Analyze lee los balances necesarios para tokenIn y los analiza.
// Los errores de lectura quedan en el campo Err del análisis.
func (a *Analyzer) Analyze(ctx context.Context, tokenIn string, required decimal.Decimal) domain.TokenAnalysis {
	table := a.registry.Snapshot()

	tokens := []string{tokenIn}
	if role, ok := table.Classify(tokenIn); ok && role.IsConditional() {
		if collateral, ok := table.Collateral(role.Category); ok {
			tokens = append(tokens, collateral.Address)
		}
	}

	snapshot, err := LoadBalances(ctx, a.balances, a.user, tokens)
	if err != nil {
		return domain.TokenAnalysis{
			TokenIn:             domain.NormalizeAddress(tokenIn),
			Required:            required,
			CurrentBalance:      decimal.Zero,
			Shortage:            decimal.Zero,
			CollateralAvailable: decimal.Zero,
			Err:                 fmt.Errorf("swap.Analyze: %w", err),
		}
	}
	return Analyze(tokenIn, required, snapshot, table)
}

// LoadBalances lee en paralelo los balances de tokens en un snapshot.
func LoadBalances(ctx context.Context, provider ports.BalanceProvider, user string, tokens []string) (domain.Balances, error) {
	var mu sync.Mutex
	values := make(map[string]decimal.Decimal, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	for _, token := range tokens {
		g.Go(func() error {
			bal, err := provider.Balance(gctx, token, user)
			if err != nil {
				return fmt.Errorf("balance of %s: %w", token, err)
			}
			mu.Lock()
			values[token] = bal
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Balances{}, err
	}
	return domain.NewBalances(values), nil
}
