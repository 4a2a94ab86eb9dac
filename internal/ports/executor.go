package ports

import (
	"context"

	"github.com/alejandrodnm/futarchy/internal/domain"
	"github.com/shopspring/decimal"
)

// BalanceProvider reads token balances.
type BalanceProvider interface {
	// Balance returns the balance of token for user in token units.
	// Empty token or user returns zero, not an error.
	Balance(ctx context.Context, token, user string) (decimal.Decimal, error)
}

// BalanceRefresher is notified when balances may have changed after a write.
type BalanceRefresher interface {
	RefreshBalances(ctx context.Context) error
}

// AllowanceExecutor checks and sets ERC20 allowances.
type AllowanceExecutor interface {
	NeedsApproval(ctx context.Context, token, owner, spender string, amount decimal.Decimal) (bool, error)
	Approve(ctx context.Context, token, spender string, amount decimal.Decimal) (domain.TxResult, error)
}

// CollateralExecutor splits collateral into YES/NO conditional tokens and merges them back.
type CollateralExecutor interface {
	// EnsureSplitApproval approves the split router to pull the collateral if needed.
	EnsureSplitApproval(ctx context.Context, req domain.SplitRequest) error

	// Split locks req.Amount of collateral and mints the YES+NO pair.
	Split(ctx context.Context, req domain.SplitRequest) (domain.TxResult, error)

	// Merge burns req.Amount of YES+NO and returns the collateral.
	Merge(ctx context.Context, req domain.SplitRequest) (domain.TxResult, error)
}

// SwapExecutor routes swaps through one of several strategies.
type SwapExecutor interface {
	AvailableStrategies() []string
	StrategyInfo(name string) (domain.StrategyInfo, error)

	// NeedsApproval reports whether the strategy's spender lacks allowance for amount of tokenIn.
	NeedsApproval(ctx context.Context, strategy, tokenIn string, amount decimal.Decimal) (bool, error)

	// EnsureApproval approves the strategy's spender if needed.
	EnsureApproval(ctx context.Context, strategy, tokenIn string, amount decimal.Decimal) error

	ExecuteSwap(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error)
}
