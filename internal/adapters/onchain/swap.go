package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

// Router kinds supported by SwapRouter.
const (
	KindAlgebra   = "algebra"
	KindUniswapV3 = "uniswap_v3"
)

const (
	defaultSwapGasLimit = uint64(350_000)
	swapDeadline        = 20 * time.Minute
)

var algebraRouterABI = mustABI("algebra router", `[
	{"name":"exactInputSingle","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"recipient","type":"address"},
		{"name":"deadline","type":"uint256"},
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},
		{"name":"limitSqrtPrice","type":"uint160"}]}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`)

var uniswapRouterABI = mustABI("uniswap v3 router", `[
	{"name":"exactInputSingle","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"recipient","type":"address"},
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`)

type algebraParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Recipient        common.Address
	Deadline         *big.Int
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
	LimitSqrtPrice   *big.Int
}

type uniswapParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Strategy is one configured swap route.
type Strategy struct {
	Name        string
	DisplayName string
	Kind        string // KindAlgebra | KindUniswapV3
	Router      string
	Fee         uint32 // pool fee tier, uniswap_v3 only
	GasLimit    uint64
}

// SwapRouter implements ports.SwapExecutor over a set of router strategies.
type SwapRouter struct {
	client     *Client
	strategies map[string]Strategy
	order      []string
	now        func() time.Time
}

// NewSwapRouter validates strategies and builds the executor.
func NewSwapRouter(client *Client, strategies []Strategy) (*SwapRouter, error) {
	r := &SwapRouter{
		client:     client,
		strategies: make(map[string]Strategy, len(strategies)),
		now:        time.Now,
	}
	for _, s := range strategies {
		if s.Name == "" {
			return nil, fmt.Errorf("onchain: strategy without name")
		}
		if _, dup := r.strategies[s.Name]; dup {
			return nil, fmt.Errorf("onchain: duplicate strategy %q", s.Name)
		}
		if s.Kind != KindAlgebra && s.Kind != KindUniswapV3 {
			return nil, fmt.Errorf("onchain: strategy %q: unknown kind %q", s.Name, s.Kind)
		}
		if !common.IsHexAddress(s.Router) {
			return nil, fmt.Errorf("onchain: strategy %q: invalid router %q", s.Name, s.Router)
		}
		if s.DisplayName == "" {
			s.DisplayName = s.Name
		}
		if s.GasLimit == 0 {
			s.GasLimit = defaultSwapGasLimit
		}
		r.strategies[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

// AvailableStrategies returns strategy names in configuration order.
func (r *SwapRouter) AvailableStrategies() []string {
	return append([]string(nil), r.order...)
}

// StrategyInfo describes a strategy.
func (r *SwapRouter) StrategyInfo(name string) (domain.StrategyInfo, error) {
	s, err := r.lookup(name)
	if err != nil {
		return domain.StrategyInfo{}, err
	}
	return domain.StrategyInfo{Name: s.Name, DisplayName: s.DisplayName, GasRequired: s.GasLimit}, nil
}

// NeedsApproval reports whether the strategy's router lacks allowance.
func (r *SwapRouter) NeedsApproval(ctx context.Context, strategy, tokenIn string, amount decimal.Decimal) (bool, error) {
	s, err := r.lookup(strategy)
	if err != nil {
		return false, err
	}
	return r.client.NeedsApproval(ctx, tokenIn, r.client.Address(), s.Router, amount)
}

// EnsureApproval approves the strategy's router for tokenIn if needed.
func (r *SwapRouter) EnsureApproval(ctx context.Context, strategy, tokenIn string, amount decimal.Decimal) error {
	s, err := r.lookup(strategy)
	if err != nil {
		return err
	}
	if err := r.client.ensureAllowance(ctx, tokenIn, s.Router, amount); err != nil {
		return fmt.Errorf("onchain.EnsureApproval %s: %w", strategy, err)
	}
	return nil
}

// ExecuteSwap swaps exactly req.Amount of TokenIn for TokenOut.
func (r *SwapRouter) ExecuteSwap(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	s, err := r.lookup(req.Strategy)
	if err != nil {
		return domain.SwapResult{}, err
	}
	tokenIn, err := hexAddress(req.TokenIn)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("onchain.ExecuteSwap: token in: %w", err)
	}
	tokenOut, err := hexAddress(req.TokenOut)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("onchain.ExecuteSwap: token out: %w", err)
	}
	if !req.Amount.IsPositive() {
		return domain.SwapResult{}, fmt.Errorf("onchain.ExecuteSwap: amount must be positive")
	}
	router := common.HexToAddress(s.Router)
	amountIn := toWei(req.Amount)

	var res domain.TxResult
	switch s.Kind {
	case KindAlgebra:
		res, err = r.client.send(ctx, router, algebraRouterABI, s.GasLimit, "exactInputSingle", algebraParams{
			TokenIn:          tokenIn,
			TokenOut:         tokenOut,
			Recipient:        r.client.address,
			Deadline:         big.NewInt(r.now().Add(swapDeadline).Unix()),
			AmountIn:         amountIn,
			AmountOutMinimum: big.NewInt(0),
			LimitSqrtPrice:   big.NewInt(0),
		})
	case KindUniswapV3:
		res, err = r.client.send(ctx, router, uniswapRouterABI, s.GasLimit, "exactInputSingle", uniswapParams{
			TokenIn:           tokenIn,
			TokenOut:          tokenOut,
			Fee:               new(big.Int).SetUint64(uint64(s.Fee)),
			Recipient:         r.client.address,
			AmountIn:          amountIn,
			AmountOutMinimum:  big.NewInt(0),
			SqrtPriceLimitX96: big.NewInt(0),
		})
	}
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("onchain.ExecuteSwap %s: %w", s.Name, err)
	}

	slog.Info("onchain: swap confirmed",
		"strategy", s.Name,
		"amount_in", req.Amount.String(),
		"tx", res.TxHash,
	)
	return domain.SwapResult{
		StrategyName: s.Name,
		TxHash:       res.TxHash,
		ExplorerURL:  res.ExplorerURL,
	}, nil
}

func (r *SwapRouter) lookup(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return Strategy{}, fmt.Errorf("onchain: unknown strategy %q", name)
	}
	return s, nil
}
