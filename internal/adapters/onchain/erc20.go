package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

const approvalGasLimit = uint64(80_000)

var erc20ABI = mustABI("erc20", `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"name":"symbol","type":"function","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"name","type":"function","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"string"}]}
]`)

// Balance implements ports.BalanceProvider. Empty token or user returns zero.
func (c *Client) Balance(ctx context.Context, token, user string) (decimal.Decimal, error) {
	if token == "" || user == "" {
		return decimal.Zero, nil
	}
	tokenAddr, err := hexAddress(token)
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain.Balance: %w", err)
	}
	userAddr, err := hexAddress(user)
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain.Balance: %w", err)
	}

	vals, err := c.call(ctx, tokenAddr, erc20ABI, "balanceOf", userAddr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain.Balance: %w", err)
	}
	v, err := bigResult(vals, "balanceOf")
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain.Balance: %w", err)
	}
	return fromWei(v), nil
}

// allowance returns the raw allowance owner → spender on token.
func (c *Client) allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigResult(vals, "allowance")
}

// bigResult extrae un uint256 del resultado de un eth_call.
func bigResult(vals []any, method string) (*big.Int, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	v, ok := vals[0].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, vals[0])
	}
	return v, nil
}

// NeedsApproval implements ports.AllowanceExecutor.
func (c *Client) NeedsApproval(ctx context.Context, token, owner, spender string, amount decimal.Decimal) (bool, error) {
	tokenAddr, err := hexAddress(token)
	if err != nil {
		return false, fmt.Errorf("onchain.NeedsApproval: %w", err)
	}
	ownerAddr, err := hexAddress(owner)
	if err != nil {
		return false, fmt.Errorf("onchain.NeedsApproval: %w", err)
	}
	spenderAddr, err := hexAddress(spender)
	if err != nil {
		return false, fmt.Errorf("onchain.NeedsApproval: %w", err)
	}

	current, err := c.allowance(ctx, tokenAddr, ownerAddr, spenderAddr)
	if err != nil {
		return false, fmt.Errorf("onchain.NeedsApproval: %w", err)
	}
	return current.Cmp(toWei(amount)) < 0, nil
}

// Approve implements ports.AllowanceExecutor. It grants an unlimited
// allowance; amount is only logged.
func (c *Client) Approve(ctx context.Context, token, spender string, amount decimal.Decimal) (domain.TxResult, error) {
	tokenAddr, err := hexAddress(token)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("onchain.Approve: %w", err)
	}
	spenderAddr, err := hexAddress(spender)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("onchain.Approve: %w", err)
	}

	slog.Info("onchain: approving", "token", token, "spender", spender, "needed", amount.String())
	res, err := c.send(ctx, tokenAddr, erc20ABI, approvalGasLimit, "approve", spenderAddr, maxUint256)
	if err != nil {
		return res, fmt.Errorf("onchain.Approve: %w", err)
	}
	return res, nil
}

// ensureAllowance approves spender on token if the wallet's allowance is below amount.
func (c *Client) ensureAllowance(ctx context.Context, token, spender string, amount decimal.Decimal) error {
	needs, err := c.NeedsApproval(ctx, token, c.Address(), spender, amount)
	if err != nil {
		return err
	}
	if !needs {
		slog.Debug("onchain: allowance sufficient", "token", token, "spender", spender)
		return nil
	}
	_, err = c.Approve(ctx, token, spender, amount)
	return err
}

func (c *Client) tokenString(ctx context.Context, token common.Address, method string) (string, error) {
	vals, err := c.call(ctx, token, erc20ABI, method)
	if err != nil {
		return "", err
	}
	s, _ := vals[0].(string)
	return s, nil
}

// BalanceCache memoizes balance reads per (token, user) until refreshed.
// It implements ports.BalanceProvider and ports.BalanceRefresher.
type BalanceCache struct {
	client *Client
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cachedBalance
}

type cachedBalance struct {
	value decimal.Decimal
	at    time.Time
}

// NewBalanceCache wraps client; ttl <= 0 keeps entries until RefreshBalances.
func NewBalanceCache(client *Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl, entries: make(map[string]cachedBalance)}
}

// Balance returns the cached balance or reads it from chain.
func (b *BalanceCache) Balance(ctx context.Context, token, user string) (decimal.Decimal, error) {
	key := domain.NormalizeAddress(token) + "|" + domain.NormalizeAddress(user)

	b.mu.Lock()
	e, ok := b.entries[key]
	b.mu.Unlock()
	if ok && (b.ttl <= 0 || time.Since(e.at) < b.ttl) {
		return e.value, nil
	}

	v, err := b.client.Balance(ctx, token, user)
	if err != nil {
		return decimal.Zero, err
	}
	b.mu.Lock()
	b.entries[key] = cachedBalance{value: v, at: time.Now()}
	b.mu.Unlock()
	return v, nil
}

// RefreshBalances drops every cached entry.
func (b *BalanceCache) RefreshBalances(_ context.Context) error {
	b.mu.Lock()
	b.entries = make(map[string]cachedBalance)
	b.mu.Unlock()
	return nil
}
