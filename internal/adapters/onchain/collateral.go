package onchain

// collateral.go — split y merge de colateral vía FutarchyRouter.
//
// splitPosition() bloquea colateral y acuña el par YES+NO:
//   100 sDAI → 100 YES_sDAI + 100 NO_sDAI
// mergePositions() hace lo contrario y necesita allowance de ambos tokens
// condicionales hacia el router.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

const (
	splitGasLimit = uint64(400_000)
	mergeGasLimit = uint64(400_000)
)

var routerABI = mustABI("futarchy router", `[
	{"name":"splitPosition","type":"function",
	 "inputs":[{"name":"proposal","type":"address"},{"name":"collateralToken","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[]},
	{"name":"mergePositions","type":"function",
	 "inputs":[{"name":"proposal","type":"address"},{"name":"collateralToken","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[]}
]`)

// CollateralRouter implements ports.CollateralExecutor against a FutarchyRouter.
type CollateralRouter struct {
	client *Client
	router string
	tokens func() domain.MarketMetadata
}

// NewCollateralRouter creates a split/merge executor. tokens returns the
// current market metadata, used to find the YES/NO tokens a merge burns.
func NewCollateralRouter(client *Client, router string, tokens func() domain.MarketMetadata) *CollateralRouter {
	return &CollateralRouter{client: client, router: router, tokens: tokens}
}

// EnsureSplitApproval approves the router to pull req.Amount of collateral.
func (r *CollateralRouter) EnsureSplitApproval(ctx context.Context, req domain.SplitRequest) error {
	if err := validateSplit(req); err != nil {
		return fmt.Errorf("onchain.EnsureSplitApproval: %w", err)
	}
	if err := r.client.ensureAllowance(ctx, req.TokenAddress, r.router, req.Amount); err != nil {
		return fmt.Errorf("onchain.EnsureSplitApproval: %w", err)
	}
	return nil
}

// Split locks collateral and mints the YES/NO pair of req.Category.
func (r *CollateralRouter) Split(ctx context.Context, req domain.SplitRequest) (domain.TxResult, error) {
	res, err := r.position(ctx, "splitPosition", splitGasLimit, req)
	if err != nil {
		return res, fmt.Errorf("onchain.Split: %w", err)
	}
	slog.Info("onchain: split confirmed",
		"category", req.Category,
		"amount", req.Amount.String(),
		"tx", res.TxHash,
	)
	return res, nil
}

// Merge burns the YES/NO pair of req.Category and returns the collateral.
func (r *CollateralRouter) Merge(ctx context.Context, req domain.SplitRequest) (domain.TxResult, error) {
	if err := validateSplit(req); err != nil {
		return domain.TxResult{}, fmt.Errorf("onchain.Merge: %w", err)
	}

	group := r.tokens().Group(req.Category)
	for _, t := range []domain.TokenInfo{group.Yes, group.No} {
		if t.Address == "" {
			return domain.TxResult{}, fmt.Errorf("onchain.Merge: %s market has no %s conditional token", req.Category, t.Symbol)
		}
		if err := r.client.ensureAllowance(ctx, t.Address, r.router, req.Amount); err != nil {
			return domain.TxResult{}, fmt.Errorf("onchain.Merge: approve %s: %w", t.Symbol, err)
		}
	}

	res, err := r.position(ctx, "mergePositions", mergeGasLimit, req)
	if err != nil {
		return res, fmt.Errorf("onchain.Merge: %w", err)
	}
	slog.Info("onchain: merge confirmed",
		"category", req.Category,
		"amount", req.Amount.String(),
		"tx", res.TxHash,
	)
	return res, nil
}

func (r *CollateralRouter) position(ctx context.Context, method string, gas uint64, req domain.SplitRequest) (domain.TxResult, error) {
	if err := validateSplit(req); err != nil {
		return domain.TxResult{}, err
	}
	router, err := hexAddress(r.router)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("router: %w", err)
	}
	return r.client.send(ctx, router, routerABI, gas, method,
		common.HexToAddress(req.MarketID),
		common.HexToAddress(req.TokenAddress),
		toWei(req.Amount),
	)
}

func validateSplit(req domain.SplitRequest) error {
	if !common.IsHexAddress(req.MarketID) {
		return fmt.Errorf("invalid market id %q", req.MarketID)
	}
	if !common.IsHexAddress(req.TokenAddress) {
		return fmt.Errorf("no collateral token for category %q", req.Category)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", req.Amount.String())
	}
	return nil
}
