package swap

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/futarchy/internal/ports"
)

// ApprovalCache recuerda, por estrategia, si el spender del swap ya tiene
// allowance suficiente.
type ApprovalCache struct {
	swaps ports.SwapExecutor

	mu       sync.RWMutex
	approved map[string]bool

	inflight atomic.Int32
}

// NewApprovalCache crea un cache vacío.
func NewApprovalCache(swaps ports.SwapExecutor) *ApprovalCache {
	return &ApprovalCache{swaps: swaps, approved: make(map[string]bool)}
}

// Check refresca el estado de approval de strategies para amount de tokenIn.
//
// Si ya hay un refresh en curso y force es false, se devuelven los estados
// cacheados tal cual. Un check fallido marca solo esa estrategia como no
// aprobada.
func (c *ApprovalCache) Check(ctx context.Context, strategies []string, tokenIn string, amount decimal.Decimal, force bool) map[string]bool {
	if c.inflight.Load() > 0 && !force {
		slog.Debug("approvals: refresh in progress, serving cache")
		return c.subset(strategies)
	}
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	var mu sync.Mutex
	fresh := make(map[string]bool, len(strategies))

	var g errgroup.Group
	for _, name := range strategies {
		g.Go(func() error {
			needs, err := c.swaps.NeedsApproval(ctx, name, tokenIn, amount)
			approved := err == nil && !needs
			if err != nil {
				slog.Warn("approvals: check failed", "strategy", name, "err", err)
			}
			mu.Lock()
			fresh[name] = approved
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	for name, ok := range fresh {
		c.approved[name] = ok
	}
	c.mu.Unlock()

	return fresh
}

// Set registra un estado conocido, p.ej. justo después de confirmar un approve.
func (c *ApprovalCache) Set(strategy string, approved bool) {
	c.mu.Lock()
	c.approved[strategy] = approved
	c.mu.Unlock()
}

// Invalidate olvida todos los estados cacheados.
func (c *ApprovalCache) Invalidate() {
	c.mu.Lock()
	c.approved = make(map[string]bool)
	c.mu.Unlock()
}

// Snapshot devuelve una copia de los estados cacheados.
func (c *ApprovalCache) Snapshot() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.approved))
	for k, v := range c.approved {
		out[k] = v
	}
	return out
}

// Refreshing indica si hay un refresh en curso.
func (c *ApprovalCache) Refreshing() bool {
	return c.inflight.Load() > 0
}

func (c *ApprovalCache) subset(strategies []string) map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(strategies))
	for _, name := range strategies {
		out[name] = c.approved[name]
	}
	return out
}
