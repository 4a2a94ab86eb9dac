package swap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/futarchy/internal/application/registry"
	"github.com/alejandrodnm/futarchy/internal/domain"
)

// --- fixtures ---

const (
	gno     = "0xc000000000000000000000000000000000000000"
	yesGNO  = "0xc100000000000000000000000000000000000000"
	noGNO   = "0xc200000000000000000000000000000000000000"
	sdai    = "0xd000000000000000000000000000000000000000"
	yesSDAI = "0xd100000000000000000000000000000000000000"
	noSDAI  = "0xd200000000000000000000000000000000000000"
	market  = "0xproposal"
	user    = "0xuser"
)

func testMetadata() domain.MarketMetadata {
	return domain.MarketMetadata{
		MarketID: market,
		Chain:    "gnosis",
		Company: domain.TokenGroup{
			Base: domain.TokenInfo{Address: gno, Symbol: "GNO"},
			Yes:  domain.TokenInfo{Address: yesGNO, Symbol: "YES_GNO"},
			No:   domain.TokenInfo{Address: noGNO, Symbol: "NO_GNO"},
		},
		Currency: domain.TokenGroup{
			Base: domain.TokenInfo{Address: sdai, Symbol: "sDAI"},
			Yes:  domain.TokenInfo{Address: yesSDAI, Symbol: "YES_sDAI"},
			No:   domain.TokenInfo{Address: noSDAI, Symbol: "NO_sDAI"},
		},
	}
}

func testRegistry() *registry.Registry {
	meta := testMetadata()
	return registry.New(&meta)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- mocks ---

type mockBalances struct {
	values map[string]decimal.Decimal
	err    error
}

func (m *mockBalances) Balance(_ context.Context, token, _ string) (decimal.Decimal, error) {
	if m.err != nil {
		return decimal.Zero, m.err
	}
	return m.values[token], nil
}

type mockCollateral struct {
	mu         sync.Mutex
	approveErr error
	splitErr   error
	approvals  []domain.SplitRequest
	splits     []domain.SplitRequest

	// block, si está, deja a Split colgado hasta que se cierre, ignorando ctx.
	block   chan struct{}
	started chan struct{}
}

func (m *mockCollateral) EnsureSplitApproval(_ context.Context, req domain.SplitRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals = append(m.approvals, req)
	return m.approveErr
}

func (m *mockCollateral) Split(_ context.Context, req domain.SplitRequest) (domain.TxResult, error) {
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.splits = append(m.splits, req)
	if m.splitErr != nil {
		return domain.TxResult{}, m.splitErr
	}
	return domain.TxResult{TxHash: "0xsplit"}, nil
}

func (m *mockCollateral) Merge(_ context.Context, _ domain.SplitRequest) (domain.TxResult, error) {
	return domain.TxResult{TxHash: "0xmerge"}, nil
}

func (m *mockCollateral) counts() (approvals, splits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.approvals), len(m.splits)
}

type mockSwaps struct {
	mu          sync.Mutex
	strategies  []string
	needs       map[string]bool
	needsErr    map[string]error
	approveErr  error
	swapErr     error
	approveCall int
	swapCall    int
	swapped     []domain.SwapRequest
	needsCalls  []timedCall

	// gate, si está, hace esperar a NeedsApproval hasta que se cierre.
	gate    chan struct{}
	entered chan struct{}
}

func newMockSwaps() *mockSwaps {
	return &mockSwaps{
		strategies: []string{"algebra", "uniswap_v3"},
		needs:      map[string]bool{},
		needsErr:   map[string]error{},
	}
}

func (m *mockSwaps) AvailableStrategies() []string { return m.strategies }

func (m *mockSwaps) StrategyInfo(name string) (domain.StrategyInfo, error) {
	for _, s := range m.strategies {
		if s == name {
			return domain.StrategyInfo{Name: name, DisplayName: name}, nil
		}
	}
	return domain.StrategyInfo{}, errors.New("unknown")
}

func (m *mockSwaps) NeedsApproval(_ context.Context, strategy, _ string, _ decimal.Decimal) (bool, error) {
	if m.entered != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
	}
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.needsCalls = append(m.needsCalls, timedCall{name: strategy, at: time.Now()})
	return m.needs[strategy], m.needsErr[strategy]
}

func (m *mockSwaps) needsQueries() []timedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]timedCall(nil), m.needsCalls...)
}

func (m *mockSwaps) EnsureApproval(_ context.Context, _, _ string, _ decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approveCall++
	return m.approveErr
}

func (m *mockSwaps) ExecuteSwap(_ context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapCall++
	m.swapped = append(m.swapped, req)
	if m.swapErr != nil {
		return domain.SwapResult{}, m.swapErr
	}
	return domain.SwapResult{StrategyName: req.Strategy, TxHash: "0xswap"}, nil
}

func (m *mockSwaps) calls() (approvals, swaps int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.approveCall, m.swapCall
}

// timedCall registra cuándo se llamó a un mock.
type timedCall struct {
	name string
	at   time.Time
}

type mockRefresher struct {
	mu    sync.Mutex
	calls int
	last  time.Time

	// onRefresh, si está, se ejecuta después de registrar la llamada.
	onRefresh func()
}

func (m *mockRefresher) RefreshBalances(_ context.Context) error {
	m.mu.Lock()
	m.calls++
	m.last = time.Now()
	hook := m.onRefresh
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

type mockJournal struct {
	mu      sync.Mutex
	records []domain.ExecutionRecord
}

func (m *mockJournal) SaveExecution(_ context.Context, rec domain.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockJournal) GetExecutions(_ context.Context, _ int) ([]domain.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ExecutionRecord(nil), m.records...), nil
}

func (m *mockJournal) statuses() []domain.ExecutionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ExecutionStatus
	for _, r := range m.records {
		out = append(out, r.Status)
	}
	return out
}

// --- helpers ---

// drain devuelve todos los eventos en el buffer.
func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// waitFor lee eventos hasta que llega uno de tipo T o vence el timeout.
func waitFor[T Event](t *testing.T, ch <-chan Event, timeout time.Duration) T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if v, ok := ev.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}
