package trades

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/futarchy/internal/application/registry"
	"github.com/alejandrodnm/futarchy/internal/domain"
	"github.com/alejandrodnm/futarchy/internal/ports"
)

// --- mocks ---

type mockProvider struct {
	mu     sync.Mutex
	trades map[string][]domain.RawTrade
	err    error
	since  map[string]time.Time
}

func (m *mockProvider) FetchTrades(_ context.Context, pool string, since time.Time) ([]domain.RawTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.since == nil {
		m.since = make(map[string]time.Time)
	}
	m.since[pool] = since
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.RawTrade
	for _, r := range m.trades[pool] {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockStorage struct {
	mu      sync.Mutex
	saved   []domain.ClassifiedTrade
	last    map[string]time.Time
	getErr  error
	history []domain.ClassifiedTrade
}

func (m *mockStorage) SaveTrades(_ context.Context, trades []domain.ClassifiedTrade) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, trades...)
	return len(trades), nil
}

func (m *mockStorage) GetTrades(_ context.Context, from, to time.Time) ([]domain.ClassifiedTrade, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []domain.ClassifiedTrade
	for _, t := range m.history {
		if !t.Timestamp.Before(from) && !t.Timestamp.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStorage) LastTradeTime(_ context.Context, pool string) (time.Time, error) {
	return m.last[pool], nil
}

func (m *mockStorage) Close() error { return nil }

type mockNotifier struct {
	mu        sync.Mutex
	batches   [][]domain.ClassifiedTrade
	summaries []domain.TradeSummary
}

func (m *mockNotifier) Notify(_ context.Context, trades []domain.ClassifiedTrade, s domain.TradeSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, trades)
	m.summaries = append(m.summaries, s)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

type chanFeed struct {
	ch  chan domain.RawTrade
	err error
}

func (f *chanFeed) Subscribe(_ context.Context) (<-chan domain.RawTrade, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

func newTestService(cfg Config, p *mockProvider, st ports.TradeStorage, n ports.Notifier) *Service {
	table := testTable()
	meta := table.Metadata()
	svc := NewService(cfg, p, registry.New(&meta), newTestClassifier(), st, n)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func rawAt(ts time.Time, hash string) domain.RawTrade {
	r := raw(yesSDAI, "7960000000000000000", usds, "-4000000000000000000")
	r.Timestamp = ts
	r.TxHash = hash
	return r
}

// --- tests ---

func TestRunOnce_ClassifiesSavesAndNotifies(t *testing.T) {
	p := &mockProvider{trades: map[string][]domain.RawTrade{
		"0xp1": {rawAt(fixedNow.Add(-time.Minute), "0x01_0")},
		"0xp2": {rawAt(fixedNow.Add(-2*time.Minute), "0x02_0"), rawAt(fixedNow.Add(-30*time.Second), "0x03_0")},
	}}
	st := &mockStorage{}
	n := &mockNotifier{}
	svc := newTestService(Config{Pools: []string{"0xp1", "0xp2"}, Lookback: time.Hour, Once: true}, p, st, n)

	got, summary, err := svc.RunOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 3)

	// más antiguo primero
	assert.Equal(t, "0x02", got[0].TxHash)
	assert.Equal(t, "0x01", got[1].TxHash)
	assert.Equal(t, "0x03", got[2].TxHash)

	assert.Equal(t, 3, summary.TotalTrades)
	assert.Equal(t, 3, summary.Operations.Buy)
	assert.Len(t, st.saved, 3)
	assert.Equal(t, 3, n.count())

	// el primer ciclo usa la ventana de lookback
	assert.Equal(t, fixedNow.Add(-time.Hour), p.since["0xp1"])
}

func TestRunOnce_CursorAdvances(t *testing.T) {
	ts := fixedNow.Add(-time.Minute)
	p := &mockProvider{trades: map[string][]domain.RawTrade{
		"0xp1": {rawAt(ts, "0x01_0")},
	}}
	svc := newTestService(Config{Pools: []string{"0xp1"}, Lookback: time.Hour}, p, &mockStorage{}, &mockNotifier{})

	got, _, err := svc.RunOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, _, err = svc.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, ts, p.since["0xp1"])
}

func TestRunOnce_SameSecondSwapAfterPoll(t *testing.T) {
	ts := fixedNow.Add(-time.Minute)
	p := &mockProvider{trades: map[string][]domain.RawTrade{
		"0xp1": {rawAt(ts, "0x01_0")},
	}}
	svc := newTestService(Config{Pools: []string{"0xp1"}, Lookback: time.Hour}, p, &mockStorage{}, nil)

	got, _, err := svc.RunOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)

	// indexado después del primer poll, en el mismo segundo del cursor
	p.mu.Lock()
	p.trades["0xp1"] = append(p.trades["0xp1"], rawAt(ts, "0x02_0"))
	p.mu.Unlock()

	got, _, err = svc.RunOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0x02", got[0].TxHash)
	assert.Equal(t, ts, p.since["0xp1"])

	got, _, err = svc.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunOnce_CursorFromStorage(t *testing.T) {
	last := fixedNow.Add(-10 * time.Minute)
	p := &mockProvider{}
	st := &mockStorage{last: map[string]time.Time{"0xp1": last}}
	svc := newTestService(Config{Pools: []string{"0xp1"}}, p, st, nil)

	_, _, err := svc.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, last, p.since["0xp1"])
}

func TestRunOnce_ProviderError(t *testing.T) {
	p := &mockProvider{err: errors.New("subgraph down")}
	svc := newTestService(Config{Pools: []string{"0xp1"}}, p, nil, nil)

	_, _, err := svc.RunOnce(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subgraph down")
}

func TestRun_OnceReturnsProviderError(t *testing.T) {
	p := &mockProvider{err: errors.New("boom")}
	svc := newTestService(Config{Pools: []string{"0xp1"}, Once: true}, p, nil, nil)
	assert.Error(t, svc.Run(t.Context()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	p := &mockProvider{}
	svc := newTestService(Config{Pools: []string{"0xp1"}, Interval: 10 * time.Millisecond}, p, nil, nil)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, svc.Run(ctx))
}

func TestFollow_FlushesOnFeedClose(t *testing.T) {
	feed := &chanFeed{ch: make(chan domain.RawTrade, 4)}
	feed.ch <- rawAt(fixedNow, "0x01_0")
	feed.ch <- rawAt(fixedNow, "0x02_0")
	close(feed.ch)

	st := &mockStorage{}
	n := &mockNotifier{}
	svc := newTestService(Config{}, &mockProvider{}, st, n)

	require.NoError(t, svc.Follow(t.Context(), feed))
	assert.Len(t, st.saved, 2)
	assert.Equal(t, 2, n.count())
}

func TestFollow_SubscribeError(t *testing.T) {
	svc := newTestService(Config{}, &mockProvider{}, nil, nil)
	err := svc.Follow(t.Context(), &chanFeed{err: errors.New("no ws")})
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	table := testTable()
	c := newTestClassifier()
	in := c.Classify(rawAt(fixedNow.Add(-time.Hour), "0x01_0"), table)
	in.Timestamp = fixedNow.Add(-time.Hour)
	out := c.Classify(rawAt(fixedNow.Add(-48*time.Hour), "0x02_0"), table)
	out.Timestamp = fixedNow.Add(-48 * time.Hour)

	st := &mockStorage{history: []domain.ClassifiedTrade{out, in}}
	svc := newTestService(Config{}, &mockProvider{}, st, nil)

	got, summary, err := svc.History(t.Context(), fixedNow.Add(-24*time.Hour), fixedNow)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, summary.TotalTrades)
	assert.Equal(t, in.ID, got[0].ID)
}

func TestHistory_NoStorage(t *testing.T) {
	table := testTable()
	meta := table.Metadata()
	svc := NewService(Config{}, &mockProvider{}, registry.New(&meta), newTestClassifier(), nil, nil)

	_, _, err := svc.History(t.Context(), fixedNow.Add(-time.Hour), fixedNow)
	assert.Error(t, err)
}
