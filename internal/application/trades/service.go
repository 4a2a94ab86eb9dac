package trades

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/futarchy/internal/application/registry"
	"github.com/alejandrodnm/futarchy/internal/domain"
	"github.com/alejandrodnm/futarchy/internal/ports"
)

const (
	defaultInterval   = 30 * time.Second
	defaultLookback   = 24 * time.Hour
	maxParallelFetch  = 4
	followBatchWindow = 2 * time.Second
)

// Config controla el loop de lectura de trades.
type Config struct {
	Pools    []string
	Interval time.Duration
	Lookback time.Duration // ventana del primer fetch cuando no hay histórico
	Workers  int           // goroutines de clasificación (0 = NumCPU)
	Once     bool
}

// Service es el read path: trae swaps crudos, los clasifica, persiste y notifica.
type Service struct {
	cfg        Config
	provider   ports.TradeProvider
	registry   *registry.Registry
	classifier *Classifier
	storage    ports.TradeStorage
	notifier   ports.Notifier
	lastSeen   map[string]time.Time
	atCursor   map[string]map[string]struct{} // swaps ya vistos en el segundo de lastSeen
	now        func() time.Time
}

// NewService arma el read path. storage y notifier pueden ser nil.
func NewService(
	cfg Config,
	provider ports.TradeProvider,
	reg *registry.Registry,
	classifier *Classifier,
	storage ports.TradeStorage,
	notifier ports.Notifier,
) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	return &Service{
		cfg:        cfg,
		provider:   provider,
		registry:   reg,
		classifier: classifier,
		storage:    storage,
		notifier:   notifier,
		lastSeen:   make(map[string]time.Time),
		atCursor:   make(map[string]map[string]struct{}),
		now:        time.Now,
	}
}

// Run consulta los pools configurados hasta que se cancele ctx. Con cfg.Once
// corre un solo ciclo.
func (s *Service) Run(ctx context.Context) error {
	slog.Info("trades: service starting",
		"pools", len(s.cfg.Pools),
		"interval", s.cfg.Interval,
		"once", s.cfg.Once,
	)

	if _, _, err := s.RunOnce(ctx); err != nil {
		slog.Error("trades: cycle failed", "err", err)
		if s.cfg.Once {
			return err
		}
	}
	if s.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("trades: service stopped")
			return nil
		case <-ticker.C:
			if _, _, err := s.RunOnce(ctx); err != nil {
				slog.Error("trades: cycle failed", "err", err)
			}
		}
	}
}

// RunOnce trae los swaps nuevos de cada pool, los clasifica contra un único
// snapshot del registry y los reporta.
func (s *Service) RunOnce(ctx context.Context) ([]domain.ClassifiedTrade, domain.TradeSummary, error) {
	start := s.now()

	raws, err := s.fetchAll(ctx)
	if err != nil {
		return nil, domain.TradeSummary{}, fmt.Errorf("trades.RunOnce: %w", err)
	}

	classified := s.process(ctx, raws)
	summary := Summarize(classified)

	slog.Info("trades: cycle complete",
		"raw", len(raws),
		"classified", len(classified),
		"yes", summary.Outcomes.Yes,
		"no", summary.Outcomes.No,
		"buy", summary.Operations.Buy,
		"sell", summary.Operations.Sell,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return classified, summary, nil
}

// Follow clasifica swaps de un feed en tiempo real, volcando lotes chicos a
// storage y notifier, hasta que se cancele ctx o se cierre el feed.
func (s *Service) Follow(ctx context.Context, feed ports.TradeFeed) error {
	ch, err := feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("trades.Follow: subscribe: %w", err)
	}

	ticker := time.NewTicker(followBatchWindow)
	defer ticker.Stop()

	var pending []domain.RawTrade
	flush := func() {
		if len(pending) == 0 {
			return
		}
		s.process(ctx, pending)
		pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case raw, ok := <-ch:
			if !ok {
				flush()
				slog.Info("trades: feed closed")
				return nil
			}
			pending = append(pending, raw)
		case <-ticker.C:
			flush()
		}
	}
}

// History resume los trades guardados en [from, to].
func (s *Service) History(ctx context.Context, from, to time.Time) ([]domain.ClassifiedTrade, domain.TradeSummary, error) {
	if s.storage == nil {
		return nil, Summarize(nil), fmt.Errorf("trades.History: no storage configured")
	}
	stored, err := s.storage.GetTrades(ctx, from, to)
	if err != nil {
		return nil, domain.TradeSummary{}, fmt.Errorf("trades.History: %w", err)
	}
	return stored, Summarize(stored), nil
}

// process clasifica, persiste y notifica un lote.
func (s *Service) process(ctx context.Context, raws []domain.RawTrade) []domain.ClassifiedTrade {
	table := s.registry.Snapshot()
	classified := classifyConcurrent(ctx, s.classifier, table, raws, s.cfg.Workers)
	sort.SliceStable(classified, func(i, j int) bool {
		return classified[i].Timestamp.Before(classified[j].Timestamp)
	})

	if s.storage != nil && len(classified) > 0 {
		inserted, err := s.storage.SaveTrades(ctx, classified)
		if err != nil {
			slog.Warn("trades: storage error", "err", err)
		} else {
			slog.Debug("trades: saved", "new", inserted, "total", len(classified))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, classified, Summarize(classified)); err != nil {
			slog.Warn("trades: notifier error", "err", err)
		}
	}
	return classified
}

// fetchAll trae en paralelo los swaps nuevos de cada pool y avanza el
// cursor de cada pool.
func (s *Service) fetchAll(ctx context.Context) ([]domain.RawTrade, error) {
	pools := s.cfg.Pools
	results := make([][]domain.RawTrade, len(pools))
	cursors := make([]time.Time, len(pools))
	for i, pool := range pools {
		cursors[i] = s.since(ctx, pool)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetch)
	for i, pool := range pools {
		g.Go(func() error {
			raws, err := s.provider.FetchTrades(gctx, pool, cursors[i])
			if err != nil {
				return fmt.Errorf("pool %s: %w", pool, err)
			}
			results[i] = raws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.RawTrade
	for i, pool := range pools {
		all = append(all, s.advance(pool, results[i])...)
	}
	return all, nil
}

// advance descarta los swaps ya vistos en el segundo del cursor (el provider
// pide timestamp >= since) y mueve el cursor del pool.
func (s *Service) advance(pool string, raws []domain.RawTrade) []domain.RawTrade {
	prev, prevSeen := s.lastSeen[pool], s.atCursor[pool]

	fresh := make([]domain.RawTrade, 0, len(raws))
	cursor := prev
	for _, r := range raws {
		if _, dup := prevSeen[tradeKey(r)]; dup && r.Timestamp.Equal(prev) {
			continue
		}
		fresh = append(fresh, r)
		if r.Timestamp.After(cursor) {
			cursor = r.Timestamp
		}
	}

	seen := make(map[string]struct{})
	if cursor.Equal(prev) {
		for k := range prevSeen {
			seen[k] = struct{}{}
		}
	}
	for _, r := range fresh {
		if r.Timestamp.Equal(cursor) {
			seen[tradeKey(r)] = struct{}{}
		}
	}
	s.lastSeen[pool] = cursor
	s.atCursor[pool] = seen
	return fresh
}

func tradeKey(r domain.RawTrade) string {
	return strings.ToLower(r.TxHash)
}

func (s *Service) since(ctx context.Context, pool string) time.Time {
	if t, ok := s.lastSeen[pool]; ok && !t.IsZero() {
		return t
	}
	if s.storage != nil {
		if t, err := s.storage.LastTradeTime(ctx, pool); err == nil && !t.IsZero() {
			return t
		}
	}
	return s.now().Add(-s.cfg.Lookback)
}
