package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

// TradeProvider obtiene swaps históricos de un pool.
type TradeProvider interface {
	// FetchTrades devuelve los swaps del pool con timestamp >= since,
	// ordenados del más antiguo al más reciente. Puede repetir swaps del
	// segundo exacto de since.
	FetchTrades(ctx context.Context, pool string, since time.Time) ([]domain.RawTrade, error)
}

// TradeFeed streams raw swaps as they are observed.
type TradeFeed interface {
	// Subscribe returns a channel closed when ctx is cancelled or the feed stops.
	Subscribe(ctx context.Context) (<-chan domain.RawTrade, error)
}

// MetadataProvider supplies the market token table. It may complete after the
// registry consumer is already running.
type MetadataProvider interface {
	FetchMetadata(ctx context.Context) (domain.MarketMetadata, error)
}
