package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

// TradeStorage persiste los trades clasificados.
type TradeStorage interface {
	// SaveTrades hace upsert por ID; devuelve cuántos trades eran nuevos.
	SaveTrades(ctx context.Context, trades []domain.ClassifiedTrade) (int, error)

	// GetTrades devuelve los trades con timestamp en [from, to], más antiguos primero.
	GetTrades(ctx context.Context, from, to time.Time) ([]domain.ClassifiedTrade, error)

	// LastTradeTime devuelve el timestamp del trade más reciente del pool (zero si no hay).
	LastTradeTime(ctx context.Context, pool string) (time.Time, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// ExecutionStorage journals swap attempts.
type ExecutionStorage interface {
	SaveExecution(ctx context.Context, rec domain.ExecutionRecord) error
	GetExecutions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error)
}
