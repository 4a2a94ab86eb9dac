package ports

import (
	"context"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

// Notifier presenta los trades clasificados y su resumen al usuario.
type Notifier interface {
	Notify(ctx context.Context, trades []domain.ClassifiedTrade, summary domain.TradeSummary) error
}
