package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alejandrodnm/futarchy/internal/domain"
	"github.com/alejandrodnm/futarchy/internal/ports"
)

// Registry guarda la tabla de tokens vigente. Los lectores toman un Snapshot y lo
// usan para todo el lote; Rebuild pone una tabla nueva sin tocar la anterior.
type Registry struct {
	table atomic.Pointer[domain.TokenTable]
}

// New crea un registry. Vacío, toda dirección es desconocida.
func New(meta *domain.MarketMetadata) *Registry {
	r := &Registry{}
	if meta != nil {
		r.Rebuild(*meta)
	} else {
		r.table.Store(domain.NewTokenTable(domain.MarketMetadata{}))
	}
	return r
}

// Rebuild reemplaza la tabla entera a partir de metadata nueva.
func (r *Registry) Rebuild(meta domain.MarketMetadata) {
	t := domain.NewTokenTable(meta)
	r.table.Store(t)
	slog.Debug("registry: rebuilt", "market", meta.MarketID, "tokens", t.Len())
}

// Snapshot devuelve la tabla actual. Sigue siendo válida tras rebuilds posteriores.
func (r *Registry) Snapshot() *domain.TokenTable {
	return r.table.Load()
}

// Classify busca una dirección en la tabla actual.
func (r *Registry) Classify(address string) (domain.TokenRole, bool) {
	return r.Snapshot().Classify(address)
}

// Load pide la metadata al provider y reconstruye la tabla.
// Si falla se conserva la tabla anterior.
func (r *Registry) Load(ctx context.Context, provider ports.MetadataProvider) error {
	meta, err := provider.FetchMetadata(ctx)
	if err != nil {
		return fmt.Errorf("registry.Load: %w", err)
	}
	r.Rebuild(meta)
	slog.Info("registry: loaded market metadata",
		"market", meta.MarketID,
		"company", meta.Company.Base.Symbol,
		"currency", meta.Currency.Base.Symbol,
	)
	return nil
}
