package onchain

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

const maxParallelReads = 8

// MetadataReader implements ports.MetadataProvider. It starts from the
// configured token table and fills missing symbols and names from the
// ERC20 contracts.
type MetadataReader struct {
	client *Client
	base   domain.MarketMetadata
}

// NewMetadataReader creates a reader for the configured market.
func NewMetadataReader(client *Client, base domain.MarketMetadata) *MetadataReader {
	return &MetadataReader{client: client, base: base}
}

// FetchMetadata returns the market metadata with every token's symbol and
// name resolved. Configured values are kept.
func (m *MetadataReader) FetchMetadata(ctx context.Context) (domain.MarketMetadata, error) {
	meta := m.base
	if meta.Chain == "" {
		meta.Chain = m.client.Chain()
	}

	var infos []*domain.TokenInfo
	for _, g := range []*domain.TokenGroup{&meta.Company, &meta.Currency, &meta.Base} {
		for _, t := range []*domain.TokenInfo{&g.Base, &g.Yes, &g.No} {
			if t.Address != "" && (t.Symbol == "" || t.Name == "") {
				infos = append(infos, t)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for _, info := range infos {
		g.Go(func() error {
			addr, err := hexAddress(info.Address)
			if err != nil {
				return err
			}
			if info.Symbol == "" {
				sym, err := m.client.tokenString(gctx, addr, "symbol")
				if err != nil {
					return fmt.Errorf("symbol of %s: %w", info.Address, err)
				}
				info.Symbol = sym
			}
			if info.Name == "" {
				name, err := m.client.tokenString(gctx, addr, "name")
				if err != nil {
					// name() es opcional en ERC20
					slog.Debug("onchain: token name unavailable", "token", info.Address, "err", err)
					return nil
				}
				info.Name = name
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.MarketMetadata{}, fmt.Errorf("onchain.FetchMetadata: %w", err)
	}

	slog.Debug("onchain: metadata resolved", "market", meta.MarketID, "resolved", len(infos))
	return meta, nil
}
