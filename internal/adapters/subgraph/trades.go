package subgraph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

const (
	swapsPerPage  = 1000
	swapsMaxPages = 5
)

const swapsQuery = `query Swaps($pool: String!, $since: BigInt!, $first: Int!, $skip: Int!) {
  swaps(
    where: {pool: $pool, timestamp_gte: $since}
    orderBy: timestamp
    orderDirection: asc
    first: $first
    skip: $skip
  ) {
    id
    timestamp
    origin
    amount0
    amount1
    logIndex
    pool { id }
    token0 { id symbol }
    token1 { id symbol }
    transaction { id blockNumber }
  }
}`

type rawToken struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

type rawSwap struct {
	ID          string   `json:"id"`
	Timestamp   string   `json:"timestamp"`
	Origin      string   `json:"origin"`
	Amount0     string   `json:"amount0"`
	Amount1     string   `json:"amount1"`
	LogIndex    string   `json:"logIndex"`
	Pool        rawToken `json:"pool"`
	Token0      rawToken `json:"token0"`
	Token1      rawToken `json:"token1"`
	Transaction struct {
		ID          string `json:"id"`
		BlockNumber string `json:"blockNumber"`
	} `json:"transaction"`
}

type swapsData struct {
	Swaps []rawSwap `json:"swaps"`
}

// FetchTrades implementa ports.TradeProvider. Pagina los swaps del pool con
// timestamp >= since, del más antiguo al más reciente. Los swaps del mismo
// segundo que since vuelven a llegar; el dedup por ID los absorbe.
func (c *Client) FetchTrades(ctx context.Context, pool string, since time.Time) ([]domain.RawTrade, error) {
	var all []domain.RawTrade

	for page := 0; page < swapsMaxPages; page++ {
		vars := map[string]any{
			"pool":  strings.ToLower(pool),
			"since": strconv.FormatInt(since.Unix(), 10),
			"first": swapsPerPage,
			"skip":  page * swapsPerPage,
		}

		var data swapsData
		if err := c.query(ctx, swapsQuery, vars, &data); err != nil {
			return nil, fmt.Errorf("subgraph.FetchTrades: %w", err)
		}

		for _, s := range data.Swaps {
			all = append(all, toRawTrade(s))
		}

		slog.Debug("subgraph: fetched swaps page",
			"pool", pool,
			"page", page,
			"count", len(data.Swaps),
			"total", len(all),
		)

		if len(data.Swaps) < swapsPerPage {
			break
		}
	}

	return all, nil
}

// toRawTrade maps a subgraph swap to a RawTrade. The subgraph reports amounts
// already scaled to token units; RawTrade carries them as 18-decimal integers.
func toRawTrade(s rawSwap) domain.RawTrade {
	txHash := s.Transaction.ID
	if txHash == "" {
		txHash, _, _ = strings.Cut(s.ID, "#")
	}
	if s.LogIndex != "" {
		txHash += "_" + s.LogIndex
	}

	return domain.RawTrade{
		Token0:      s.Token0.ID,
		Token1:      s.Token1.ID,
		Amount0:     toRawAmount(s.Amount0),
		Amount1:     toRawAmount(s.Amount1),
		Symbol0:     s.Token0.Symbol,
		Symbol1:     s.Token1.Symbol,
		Timestamp:   parseUnix(s.Timestamp),
		PoolAddress: s.Pool.ID,
		BlockNumber: parseUint(s.Transaction.BlockNumber),
		TxHash:      txHash,
		UserAddress: s.Origin,
	}
}

// toRawAmount devuelve "" si el valor no es numérico; el clasificador lo trata como malformado.
func toRawAmount(scaled string) string {
	d, err := decimal.NewFromString(scaled)
	if err != nil {
		return ""
	}
	return d.Shift(domain.TokenDecimals).Truncate(0).String()
}

func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func parseUint(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}
