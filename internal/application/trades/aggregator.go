package trades

import (
	"sort"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

// Summarize agrega los trades clasificados en conteos, rango de fechas y
// tokens y pools distintos. Sin trades devuelve un resumen en cero.
func Summarize(trades []domain.ClassifiedTrade) domain.TradeSummary {
	s := domain.TradeSummary{
		Tokens: []string{},
		Pools:  []string{},
	}
	symbols := make(map[string]struct{})
	pools := make(map[string]struct{})

	for _, t := range trades {
		s.TotalTrades++

		switch t.OutcomeSide {
		case domain.OutcomeYes:
			s.Outcomes.Yes++
		case domain.OutcomeNo:
			s.Outcomes.No++
		default:
			s.Outcomes.Neutral++
		}

		if t.OperationSide == domain.OperationBuy {
			s.Operations.Buy++
		} else {
			s.Operations.Sell++
		}

		if !t.Timestamp.IsZero() {
			if s.From.IsZero() || t.Timestamp.Before(s.From) {
				s.From = t.Timestamp
			}
			if s.To.IsZero() || t.Timestamp.After(s.To) {
				s.To = t.Timestamp
			}
		}

		for _, sym := range []string{t.TokenIn.Symbol, t.TokenOut.Symbol} {
			if sym != "" {
				symbols[sym] = struct{}{}
			}
		}
		if t.PoolAddress != "" {
			pools[t.PoolAddress] = struct{}{}
		}
	}

	s.Tokens = sortedKeys(symbols)
	s.Pools = sortedKeys(pools)
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
