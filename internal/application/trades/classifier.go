package trades

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alejandrodnm/futarchy/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	amountPlaces = 6
	pricePlaces  = 4
)

// conditionalSymbol reconoce símbolos condicionales estilo YES_/NO_.
var conditionalSymbol = regexp.MustCompile(`^(YES|NO)[_\s-]`)

// knownCompanySymbols es la pista de último recurso, solo cuando la metadata
// no dice qué pata de un pool condicional/condicional es la company.
var knownCompanySymbols = []string{"GNO", "PNK"}

var errEmptyAmount = errors.New("empty amount")

// Classifier convierte swaps crudos en trades clasificados y con precio.
// Es seguro para uso concurrente.
type Classifier struct {
	chain string
	now   func() time.Time
}

// NewClassifier crea un clasificador que arma links del explorer de chain.
func NewClassifier(chain string) *Classifier {
	return &Classifier{chain: chain, now: time.Now}
}

// WithClock reemplaza el reloj usado para trades sin timestamp.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// leg es un token del trade crudo con su rol resuelto.
type leg struct {
	address string
	symbol  string
	amount  decimal.Decimal // valor absoluto
	role    domain.TokenRole
	known   bool
}

func (l leg) is(c domain.Category) bool {
	return l.known && l.role.Category == c
}

func (l leg) conditional() bool {
	if l.known {
		return l.role.IsConditional()
	}
	return conditionalSymbol.MatchString(l.symbol)
}

// collateral es un token registrado sin lado YES/NO (GNO, sDAI, USDS...).
func (l leg) collateral() bool {
	return l.known && l.role.Side == domain.SideNone
}

// sameCategoryPair es un pool condicional/colateral dentro de una misma
// categoría, p.ej. YES_sDAI↔sDAI o YES_GNO↔GNO.
func sameCategoryPair(in, out leg) bool {
	return in.known && out.known &&
		in.role.Category == out.role.Category &&
		in.conditional() != out.conditional()
}

// Classify resuelve un trade crudo contra la tabla de tokens. Nunca falla:
// montos mal formados dan un sell neutral con montos en cero.
func (c *Classifier) Classify(raw domain.RawTrade, table *domain.TokenTable) domain.ClassifiedTrade {
	a0, err0 := parseRawAmount(raw.Amount0)
	a1, err1 := parseRawAmount(raw.Amount1)
	malformed := err0 != nil || err1 != nil
	if malformed {
		a0, a1 = decimal.Zero, decimal.Zero
	}

	in := resolveLeg(table, raw.Token1, raw.Symbol1, a1)
	out := resolveLeg(table, raw.Token0, raw.Symbol0, a0)
	if a0.IsPositive() {
		in = resolveLeg(table, raw.Token0, raw.Symbol0, a0)
		out = resolveLeg(table, raw.Token1, raw.Symbol1, a1)
	}

	trade := domain.ClassifiedTrade{
		ID: tradeID(raw),
		TokenIn: domain.TradeLeg{
			Address: in.address,
			Symbol:  in.symbol,
			Amount:  in.amount.Round(amountPlaces),
		},
		TokenOut: domain.TradeLeg{
			Address: out.address,
			Symbol:  out.symbol,
			Amount:  out.amount.Round(amountPlaces),
		},
		OutcomeSide:     domain.OutcomeNeutral,
		OperationSide:   domain.OperationSell,
		Price:           decimal.Zero,
		Timestamp:       raw.Timestamp,
		PoolAddress:     domain.NormalizeAddress(raw.PoolAddress),
		BlockNumber:     raw.BlockNumber,
		UserAddress:     domain.NormalizeAddress(raw.UserAddress),
		TxHash:          domain.StripLogIndex(raw.TxHash),
		TransactionLink: domain.TransactionLink(raw.TxHash, c.chain),
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = c.now().UTC()
	}
	if malformed {
		return trade
	}

	trade.OperationSide = operationSide(in, out)
	trade.OutcomeSide = outcomeSide(in, out)
	trade.Price = price(in, out).Round(pricePlaces)
	return trade
}

// ClassifyAll clasifica un lote contra un único snapshot de la tabla.
func (c *Classifier) ClassifyAll(raws []domain.RawTrade, table *domain.TokenTable) []domain.ClassifiedTrade {
	out := make([]domain.ClassifiedTrade, 0, len(raws))
	for _, r := range raws {
		out = append(out, c.Classify(r, table))
	}
	return out
}

func resolveLeg(table *domain.TokenTable, address, symbolHint string, amount decimal.Decimal) leg {
	l := leg{
		address: domain.NormalizeAddress(address),
		symbol:  strings.TrimSpace(symbolHint),
		amount:  amount.Abs(),
	}
	if role, ok := table.Classify(address); ok {
		l.role = role
		l.known = true
		if role.Symbol != "" {
			l.symbol = role.Symbol
		}
	}
	return l
}

// operationSide aplica el primer nivel que matchee: par de la misma categoría
// (recibir el condicional es buy), company, base, currency y por último el
// patrón de símbolo.
func operationSide(in, out leg) domain.OperationSide {
	switch {
	case sameCategoryPair(in, out):
		return buyIf(in.conditional())
	case in.is(domain.CategoryCompany) || out.is(domain.CategoryCompany):
		return buyIf(in.is(domain.CategoryCompany))
	case in.is(domain.CategoryBase) || out.is(domain.CategoryBase):
		return buyIf(!in.is(domain.CategoryBase))
	case in.is(domain.CategoryCurrency) || out.is(domain.CategoryCurrency):
		return buyIf(!in.is(domain.CategoryCurrency))
	default:
		return buyIf(conditionalSymbol.MatchString(in.symbol))
	}
}

func buyIf(cond bool) domain.OperationSide {
	if cond {
		return domain.OperationBuy
	}
	return domain.OperationSell
}

// outcomeSide mira primero el símbolo de tokenIn y después el de tokenOut.
func outcomeSide(in, out leg) domain.OutcomeSide {
	for _, sym := range []string{in.symbol, out.symbol} {
		m := conditionalSymbol.FindStringSubmatch(sym)
		if m == nil {
			continue
		}
		if m[1] == "YES" {
			return domain.OutcomeYes
		}
		return domain.OutcomeNo
	}
	return domain.OutcomeNeutral
}

// price orienta el ratio para que sea comparable entre tipos de pool:
// company/currency cotiza currency por company, condicional/colateral cotiza
// colateral por condicional, y el resto amountOut por amountIn.
func price(in, out leg) decimal.Decimal {
	inCond, outCond := in.conditional(), out.conditional()
	switch {
	case inCond && outCond:
		if company, currency, ok := splitCompanyCurrency(in, out); ok {
			return ratio(currency.amount, company.amount)
		}
	case inCond && out.collateral():
		return ratio(out.amount, in.amount)
	case outCond && in.collateral():
		return ratio(in.amount, out.amount)
	}
	return ratio(out.amount, in.amount)
}

// splitCompanyCurrency identifica la pata company de un par condicional:
// primero por metadata, la pista de símbolo solo si la metadata no alcanza.
func splitCompanyCurrency(a, b leg) (company, currency leg, ok bool) {
	aCo, bCo := a.is(domain.CategoryCompany), b.is(domain.CategoryCompany)
	switch {
	case aCo && !bCo:
		return a, b, true
	case bCo && !aCo:
		return b, a, true
	case aCo && bCo:
		return leg{}, leg{}, false
	}

	aHint, bHint := looksLikeCompany(a.symbol), looksLikeCompany(b.symbol)
	switch {
	case aHint && !bHint:
		return a, b, true
	case bHint && !aHint:
		return b, a, true
	}
	return leg{}, leg{}, false
}

func looksLikeCompany(symbol string) bool {
	upper := strings.ToUpper(symbol)
	for _, s := range knownCompanySymbols {
		if strings.Contains(upper, s) {
			return true
		}
	}
	return false
}

func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

// parseRawAmount parsea un entero crudo con signo y 18 decimales implícitos.
func parseRawAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errEmptyAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.Shift(-domain.TokenDecimals), nil
}

func tradeID(raw domain.RawTrade) string {
	pool := domain.NormalizeAddress(raw.PoolAddress)
	if raw.TxHash != "" {
		return strings.ToLower(strings.TrimSpace(raw.TxHash)) + "@" + pool
	}
	return fmt.Sprintf("%d:%s:%s:%s", raw.BlockNumber, pool, raw.Amount0, raw.Amount1)
}
