package domain

import "strings"

// TokenDecimals es la precisión fija de todos los tokens de un mercado futarchy.
const TokenDecimals = 18

// Category es la familia de colateral a la que pertenece un token.
type Category string

const (
	CategoryCompany  Category = "company"
	CategoryCurrency Category = "currency"
	CategoryBase     Category = "base"
)

// Side es el lado de outcome de un token. SideNone marca el colateral.
type Side string

const (
	SideYes  Side = "yes"
	SideNo   Side = "no"
	SideNone Side = "none"
)

// TokenRole es el rol semántico de un token registrado.
type TokenRole struct {
	Address  string // minúsculas
	Category Category
	Side     Side
	Symbol   string
	Name     string
	Decimals int32
}

// IsConditional devuelve true para tokens YES/NO.
func (r TokenRole) IsConditional() bool {
	return r.Side == SideYes || r.Side == SideNo
}

// TokenInfo es la terna dirección/símbolo/nombre que trae la metadata del mercado.
type TokenInfo struct {
	Address string `yaml:"address"`
	Symbol  string `yaml:"symbol"`
	Name    string `yaml:"name"`
}

// TokenGroup agrupa el colateral y sus condicionales YES/NO.
type TokenGroup struct {
	Base TokenInfo `yaml:"base"`
	Yes  TokenInfo `yaml:"yes"`
	No   TokenInfo `yaml:"no"`
}

// MarketMetadata es la tabla de tokens de un mercado (proposal).
type MarketMetadata struct {
	MarketID string     `yaml:"market_id"` // dirección del proposal, usada en split/merge
	Chain    string     `yaml:"chain"`
	Company  TokenGroup `yaml:"company"`
	Currency TokenGroup `yaml:"currency"`
	Base     TokenGroup `yaml:"base"`
}

// Group devuelve el grupo de tokens de una categoría.
func (m MarketMetadata) Group(c Category) TokenGroup {
	switch c {
	case CategoryCompany:
		return m.Company
	case CategoryCurrency:
		return m.Currency
	default:
		return m.Base
	}
}

// Addresses devuelve las direcciones no vacías, en orden de registro.
func (m MarketMetadata) Addresses() []string {
	var out []string
	for _, c := range []Category{CategoryCompany, CategoryCurrency, CategoryBase} {
		g := m.Group(c)
		for _, t := range []TokenInfo{g.Base, g.Yes, g.No} {
			if t.Address != "" {
				out = append(out, t.Address)
			}
		}
	}
	return out
}

// TokenTable es un snapshot inmutable dirección → rol armado desde la metadata.
// Si cambia la metadata se arma una tabla nueva; nunca se muta una existente.
type TokenTable struct {
	roles map[string]TokenRole
	meta  MarketMetadata
}

// NewTokenTable registra base, yes y no de cada categoría.
// Las direcciones vacías se saltean. Si una dirección aparece dos veces gana
// el primer registro: cada dirección tiene como mucho un rol.
func NewTokenTable(meta MarketMetadata) *TokenTable {
	t := &TokenTable{roles: make(map[string]TokenRole, 9), meta: meta}
	for _, c := range []Category{CategoryCompany, CategoryCurrency, CategoryBase} {
		g := meta.Group(c)
		t.register(g.Base, c, SideNone)
		t.register(g.Yes, c, SideYes)
		t.register(g.No, c, SideNo)
	}
	return t
}

func (t *TokenTable) register(info TokenInfo, c Category, s Side) {
	addr := NormalizeAddress(info.Address)
	if addr == "" {
		return
	}
	if _, exists := t.roles[addr]; exists {
		return
	}
	t.roles[addr] = TokenRole{
		Address:  addr,
		Category: c,
		Side:     s,
		Symbol:   info.Symbol,
		Name:     info.Name,
		Decimals: TokenDecimals,
	}
}

// Classify busca una dirección sin distinguir mayúsculas.
func (t *TokenTable) Classify(address string) (TokenRole, bool) {
	if t == nil {
		return TokenRole{}, false
	}
	r, ok := t.roles[NormalizeAddress(address)]
	return r, ok
}

// Collateral devuelve el token base (colateral) de una categoría.
func (t *TokenTable) Collateral(c Category) (TokenRole, bool) {
	if t == nil {
		return TokenRole{}, false
	}
	return t.Classify(t.meta.Group(c).Base.Address)
}

// Metadata devuelve la metadata con la que se armó la tabla.
func (t *TokenTable) Metadata() MarketMetadata {
	if t == nil {
		return MarketMetadata{}
	}
	return t.meta
}

// Len devuelve la cantidad de direcciones registradas.
func (t *TokenTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.roles)
}

// NormalizeAddress pasa a minúsculas y recorta una dirección para usarla como clave.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
