package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balances es un snapshot inmutable de balances indexado por dirección en minúsculas.
type Balances struct {
	values map[string]decimal.Decimal
}

// NewBalances copia el map recibido en un snapshot.
func NewBalances(values map[string]decimal.Decimal) Balances {
	b := Balances{values: make(map[string]decimal.Decimal, len(values))}
	for addr, v := range values {
		b.values[NormalizeAddress(addr)] = v
	}
	return b
}

// Get devuelve el balance de un token, cero si no está.
func (b Balances) Get(address string) decimal.Decimal {
	if v, ok := b.values[NormalizeAddress(address)]; ok {
		return v
	}
	return decimal.Zero
}

// Len devuelve cuántos tokens hay en el snapshot.
func (b Balances) Len() int { return len(b.values) }

// ActionKind distingue las variantes de Action.
type ActionKind string

const (
	ActionSplitCollateral   ActionKind = "split_collateral"
	ActionInsufficientFunds ActionKind = "insufficient_funds"
)

// Action es un remedio sugerido por el análisis de suficiencia.
//
// SplitCollateral usa Category y Amount. InsufficientFunds usa Amount como
// faltante y Symbol como el token que le falta al usuario.
type Action struct {
	Kind       ActionKind
	Category   Category
	Amount     decimal.Decimal
	Symbol     string
	Executable bool
}

// Describe devuelve una descripción corta y legible de la acción.
func (a Action) Describe() string {
	switch a.Kind {
	case ActionSplitCollateral:
		return fmt.Sprintf("split %s %s collateral into YES/NO", a.Amount.String(), a.Category)
	case ActionInsufficientFunds:
		if a.Symbol != "" {
			return fmt.Sprintf("insufficient funds: missing %s %s", a.Amount.String(), a.Symbol)
		}
		return fmt.Sprintf("insufficient funds: missing %s", a.Amount.String())
	default:
		return string(a.Kind)
	}
}

// TokenAnalysis es el resultado de verificar si el input de un swap está cubierto.
// Hay que mirar Err antes de confiar en Sufficient.
type TokenAnalysis struct {
	TokenIn             string
	Required            decimal.Decimal
	Sufficient          bool
	CurrentBalance      decimal.Decimal
	Shortage            decimal.Decimal
	CanAutoSplit        bool
	CollateralAvailable decimal.Decimal
	CollateralSymbol    string
	Actions             []Action
	Err                 error
}

// ExecutableActions devuelve las acciones ejecutables sin fondos extra del usuario.
func (a TokenAnalysis) ExecutableActions() []Action {
	var out []Action
	for _, act := range a.Actions {
		if act.Executable {
			out = append(out, act)
		}
	}
	return out
}
