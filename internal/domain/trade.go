package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutcomeSide es el outcome del mercado al que pertenece un trade.
type OutcomeSide string

const (
	OutcomeYes     OutcomeSide = "yes"
	OutcomeNo      OutcomeSide = "no"
	OutcomeNeutral OutcomeSide = "neutral"
)

// OperationSide indica si el trader compró o vendió la posición condicional.
type OperationSide string

const (
	OperationBuy  OperationSide = "buy"
	OperationSell OperationSide = "sell"
)

// RawTrade es un swap de dos tokens tal como lo emite un pool.
// Los montos son enteros con signo y 18 decimales implícitos: positivo es
// que el trader recibió ese token, negativo que lo entregó.
type RawTrade struct {
	Token0      string
	Token1      string
	Amount0     string
	Amount1     string
	Symbol0     string // opcional, algunas fuentes lo traen
	Symbol1     string
	Timestamp   time.Time // zero si la fuente no lo trae
	PoolAddress string
	BlockNumber uint64
	TxHash      string // puede traer sufijo "_<logIndex>"
	UserAddress string
}

// TradeLeg es una pata de un trade clasificado.
type TradeLeg struct {
	Address string
	Symbol  string
	Amount  decimal.Decimal // 6 decimales
}

// ClassifiedTrade es un trade crudo resuelto en patas recibida/entregada,
// dirección, outcome y un precio comparable.
// TokenIn es lo que recibió el trader, TokenOut lo que entregó.
type ClassifiedTrade struct {
	ID              string // tx hash (con sufijo de log) + pool
	TokenIn         TradeLeg
	TokenOut        TradeLeg
	OutcomeSide     OutcomeSide
	OperationSide   OperationSide
	Price           decimal.Decimal // 4 decimales
	Timestamp       time.Time
	PoolAddress     string
	BlockNumber     uint64
	UserAddress     string
	TxHash          string
	TransactionLink string
}

// OutcomeCounts es el histograma de outcome sides.
type OutcomeCounts struct {
	Yes     int
	No      int
	Neutral int
}

// OperationCounts es el histograma de operation sides.
type OperationCounts struct {
	Buy  int
	Sell int
}

// TradeSummary agrega una lista de trades clasificados.
type TradeSummary struct {
	TotalTrades int
	Outcomes    OutcomeCounts
	Operations  OperationCounts
	From        time.Time // primer trade, zero si no hay
	To          time.Time // último trade, zero si no hay
	Tokens      []string  // símbolos distintos, ordenados
	Pools       []string  // pools distintos, ordenados
}
