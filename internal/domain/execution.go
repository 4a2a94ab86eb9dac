package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StepKind nombra los dos pasos fijos de un plan de ejecución.
type StepKind string

const (
	StepCollateral StepKind = "COLLATERAL"
	StepSwap       StepKind = "SWAP"
)

// Índices de paso y subpaso. Siempre son dos pasos de dos subpasos.
const (
	StepIndexCollateral = 0
	StepIndexSwap       = 1

	SubstepApproval  = 0
	SubstepExecution = 1
)

// Substep es una unidad de progreso con nombre dentro de un paso.
type Substep struct {
	Name        string
	Description string
}

// PlanStep es uno de los dos pasos del plan.
type PlanStep struct {
	Kind        StepKind
	Required    bool
	Description string
	Substeps    [2]Substep
}

// ExecutionPlan es el plan ordenado COLLATERAL → SWAP de un swap.
// Cantidad y orden de pasos son fijos; solo varía Required.
type ExecutionPlan struct {
	Strategy string
	Analysis TokenAnalysis
	Steps    [2]PlanStep
}

// Phase es la posición en la máquina de estados de un swap en curso.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseCollateral   Phase = "phase1"
	PhaseSwap         Phase = "phase2"
	PhaseCompleted    Phase = "completed"
	PhaseManualAction Phase = "manual_action"
)

// Cursor apunta a un par paso/subpaso.
type Cursor struct {
	Step    int
	Substep int
}

// StepError registra dónde se detuvo una ejecución y por qué.
type StepError struct {
	Step    int
	Substep int
	Message string
}

func (e *StepError) Error() string { return e.Message }

// ExecutionState es el progreso mutable de un intento de swap.
// Pertenece a un único orquestador y no se comparte entre swaps.
type ExecutionState struct {
	ID            string
	Phase         Phase
	Current       Cursor
	Completed     [2][2]bool
	Err           *StepError
	Approvals     map[string]bool
	ManualActions []Action
	StartedAt     time.Time
	FinishedAt    time.Time
}

// StepDone indica si los dos subpasos de un paso están completos.
func (s ExecutionState) StepDone(step int) bool {
	return s.Completed[step][SubstepApproval] && s.Completed[step][SubstepExecution]
}

// Clone devuelve una copia profunda que se puede pasar a otras goroutines.
func (s ExecutionState) Clone() ExecutionState {
	c := s
	if s.Approvals != nil {
		c.Approvals = make(map[string]bool, len(s.Approvals))
		for k, v := range s.Approvals {
			c.Approvals[k] = v
		}
	}
	if s.Err != nil {
		e := *s.Err
		c.Err = &e
	}
	c.ManualActions = append([]Action(nil), s.ManualActions...)
	return c
}

// SwapRequest es el swap pedido al ejecutor de swaps.
type SwapRequest struct {
	Strategy string
	TokenIn  string
	TokenOut string
	Amount   decimal.Decimal
}

// SwapResult lo devuelve el ejecutor tras un swap confirmado.
type SwapResult struct {
	StrategyName string
	TxHash       string
	ExplorerURL  string
}

// StrategyInfo describe una estrategia de swap.
type StrategyInfo struct {
	Name        string
	DisplayName string
	GasRequired uint64
}

// SplitRequest pide al ejecutor de colateral un split (o merge).
type SplitRequest struct {
	Category     Category
	Amount       decimal.Decimal
	MarketID     string
	TokenAddress string // token colateral
}

// TxResult es el resultado de una escritura on-chain confirmada.
type TxResult struct {
	TxHash      string
	ExplorerURL string
	GasUsed     uint64
}

// ExecutionStatus es el estado persistido de un intento de swap.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionManual    ExecutionStatus = "MANUAL_ACTION"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// ExecutionRecord es la entrada del journal de un intento de swap.
type ExecutionRecord struct {
	ID         string
	TokenIn    string
	TokenOut   string
	Amount     decimal.Decimal
	Strategy   string
	AutoSplit  bool
	Status     ExecutionStatus
	FailedStep int // -1 si no hubo fallo
	FailedSub  int
	Error      string
	TxHash     string
	StartedAt  time.Time
	FinishedAt *time.Time
}
