package swap

import "github.com/alejandrodnm/futarchy/internal/domain"

// Event es una notificación de progreso del Orchestrator.
type Event interface {
	ExecutionID() string
}

type base struct{ ID string }

func (b base) ExecutionID() string { return b.ID }

// PhaseStarted se emite al entrar en una fase.
type PhaseStarted struct {
	base
	Phase domain.Phase
	Step  int
}

// SubstepCompleted se emite tras cada subpaso confirmado.
type SubstepCompleted struct {
	base
	Step    int
	Substep int
	Name    string
	TxHash  string
}

// PhaseError se emite cuando falla un subpaso y se detiene la ejecución.
type PhaseError struct {
	base
	Step    int
	Substep int
	Message string
}

// Completed se emite cuando el swap queda confirmado.
type Completed struct {
	base
	Result domain.SwapResult
}

// ManualActionAvailable se emite cuando se puede hacer split pero auto-split
// está apagado; el caller decide si ejecuta las acciones.
type ManualActionAvailable struct {
	base
	Actions []domain.Action
}

// AnalysisRefreshed lleva el re-análisis posterior a una acción manual.
type AnalysisRefreshed struct {
	base
	Analysis domain.TokenAnalysis
}
