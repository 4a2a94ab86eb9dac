package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/futarchy/internal/application/registry"
	"github.com/alejandrodnm/futarchy/internal/domain"
	"github.com/alejandrodnm/futarchy/internal/ports"
)

var (
	ErrPlanInFlight    = errors.New("swap: an execution is already in progress")
	ErrNoPlan          = errors.New("swap: no execution to retry")
	ErrManualAction    = errors.New("swap: manual action required")
	ErrUnknownStrategy = errors.New("swap: unknown strategy")
	ErrNotExecutable   = errors.New("swap: action is not executable")
)

const (
	defaultSplitTimeout  = 60 * time.Second
	defaultSettlingDelay = 2 * time.Second
	reanalysisTimeout    = 30 * time.Second
	eventBuffer          = 64
)

// Config ajusta el orquestador.
type Config struct {
	SplitTimeout  time.Duration // tope para toda la fase de colateral
	SettlingDelay time.Duration // espera tras un split antes de releer estado; negativo la desactiva
}

// Deps son los colaboradores del Orchestrator. Approvals, Analyzer,
// Refresher y Journal pueden ser nil.
type Deps struct {
	Collateral ports.CollateralExecutor
	Swaps      ports.SwapExecutor
	Registry   *registry.Registry
	Approvals  *ApprovalCache
	Analyzer   *Analyzer
	Refresher  ports.BalanceRefresher
	Journal    ports.ExecutionStorage
}

// Request es un swap a llevar a cabo según su plan.
type Request struct {
	Plan      domain.ExecutionPlan
	TokenIn   string
	TokenOut  string
	Amount    decimal.Decimal
	AutoSplit bool
}

// Orchestrator ejecuta un ExecutionPlan: la fase 1 hace split del colateral si
// el plan lo requiere, la fase 2 aprueba y ejecuta el swap. Cada fase tiene un
// subpaso de approval y uno de ejecución; un fallo detiene la corrida y
// Retry retoma desde el primer subpaso sin completar.
//
// Un Orchestrator corre una ejecución a la vez.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	events chan Event

	running atomic.Bool

	mu     sync.Mutex
	state  domain.ExecutionState
	req    *Request
	cancel context.CancelFunc

	newID func() string
	now   func() time.Time
}

// NewOrchestrator crea un orquestador en idle.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.SplitTimeout <= 0 {
		cfg.SplitTimeout = defaultSplitTimeout
	}
	if cfg.SettlingDelay == 0 {
		cfg.SettlingDelay = defaultSettlingDelay
	}
	if cfg.SettlingDelay < 0 {
		cfg.SettlingDelay = 0
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		events: make(chan Event, eventBuffer),
		state:  domain.ExecutionState{Phase: domain.PhaseIdle},
		newID:  func() string { return uuid.NewString() },
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Events devuelve el stream de progreso. Con el buffer lleno los eventos se
// descartan: un lector lento ve huecos pero nunca bloquea la ejecución.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// State devuelve una copia del estado actual.
func (o *Orchestrator) State() domain.ExecutionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Start resetea el estado previo y corre req desde el principio.
// Devuelve ErrManualAction si hace falta split y req.AutoSplit está apagado.
func (o *Orchestrator) Start(ctx context.Context, req Request) (domain.SwapResult, error) {
	if err := o.validate(req); err != nil {
		return domain.SwapResult{}, err
	}
	if !o.running.CompareAndSwap(false, true) {
		return domain.SwapResult{}, ErrPlanInFlight
	}
	defer o.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var approvals map[string]bool
	if o.deps.Approvals != nil {
		approvals = o.deps.Approvals.Snapshot()
	}

	o.mu.Lock()
	o.req = &req
	o.cancel = cancel
	o.state = domain.ExecutionState{
		ID:        o.newID(),
		Phase:     domain.PhaseIdle,
		Approvals: approvals,
		StartedAt: o.now(),
	}
	id := o.state.ID
	o.mu.Unlock()

	slog.Info("swap: execution started",
		"id", id,
		"strategy", req.Plan.Strategy,
		"amount", req.Amount.String(),
		"split_required", req.Plan.Steps[domain.StepIndexCollateral].Required,
		"auto_split", req.AutoSplit,
	)
	o.journal(runCtx, domain.ExecutionRunning, "")

	return o.drive(runCtx, req)
}

// Retry retoma la última ejecución desde su primer subpaso incompleto.
// Los subpasos completos no se repiten.
func (o *Orchestrator) Retry(ctx context.Context) (domain.SwapResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return domain.SwapResult{}, ErrPlanInFlight
	}
	defer o.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.req == nil {
		o.mu.Unlock()
		return domain.SwapResult{}, ErrNoPlan
	}
	if o.state.Phase == domain.PhaseCompleted {
		o.mu.Unlock()
		return domain.SwapResult{}, fmt.Errorf("%w: execution %s already completed", ErrNoPlan, o.state.ID)
	}
	req := *o.req
	o.cancel = cancel
	o.state.Err = nil
	id, cur := o.state.ID, o.state.Current
	o.mu.Unlock()

	slog.Info("swap: retrying execution", "id", id, "step", cur.Step, "substep", cur.Substep)
	o.journal(runCtx, domain.ExecutionRunning, "")

	return o.drive(runCtx, req)
}

// Reset cancela la ejecución en curso y limpia el estado local. Las
// transacciones ya confirmadas on-chain no se revierten.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	var rec *domain.ExecutionRecord
	if o.req != nil && o.state.ID != "" && o.state.Phase != domain.PhaseCompleted {
		r := o.recordLocked(domain.ExecutionCancelled, "")
		rec = &r
	}
	o.req = nil
	o.state = domain.ExecutionState{Phase: domain.PhaseIdle}
	o.mu.Unlock()

	if rec != nil && o.deps.Journal != nil {
		if err := o.deps.Journal.SaveExecution(context.Background(), *rec); err != nil {
			slog.Warn("swap: journal error", "err", err)
		}
	}
	slog.Debug("swap: state reset")
}

// ExecuteAction corre un split manual sugerido por el análisis. Si la última
// ejecución espera una acción manual, su paso de colateral queda completo
// y Retry sigue con el swap. Pasado el settling delay se publica un
// re-análisis como AnalysisRefreshed.
func (o *Orchestrator) ExecuteAction(ctx context.Context, action domain.Action) (domain.TxResult, error) {
	if action.Kind != domain.ActionSplitCollateral || !action.Executable {
		return domain.TxResult{}, fmt.Errorf("%w: %s", ErrNotExecutable, action.Describe())
	}
	if !o.running.CompareAndSwap(false, true) {
		return domain.TxResult{}, ErrPlanInFlight
	}
	defer o.running.Store(false)

	o.mu.Lock()
	req := o.req
	waiting := o.state.Phase == domain.PhaseManualAction
	o.mu.Unlock()

	if req != nil {
		o.refreshApprovals(ctx, *req)
	}

	pctx, cancel := context.WithTimeout(ctx, o.cfg.SplitTimeout)
	defer cancel()

	split := o.splitRequest(action)
	if _, err := bounded(pctx, func(c context.Context) (struct{}, error) {
		return struct{}{}, o.deps.Collateral.EnsureSplitApproval(c, split)
	}); err != nil {
		return domain.TxResult{}, fmt.Errorf("swap.ExecuteAction: approve: %w", o.timeoutErr(ctx, pctx, err))
	}
	res, err := bounded(pctx, func(c context.Context) (domain.TxResult, error) {
		return o.deps.Collateral.Split(c, split)
	})
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("swap.ExecuteAction: split: %w", o.timeoutErr(ctx, pctx, err))
	}
	slog.Info("swap: manual split confirmed",
		"category", action.Category,
		"amount", action.Amount.String(),
		"tx", res.TxHash,
	)

	o.refreshBalances(ctx)

	if waiting {
		o.mu.Lock()
		o.state.Completed[domain.StepIndexCollateral] = [2]bool{true, true}
		o.state.ManualActions = nil
		o.state.Phase = domain.PhaseIdle
		o.mu.Unlock()
	}

	o.scheduleReanalysis(req)
	return res, nil
}

func (o *Orchestrator) validate(req Request) error {
	if !req.Amount.IsPositive() {
		return fmt.Errorf("swap: amount must be positive, got %s", req.Amount.String())
	}
	if !slices.Contains(o.deps.Swaps.AvailableStrategies(), req.Plan.Strategy) {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, req.Plan.Strategy)
	}
	return nil
}

func (o *Orchestrator) drive(ctx context.Context, req Request) (domain.SwapResult, error) {
	collateral := req.Plan.Steps[domain.StepIndexCollateral]

	if !o.stepDone(domain.StepIndexCollateral) {
		switch {
		case !collateral.Required:
			o.mu.Lock()
			o.state.Completed[domain.StepIndexCollateral] = [2]bool{true, true}
			o.mu.Unlock()
			slog.Debug("swap: collateral step not required")
		case !req.AutoSplit:
			return domain.SwapResult{}, o.awaitManual(ctx, req)
		default:
			if err := o.runCollateral(ctx, req); err != nil {
				return domain.SwapResult{}, err
			}
			if err := o.settle(ctx, req); err != nil {
				return domain.SwapResult{}, o.fail(ctx, domain.StepIndexSwap, domain.SubstepApproval, err)
			}
		}
	}

	return o.runSwap(ctx, req)
}

func (o *Orchestrator) awaitManual(ctx context.Context, req Request) error {
	actions := req.Plan.Analysis.ExecutableActions()

	o.mu.Lock()
	o.state.Phase = domain.PhaseManualAction
	o.state.ManualActions = actions
	id := o.state.ID
	o.mu.Unlock()

	slog.Info("swap: waiting for manual action", "id", id, "actions", len(actions))
	o.emit(ManualActionAvailable{base: base{id}, Actions: slices.Clone(actions)})
	o.journal(ctx, domain.ExecutionManual, "")
	return ErrManualAction
}

func (o *Orchestrator) runCollateral(ctx context.Context, req Request) error {
	o.enter(domain.PhaseCollateral, domain.StepIndexCollateral)

	var splits []domain.Action
	for _, a := range req.Plan.Analysis.ExecutableActions() {
		if a.Kind == domain.ActionSplitCollateral {
			splits = append(splits, a)
		}
	}
	if len(splits) == 0 {
		return o.fail(ctx, domain.StepIndexCollateral, domain.SubstepApproval,
			errors.New("plan requires a split but the analysis has no split action"))
	}

	pctx, cancel := context.WithTimeout(ctx, o.cfg.SplitTimeout)
	defer cancel()

	if !o.done(domain.StepIndexCollateral, domain.SubstepApproval) {
		o.at(domain.StepIndexCollateral, domain.SubstepApproval)
		for _, a := range splits {
			split := o.splitRequest(a)
			if _, err := bounded(pctx, func(c context.Context) (struct{}, error) {
				return struct{}{}, o.deps.Collateral.EnsureSplitApproval(c, split)
			}); err != nil {
				return o.fail(ctx, domain.StepIndexCollateral, domain.SubstepApproval, o.timeoutErr(ctx, pctx, err))
			}
		}
		o.complete(domain.StepIndexCollateral, domain.SubstepApproval, "")
	}

	if !o.done(domain.StepIndexCollateral, domain.SubstepExecution) {
		o.at(domain.StepIndexCollateral, domain.SubstepExecution)
		var last string
		for _, a := range splits {
			split := o.splitRequest(a)
			res, err := bounded(pctx, func(c context.Context) (domain.TxResult, error) {
				return o.deps.Collateral.Split(c, split)
			})
			if err != nil {
				return o.fail(ctx, domain.StepIndexCollateral, domain.SubstepExecution, o.timeoutErr(ctx, pctx, err))
			}
			slog.Info("swap: collateral split",
				"category", a.Category,
				"amount", a.Amount.String(),
				"tx", res.TxHash,
			)
			last = res.TxHash
		}
		o.complete(domain.StepIndexCollateral, domain.SubstepExecution, last)
	}
	return nil
}

// settle da tiempo a la chain para reflejar el split: refresca balances,
// espera el settling delay y fuerza un refresh de approvals. Si ctx se cancela
// durante la espera no se consultan approvals.
func (o *Orchestrator) settle(ctx context.Context, req Request) error {
	o.refreshBalances(ctx)
	if err := sleepCtx(ctx, o.cfg.SettlingDelay); err != nil {
		return fmt.Errorf("settling: %w", err)
	}
	o.refreshApprovals(ctx, req)
	return nil
}

func (o *Orchestrator) runSwap(ctx context.Context, req Request) (domain.SwapResult, error) {
	o.enter(domain.PhaseSwap, domain.StepIndexSwap)
	strategy := req.Plan.Strategy

	if !o.done(domain.StepIndexSwap, domain.SubstepApproval) {
		o.at(domain.StepIndexSwap, domain.SubstepApproval)
		if err := o.deps.Swaps.EnsureApproval(ctx, strategy, req.TokenIn, req.Amount); err != nil {
			return domain.SwapResult{}, o.fail(ctx, domain.StepIndexSwap, domain.SubstepApproval, err)
		}
		if o.deps.Approvals != nil {
			o.deps.Approvals.Set(strategy, true)
		}
		o.mu.Lock()
		if o.state.Approvals == nil {
			o.state.Approvals = make(map[string]bool)
		}
		o.state.Approvals[strategy] = true
		o.mu.Unlock()
		o.complete(domain.StepIndexSwap, domain.SubstepApproval, "")
	}

	o.at(domain.StepIndexSwap, domain.SubstepExecution)
	res, err := o.deps.Swaps.ExecuteSwap(ctx, domain.SwapRequest{
		Strategy: strategy,
		TokenIn:  req.TokenIn,
		TokenOut: req.TokenOut,
		Amount:   req.Amount,
	})
	if err != nil {
		return domain.SwapResult{}, o.fail(ctx, domain.StepIndexSwap, domain.SubstepExecution, err)
	}
	o.complete(domain.StepIndexSwap, domain.SubstepExecution, res.TxHash)

	o.mu.Lock()
	o.state.Phase = domain.PhaseCompleted
	o.state.FinishedAt = o.now()
	id := o.state.ID
	o.mu.Unlock()

	slog.Info("swap: execution completed", "id", id, "strategy", res.StrategyName, "tx", res.TxHash)
	o.emit(Completed{base: base{id}, Result: res})
	o.journal(ctx, domain.ExecutionCompleted, res.TxHash)
	return res, nil
}

func (o *Orchestrator) enter(phase domain.Phase, step int) {
	o.mu.Lock()
	o.state.Phase = phase
	o.state.Current = domain.Cursor{Step: step}
	id := o.state.ID
	o.mu.Unlock()

	slog.Debug("swap: phase started", "id", id, "phase", phase)
	o.emit(PhaseStarted{base: base{id}, Phase: phase, Step: step})
}

func (o *Orchestrator) at(step, substep int) {
	o.mu.Lock()
	o.state.Current = domain.Cursor{Step: step, Substep: substep}
	o.mu.Unlock()
}

func (o *Orchestrator) done(step, substep int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Completed[step][substep]
}

func (o *Orchestrator) stepDone(step int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.StepDone(step)
}

func (o *Orchestrator) complete(step, substep int, txHash string) {
	o.mu.Lock()
	o.state.Completed[step][substep] = true
	id := o.state.ID
	o.mu.Unlock()

	o.emit(SubstepCompleted{
		base:    base{id},
		Step:    step,
		Substep: substep,
		Name:    substepNames[step][substep],
		TxHash:  txHash,
	})
}

// fail registra el error en paso/subpaso y detiene la ejecución.
func (o *Orchestrator) fail(ctx context.Context, step, substep int, err error) error {
	o.mu.Lock()
	o.state.Err = &domain.StepError{Step: step, Substep: substep, Message: err.Error()}
	o.state.Current = domain.Cursor{Step: step, Substep: substep}
	id := o.state.ID
	o.mu.Unlock()

	slog.Error("swap: execution halted",
		"id", id,
		"step", step,
		"substep", substepNames[step][substep],
		"err", err,
	)
	o.emit(PhaseError{base: base{id}, Step: step, Substep: substep, Message: err.Error()})
	o.journal(ctx, domain.ExecutionFailed, "")
	return fmt.Errorf("swap.%s: %w", substepNames[step][substep], err)
}

func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		slog.Warn("swap: event dropped, reader too slow", "type", fmt.Sprintf("%T", ev))
	}
}

func (o *Orchestrator) journal(ctx context.Context, status domain.ExecutionStatus, txHash string) {
	if o.deps.Journal == nil {
		return
	}
	o.mu.Lock()
	rec := o.recordLocked(status, txHash)
	o.mu.Unlock()

	if err := o.deps.Journal.SaveExecution(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("swap: journal error", "id", rec.ID, "err", err)
	}
}

func (o *Orchestrator) recordLocked(status domain.ExecutionStatus, txHash string) domain.ExecutionRecord {
	rec := domain.ExecutionRecord{
		ID:         o.state.ID,
		Status:     status,
		FailedStep: -1,
		TxHash:     txHash,
		StartedAt:  o.state.StartedAt,
	}
	if o.req != nil {
		rec.TokenIn = o.req.TokenIn
		rec.TokenOut = o.req.TokenOut
		rec.Amount = o.req.Amount
		rec.Strategy = o.req.Plan.Strategy
		rec.AutoSplit = o.req.AutoSplit
	}
	if o.state.Err != nil {
		rec.FailedStep = o.state.Err.Step
		rec.FailedSub = o.state.Err.Substep
		rec.Error = o.state.Err.Message
	}
	if status != domain.ExecutionRunning {
		t := o.now()
		rec.FinishedAt = &t
	}
	return rec
}

func (o *Orchestrator) splitRequest(a domain.Action) domain.SplitRequest {
	table := o.deps.Registry.Snapshot()
	collateral, _ := table.Collateral(a.Category)
	return domain.SplitRequest{
		Category:     a.Category,
		Amount:       a.Amount,
		MarketID:     table.Metadata().MarketID,
		TokenAddress: collateral.Address,
	}
}

func (o *Orchestrator) refreshBalances(ctx context.Context) {
	if o.deps.Refresher == nil {
		return
	}
	if err := o.deps.Refresher.RefreshBalances(ctx); err != nil {
		slog.Warn("swap: balance refresh failed", "err", err)
	}
}

func (o *Orchestrator) refreshApprovals(ctx context.Context, req Request) {
	if o.deps.Approvals == nil {
		return
	}
	status := o.deps.Approvals.Check(ctx, o.deps.Swaps.AvailableStrategies(), req.TokenIn, req.Amount, true)
	o.mu.Lock()
	if o.state.Approvals == nil {
		o.state.Approvals = make(map[string]bool, len(status))
	}
	for name, ok := range status {
		o.state.Approvals[name] = ok
	}
	o.mu.Unlock()
}

func (o *Orchestrator) scheduleReanalysis(req *Request) {
	if req == nil || o.deps.Analyzer == nil {
		return
	}
	o.mu.Lock()
	id := o.state.ID
	o.mu.Unlock()

	tokenIn, amount := req.TokenIn, req.Amount
	time.AfterFunc(o.cfg.SettlingDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reanalysisTimeout)
		defer cancel()
		o.emit(AnalysisRefreshed{base: base{id}, Analysis: o.deps.Analyzer.Analyze(ctx, tokenIn, amount)})
	})
}

// timeoutErr convierte el deadline de la fase en un error legible.
func (o *Orchestrator) timeoutErr(parent, phase context.Context, err error) error {
	if parent.Err() == nil && errors.Is(phase.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("collateral phase timed out after %s: %w", o.cfg.SplitTimeout, err)
	}
	return err
}

// bounded corre fn y vuelve antes si ctx termina, aunque fn ignore ctx.
func bounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
