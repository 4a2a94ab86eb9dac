package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/futarchy/internal/application/swap"
	"github.com/alejandrodnm/futarchy/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
	limit int
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table, limit: 50}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, limit: 50}
}

// Notify imprime los trades y el resumen en el modo configurado.
func (c *Console) Notify(_ context.Context, trades []domain.ClassifiedTrade, summary domain.TradeSummary) error {
	if len(trades) == 0 {
		fmt.Fprintf(c.out, "[%s] no trades found\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printTable(trades)
		c.printSummary(summary)
	} else {
		c.printCompact(trades, summary)
	}
	return nil
}

// printCompact imprime una línea de resumen y los últimos trades.
func (c *Console) printCompact(trades []domain.ClassifiedTrade, s domain.TradeSummary) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d trades → Y:%d N:%d buy:%d sell:%d",
		now, s.TotalTrades, s.Outcomes.Yes, s.Outcomes.No, s.Operations.Buy, s.Operations.Sell)

	// los más recientes primero
	shown := 0
	for i := len(trades) - 1; i >= 0 && shown < 4; i-- {
		t := trades[i]
		fmt.Fprintf(&sb, " | %s %s %s@%s",
			sideIcon(t.OutcomeSide), t.OperationSide, symbolOf(t.TokenIn), t.Price.StringFixed(4))
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printTable imprime un trade por fila, más antiguos primero.
func (c *Console) printTable(trades []domain.ClassifiedTrade) {
	rows := trades
	if c.limit > 0 && len(rows) > c.limit {
		rows = rows[len(rows)-c.limit:]
	}

	fmt.Fprintf(c.out, "\n[%s] %d trades (showing %d)\n",
		time.Now().Format("15:04:05"), len(trades), len(rows))

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Side", "Op", "Received", "Given", "Price", "User", "Tx")

	for _, t := range rows {
		table.Append(
			t.Timestamp.Format("01-02 15:04:05"),
			string(t.OutcomeSide),
			string(t.OperationSide),
			fmt.Sprintf("%s %s", t.TokenIn.Amount.StringFixed(4), symbolOf(t.TokenIn)),
			fmt.Sprintf("%s %s", t.TokenOut.Amount.StringFixed(4), symbolOf(t.TokenOut)),
			t.Price.StringFixed(4),
			shortHex(t.UserAddress),
			shortHex(t.TxHash),
		)
	}
	table.Render()
}

// printSummary imprime los histogramas y el rango temporal.
func (c *Console) printSummary(s domain.TradeSummary) {
	fmt.Fprintf(c.out, "\n=== SUMMARY ===\n")
	fmt.Fprintf(c.out, "  Trades:     %d\n", s.TotalTrades)
	fmt.Fprintf(c.out, "  Outcomes:   YES %d | NO %d | neutral %d\n", s.Outcomes.Yes, s.Outcomes.No, s.Outcomes.Neutral)
	fmt.Fprintf(c.out, "  Operations: buy %d | sell %d\n", s.Operations.Buy, s.Operations.Sell)
	if !s.From.IsZero() {
		fmt.Fprintf(c.out, "  Range:      %s → %s\n", s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))
	}
	if len(s.Tokens) > 0 {
		fmt.Fprintf(c.out, "  Tokens:     %s\n", strings.Join(s.Tokens, ", "))
	}
	if len(s.Pools) > 0 {
		fmt.Fprintf(c.out, "  Pools:      %d\n", len(s.Pools))
	}
	fmt.Fprintln(c.out)
}

// PrintAnalysis imprime el resultado del análisis de suficiencia.
func (c *Console) PrintAnalysis(a domain.TokenAnalysis) {
	if a.Err != nil {
		fmt.Fprintf(c.out, "  analysis failed: %v\n", a.Err)
		return
	}

	status := "SUFFICIENT"
	if !a.Sufficient {
		status = "INSUFFICIENT"
	}
	fmt.Fprintf(c.out, "\n=== BALANCE CHECK: %s ===\n", status)
	fmt.Fprintf(c.out, "  Required:   %s\n", a.Required.String())
	fmt.Fprintf(c.out, "  Balance:    %s\n", a.CurrentBalance.String())
	if !a.Shortage.IsZero() {
		fmt.Fprintf(c.out, "  Shortage:   %s\n", a.Shortage.String())
	}
	if a.CollateralSymbol != "" {
		fmt.Fprintf(c.out, "  Collateral: %s %s\n", a.CollateralAvailable.String(), a.CollateralSymbol)
	}
	for _, act := range a.Actions {
		mark := "x"
		if act.Executable {
			mark = "OK"
		}
		fmt.Fprintf(c.out, "  [%s] %s\n", mark, act.Describe())
	}
	fmt.Fprintln(c.out)
}

// PrintPlan imprime los dos pasos del plan.
func (c *Console) PrintPlan(p domain.ExecutionPlan) {
	fmt.Fprintf(c.out, "=== PLAN (%s) ===\n", p.Strategy)
	for i, step := range p.Steps {
		mark := "skip"
		if step.Required {
			mark = "run"
		}
		fmt.Fprintf(c.out, "  %d. [%s] %s: %s\n", i+1, mark, step.Kind, step.Description)
		for _, sub := range step.Substeps {
			fmt.Fprintf(c.out, "       - %s\n", sub.Description)
		}
	}
}

// PrintEvent imprime un evento de progreso del orquestador.
func (c *Console) PrintEvent(ev swap.Event) {
	now := time.Now().Format("15:04:05")
	switch e := ev.(type) {
	case swap.PhaseStarted:
		fmt.Fprintf(c.out, "[%s] step %d started (%s)\n", now, e.Step+1, e.Phase)
	case swap.SubstepCompleted:
		line := fmt.Sprintf("[%s]   ✓ %s", now, e.Name)
		if e.TxHash != "" {
			line += " tx=" + e.TxHash
		}
		fmt.Fprintln(c.out, line)
	case swap.PhaseError:
		fmt.Fprintf(c.out, "[%s]   ✗ step %d.%d failed: %s\n", now, e.Step+1, e.Substep+1, e.Message)
	case swap.Completed:
		fmt.Fprintf(c.out, "[%s] swap completed via %s\n  %s\n", now, e.Result.StrategyName, e.Result.ExplorerURL)
	case swap.ManualActionAvailable:
		fmt.Fprintf(c.out, "[%s] manual action required:\n", now)
		for _, act := range e.Actions {
			fmt.Fprintf(c.out, "  >> %s\n", act.Describe())
		}
	case swap.AnalysisRefreshed:
		fmt.Fprintf(c.out, "[%s] balances refreshed\n", now)
		c.PrintAnalysis(e.Analysis)
	}
}

// PrintExecutions imprime el journal de intentos de swap.
func (c *Console) PrintExecutions(recs []domain.ExecutionRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "\n  No executions recorded.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Started", "Status", "Strategy", "Amount", "Split", "Failed at", "Tx / Error")

	for _, r := range recs {
		failedAt := "-"
		if r.FailedStep >= 0 && r.Status == domain.ExecutionFailed {
			failedAt = fmt.Sprintf("%d.%d", r.FailedStep+1, r.FailedSub+1)
		}
		detail := shortHex(r.TxHash)
		if r.Error != "" {
			detail = truncate(r.Error, 40)
		}
		split := "no"
		if r.AutoSplit {
			split = "auto"
		}
		table.Append(
			r.StartedAt.Local().Format("01-02 15:04:05"),
			string(r.Status),
			r.Strategy,
			r.Amount.String(),
			split,
			failedAt,
			detail,
		)
	}
	table.Render()
}

// --- helpers ---

func sideIcon(s domain.OutcomeSide) string {
	switch s {
	case domain.OutcomeYes:
		return "[Y]"
	case domain.OutcomeNo:
		return "[N]"
	default:
		return "[-]"
	}
}

func symbolOf(l domain.TradeLeg) string {
	if l.Symbol != "" {
		return l.Symbol
	}
	return shortHex(l.Address)
}

func shortHex(s string) string {
	if len(s) <= 14 {
		return s
	}
	return s[:8] + "…" + s[len(s)-4:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
