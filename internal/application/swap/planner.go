package swap

import (
	"fmt"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

// substepNames indexa los nombres fijos de subpasos por [step][substep].
var substepNames = [2][2]string{
	{"approve_split", "split_collateral"},
	{"approve_swap", "execute_swap"},
}

// Plan arma el plan de dos pasos COLLATERAL → SWAP para un análisis.
// El paso de colateral es requerido exactamente cuando se puede auto-split;
// el de swap siempre lo es.
func Plan(analysis domain.TokenAnalysis, strategy string) domain.ExecutionPlan {
	collateral := domain.PlanStep{
		Kind:        domain.StepCollateral,
		Required:    analysis.CanAutoSplit,
		Description: "Balance already covers the swap, no collateral split needed",
		Substeps: [2]domain.Substep{
			{
				Name:        substepNames[0][0],
				Description: "Approve collateral for the split router",
			},
			{
				Name:        substepNames[0][1],
				Description: "Split collateral into YES/NO tokens",
			},
		},
	}
	if analysis.CanAutoSplit {
		symbol := analysis.CollateralSymbol
		if symbol == "" {
			symbol = "collateral"
		}
		collateral.Description = fmt.Sprintf("Split %s %s to cover the %s shortage before swapping with %s",
			analysis.Shortage.String(), symbol, analysis.Shortage.String(), strategy)
		collateral.Substeps[0].Description = fmt.Sprintf("Approve %s for the split router", symbol)
		collateral.Substeps[1].Description = fmt.Sprintf("Split %s %s into YES/NO tokens", analysis.Shortage.String(), symbol)
	}

	swapStep := domain.PlanStep{
		Kind:        domain.StepSwap,
		Required:    true,
		Description: fmt.Sprintf("Swap %s of the input token using %s", analysis.Required.String(), strategy),
		Substeps: [2]domain.Substep{
			{
				Name:        substepNames[1][0],
				Description: fmt.Sprintf("Approve the input token for %s", strategy),
			},
			{
				Name:        substepNames[1][1],
				Description: fmt.Sprintf("Execute swap via %s", strategy),
			},
		},
	}

	return domain.ExecutionPlan{
		Strategy: strategy,
		Analysis: analysis,
		Steps:    [2]domain.PlanStep{collateral, swapStep},
	}
}
