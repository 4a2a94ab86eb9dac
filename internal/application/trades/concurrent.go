package trades

// concurrent.go — worker pool para clasificar lotes grandes de swaps.
//
// Todos los workers usan el mismo snapshot del registry, así un rebuild que
// llegue a mitad del lote no mezcla roles viejos y nuevos.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

// classifyConcurrent clasifica raws en paralelo conservando el orden de entrada.
// Si workers <= 0 usa runtime.NumCPU().
func classifyConcurrent(
	ctx context.Context,
	classifier *Classifier,
	table *domain.TokenTable,
	raws []domain.RawTrade,
	workers int,
) []domain.ClassifiedTrade {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(raws) {
		workers = len(raws)
	}

	out := make([]domain.ClassifiedTrade, len(raws))
	if len(raws) == 0 {
		return out
	}

	workCh := make(chan int, len(raws))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workCh {
				out[idx] = classifier.Classify(raws[idx], table)
			}
		}()
	}

	queued := 0
	for i := range raws {
		if ctx.Err() != nil {
			break
		}
		workCh <- i
		queued++
	}
	close(workCh)
	wg.Wait()

	slog.Debug("concurrent classification complete",
		"trades", len(raws),
		"queued", queued,
		"workers", workers,
	)

	return out[:queued]
}
