package imports

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/orderimport/internal/metrics"
)

// compensation undoes one completed step of a stage.
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// saga collects the compensations of one stage run. It is local to a single
// call and never shared between goroutines.
type saga struct {
	stage    string
	importID int64
	log      *zap.SugaredLogger
	steps    []compensation
}

func newSaga(stage string, importID int64, log *zap.SugaredLogger) *saga {
	return &saga{stage: stage, importID: importID, log: log}
}

func (sg *saga) push(name string, undo func(ctx context.Context) error) {
	sg.steps = append(sg.steps, compensation{name: name, undo: undo})
}

// rollback runs the compensations in reverse order. Failures are logged and
// counted; every step runs regardless.
func (sg *saga) rollback(ctx context.Context) {
	if len(sg.steps) == 0 {
		return
	}
	metrics.CompensationsTotal.WithLabelValues(sg.stage).Inc()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for i := len(sg.steps) - 1; i >= 0; i-- {
		step := sg.steps[i]
		if err := runGuarded(ctx, step.undo); err != nil {
			metrics.CleanupFailuresTotal.WithLabelValues(sg.stage).Inc()
			sg.log.Warnw("compensation failed",
				"stage", sg.stage,
				"import_id", sg.importID,
				"step", step.name,
				"error", err,
			)
			continue
		}
		sg.log.Infow("compensation applied", "stage", sg.stage, "import_id", sg.importID, "step", step.name)
	}
	sg.steps = nil
}

// runGuarded converts a panic in fn into an error.
func runGuarded(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

const maxParallelDeletes = 4

// deleteBlobs removes keys that are no longer referenced. It never fails:
// each error is logged at warn and counted.
func (s *Service) deleteBlobs(ctx context.Context, stage string, importID int64, keys []string) {
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(maxParallelDeletes)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			err := runGuarded(ctx, func(ctx context.Context) error {
				return s.store.Delete(ctx, key)
			})
			if err != nil {
				metrics.CleanupFailuresTotal.WithLabelValues(stage).Inc()
				s.log.Warnw("failed to delete stale blob",
					"stage", stage,
					"import_id", importID,
					"key", key,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
