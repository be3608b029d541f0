package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/repository"
)

// ReconcileMessage is the error message written on records swept by Reconcile.
const ReconcileMessage = "reconciled: processing timed out"

// ReconcileResult counts what one sweep did.
type ReconcileResult struct {
	Found  int
	Marked int
	Failed int
}

// Reconcile marks records still processing since before olderThan as failed.
// Records that turn terminal between the listing and the write are left alone.
func Reconcile(ctx context.Context, repo repository.AuthorizationRepository, olderThan time.Time, logger *zap.Logger) (ReconcileResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stale, err := repo.ListStale(ctx, olderThan)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list stale: %w", err)
	}

	res := ReconcileResult{Found: len(stale)}
	for _, rec := range stale {
		err := repo.MarkFailed(ctx, rec.ID, ReconcileMessage)
		switch {
		case err == nil:
			res.Marked++
			logger.Info("reconcile.marked", zap.String("record_id", rec.ID), zap.String("path", rec.SourcePath))
		case errors.Is(err, repository.ErrTerminal):
			logger.Info("reconcile.already_terminal", zap.String("record_id", rec.ID))
		default:
			res.Failed++
			logger.Error("reconcile.mark_failed.failed", zap.String("record_id", rec.ID), zap.Error(err))
		}
	}
	return res, nil
}
