package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/repo"
)

// MemoryPruneJob drops low-importance memory entries past the retention
// window. High-importance entries are kept regardless of age.
type MemoryPruneJob struct {
	repo            *repo.MemoryRepo
	retentionDays   int
	importanceFloor float64
}

func NewMemoryPruneJob(repo *repo.MemoryRepo, retentionDays int, importanceFloor float64) *MemoryPruneJob {
	return &MemoryPruneJob{repo: repo, retentionDays: retentionDays, importanceFloor: importanceFloor}
}

func (j *MemoryPruneJob) Name() string {
	return "memory_prune"
}

func (j *MemoryPruneJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	retentionDays := j.retentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour).Unix()
	removed, err := j.repo.DeleteStale(ctx, cutoff, j.importanceFloor)
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("stale memories pruned", zap.Int64("removed", removed))
	}
	return nil
}
