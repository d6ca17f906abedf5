package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/helper"
	"github.com/playletworks/drama-api/common/logger"
)

// ProductionSnapshot is a historical JSON summary of a production, written on
// every stage completion and terminal transition. Snapshots are retained for
// SnapshotRetentionDays and purged by the background cleaner.
type ProductionSnapshot struct {
	Id           int    `json:"id"`
	ProductionId string `json:"production_id" gorm:"size:64;index"`
	Version      int64  `json:"version"`
	Status       string `json:"status" gorm:"size:16"`
	CurrentStage string `json:"current_stage" gorm:"size:32"`
	Summary      string `json:"summary" gorm:"type:text"`
	CreatedAt    int64  `json:"created_at" gorm:"bigint;index"`
}

// snapshotSummary is the serialized shape stored in Summary.
type snapshotSummary struct {
	Id              string       `json:"id"`
	TenantId        int          `json:"tenant_id"`
	Status          string       `json:"status"`
	CurrentStage    StageId      `json:"current_stage"`
	StagesCompleted int          `json:"stages_completed"`
	StageOutputs    StageOutputs `json:"stage_outputs"`
	RenderCost      float64      `json:"render_cost"`
	Version         int64        `json:"version"`
}

// RecordSnapshot appends a version snapshot of the production. Failures are
// logged but never fail the workflow step that triggered them.
func RecordSnapshot(ctx context.Context, p *Production) {
	summary, err := json.Marshal(snapshotSummary{
		Id:              p.Id,
		TenantId:        p.TenantId,
		Status:          p.Status,
		CurrentStage:    p.CurrentStage,
		StagesCompleted: p.StageOutputs.CompletedCount(),
		StageOutputs:    p.StageOutputs,
		RenderCost:      p.RenderCost,
		Version:         p.Version,
	})
	if err != nil {
		logger.Logger.Error("failed to marshal production snapshot", zap.Error(err))
		return
	}
	snap := &ProductionSnapshot{
		ProductionId: p.Id,
		Version:      p.Version,
		Status:       p.Status,
		CurrentStage: string(p.CurrentStage),
		Summary:      string(summary),
		CreatedAt:    helper.GetTimestamp(),
	}
	if err := DB.WithContext(ctx).Create(snap).Error; err != nil {
		logger.Logger.Error("failed to record production snapshot",
			zap.Error(err), zap.String("production_id", p.Id))
	}
}

// PurgeExpiredSnapshots deletes snapshots older than retentionDays.
func PurgeExpiredSnapshots(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	result := DB.Where("created_at < ?", cutoff).Delete(&ProductionSnapshot{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "purge expired snapshots")
	}
	return result.RowsAffected, nil
}

// StartSnapshotPurger launches the background purge loop enforcing the 30-day
// retention policy.
func StartSnapshotPurger(ctx context.Context) {
	retentionDays := config.SnapshotRetentionDays
	if retentionDays <= 0 {
		logger.Logger.Debug("snapshot retention disabled", zap.Int("retention_days", retentionDays))
		return
	}

	purge := func() {
		deleted, err := PurgeExpiredSnapshots(retentionDays)
		if err != nil {
			logger.Logger.Warn("snapshot purge failed", zap.Error(err))
			return
		}
		if deleted > 0 {
			logger.Logger.Info("purged expired snapshots",
				zap.Int64("deleted_rows", deleted), zap.Int("retention_days", retentionDays))
		}
	}

	purge()

	ticker := time.NewTicker(config.SnapshotPurgeInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Logger.Info("snapshot purger stopped")
				return
			case <-ticker.C:
				purge()
			}
		}
	}()

	logger.Logger.Info("snapshot purger started", zap.Int("retention_days", retentionDays))
}
