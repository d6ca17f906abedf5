package model

import (
	"context"

	"github.com/Laisky/zap"

	"github.com/playletworks/drama-api/common/helper"
	"github.com/playletworks/drama-api/common/logger"
)

const (
	LogTypeSystem = iota + 1
	LogTypeQuota
	LogTypeProduction
)

// Log is the audit trail: quota debits/refunds, production terminal
// transitions, and system events.
type Log struct {
	Id           int     `json:"id"`
	TenantId     int     `json:"tenant_id" gorm:"index"`
	ProductionId string  `json:"production_id" gorm:"index;size:64"`
	CreatedAt    int64   `json:"created_at" gorm:"bigint;index"`
	Type         int     `json:"type" gorm:"index"`
	Content      string  `json:"content" gorm:"type:text"`
	Minutes      float64 `json:"minutes"`
}

func RecordLog(ctx context.Context, tenantId int, logType int, content string, minutes float64) {
	entry := &Log{
		TenantId:  tenantId,
		CreatedAt: helper.GetTimestamp(),
		Type:      logType,
		Content:   content,
		Minutes:   minutes,
	}
	if err := DB.WithContext(ctx).Create(entry).Error; err != nil {
		logger.Logger.Error("failed to record log", zap.Error(err), zap.String("content", content))
	}
}

func RecordProductionLog(ctx context.Context, tenantId int, productionId string, content string) {
	entry := &Log{
		TenantId:     tenantId,
		ProductionId: productionId,
		CreatedAt:    helper.GetTimestamp(),
		Type:         LogTypeProduction,
		Content:      content,
	}
	if err := DB.WithContext(ctx).Create(entry).Error; err != nil {
		logger.Logger.Error("failed to record production log", zap.Error(err))
	}
}
