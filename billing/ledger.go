package billing

import (
	"context"
	"fmt"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/keylock"
	"github.com/playletworks/drama-api/common/logger"
	"github.com/playletworks/drama-api/model"
	"github.com/playletworks/drama-api/monitor"
)

// Engine owns the mutating side of billing: committing debits and refunds
// under a per-tenant exclusion. The tenant lock is handed out explicitly
// through LockTenant so callers can honour the nesting order: the tenant lock
// is always taken before any per-production lock.
type Engine struct {
	tenantLocks *keylock.KeyedMutex
}

func NewEngine() *Engine {
	return &Engine{tenantLocks: keylock.New()}
}

func tenantLockKey(tenantId int) string {
	return fmt.Sprintf("tenant:%d", tenantId)
}

// LockTenant acquires the tenant's billing lock and returns its unlock
// function. CommitDebit and Refund must run under this lock.
func (e *Engine) LockTenant(tenantId int) func() {
	return e.tenantLocks.Lock(tenantLockKey(tenantId))
}

// DebitReceipt records what a committed debit actually consumed, so a later
// refund restores exactly the pre-debit balance.
type DebitReceipt struct {
	TenantId      int      `json:"tenant_id"`
	Minutes       float64  `json:"minutes"`
	QuotaConsumed float64  `json:"quota_consumed"`
	Cost          float64  `json:"cost"`
	Estimate      Estimate `json:"estimate"`
}

// EstimateForTenant prices a render against the tenant's live quota. Pure
// read, no locks.
func (e *Engine) EstimateForTenant(tenant *model.Tenant, minutes float64) Estimate {
	return EstimateRender(GetTier(tenant.Tier), tenant.QuotaMinutes, minutes)
}

// CommitDebit re-checks admissibility with the live quota, then atomically
// draws the quota down (clamped at zero; overage minutes consume no quota,
// they are billed instead). Fails with InsufficientQuota when the live
// re-check refuses. The caller must hold the tenant lock from LockTenant.
func (e *Engine) CommitDebit(ctx context.Context, tenantId int, minutes float64) (*DebitReceipt, error) {
	if minutes < 0 {
		return nil, errors.Wrap(common.ErrInvalidInput, "debit minutes cannot be negative")
	}

	tenant, err := model.GetTenantById(tenantId)
	if err != nil {
		return nil, err
	}
	tier := GetTier(tenant.Tier)
	est := EstimateRender(tier, tenant.QuotaMinutes, minutes)
	if !est.Admissible {
		return nil, errors.Wrapf(common.ErrInsufficientQuota,
			"tier %s has %.3f minutes left, render needs %.3f", tier.Name, tenant.QuotaMinutes, minutes)
	}

	receipt := &DebitReceipt{
		TenantId:      tenantId,
		Minutes:       minutes,
		QuotaConsumed: est.QuotaConsumed,
		Cost:          est.TotalCost,
		Estimate:      est,
	}
	if minutes == 0 {
		return receipt, nil
	}

	if est.QuotaConsumed > 0 {
		if err := model.DecreaseTenantQuota(tenantId, est.QuotaConsumed); err != nil {
			return nil, err
		}
	}
	monitor.QuotaDebited(est.QuotaConsumed)
	model.RecordQuotaChange(ctx, tenantId,
		fmt.Sprintf("debited %.3f quota minutes for a %.3f minute render (cost %.3f)",
			est.QuotaConsumed, minutes, est.TotalCost),
		-est.QuotaConsumed)
	logger.Logger.Info("quota debit committed",
		zap.Int("tenant_id", tenantId),
		zap.Float64("minutes", minutes),
		zap.Float64("quota_consumed", est.QuotaConsumed),
		zap.Float64("cost", est.TotalCost))
	return receipt, nil
}

// Refund returns previously debited minutes, used when a debited render fails
// irrecoverably before producing the final artifact. Cancelled renders are
// deliberately not refunded. The caller must hold the tenant lock from
// LockTenant.
func (e *Engine) Refund(ctx context.Context, tenantId int, minutes float64) error {
	if minutes <= 0 {
		return nil
	}
	if err := model.IncreaseTenantQuota(tenantId, minutes); err != nil {
		return err
	}
	monitor.QuotaRefunded(minutes)
	model.RecordQuotaChange(ctx, tenantId,
		fmt.Sprintf("refunded %.3f quota minutes after a failed render", minutes), minutes)
	logger.Logger.Info("quota refunded",
		zap.Int("tenant_id", tenantId), zap.Float64("minutes", minutes))
	return nil
}
