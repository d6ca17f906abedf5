package pipeline

import (
	"context"
	"math"

	"github.com/Laisky/errors/v2"

	"github.com/playletworks/drama-api/billing"
	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/model"
	"github.com/playletworks/drama-api/policy"
)

// Coordinator is the two-phase guard in front of the billed render: an
// estimate phase with no state change, then a confirm phase that re-verifies
// the policy gate and drives the workflow engine. It does not replace the
// engine; the debit itself happens inside the render step.
type Coordinator struct {
	gate   *policy.Gate
	quota  *billing.Engine
	engine *Engine
}

func NewCoordinator(gate *policy.Gate, quota *billing.Engine, engine *Engine) *Coordinator {
	return &Coordinator{gate: gate, quota: quota, engine: engine}
}

// Estimate prices a render of the given duration against the production
// owner's quota, since the owner is who the render debits. Pure read.
func (c *Coordinator) Estimate(ctx context.Context, callerId int, productionId string, minutes float64) (billing.Estimate, error) {
	if minutes < 0 {
		return billing.Estimate{}, errors.Wrap(common.ErrInvalidInput, "estimate minutes cannot be negative")
	}
	p, err := model.GetProductionById(productionId)
	if err != nil {
		return billing.Estimate{}, err
	}
	if err := c.gate.Authorize(callerId, p, policy.CapTriggerExport); err != nil {
		return billing.Estimate{}, err
	}
	owner, err := model.GetTenantById(p.TenantId)
	if err != nil {
		return billing.Estimate{}, err
	}
	return c.quota.EstimateForTenant(owner, minutes), nil
}

// Confirm drives the production to completion after explicit consent. A
// confirmed=false round trip fails with DeclinedByUser and changes nothing.
// The confirmed duration must match the production's configured target; the
// live debit happens inside the engine's render step under the tenant lock.
func (c *Coordinator) Confirm(ctx context.Context, callerId int, productionId string, minutes float64, confirmed bool) (*model.Production, error) {
	if !confirmed {
		return nil, errors.Wrapf(common.ErrDeclinedByUser, "export of production %s", productionId)
	}

	p, err := model.GetProductionById(productionId)
	if err != nil {
		return nil, err
	}
	if err := c.gate.Authorize(callerId, p, policy.CapTriggerExport); err != nil {
		return nil, err
	}
	if math.Abs(minutes-p.Config.TargetMinutes) > 1e-9 {
		return nil, errors.Wrapf(common.ErrInvalidInput,
			"confirmed duration %.3f differs from configured target %.3f", minutes, p.Config.TargetMinutes)
	}

	// Pre-check admissibility so an inadmissible export is refused up front
	// and the production stays in its pre-render stage. The engine re-checks
	// under the tenant lock before the actual debit.
	owner, err := model.GetTenantById(p.TenantId)
	if err != nil {
		return nil, err
	}
	est := c.quota.EstimateForTenant(owner, minutes)
	if !est.Admissible {
		return nil, errors.Wrapf(common.ErrInsufficientQuota,
			"tier %s cannot cover a %.3f minute render", owner.Tier, minutes)
	}

	return c.engine.RunToCompletion(ctx, productionId)
}
