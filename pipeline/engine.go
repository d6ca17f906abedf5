package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"golang.org/x/sync/semaphore"

	"github.com/playletworks/drama-api/billing"
	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/helper"
	"github.com/playletworks/drama-api/common/keylock"
	"github.com/playletworks/drama-api/common/logger"
	"github.com/playletworks/drama-api/model"
	"github.com/playletworks/drama-api/monitor"
)

// Engine advances productions through the stage registry. Stages of one
// production run strictly serially under its per-production lock; distinct
// productions advance concurrently up to MaxConcurrentProductions. The render
// stage bills quota, so its step takes the tenant's billing lock before the
// production lock.
type Engine struct {
	registry  *Registry
	quota     *billing.Engine
	prodLocks *keylock.KeyedMutex
	sem       *semaphore.Weighted

	mu            sync.Mutex
	cancels       map[string]context.CancelFunc
	cancelSignals map[string]bool
	pauseSignals  map[string]bool
}

func NewEngine(registry *Registry, quota *billing.Engine) *Engine {
	return &Engine{
		registry:      registry,
		quota:         quota,
		prodLocks:     keylock.New(),
		sem:           semaphore.NewWeighted(int64(config.MaxConcurrentProductions)),
		cancels:       make(map[string]context.CancelFunc),
		cancelSignals: make(map[string]bool),
		pauseSignals:  make(map[string]bool),
	}
}

func productionLockKey(productionId string) string {
	return "production:" + productionId
}

// Step runs exactly one stage of the production: the earliest stage without
// an output. It returns the updated production; a stage failure additionally
// returns the classified error after persisting the FAILED state.
func (e *Engine) Step(ctx context.Context, productionId string) (*model.Production, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "acquire pipeline slot")
	}
	defer e.sem.Release(1)

	for {
		// Peek without the lock to learn whether the next stage bills quota;
		// the tenant lock must be taken before the production lock.
		peek, err := model.GetProductionById(productionId)
		if err != nil {
			return nil, err
		}
		billsQuota := peek.StageOutputs.FirstIncomplete() == model.StageRender

		var unlockTenant func()
		if billsQuota {
			unlockTenant = e.quota.LockTenant(peek.TenantId)
		}
		unlock := e.prodLocks.Lock(productionLockKey(productionId))

		p, err := model.GetProductionById(productionId)
		if err == nil && (p.StageOutputs.FirstIncomplete() == model.StageRender) != billsQuota {
			// The next stage changed between peek and lock; retake the locks
			// in the right order.
			unlock()
			if unlockTenant != nil {
				unlockTenant()
			}
			continue
		}
		if err == nil {
			p, err = e.step(ctx, p)
		}
		unlock()
		if unlockTenant != nil {
			unlockTenant()
		}
		return p, err
	}
}

// step runs one stage with the production lock (and, for the render stage,
// the tenant lock) held.
func (e *Engine) step(ctx context.Context, p *model.Production) (*model.Production, error) {
	switch p.Status {
	case model.ProductionStatusCompleted, model.ProductionStatusFailed, model.ProductionStatusCancelled:
		return nil, errors.Wrapf(common.ErrConflict, "production %s is %s", p.Id, p.Status)
	}

	if e.takeSignal(e.cancelSignals, p.Id) || p.CancelRequested {
		return e.finalizeCancelled(ctx, p)
	}
	if p.Status == model.ProductionStatusPaused {
		return nil, errors.Wrapf(common.ErrConflict, "production %s is paused", p.Id)
	}
	if e.takeSignal(e.pauseSignals, p.Id) || p.PauseRequested {
		return e.finalizePaused(p)
	}

	stage := p.StageOutputs.FirstIncomplete()
	if stage == model.StageTerminal {
		return e.finalizeCompleted(ctx, p)
	}
	entry, err := e.registry.Get(stage)
	if err != nil {
		return nil, err
	}

	// Surface the RUNNING transition before the worker starts.
	if p.Status != model.ProductionStatusRunning || p.CurrentStage != stage {
		p, err = e.persist(p, func(q *model.Production) error {
			q.Status = model.ProductionStatusRunning
			q.CurrentStage = stage
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if entry.Skippable != nil && entry.Skippable(p) {
		p, err = e.recordStageOutput(ctx, p, stage, entry.EmptyOutput(), nil)
		if err != nil {
			return nil, err
		}
		monitor.ObserveStage(string(stage), monitor.OutcomeSkipped, 0)
		return p, nil
	}

	input, err := entry.InputSelector(p)
	if err != nil {
		return e.finalizeFailed(ctx, p, stage, err)
	}

	// The render stage bills before it runs. The tenant lock is already held,
	// so the admissibility re-check and the debit are atomic against
	// concurrent debits of the same tenant.
	var receipt *billing.DebitReceipt
	if stage == model.StageRender {
		receipt, err = e.quota.CommitDebit(ctx, p.TenantId, p.Config.TargetMinutes)
		if err != nil {
			if errors.Is(err, common.ErrInsufficientQuota) {
				return e.finalizeFailed(ctx, p, stage, err)
			}
			return nil, err
		}
	}

	output, runErr := e.runWithRetries(ctx, p.Id, entry, input)
	if runErr != nil {
		if e.takeSignal(e.cancelSignals, p.Id) {
			// Cancelled renders are not refunded.
			return e.finalizeCancelled(ctx, p)
		}
		if receipt != nil {
			// No artifact was produced, so the debit is returned whether the
			// stage failed for good or the caller's context died mid-run; a
			// rerun of the stage debits afresh.
			if rerr := e.quota.Refund(context.WithoutCancel(ctx), p.TenantId, receipt.QuotaConsumed); rerr != nil {
				logger.Logger.Error("failed to refund debited quota",
					zap.Error(rerr), zap.String("production_id", p.Id),
					zap.Float64("minutes", receipt.QuotaConsumed))
			}
		}
		if errors.Is(runErr, context.Canceled) {
			// The caller's context died mid-stage; the production keeps its
			// state and a later step reruns the stage.
			return nil, runErr
		}
		return e.finalizeFailed(ctx, p, stage, runErr)
	}

	return e.recordStageOutput(ctx, p, stage, output, receipt)
}

// runWithRetries executes the worker with the stage timeout, retrying
// transient failures with exponential backoff. Timeouts count as transient.
func (e *Engine) runWithRetries(ctx context.Context, productionId string, entry *StageEntry, input any) (any, error) {
	stage := entry.Id
	for attempt := 1; ; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, entry.Timeout())
		e.registerCancel(productionId, cancel)
		start := time.Now()
		output, err := entry.Worker.Run(runCtx, input)
		elapsed := time.Since(start).Seconds()
		timedOut := runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		e.unregisterCancel(productionId)
		cancel()

		if err == nil {
			monitor.ObserveStage(string(stage), monitor.OutcomeCompleted, elapsed)
			return output, nil
		}
		if timedOut {
			err = errors.Wrapf(common.ErrStageTimeout,
				"stage %s exceeded its %s limit", stage, entry.Timeout())
			monitor.ObserveStage(string(stage), monitor.OutcomeTimeout, elapsed)
		}
		if ctx.Err() != nil {
			return nil, err
		}

		transient := errors.Is(err, common.ErrStageTransient) || errors.Is(err, common.ErrStageTimeout)
		if !transient || attempt >= entry.MaxAttempts {
			return nil, err
		}

		backoff := config.RetryBackoffBase << (attempt - 1)
		monitor.ObserveStage(string(stage), monitor.OutcomeRetried, elapsed)
		logger.Logger.Warn("stage attempt failed, retrying",
			zap.String("production_id", productionId),
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// recordStageOutput persists the completed stage and, when it was the last
// one, the COMPLETED transition.
func (e *Engine) recordStageOutput(ctx context.Context, p *model.Production, stage model.StageId, output any, receipt *billing.DebitReceipt) (*model.Production, error) {
	p, err := e.persist(p, func(q *model.Production) error {
		if err := q.StageOutputs.Set(stage, output); err != nil {
			return err
		}
		if receipt != nil {
			q.RenderCost = receipt.Cost
		}
		if render, ok := output.(*model.RenderOutput); ok {
			q.FinalVideoRef = render.VideoRef
		}
		q.CurrentStage = q.StageOutputs.FirstIncomplete()
		if q.CurrentStage == model.StageTerminal {
			q.Status = model.ProductionStatusCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	model.RecordSnapshot(ctx, p)
	model.RecordProductionLog(ctx, p.TenantId, p.Id,
		fmt.Sprintf("stage %s completed (%d/%d)", stage, p.StageOutputs.CompletedCount(), len(model.StageOrder)))
	return p, nil
}

// RunToCompletion steps the production until it leaves the RUNNING state. A
// pause or cancel landing between two steps settles the run cleanly on the
// paused/cancelled record rather than surfacing a conflict.
func (e *Engine) RunToCompletion(ctx context.Context, productionId string) (*model.Production, error) {
	monitor.ProductionStarted()
	defer monitor.ProductionStopped()

	for {
		p, err := e.Step(ctx, productionId)
		if err != nil {
			if errors.Is(err, common.ErrConflict) {
				if fresh, gerr := model.GetProductionById(productionId); gerr == nil {
					switch fresh.Status {
					case model.ProductionStatusPaused, model.ProductionStatusCancelled:
						return fresh, nil
					}
				}
			}
			return p, err
		}
		if p.Status != model.ProductionStatusRunning {
			return p, nil
		}
	}
}

// Pause stops the production between stages: the in-flight stage, if any,
// completes first. Idempotent on an already paused production.
func (e *Engine) Pause(ctx context.Context, productionId string) (*model.Production, error) {
	e.setSignal(e.pauseSignals, productionId)
	defer e.clearSignal(e.pauseSignals, productionId)

	unlock := e.prodLocks.Lock(productionLockKey(productionId))
	defer unlock()

	p, err := model.GetProductionById(productionId)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case model.ProductionStatusPaused:
		return p, nil
	case model.ProductionStatusRunning:
		return e.finalizePaused(p)
	default:
		return nil, errors.Wrapf(common.ErrConflict, "cannot pause production %s in status %s", p.Id, p.Status)
	}
}

// Resume returns a paused production to RUNNING. The caller decides whether
// to step it further. Idempotent on a running production.
func (e *Engine) Resume(ctx context.Context, productionId string) (*model.Production, error) {
	unlock := e.prodLocks.Lock(productionLockKey(productionId))
	defer unlock()

	p, err := model.GetProductionById(productionId)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case model.ProductionStatusRunning:
		return p, nil
	case model.ProductionStatusPaused:
		return e.persist(p, func(q *model.Production) error {
			q.Status = model.ProductionStatusRunning
			q.PauseRequested = false
			return nil
		})
	default:
		return nil, errors.Wrapf(common.ErrConflict, "cannot resume production %s in status %s", p.Id, p.Status)
	}
}

// Cancel aborts the production, interrupting the in-flight worker. Quota
// debited for an interrupted render is not refunded. Idempotent on an already
// cancelled production.
func (e *Engine) Cancel(ctx context.Context, productionId string) (*model.Production, error) {
	e.setSignal(e.cancelSignals, productionId)
	defer e.clearSignal(e.cancelSignals, productionId)
	e.fireCancel(productionId)

	unlock := e.prodLocks.Lock(productionLockKey(productionId))
	defer unlock()

	p, err := model.GetProductionById(productionId)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case model.ProductionStatusCancelled:
		return p, nil
	case model.ProductionStatusCompleted, model.ProductionStatusFailed:
		return nil, errors.Wrapf(common.ErrConflict, "cannot cancel production %s in status %s", p.Id, p.Status)
	default:
		return e.finalizeCancelled(ctx, p)
	}
}

func (e *Engine) finalizePaused(p *model.Production) (*model.Production, error) {
	p, err := e.persist(p, func(q *model.Production) error {
		q.Status = model.ProductionStatusPaused
		q.PauseRequested = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Logger.Info("production paused", zap.String("production_id", p.Id))
	return p, nil
}

func (e *Engine) finalizeCancelled(ctx context.Context, p *model.Production) (*model.Production, error) {
	if p.Status == model.ProductionStatusCancelled {
		return p, nil
	}
	stage := p.StageOutputs.FirstIncomplete()
	p, err := e.persist(p, func(q *model.Production) error {
		q.Status = model.ProductionStatusCancelled
		q.CancelRequested = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	model.RecordSnapshot(ctx, p)
	model.RecordProductionLog(ctx, p.TenantId, p.Id, fmt.Sprintf("cancelled at stage %s", stage))
	monitor.ObserveStage(string(stage), monitor.OutcomeCancelled, 0)
	return p, nil
}

func (e *Engine) finalizeCompleted(ctx context.Context, p *model.Production) (*model.Production, error) {
	if p.Status == model.ProductionStatusCompleted {
		return p, nil
	}
	p, err := e.persist(p, func(q *model.Production) error {
		q.Status = model.ProductionStatusCompleted
		q.CurrentStage = model.StageTerminal
		return nil
	})
	if err != nil {
		return nil, err
	}
	model.RecordSnapshot(ctx, p)
	return p, nil
}

func (e *Engine) finalizeFailed(ctx context.Context, p *model.Production, stage model.StageId, cause error) (*model.Production, error) {
	kind := classifyErrorKind(cause)
	p, err := e.persist(p, func(q *model.Production) error {
		q.Status = model.ProductionStatusFailed
		q.LastError = &model.ProductionError{
			Stage:      stage,
			Kind:       kind,
			Message:    cause.Error(),
			OccurredAt: helper.GetTimestamp(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	model.RecordSnapshot(ctx, p)
	model.RecordProductionLog(ctx, p.TenantId, p.Id,
		fmt.Sprintf("failed at stage %s: %s (%s)", stage, cause.Error(), kind))
	monitor.ObserveStage(string(stage), monitor.OutcomeFailed, 0)
	logger.Logger.Warn("production failed",
		zap.String("production_id", p.Id),
		zap.String("stage", string(stage)),
		zap.String("kind", kind),
		zap.Error(cause))
	return p, errors.Wrapf(cause, "production %s failed at stage %s", p.Id, stage)
}

// classifyErrorKind maps a stage error to the kind recorded in last_error.
func classifyErrorKind(err error) string {
	switch {
	case errors.Is(err, common.ErrMissingPrerequisite):
		return "missing_prerequisite"
	case errors.Is(err, common.ErrInsufficientQuota):
		return "insufficient_quota"
	case errors.Is(err, common.ErrStageTimeout):
		return "timeout"
	case errors.Is(err, common.ErrStageTransient):
		return "transient_exhausted"
	case errors.Is(err, common.ErrInvalidInput):
		return "invalid_input"
	default:
		return "permanent"
	}
}

// persist applies mutate and compare-and-swaps the production. On a lost race
// it re-reads once, re-applies mutate on the fresh record and retries; a
// second conflict surfaces as VersionConflict.
func (e *Engine) persist(p *model.Production, mutate func(*model.Production) error) (*model.Production, error) {
	if err := mutate(p); err != nil {
		return nil, err
	}
	err := model.UpdateProduction(p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, common.ErrVersionConflict) {
		return nil, err
	}

	fresh, rerr := model.GetProductionById(p.Id)
	if rerr != nil {
		return nil, rerr
	}
	if merr := mutate(fresh); merr != nil {
		return nil, merr
	}
	if uerr := model.UpdateProduction(fresh); uerr != nil {
		return nil, uerr
	}
	return fresh, nil
}

func (e *Engine) setSignal(signals map[string]bool, productionId string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	signals[productionId] = true
}

func (e *Engine) clearSignal(signals map[string]bool, productionId string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(signals, productionId)
}

// takeSignal consumes a pending signal, reporting whether it was set.
func (e *Engine) takeSignal(signals map[string]bool, productionId string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	set := signals[productionId]
	delete(signals, productionId)
	return set
}

func (e *Engine) registerCancel(productionId string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels[productionId] = cancel
}

func (e *Engine) unregisterCancel(productionId string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancels, productionId)
}

// fireCancel aborts the production's in-flight worker, if any.
func (e *Engine) fireCancel(productionId string) {
	e.mu.Lock()
	cancel := e.cancels[productionId]
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
