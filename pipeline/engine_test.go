package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/model"
	"github.com/playletworks/drama-api/storage"
)

func TestRunToCompletionWithoutNarration(t *testing.T) {
	setupTestDatabase(t)
	store := newTestStore(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(store))
	ctx := context.Background()

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	p, err := engine.RunToCompletion(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusCompleted, p.Status)
	require.Equal(t, model.StageTerminal, p.CurrentStage)
	require.Nil(t, p.LastError)
	require.Equal(t, 6, p.StageOutputs.CompletedCount())

	// Without narration the lip sync stage records an empty skipped output.
	require.True(t, p.StageOutputs.LipSync.Skipped)
	require.Empty(t, p.StageOutputs.LipSync.Keyframes)

	require.NotEmpty(t, p.FinalVideoRef)
	exists, err := store.Exists(ctx, storage.Ref(p.FinalVideoRef))
	require.NoError(t, err)
	require.True(t, exists)

	// 2 minutes fit entirely inside the professional quota.
	quota, err := model.GetTenantQuota(tenant.Id)
	require.NoError(t, err)
	require.InDelta(t, 48, quota, 1e-9)
	require.Zero(t, p.RenderCost)
}

func TestRunToCompletionWithNarration(t *testing.T) {
	setupTestDatabase(t)
	store := newTestStore(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(store))
	ctx := context.Background()

	narrationRef, err := store.Put(ctx, "prod-1/narration.wav", []byte("pcm"), "audio/wav")
	require.NoError(t, err)

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, string(narrationRef), 2)

	p, err := engine.RunToCompletion(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusCompleted, p.Status)
	require.False(t, p.StageOutputs.LipSync.Skipped)
	// One keyframe set per storyboard frame, one frame per scene.
	require.Len(t, p.StageOutputs.LipSync.Keyframes, len(p.StageOutputs.Storyboard.FrameRefs))
}

func TestStepAdvancesExactlyOneStage(t *testing.T) {
	setupTestDatabase(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(newTestStore(t)))

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	p, err := engine.Step(context.Background(), "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusRunning, p.Status)
	require.NotNil(t, p.StageOutputs.ScriptParse)
	require.Nil(t, p.StageOutputs.CharacterModel)
	require.Equal(t, model.StageCharacterModel, p.CurrentStage)
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	setupTestDatabase(t)
	store := newTestStore(t)
	workers := NewBuiltinWorkers(store)

	attempts := 0
	inner := workers.ScriptParse
	workers.ScriptParse = workerFunc(func(ctx context.Context, input any) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, common.StageTransientf("model backend unavailable")
		}
		return inner.Run(ctx, input)
	})
	engine, _ := newTestEngine(t, workers)

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	p, err := engine.Step(context.Background(), "prod-1")
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.NotNil(t, p.StageOutputs.ScriptParse)
	require.Equal(t, model.ProductionStatusRunning, p.Status)
}

func TestTransientFailureExhaustsAttempts(t *testing.T) {
	setupTestDatabase(t)
	workers := NewBuiltinWorkers(newTestStore(t))

	attempts := 0
	workers.ScriptParse = workerFunc(func(ctx context.Context, input any) (any, error) {
		attempts++
		return nil, common.StageTransientf("model backend unavailable")
	})
	engine, _ := newTestEngine(t, workers)

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	p, err := engine.Step(context.Background(), "prod-1")
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, model.ProductionStatusFailed, p.Status)
	require.NotNil(t, p.LastError)
	require.Equal(t, "transient_exhausted", p.LastError.Kind)
	require.Equal(t, model.StageScriptParse, p.LastError.Stage)
}

func TestPermanentFailureDoesNotRetry(t *testing.T) {
	setupTestDatabase(t)
	workers := NewBuiltinWorkers(newTestStore(t))

	attempts := 0
	workers.ScriptParse = workerFunc(func(ctx context.Context, input any) (any, error) {
		attempts++
		return nil, common.StagePermanentf("script is gibberish")
	})
	engine, _ := newTestEngine(t, workers)

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	p, err := engine.Step(context.Background(), "prod-1")
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, model.ProductionStatusFailed, p.Status)
	require.Equal(t, "permanent", p.LastError.Kind)
}

func TestRenderRefusedOnInsufficientQuota(t *testing.T) {
	setupTestDatabase(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(newTestStore(t)))

	tenant := seedTenant(t, model.TierFree, 3)
	seedProduction(t, tenant.Id, "", 5)

	p, err := engine.RunToCompletion(context.Background(), "prod-1")
	require.True(t, errors.Is(err, common.ErrInsufficientQuota))
	require.Equal(t, model.ProductionStatusFailed, p.Status)
	require.Equal(t, "insufficient_quota", p.LastError.Kind)
	require.Equal(t, model.StageRender, p.LastError.Stage)

	// Every pre-render stage completed; the refused debit touched nothing.
	require.Equal(t, 5, p.StageOutputs.CompletedCount())
	require.Nil(t, p.StageOutputs.Render)
	quota, err := model.GetTenantQuota(tenant.Id)
	require.NoError(t, err)
	require.InDelta(t, 3, quota, 1e-9)
}

func TestRenderFailureRefundsDebit(t *testing.T) {
	setupTestDatabase(t)
	workers := NewBuiltinWorkers(newTestStore(t))
	workers.Render = workerFunc(func(ctx context.Context, input any) (any, error) {
		return nil, common.StagePermanentf("encoder crashed")
	})
	engine, _ := newTestEngine(t, workers)

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	p, err := engine.RunToCompletion(context.Background(), "prod-1")
	require.Error(t, err)
	require.Equal(t, model.ProductionStatusFailed, p.Status)
	require.Equal(t, "permanent", p.LastError.Kind)

	// The render debit is returned when the stage fails for good.
	quota, err := model.GetTenantQuota(tenant.Id)
	require.NoError(t, err)
	require.InDelta(t, 50, quota, 1e-9)
}

func TestAbortedRenderRefundsDebitAndStaysRerunnable(t *testing.T) {
	setupTestDatabase(t)
	store := newTestStore(t)
	builtin := NewBuiltinWorkers(store)
	workers := builtin

	renderCalls := 0
	started := make(chan struct{})
	workers.Render = workerFunc(func(ctx context.Context, input any) (any, error) {
		renderCalls++
		if renderCalls == 1 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return builtin.Render.Run(ctx, input)
	})
	engine, _ := newTestEngine(t, workers)
	ctx := context.Background()

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	for i := 0; i < 5; i++ {
		_, err := engine.Step(ctx, "prod-1")
		require.NoError(t, err)
	}

	// The caller walks away mid-render, e.g. a dropped client connection.
	stepCtx, abort := context.WithCancel(ctx)
	stepErr := make(chan error, 1)
	go func() {
		_, err := engine.Step(stepCtx, "prod-1")
		stepErr <- err
	}()
	<-started
	abort()
	select {
	case err := <-stepErr:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("aborted step did not return")
	}

	// The interrupted render keeps no debit and records no output; the
	// production stays re-runnable.
	quota, err := model.GetTenantQuota(tenant.Id)
	require.NoError(t, err)
	require.InDelta(t, 50, quota, 1e-9)
	p, err := model.GetProductionById("prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusRunning, p.Status)
	require.Nil(t, p.StageOutputs.Render)

	// A later run reruns the render and debits exactly once.
	p, err = engine.RunToCompletion(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusCompleted, p.Status)
	quota, err = model.GetTenantQuota(tenant.Id)
	require.NoError(t, err)
	require.InDelta(t, 48, quota, 1e-9)
}

func TestRunToCompletionSettlesOnPause(t *testing.T) {
	setupTestDatabase(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(newTestStore(t)))
	ctx := context.Background()

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	_, err := engine.Step(ctx, "prod-1")
	require.NoError(t, err)
	_, err = engine.Pause(ctx, "prod-1")
	require.NoError(t, err)

	// A run loop that observes the pause returns the paused record cleanly.
	p, err := engine.RunToCompletion(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusPaused, p.Status)

	_, err = engine.Resume(ctx, "prod-1")
	require.NoError(t, err)
	p, err = engine.RunToCompletion(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusCompleted, p.Status)
}

func TestRunToCompletionSettlesOnCancel(t *testing.T) {
	setupTestDatabase(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(newTestStore(t)))
	ctx := context.Background()

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	_, err := engine.Step(ctx, "prod-1")
	require.NoError(t, err)
	_, err = engine.Cancel(ctx, "prod-1")
	require.NoError(t, err)

	p, err := engine.RunToCompletion(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusCancelled, p.Status)
}

func TestPauseBetweenStagesAndResume(t *testing.T) {
	setupTestDatabase(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(newTestStore(t)))
	ctx := context.Background()

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	_, err := engine.Step(ctx, "prod-1")
	require.NoError(t, err)

	p, err := engine.Pause(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusPaused, p.Status)

	// Paused productions refuse to step.
	_, err = engine.Step(ctx, "prod-1")
	require.True(t, errors.Is(err, common.ErrConflict))

	// Pause is idempotent.
	p, err = engine.Pause(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusPaused, p.Status)

	p, err = engine.Resume(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusRunning, p.Status)

	p, err = engine.RunToCompletion(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusCompleted, p.Status)
}

func TestPauseRequiresRunning(t *testing.T) {
	setupTestDatabase(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(newTestStore(t)))

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	_, err := engine.Pause(context.Background(), "prod-1")
	require.True(t, errors.Is(err, common.ErrConflict))

	_, err = engine.Resume(context.Background(), "prod-1")
	require.True(t, errors.Is(err, common.ErrConflict))
}

func TestCancelIsIdempotent(t *testing.T) {
	setupTestDatabase(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(newTestStore(t)))
	ctx := context.Background()

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	p, err := engine.Cancel(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusCancelled, p.Status)

	p, err = engine.Cancel(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusCancelled, p.Status)

	// Terminal productions refuse further steps.
	_, err = engine.Step(ctx, "prod-1")
	require.True(t, errors.Is(err, common.ErrConflict))
}

func TestCancelCompletedConflicts(t *testing.T) {
	setupTestDatabase(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(newTestStore(t)))
	ctx := context.Background()

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	_, err := engine.RunToCompletion(ctx, "prod-1")
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, "prod-1")
	require.True(t, errors.Is(err, common.ErrConflict))
}

func TestStageTimeoutRetriesAsTransient(t *testing.T) {
	setupTestDatabase(t)
	workers := NewBuiltinWorkers(newTestStore(t))

	attempts := 0
	workers.ScriptParse = workerFunc(func(ctx context.Context, input any) (any, error) {
		attempts++
		<-ctx.Done()
		return nil, ctx.Err()
	})
	config.SetStageTimeoutOverride(string(model.StageScriptParse), 20*time.Millisecond)
	t.Cleanup(func() {
		config.SetStageTimeoutOverride(string(model.StageScriptParse), config.StageTimeout)
	})
	engine, _ := newTestEngine(t, workers)

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	p, err := engine.Step(context.Background(), "prod-1")
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, model.ProductionStatusFailed, p.Status)
	require.Equal(t, "timeout", p.LastError.Kind)
}

func TestCancelInterruptsInFlightStage(t *testing.T) {
	setupTestDatabase(t)
	workers := NewBuiltinWorkers(newTestStore(t))

	started := make(chan struct{})
	workers.ScriptParse = workerFunc(func(ctx context.Context, input any) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	engine, _ := newTestEngine(t, workers)
	ctx := context.Background()

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	stepDone := make(chan *model.Production, 1)
	go func() {
		p, _ := engine.Step(ctx, "prod-1")
		stepDone <- p
	}()

	<-started
	p, err := engine.Cancel(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductionStatusCancelled, p.Status)

	select {
	case stepped := <-stepDone:
		require.Equal(t, model.ProductionStatusCancelled, stepped.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("step did not observe the cancellation")
	}
}

func TestFailedStageFaultsWholeProduction(t *testing.T) {
	setupTestDatabase(t)
	workers := NewBuiltinWorkers(newTestStore(t))
	workers.Storyboard = workerFunc(func(ctx context.Context, input any) (any, error) {
		return nil, common.StagePermanentf("frame generator rejected the scene")
	})
	engine, _ := newTestEngine(t, workers)

	tenant := seedTenant(t, model.TierProfessional, 50)
	seedProduction(t, tenant.Id, "", 2)

	p, err := engine.RunToCompletion(context.Background(), "prod-1")
	require.Error(t, err)
	require.Equal(t, model.ProductionStatusFailed, p.Status)
	require.Equal(t, model.StageStoryboard, p.LastError.Stage)
	// Earlier outputs are preserved; the failed stage recorded nothing.
	require.NotNil(t, p.StageOutputs.ScriptParse)
	require.NotNil(t, p.StageOutputs.CharacterModel)
	require.Nil(t, p.StageOutputs.Storyboard)
}
