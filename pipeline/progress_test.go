package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/playletworks/drama-api/model"
)

func TestReportWeightedFraction(t *testing.T) {
	reporter := NewReporter(NewRegistry(Workers{}))
	p := &model.Production{
		Id:     "prod-1",
		Status: model.ProductionStatusCreated,
		Config: model.ProductionConfig{Quality: "720p"},
	}

	progress := reporter.Report(p)
	require.Zero(t, progress.ProgressFraction)
	require.Equal(t, model.StageScriptParse, progress.CurrentStage)
	require.InDelta(t, 300, progress.EstimatedRemainingSeconds, 1e-9)

	require.NoError(t, p.StageOutputs.Set(model.StageScriptParse, &model.ScriptParseOutput{}))
	progress = reporter.Report(p)
	require.InDelta(t, 0.05, progress.ProgressFraction, 1e-9)
	require.Equal(t, 1, progress.StagesCompleted)

	// The storyboard carries the bulk of the weight.
	require.NoError(t, p.StageOutputs.Set(model.StageCharacterModel, &model.CharacterModelOutput{}))
	require.NoError(t, p.StageOutputs.Set(model.StageStoryboard, &model.StoryboardOutput{}))
	progress = reporter.Report(p)
	require.InDelta(t, 0.55, progress.ProgressFraction, 1e-9)

	require.NoError(t, p.StageOutputs.Set(model.StageLipSync, &model.LipSyncOutput{Skipped: true}))
	require.NoError(t, p.StageOutputs.Set(model.StageSoundMatch, &model.SoundMatchOutput{}))
	require.NoError(t, p.StageOutputs.Set(model.StageRender, &model.RenderOutput{VideoRef: "local://v"}))
	progress = reporter.Report(p)
	require.InDelta(t, 1, progress.ProgressFraction, 1e-9)
	require.Zero(t, progress.EstimatedRemainingSeconds)
	require.Equal(t, model.StageTerminal, progress.CurrentStage)
}

func TestReportBaselinePerQuality(t *testing.T) {
	reporter := NewReporter(NewRegistry(Workers{}))
	cases := map[string]float64{
		"720p":  300,
		"1080p": 600,
		"4K":    1800,
		"":      600, // unknown quality falls back to the default baseline
	}
	for quality, want := range cases {
		p := &model.Production{Config: model.ProductionConfig{Quality: quality}}
		require.InDelta(t, want, reporter.Report(p).EstimatedRemainingSeconds, 1e-9, "quality %q", quality)
	}
}

func TestProgressNeverDecreasesAcrossSteps(t *testing.T) {
	setupTestDatabase(t)
	engine, _ := newTestEngine(t, NewBuiltinWorkers(newTestStore(t)))
	reporter := NewReporter(engine.registry)
	ctx := context.Background()

	tenant := seedTenant(t, model.TierProfessional, 50)
	p := seedProduction(t, tenant.Id, "", 2)

	last := reporter.Report(p).ProgressFraction
	for {
		p, err := engine.Step(ctx, "prod-1")
		require.NoError(t, err)
		fraction := reporter.Report(p).ProgressFraction
		require.GreaterOrEqual(t, fraction, last)
		last = fraction
		if p.Status != model.ProductionStatusRunning {
			require.Equal(t, model.ProductionStatusCompleted, p.Status)
			require.InDelta(t, 1, fraction, 1e-9)
			return
		}
	}
}
