package model

import (
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/playletworks/drama-api/common"
)

func TestCreateProductionDuplicateId(t *testing.T) {
	setupTestDatabase(t)

	p := testProduction(1)
	require.NoError(t, CreateProduction(p))
	require.Equal(t, ProductionStatusCreated, p.Status)
	require.Equal(t, StageScriptParse, p.CurrentStage)

	dup := testProduction(1)
	err := CreateProduction(dup)
	require.True(t, errors.Is(err, common.ErrConflict))
}

func TestUpdateProductionVersionConflict(t *testing.T) {
	setupTestDatabase(t)
	require.NoError(t, CreateProduction(testProduction(1)))

	p1, err := GetProductionById("prod-test-1")
	require.NoError(t, err)
	p2, err := GetProductionById("prod-test-1")
	require.NoError(t, err)

	p1.Status = ProductionStatusRunning
	require.NoError(t, UpdateProduction(p1))
	require.Equal(t, int64(1), p1.Version)

	// The second copy still carries version 0; its write must lose.
	p2.Status = ProductionStatusCancelled
	err = UpdateProduction(p2)
	require.True(t, errors.Is(err, common.ErrVersionConflict))
	require.Equal(t, int64(0), p2.Version, "failed update must not bump the in-memory version")

	stored, err := GetProductionById("prod-test-1")
	require.NoError(t, err)
	require.Equal(t, ProductionStatusRunning, stored.Status)
}

func TestUpdateProductionPersistsStageOutputs(t *testing.T) {
	setupTestDatabase(t)
	require.NoError(t, CreateProduction(testProduction(1)))

	p, err := GetProductionById("prod-test-1")
	require.NoError(t, err)
	require.NoError(t, p.StageOutputs.Set(StageScriptParse, &ScriptParseOutput{
		Scenes: []SceneDescriptor{{SceneId: "scene-001", Type: "dialogue"}},
	}))
	p.CurrentStage = p.StageOutputs.FirstIncomplete()
	require.NoError(t, UpdateProduction(p))

	stored, err := GetProductionById("prod-test-1")
	require.NoError(t, err)
	require.NotNil(t, stored.StageOutputs.ScriptParse)
	require.Equal(t, StageCharacterModel, stored.CurrentStage)
}

func TestDeleteProductionCascades(t *testing.T) {
	setupTestDatabase(t)
	require.NoError(t, CreateProduction(testProduction(1)))
	require.NoError(t, DB.Create(&CollaboratorGrant{ProductionId: "prod-test-1", TenantId: 2, Role: RoleViewer}).Error)
	require.NoError(t, DB.Create(&Invitation{Id: "inv-1", ProductionId: "prod-test-1", InviteeEmail: "x@y.z", Role: RoleViewer, Status: InvitationStatusPending}).Error)
	require.NoError(t, DB.Create(&ProductionSnapshot{ProductionId: "prod-test-1", Version: 0}).Error)

	require.NoError(t, DeleteProduction("prod-test-1"))

	_, err := GetProductionById("prod-test-1")
	require.True(t, errors.Is(err, common.ErrNotFound))
	for _, counted := range []any{&CollaboratorGrant{}, &Invitation{}, &ProductionSnapshot{}} {
		var count int64
		require.NoError(t, DB.Model(counted).Where("production_id = ?", "prod-test-1").Count(&count).Error)
		require.Zero(t, count)
	}

	err = DeleteProduction("prod-test-1")
	require.True(t, errors.Is(err, common.ErrNotFound))
}

func TestProductionConfigValidate(t *testing.T) {
	valid := ProductionConfig{Aspect: "16:9", Quality: "4K", Format: "mov", TargetMinutes: 0.5}
	require.NoError(t, valid.Validate())

	cases := []ProductionConfig{
		{Aspect: "4:3", Quality: "1080p", Format: "mp4", TargetMinutes: 2},
		{Aspect: "9:16", Quality: "8K", Format: "mp4", TargetMinutes: 2},
		{Aspect: "9:16", Quality: "1080p", Format: "avi", TargetMinutes: 2},
		{Aspect: "9:16", Quality: "1080p", Format: "mp4", TargetMinutes: 0.4},
		{Aspect: "9:16", Quality: "1080p", Format: "mp4", TargetMinutes: 10.5},
	}
	for _, cfg := range cases {
		err := cfg.Validate()
		require.True(t, errors.Is(err, common.ErrInvalidInput), "config %+v", cfg)
	}
}

func TestStageOutputsSetRejectsDoubleWrite(t *testing.T) {
	var so StageOutputs
	require.NoError(t, so.Set(StageScriptParse, &ScriptParseOutput{}))
	require.Error(t, so.Set(StageScriptParse, &ScriptParseOutput{}))
	require.Error(t, so.Set(StageStoryboard, &ScriptParseOutput{}), "mismatched output type must be rejected")
}

func TestStageOutputsFirstIncomplete(t *testing.T) {
	var so StageOutputs
	require.Equal(t, StageScriptParse, so.FirstIncomplete())

	require.NoError(t, so.Set(StageScriptParse, &ScriptParseOutput{}))
	require.NoError(t, so.Set(StageCharacterModel, &CharacterModelOutput{}))
	require.Equal(t, StageStoryboard, so.FirstIncomplete())
	require.Equal(t, 2, so.CompletedCount())

	require.NoError(t, so.Set(StageStoryboard, &StoryboardOutput{}))
	require.NoError(t, so.Set(StageLipSync, &LipSyncOutput{Skipped: true}))
	require.NoError(t, so.Set(StageSoundMatch, &SoundMatchOutput{}))
	require.NoError(t, so.Set(StageRender, &RenderOutput{VideoRef: "local://x"}))
	require.Equal(t, StageTerminal, so.FirstIncomplete())
}
