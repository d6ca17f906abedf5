package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordSnapshotCapturesProgress(t *testing.T) {
	setupTestDatabase(t)

	p := testProduction(1)
	require.NoError(t, CreateProduction(p))
	require.NoError(t, p.StageOutputs.Set(StageScriptParse, &ScriptParseOutput{}))
	p.Status = ProductionStatusRunning
	p.CurrentStage = p.StageOutputs.FirstIncomplete()
	require.NoError(t, UpdateProduction(p))

	RecordSnapshot(context.Background(), p)

	var snaps []ProductionSnapshot
	require.NoError(t, DB.Where("production_id = ?", p.Id).Find(&snaps).Error)
	require.Len(t, snaps, 1)
	require.Equal(t, ProductionStatusRunning, snaps[0].Status)
	require.Equal(t, string(StageCharacterModel), snaps[0].CurrentStage)
	require.Equal(t, p.Version, snaps[0].Version)
	require.Contains(t, snaps[0].Summary, `"stages_completed":1`)
}

func TestPurgeExpiredSnapshots(t *testing.T) {
	setupTestDatabase(t)

	old := &ProductionSnapshot{
		ProductionId: "prod-test-1",
		CreatedAt:    time.Now().AddDate(0, 0, -31).Unix(),
	}
	fresh := &ProductionSnapshot{
		ProductionId: "prod-test-1",
		CreatedAt:    time.Now().Unix(),
	}
	require.NoError(t, DB.Create(old).Error)
	require.NoError(t, DB.Create(fresh).Error)

	deleted, err := PurgeExpiredSnapshots(30)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, DB.Model(&ProductionSnapshot{}).Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)
}
