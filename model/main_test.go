package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDatabase(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)

	prev := DB
	DB = db
	t.Cleanup(func() { DB = prev })

	require.NoError(t, migrateDB())
}

func testProduction(tenantId int) *Production {
	return &Production{
		Id:       "prod-test-1",
		TenantId: tenantId,
		Script:   "Anna: We cannot stay here.\n\nThe storm breaks over the harbor.",
		Config: ProductionConfig{
			Aspect:        "9:16",
			Quality:       "1080p",
			Format:        "mp4",
			TargetMinutes: 2,
		},
	}
}
