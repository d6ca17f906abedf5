package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/playletworks/drama-api/billing"
	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/model"
	"github.com/playletworks/drama-api/storage"
)

func setupTestDatabase(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)

	prev := model.DB
	model.DB = db
	t.Cleanup(func() { model.DB = prev })

	require.NoError(t, db.AutoMigrate(
		&model.Tenant{}, &model.Production{}, &model.CollaboratorGrant{},
		&model.ProductionSnapshot{}, &model.Log{},
	))
}

func newTestStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// newTestEngine builds an engine over the given workers with a millisecond
// retry backoff so transient-failure tests finish quickly.
func newTestEngine(t *testing.T, workers Workers) (*Engine, *billing.Engine) {
	t.Helper()
	prevBackoff := config.RetryBackoffBase
	config.RetryBackoffBase = time.Millisecond
	t.Cleanup(func() { config.RetryBackoffBase = prevBackoff })

	quota := billing.NewEngine()
	return NewEngine(NewRegistry(workers), quota), quota
}

func seedTenant(t *testing.T, tier string, quota float64) *model.Tenant {
	t.Helper()
	tenant := &model.Tenant{
		Email:          "owner@example.com",
		PasswordDigest: "x",
		Tier:           tier,
		QuotaMinutes:   quota,
	}
	require.NoError(t, tenant.Insert())
	return tenant
}

func seedProduction(t *testing.T, tenantId int, narrationRef string, targetMinutes float64) *model.Production {
	t.Helper()
	p := &model.Production{
		Id:            "prod-1",
		TenantId:      tenantId,
		Script:        "Anna: We cannot stay here tonight.\n\nThunder rolls across the harbor while the crowd scatters.",
		CharacterRefs: []string{"local://characters/anna.png"},
		NarrationRef:  narrationRef,
		Config: model.ProductionConfig{
			Aspect:        "9:16",
			Quality:       "720p",
			Format:        "mp4",
			TargetMinutes: targetMinutes,
		},
	}
	require.NoError(t, model.CreateProduction(p))
	return p
}

// workerFunc adapts a function to the Worker interface for failure injection.
type workerFunc func(ctx context.Context, input any) (any, error)

func (f workerFunc) Run(ctx context.Context, input any) (any, error) { return f(ctx, input) }
