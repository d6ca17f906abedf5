package policy

import (
	"path/filepath"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/model"
)

const (
	ownerId  = 1
	guestId  = 2
	outsider = 3
)

func setupGate(t *testing.T) (*Gate, *model.Production) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)

	prev := model.DB
	model.DB = db
	t.Cleanup(func() { model.DB = prev })
	require.NoError(t, db.AutoMigrate(&model.CollaboratorGrant{}))

	return NewGate(), &model.Production{Id: "prod-gate-1", TenantId: ownerId}
}

func grantRole(t *testing.T, p *model.Production, tenantId int, role string) {
	t.Helper()
	require.NoError(t, model.DB.Create(&model.CollaboratorGrant{
		ProductionId: p.Id, TenantId: tenantId, Role: role,
	}).Error)
}

func TestResolveRole(t *testing.T) {
	gate, p := setupGate(t)
	grantRole(t, p, guestId, model.RoleEditor)

	role, err := gate.ResolveRole(ownerId, p)
	require.NoError(t, err)
	require.Equal(t, RoleOwner, role)

	role, err = gate.ResolveRole(guestId, p)
	require.NoError(t, err)
	require.Equal(t, RoleEditor, role)

	role, err = gate.ResolveRole(outsider, p)
	require.NoError(t, err)
	require.Equal(t, RoleNone, role)
}

func TestAuthorizeCapabilityMatrix(t *testing.T) {
	allCaps := []Capability{
		CapRead, CapAdvanceStage, CapPauseResume, CapInviteCollaborator,
		CapManageCollaborator, CapDeleteProduction, CapTriggerExport,
	}
	allowed := map[string]map[Capability]bool{
		"": { // owner, no stored grant
			CapRead: true, CapAdvanceStage: true, CapPauseResume: true,
			CapInviteCollaborator: true, CapManageCollaborator: true,
			CapDeleteProduction: true, CapTriggerExport: true,
		},
		model.RoleAdmin: {
			CapRead: true, CapAdvanceStage: true, CapPauseResume: true,
			CapInviteCollaborator: true, CapManageCollaborator: true,
			CapTriggerExport: true,
		},
		model.RoleEditor: {
			CapRead: true, CapAdvanceStage: true, CapPauseResume: true,
		},
		model.RoleViewer: {
			CapRead: true,
		},
	}

	for storedRole, caps := range allowed {
		gate, p := setupGate(t)
		tenantId := ownerId
		if storedRole != "" {
			tenantId = guestId
			grantRole(t, p, guestId, storedRole)
		}
		for _, cap := range allCaps {
			err := gate.Authorize(tenantId, p, cap)
			if caps[cap] {
				require.NoError(t, err, "role %q cap %s", storedRole, cap)
			} else {
				require.True(t, errors.Is(err, common.ErrForbidden), "role %q cap %s", storedRole, cap)
			}
		}
	}
}

func TestAuthorizeWithoutGrantIsForbidden(t *testing.T) {
	gate, p := setupGate(t)
	err := gate.Authorize(outsider, p, CapRead)
	require.True(t, errors.Is(err, common.ErrForbidden))
}
