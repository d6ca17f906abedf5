// Package policy is the capability-resolution gate guarding every
// production-scoped operation. It resolves the caller's effective role from
// ownership and stored collaborator grants, then checks the requested
// capability against the role matrix.
package policy

import (
	"github.com/Laisky/errors/v2"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/model"
)

// Role is the effective role of a tenant on a production.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleNone   Role = "none"
)

// Capability names a production-scoped operation class.
type Capability string

const (
	CapRead               Capability = "read"
	CapAdvanceStage       Capability = "advance_stage"
	CapPauseResume        Capability = "pause_resume"
	CapInviteCollaborator Capability = "invite_collaborator"
	CapManageCollaborator Capability = "manage_collaborator"
	CapDeleteProduction   Capability = "delete_production"
	CapTriggerExport      Capability = "trigger_export"
)

// capabilities maps each role to its allowed operations. The owner has every
// capability; admins everything but delete; editors drive the pipeline;
// viewers only read.
var capabilities = map[Role]map[Capability]bool{
	RoleOwner: {
		CapRead:               true,
		CapAdvanceStage:       true,
		CapPauseResume:        true,
		CapInviteCollaborator: true,
		CapManageCollaborator: true,
		CapDeleteProduction:   true,
		CapTriggerExport:      true,
	},
	RoleAdmin: {
		CapRead:               true,
		CapAdvanceStage:       true,
		CapPauseResume:        true,
		CapInviteCollaborator: true,
		CapManageCollaborator: true,
		CapTriggerExport:      true,
	},
	RoleEditor: {
		CapRead:         true,
		CapAdvanceStage: true,
		CapPauseResume:  true,
	},
	RoleViewer: {
		CapRead: true,
	},
	RoleNone: {},
}

// Gate resolves roles against the collaborator store.
type Gate struct{}

func NewGate() *Gate {
	return &Gate{}
}

// ResolveRole returns the tenant's effective role on the production. The
// owner's admin-equivalent role is implicit and never stored.
func (g *Gate) ResolveRole(tenantId int, p *model.Production) (Role, error) {
	if p.TenantId == tenantId {
		return RoleOwner, nil
	}
	grant, err := model.GetGrant(p.Id, tenantId)
	if errors.Is(err, common.ErrNotFound) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, err
	}
	switch grant.Role {
	case model.RoleAdmin:
		return RoleAdmin, nil
	case model.RoleEditor:
		return RoleEditor, nil
	case model.RoleViewer:
		return RoleViewer, nil
	default:
		return RoleNone, errors.Errorf("grant with unknown role %q", grant.Role)
	}
}

// Authorize fails with Forbidden unless the tenant's effective role carries
// the capability.
func (g *Gate) Authorize(tenantId int, p *model.Production, cap Capability) error {
	role, err := g.ResolveRole(tenantId, p)
	if err != nil {
		return err
	}
	if !capabilities[role][cap] {
		return errors.Wrapf(common.ErrForbidden,
			"role %s may not %s on production %s", role, cap, p.Id)
	}
	return nil
}
