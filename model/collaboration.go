package model

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/playletworks/drama-api/common"
)

// Collaborator roles, orderable by privilege. The production owner has an
// implicit admin-equivalent role that is never stored.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

func IsValidRole(role string) bool {
	switch role {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// CollaboratorGrant gives a tenant a role on someone else's production.
// Created only through an accepted invitation.
type CollaboratorGrant struct {
	Id           int    `json:"id"`
	ProductionId string `json:"production_id" gorm:"size:64;uniqueIndex:uidx_grant"`
	TenantId     int    `json:"tenant_id" gorm:"uniqueIndex:uidx_grant"`
	Role         string `json:"role" gorm:"size:16"`
	CreatedAt    int64  `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt    int64  `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// Invitation statuses.
const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusRejected = "rejected"
	InvitationStatusExpired  = "expired"
)

// Invitation is a pending offer of a collaborator role. At most one pending
// invitation exists per (production, invitee email); emails are stored
// lowercased so the uniqueness check and acceptance match case-insensitively.
type Invitation struct {
	Id           string `json:"id" gorm:"primaryKey;size:64"`
	ProductionId string `json:"production_id" gorm:"size:64;index"`
	InviterId    int    `json:"inviter_id"`
	InviteeEmail string `json:"invitee_email" gorm:"size:191;index"`
	Role         string `json:"role" gorm:"size:16"`
	Status       string `json:"status" gorm:"size:16;index"`
	CreatedAt    int64  `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt    int64  `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// GetGrant returns the stored grant for (production, tenant), or NotFound.
func GetGrant(productionId string, tenantId int) (*CollaboratorGrant, error) {
	var grant CollaboratorGrant
	err := DB.Where("production_id = ? AND tenant_id = ?", productionId, tenantId).First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(common.ErrNotFound, "no grant for tenant %d on production %s", tenantId, productionId)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get grant")
	}
	return &grant, nil
}

func ListGrants(productionId string) ([]*CollaboratorGrant, error) {
	var grants []*CollaboratorGrant
	err := DB.Where("production_id = ?", productionId).Order("created_at").Find(&grants).Error
	return grants, errors.Wrap(err, "list grants")
}

// UpdateGrantRole changes a collaborator's role.
func UpdateGrantRole(productionId string, tenantId int, role string) error {
	if !IsValidRole(role) {
		return errors.Wrapf(common.ErrInvalidInput, "invalid role %q", role)
	}
	result := DB.Model(&CollaboratorGrant{}).
		Where("production_id = ? AND tenant_id = ?", productionId, tenantId).
		Update("role", role)
	if result.Error != nil {
		return errors.Wrap(result.Error, "update grant role")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(common.ErrNotFound, "no grant for tenant %d on production %s", tenantId, productionId)
	}
	return nil
}

// RemoveGrant deletes a collaborator from a production.
func RemoveGrant(productionId string, tenantId int) error {
	result := DB.Where("production_id = ? AND tenant_id = ?", productionId, tenantId).
		Delete(&CollaboratorGrant{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "remove grant")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(common.ErrNotFound, "no grant for tenant %d on production %s", tenantId, productionId)
	}
	return nil
}

// CreateInvitation inserts a pending invitation, enforcing the single-pending
// rule per (production, invitee email).
func CreateInvitation(inv *Invitation) error {
	if !IsValidRole(inv.Role) {
		return errors.Wrapf(common.ErrInvalidInput, "invalid role %q", inv.Role)
	}
	inv.InviteeEmail = strings.ToLower(inv.InviteeEmail)
	inv.Status = InvitationStatusPending

	var count int64
	DB.Model(&Invitation{}).
		Where("production_id = ? AND invitee_email = ? AND status = ?",
			inv.ProductionId, inv.InviteeEmail, InvitationStatusPending).
		Count(&count)
	if count > 0 {
		return errors.Wrapf(common.ErrConflict, "pending invitation already exists for %s", inv.InviteeEmail)
	}
	return errors.Wrap(DB.Create(inv).Error, "create invitation")
}

func GetInvitationById(id string) (*Invitation, error) {
	var inv Invitation
	err := DB.Where("id = ?", id).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(common.ErrNotFound, "invitation %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get invitation")
	}
	return &inv, nil
}

func ListInvitations(productionId string) ([]*Invitation, error) {
	var invs []*Invitation
	err := DB.Where("production_id = ?", productionId).Order("created_at desc").Find(&invs).Error
	return invs, errors.Wrap(err, "list invitations")
}

// AcceptInvitation turns a pending invitation into a collaborator grant.
// Preconditions, checked inside one transaction: the invitation is pending,
// the acceptor's email matches the invitee email case-insensitively, and no
// grant exists yet for (production, tenant). The grant creation and the
// invitation status change commit atomically.
func AcceptInvitation(id string, acceptorId int, acceptorEmail string) (*CollaboratorGrant, error) {
	var grant *CollaboratorGrant
	err := DB.Transaction(func(tx *gorm.DB) error {
		var inv Invitation
		err := tx.Where("id = ?", id).First(&inv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(common.ErrNotFound, "invitation %s", id)
		}
		if err != nil {
			return errors.Wrap(err, "get invitation")
		}
		if inv.Status != InvitationStatusPending {
			return errors.Wrapf(common.ErrInvalidInput, "invitation %s is %s", id, inv.Status)
		}
		if !strings.EqualFold(inv.InviteeEmail, acceptorEmail) {
			return errors.Wrapf(common.ErrForbidden, "invitation %s is addressed to a different email", id)
		}

		var count int64
		tx.Model(&CollaboratorGrant{}).
			Where("production_id = ? AND tenant_id = ?", inv.ProductionId, acceptorId).
			Count(&count)
		if count > 0 {
			return errors.Wrapf(common.ErrConflict, "tenant %d already collaborates on production %s", acceptorId, inv.ProductionId)
		}

		grant = &CollaboratorGrant{
			ProductionId: inv.ProductionId,
			TenantId:     acceptorId,
			Role:         inv.Role,
		}
		if err := tx.Create(grant).Error; err != nil {
			return errors.Wrap(err, "create grant")
		}
		return errors.Wrap(tx.Model(&inv).Update("status", InvitationStatusAccepted).Error,
			"mark invitation accepted")
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// RejectInvitation marks a pending invitation rejected by its addressee.
func RejectInvitation(id string, acceptorEmail string) error {
	inv, err := GetInvitationById(id)
	if err != nil {
		return err
	}
	if inv.Status != InvitationStatusPending {
		return errors.Wrapf(common.ErrInvalidInput, "invitation %s is %s", id, inv.Status)
	}
	if !strings.EqualFold(inv.InviteeEmail, acceptorEmail) {
		return errors.Wrapf(common.ErrForbidden, "invitation %s is addressed to a different email", id)
	}
	return errors.Wrap(DB.Model(inv).Update("status", InvitationStatusRejected).Error,
		"mark invitation rejected")
}
