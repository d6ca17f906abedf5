package controller

import (
	"strconv"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/ctxkey"
	"github.com/playletworks/drama-api/common/helper"
	"github.com/playletworks/drama-api/common/random"
	"github.com/playletworks/drama-api/dto"
	"github.com/playletworks/drama-api/model"
	"github.com/playletworks/drama-api/policy"
)

// InviteCollaborator creates a pending invitation addressed to an email. The
// grant is only created when the addressee accepts.
func (s *Server) InviteCollaborator(c *gin.Context) {
	var req dto.InviteCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, err.Error()))
		return
	}

	p, ok := s.loadAuthorized(c, policy.CapInviteCollaborator)
	if !ok {
		return
	}

	inv := &model.Invitation{
		Id:           random.GetUUID(),
		ProductionId: p.Id,
		InviterId:    c.GetInt(ctxkey.Id),
		InviteeEmail: req.Email,
		Role:         req.Role,
	}
	if err := model.CreateInvitation(inv); err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, inv)
}

func (s *Server) ListInvitations(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapManageCollaborator)
	if !ok {
		return
	}
	invs, err := model.ListInvitations(p.Id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, invs)
}

// AcceptInvitation turns a pending invitation into a collaborator grant. The
// caller's account email must match the invitee email, case-insensitively.
func (s *Server) AcceptInvitation(c *gin.Context) {
	grant, err := model.AcceptInvitation(c.Param("id"), c.GetInt(ctxkey.Id), c.GetString(ctxkey.Email))
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, grant)
}

func (s *Server) RejectInvitation(c *gin.Context) {
	if err := model.RejectInvitation(c.Param("id"), c.GetString(ctxkey.Email)); err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, nil)
}

func (s *Server) ListCollaborators(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapRead)
	if !ok {
		return
	}
	grants, err := model.ListGrants(p.Id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, grants)
}

func collaboratorTenantId(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("tenantId"))
	if err != nil {
		return 0, errors.Wrap(common.ErrInvalidInput, "invalid collaborator tenant id")
	}
	return id, nil
}

func (s *Server) UpdateCollaborator(c *gin.Context) {
	var req dto.UpdateGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, err.Error()))
		return
	}

	p, ok := s.loadAuthorized(c, policy.CapManageCollaborator)
	if !ok {
		return
	}
	tenantId, err := collaboratorTenantId(c)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	if err := model.UpdateGrantRole(p.Id, tenantId, req.Role); err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, nil)
}

func (s *Server) RemoveCollaborator(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapManageCollaborator)
	if !ok {
		return
	}
	tenantId, err := collaboratorTenantId(c)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	if err := model.RemoveGrant(p.Id, tenantId); err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, nil)
}
