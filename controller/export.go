package controller

import (
	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/ctxkey"
	"github.com/playletworks/drama-api/common/helper"
	"github.com/playletworks/drama-api/dto"
)

// ExportEstimate prices a render without changing any state.
func (s *Server) ExportEstimate(c *gin.Context) {
	var req dto.ExportEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, err.Error()))
		return
	}

	est, err := s.coordinator.Estimate(c.Request.Context(), c.GetInt(ctxkey.Id), c.Param("id"), req.Minutes)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, dto.ExportEstimateResponse{
		Estimate:     est,
		NeedsPayment: est.NeedsPayment(),
	})
}

// ExportConfirm runs the production to completion after explicit consent; the
// render debit happens inside the engine.
func (s *Server) ExportConfirm(c *gin.Context) {
	var req dto.ExportConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, err.Error()))
		return
	}

	p, err := s.coordinator.Confirm(c.Request.Context(), c.GetInt(ctxkey.Id), c.Param("id"), req.Minutes, req.Confirmed)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, p)
}
