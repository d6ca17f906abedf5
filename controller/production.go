package controller

import (
	"context"
	"io"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/ctxkey"
	"github.com/playletworks/drama-api/common/graceful"
	"github.com/playletworks/drama-api/common/helper"
	"github.com/playletworks/drama-api/common/random"
	"github.com/playletworks/drama-api/dto"
	"github.com/playletworks/drama-api/model"
	"github.com/playletworks/drama-api/policy"
	"github.com/playletworks/drama-api/storage"
)

// CreateProduction registers a new production in CREATED state. When a
// template id is given, its config and script skeleton fill fields the
// request leaves empty.
func (s *Server) CreateProduction(c *gin.Context) {
	var req dto.CreateProductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, err.Error()))
		return
	}

	script := req.Script
	cfg := req.Config
	if req.TemplateId != "" {
		tpl, err := model.GetTemplateById(req.TemplateId)
		if err != nil {
			helper.RespondError(c, err)
			return
		}
		if script == "" {
			script = tpl.ScriptSkeleton
		}
		if cfg == nil {
			tplCfg := tpl.Config
			cfg = &tplCfg
		}
	}
	if cfg == nil {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, "config is required"))
		return
	}
	if err := cfg.Validate(); err != nil {
		helper.RespondError(c, err)
		return
	}
	if script == "" {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, "script is required"))
		return
	}

	p := &model.Production{
		Id:            random.GetUUID(),
		TenantId:      c.GetInt(ctxkey.Id),
		Script:        script,
		CharacterRefs: req.CharacterRefs,
		NarrationRef:  req.NarrationRef,
		Config:        *cfg,
	}
	if err := model.CreateProduction(p); err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, p)
}

// loadAuthorized loads the production and checks the caller's capability.
func (s *Server) loadAuthorized(c *gin.Context, cap policy.Capability) (*model.Production, bool) {
	p, err := model.GetProductionById(c.Param("id"))
	if err != nil {
		helper.RespondError(c, err)
		return nil, false
	}
	if err := s.gate.Authorize(c.GetInt(ctxkey.Id), p, cap); err != nil {
		helper.RespondError(c, err)
		return nil, false
	}
	return p, true
}

func (s *Server) GetProduction(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapRead)
	if !ok {
		return
	}
	helper.RespondSuccess(c, p)
}

// ListProductions pages the caller's own productions, newest first.
func (s *Server) ListProductions(c *gin.Context) {
	var q dto.ListProductionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, err.Error()))
		return
	}
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size <= 0 {
		q.Size = config.DefaultItemsPerPage
	}
	if q.Size > config.MaxItemsPerPage {
		q.Size = config.MaxItemsPerPage
	}

	items, total, err := model.ListProductions(c.GetInt(ctxkey.Id), q.Status, q.Page*q.Size, q.Size)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, dto.ProductionPage{Items: items, Total: total})
}

func (s *Server) DeleteProduction(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapDeleteProduction)
	if !ok {
		return
	}
	if err := model.DeleteProduction(p.Id); err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, nil)
}

// AdvanceProduction drives the workflow engine: one stage in step mode, to
// completion in run mode. With async=true the work continues in a tracked
// background goroutine and the current record is returned immediately.
func (s *Server) AdvanceProduction(c *gin.Context) {
	var req dto.AdvanceRequest
	// The body is optional; an absent body means a single synchronous step.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, err.Error()))
		return
	}
	if req.Mode == "" {
		req.Mode = "step"
	}

	p, ok := s.loadAuthorized(c, policy.CapAdvanceStage)
	if !ok {
		return
	}

	if req.Async {
		productionId := p.Id
		graceful.GoCritical(context.Background(), "advance "+productionId, func(ctx context.Context) {
			var err error
			if req.Mode == "run" {
				_, err = s.engine.RunToCompletion(ctx, productionId)
			} else {
				_, err = s.engine.Step(ctx, productionId)
			}
			_ = err // terminal state and last_error are already persisted
		})
		helper.RespondSuccess(c, p)
		return
	}

	var err error
	if req.Mode == "run" {
		p, err = s.engine.RunToCompletion(c.Request.Context(), p.Id)
	} else {
		p, err = s.engine.Step(c.Request.Context(), p.Id)
	}
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, p)
}

func (s *Server) PauseProduction(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapPauseResume)
	if !ok {
		return
	}
	p, err := s.engine.Pause(c.Request.Context(), p.Id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, p)
}

func (s *Server) ResumeProduction(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapPauseResume)
	if !ok {
		return
	}
	p, err := s.engine.Resume(c.Request.Context(), p.Id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, p)
}

func (s *Server) CancelProduction(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapPauseResume)
	if !ok {
		return
	}
	p, err := s.engine.Cancel(c.Request.Context(), p.Id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, p)
}

func (s *Server) GetProgress(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapRead)
	if !ok {
		return
	}
	helper.RespondSuccess(c, s.reporter.Report(p))
}

// GetArtifact streams an artifact of the production. Only refs recorded in
// the production's stage outputs are served, so one production cannot leak
// another's artifacts.
func (s *Server) GetArtifact(c *gin.Context) {
	p, ok := s.loadAuthorized(c, policy.CapRead)
	if !ok {
		return
	}
	ref := c.Query("ref")
	if !productionOwnsRef(p, ref) {
		helper.RespondError(c, errors.Wrapf(common.ErrNotFound, "artifact %s", ref))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	data, err := s.store.Get(ctx, storage.Ref(ref))
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	c.Data(200, "application/octet-stream", data)
}

func productionOwnsRef(p *model.Production, ref string) bool {
	if ref == "" {
		return false
	}
	if ref == p.NarrationRef || ref == p.FinalVideoRef {
		return true
	}
	for _, known := range stageRefs(p) {
		if ref == known {
			return true
		}
	}
	return false
}

func stageRefs(p *model.Production) []string {
	var refs []string
	if out := p.StageOutputs.CharacterModel; out != nil {
		refs = append(refs, out.ModelRefs...)
	}
	if out := p.StageOutputs.Storyboard; out != nil {
		refs = append(refs, out.FrameRefs...)
	}
	if out := p.StageOutputs.Render; out != nil {
		refs = append(refs, out.VideoRef)
	}
	return refs
}
