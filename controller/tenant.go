package controller

import (
	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/ctxkey"
	"github.com/playletworks/drama-api/common/helper"
	"github.com/playletworks/drama-api/common/random"
	"github.com/playletworks/drama-api/dto"
	"github.com/playletworks/drama-api/middleware"
	"github.com/playletworks/drama-api/model"
)

// tenantView is the tenant payload returned to its owner. The API key is
// included here and nowhere else.
type tenantView struct {
	Id           int     `json:"id"`
	Email        string  `json:"email"`
	DisplayName  string  `json:"display_name"`
	Tier         string  `json:"tier"`
	QuotaMinutes float64 `json:"quota_minutes_remaining"`
	APIKey       string  `json:"api_key"`
	CreatedAt    int64   `json:"created_at"`
}

func viewOfTenant(tenant *model.Tenant) (*tenantView, error) {
	var view tenantView
	if err := copier.Copy(&view, tenant); err != nil {
		return nil, errors.Wrap(err, "build tenant view")
	}
	view.APIKey = "sk-" + tenant.APIKey
	return &view, nil
}

// Register creates a tenant with the tier's built-in starting quota and a
// fresh API key.
func (s *Server) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, err.Error()))
		return
	}
	if req.Tier == "" {
		req.Tier = model.TierFree
	}

	digest, err := common.Password2Hash(req.Password)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	tenant := &model.Tenant{
		Email:          req.Email,
		DisplayName:    req.DisplayName,
		PasswordDigest: digest,
		Tier:           req.Tier,
		QuotaMinutes:   model.TierDefault(req.Tier).MonthlyQuotaMinutes,
		APIKey:         random.GenerateKey(),
		Status:         model.TenantStatusEnabled,
	}
	if err := tenant.Insert(); err != nil {
		helper.RespondError(c, err)
		return
	}

	view, err := viewOfTenant(tenant)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, view)
}

// Login verifies the password and issues a session token.
func (s *Server) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helper.RespondError(c, errors.Wrap(common.ErrInvalidInput, err.Error()))
		return
	}

	tenant, err := model.GetTenantByEmail(req.Email)
	if err != nil || !common.ValidatePasswordAndHash(req.Password, tenant.PasswordDigest) {
		helper.RespondError(c, errors.Wrap(common.ErrForbidden, "email or password is wrong"))
		return
	}
	if tenant.Status != model.TenantStatusEnabled {
		helper.RespondError(c, errors.Wrap(common.ErrForbidden, "tenant is disabled"))
		return
	}

	token, err := middleware.IssueSessionToken(tenant)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, dto.LoginResponse{Token: token, Tenant: tenant})
}

func (s *Server) GetSelf(c *gin.Context) {
	tenant, err := model.GetTenantById(c.GetInt(ctxkey.Id))
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	view, err := viewOfTenant(tenant)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, view)
}

func (s *Server) GetQuota(c *gin.Context) {
	quota, err := model.GetTenantQuota(c.GetInt(ctxkey.Id))
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, gin.H{"quota_minutes_remaining": quota})
}

// RotateAPIKey replaces the tenant's API key. The old key stops working as
// soon as its cache entry is dropped.
func (s *Server) RotateAPIKey(c *gin.Context) {
	tenant, err := model.GetTenantById(c.GetInt(ctxkey.Id))
	if err != nil {
		helper.RespondError(c, err)
		return
	}

	oldKey := tenant.APIKey
	tenant.APIKey = random.GenerateKey()
	if err := tenant.Update(); err != nil {
		helper.RespondError(c, err)
		return
	}
	model.CacheInvalidateTenant(oldKey)

	view, err := viewOfTenant(tenant)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	helper.RespondSuccess(c, view)
}

// DeleteSelf soft-deletes the tenant and cascades to its productions and
// grants.
func (s *Server) DeleteSelf(c *gin.Context) {
	tenant, err := model.GetTenantById(c.GetInt(ctxkey.Id))
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	if err := tenant.Delete(); err != nil {
		helper.RespondError(c, err)
		return
	}
	model.CacheInvalidateTenant(tenant.APIKey)
	helper.RespondSuccess(c, nil)
}
