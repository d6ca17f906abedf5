package model

import (
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/playletworks/drama-api/common"
)

func seedTenant(t *testing.T, email string, quota float64) *Tenant {
	t.Helper()
	tenant := &Tenant{
		Email:          email,
		DisplayName:    "test tenant",
		PasswordDigest: "x",
		Tier:           TierProfessional,
		QuotaMinutes:   quota,
	}
	require.NoError(t, tenant.Insert())
	return tenant
}

func TestTenantInsertDuplicateEmailCaseInsensitive(t *testing.T) {
	setupTestDatabase(t)
	seedTenant(t, "Bob@Example.com", 10)

	dup := &Tenant{Email: "bob@EXAMPLE.com", PasswordDigest: "x"}
	err := dup.Insert()
	require.True(t, errors.Is(err, common.ErrConflict))
}

func TestGetTenantByEmailIgnoresCase(t *testing.T) {
	setupTestDatabase(t)
	created := seedTenant(t, "Bob@Example.com", 10)

	tenant, err := GetTenantByEmail("BOB@example.COM")
	require.NoError(t, err)
	require.Equal(t, created.Id, tenant.Id)
	require.Equal(t, "bob@example.com", tenant.Email)
}

func TestDecreaseTenantQuotaClampsAtZero(t *testing.T) {
	setupTestDatabase(t)
	tenant := seedTenant(t, "bob@example.com", 5)

	require.NoError(t, DecreaseTenantQuota(tenant.Id, 8))
	quota, err := GetTenantQuota(tenant.Id)
	require.NoError(t, err)
	require.Zero(t, quota)

	err = DecreaseTenantQuota(9999, 1)
	require.True(t, errors.Is(err, common.ErrNotFound))

	err = DecreaseTenantQuota(tenant.Id, -1)
	require.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestQuotaDebitAndRefundRoundTrip(t *testing.T) {
	setupTestDatabase(t)
	tenant := seedTenant(t, "bob@example.com", 50)

	require.NoError(t, DecreaseTenantQuota(tenant.Id, 2.5))
	require.NoError(t, IncreaseTenantQuota(tenant.Id, 2.5))

	quota, err := GetTenantQuota(tenant.Id)
	require.NoError(t, err)
	require.InDelta(t, 50, quota, 1e-9)
}

func TestTenantDeleteCascades(t *testing.T) {
	setupTestDatabase(t)
	tenant := seedTenant(t, "bob@example.com", 50)

	p := testProduction(tenant.Id)
	require.NoError(t, CreateProduction(p))
	require.NoError(t, DB.Create(&CollaboratorGrant{ProductionId: p.Id, TenantId: 42, Role: RoleViewer}).Error)

	require.NoError(t, tenant.Delete())

	_, err := GetTenantById(tenant.Id)
	require.True(t, errors.Is(err, common.ErrNotFound))
	_, err = GetProductionById(p.Id)
	require.True(t, errors.Is(err, common.ErrNotFound))
	var grants int64
	require.NoError(t, DB.Model(&CollaboratorGrant{}).Where("production_id = ?", p.Id).Count(&grants).Error)
	require.Zero(t, grants)
}
