package model

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/playletworks/drama-api/common"
)

const (
	TenantStatusEnabled  = 1 // don't use 0, 0 is the default value!
	TenantStatusDisabled = 2
	TenantStatusDeleted  = 3
)

// Subscription tiers. The pricing attached to each tier lives in the billing
// package's tier table; the model layer only stores the name.
const (
	TierFree         = "FREE"
	TierPayPerUse    = "PAY_PER_USE"
	TierProfessional = "PROFESSIONAL"
	TierEnterprise   = "ENTERPRISE"
)

// TierDefaults returns the built-in monthly quota for a tier, used only for
// bootstrap; the authoritative table lives in billing.
type tierSeed struct {
	MonthlyQuotaMinutes float64
}

func TierDefault(tier string) tierSeed {
	switch tier {
	case TierFree:
		return tierSeed{MonthlyQuotaMinutes: 5}
	case TierProfessional:
		return tierSeed{MonthlyQuotaMinutes: 50}
	case TierEnterprise:
		return tierSeed{MonthlyQuotaMinutes: 200}
	default:
		return tierSeed{}
	}
}

// Tenant is the owning principal for productions. QuotaMinutes carries
// three-decimal minute precision and never goes negative at observable
// points; debits are guarded by a conditional UPDATE.
//
// If you add sensitive fields, don't forget to strip them in the controller
// before returning tenant payloads.
type Tenant struct {
	Id             int     `json:"id"`
	Email          string  `json:"email" gorm:"uniqueIndex;size:191" validate:"required,email,max=100"`
	DisplayName    string  `json:"display_name" gorm:"index" validate:"max=30"`
	PasswordDigest string  `json:"-" gorm:"not null"`
	Tier           string  `json:"tier" gorm:"size:32;default:'FREE'"`
	QuotaMinutes   float64 `json:"quota_minutes_remaining" gorm:"default:0"`
	APIKey         string  `json:"api_key" gorm:"type:char(48);uniqueIndex"`
	Status         int     `json:"status" gorm:"type:int;default:1"`
	CreatedAt      int64   `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt      int64   `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

func GetTenantById(id int) (*Tenant, error) {
	if id == 0 {
		return nil, errors.Wrap(common.ErrInvalidInput, "tenant id is empty")
	}
	var tenant Tenant
	err := DB.Where("id = ? and status != ?", id, TenantStatusDeleted).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(common.ErrNotFound, "tenant %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get tenant %d", id)
	}
	return &tenant, nil
}

func GetTenantByEmail(email string) (*Tenant, error) {
	if email == "" {
		return nil, errors.Wrap(common.ErrInvalidInput, "email is empty")
	}
	var tenant Tenant
	err := DB.Where("lower(email) = ? and status != ?", strings.ToLower(email), TenantStatusDeleted).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(common.ErrNotFound, "tenant %s", email)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get tenant by email")
	}
	return &tenant, nil
}

// GetTenantByAPIKey resolves the bearer API key (without the sk- prefix).
func GetTenantByAPIKey(key string) (*Tenant, error) {
	if key == "" {
		return nil, errors.Wrap(common.ErrInvalidInput, "api key is empty")
	}
	var tenant Tenant
	err := DB.Where("api_key = ? and status = ?", key, TenantStatusEnabled).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(common.ErrNotFound, "api key does not match any tenant")
	}
	if err != nil {
		return nil, errors.Wrap(err, "get tenant by api key")
	}
	return &tenant, nil
}

func (tenant *Tenant) Insert() error {
	if tenant.Email == "" {
		return errors.Wrap(common.ErrInvalidInput, "email is empty")
	}
	tenant.Email = strings.ToLower(tenant.Email)
	var count int64
	DB.Model(&Tenant{}).Where("lower(email) = ?", tenant.Email).Count(&count)
	if count > 0 {
		return errors.Wrapf(common.ErrConflict, "email %s already registered", tenant.Email)
	}
	if err := DB.Create(tenant).Error; err != nil {
		return errors.Wrap(err, "create tenant")
	}
	return nil
}

func (tenant *Tenant) Update() error {
	return errors.Wrap(DB.Model(tenant).Updates(tenant).Error, "update tenant")
}

// Delete soft-deletes the tenant and cascades to its productions, grants and
// invitations.
func (tenant *Tenant) Delete() error {
	if tenant.Id == 0 {
		return errors.Wrap(common.ErrInvalidInput, "tenant id is empty")
	}
	return DB.Transaction(func(tx *gorm.DB) error {
		var productions []Production
		if err := tx.Where("tenant_id = ?", tenant.Id).Find(&productions).Error; err != nil {
			return errors.Wrap(err, "list tenant productions")
		}
		for _, p := range productions {
			if err := deleteProductionTx(tx, p.Id); err != nil {
				return err
			}
		}
		if err := tx.Where("tenant_id = ?", tenant.Id).Delete(&CollaboratorGrant{}).Error; err != nil {
			return errors.Wrap(err, "delete tenant grants")
		}
		tenant.Status = TenantStatusDeleted
		if err := tx.Model(tenant).Update("status", TenantStatusDeleted).Error; err != nil {
			return errors.Wrap(err, "mark tenant deleted")
		}
		return nil
	})
}

// GetTenantQuota reads the live remaining quota in minutes.
func GetTenantQuota(id int) (float64, error) {
	var quota float64
	err := DB.Model(&Tenant{}).Where("id = ?", id).Select("quota_minutes").Find(&quota).Error
	if err != nil {
		return 0, errors.Wrapf(err, "get quota for tenant %d", id)
	}
	return quota, nil
}

// IncreaseTenantQuota adds minutes back to the tenant, used by refunds.
func IncreaseTenantQuota(id int, minutes float64) error {
	if minutes < 0 {
		return errors.Wrap(common.ErrInvalidInput, "refund minutes cannot be negative")
	}
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Model(&Tenant{}).Where("id = ?", id).
			Update("quota_minutes", gorm.Expr("quota_minutes + ?", minutes)).Error
	})
	return errors.Wrapf(err, "increase quota for tenant %d", id)
}

// DecreaseTenantQuota debits up to `minutes`, clamping the balance at zero:
// overage minutes consume no quota. The WHERE guard keeps the balance
// non-negative at every observable point; a zero row count means the tenant
// row vanished mid-debit.
func DecreaseTenantQuota(id int, minutes float64) error {
	if minutes < 0 {
		return errors.Wrap(common.ErrInvalidInput, "debit minutes cannot be negative")
	}
	var affected int64
	err := runWithSQLiteBusyRetry(nil, func() error {
		result := DB.Model(&Tenant{}).Where("id = ?", id).
			Update("quota_minutes", gorm.Expr(
				"CASE WHEN quota_minutes > ? THEN quota_minutes - ? ELSE 0 END", minutes, minutes))
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return errors.Wrapf(err, "decrease quota for tenant %d", id)
	}
	if affected == 0 {
		return errors.Wrapf(common.ErrNotFound, "tenant %d", id)
	}
	return nil
}

// RecordQuotaChange writes an audit log entry for a debit or refund.
func RecordQuotaChange(ctx context.Context, tenantId int, content string, minutes float64) {
	RecordLog(ctx, tenantId, LogTypeQuota, content, minutes)
}
