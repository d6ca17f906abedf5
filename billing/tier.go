// Package billing is the quota and pricing engine: it decides whether a
// proposed render may proceed for a tenant's tier and at what cost, and owns
// the per-tenant debit/refund path.
package billing

import (
	"encoding/json"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/logger"
	"github.com/playletworks/drama-api/model"
)

// Tier describes one subscription category. Currency is a single unit;
// display formatting is the caller's concern.
type Tier struct {
	Name                string  `json:"name"`
	MonthlyQuotaMinutes float64 `json:"monthly_quota_minutes"`
	MonthlyPrice        float64 `json:"monthly_price"`
	OveragePermitted    bool    `json:"overage_permitted"`
	OverageRate         float64 `json:"overage_rate"`
	PerUnitRate         float64 `json:"per_unit_rate"`
}

// ConsumesQuota reports whether render minutes draw down the monthly quota.
// PAY_PER_USE bills everything at the per-unit rate instead.
func (t Tier) ConsumesQuota() bool {
	return t.Name != model.TierPayPerUse
}

func defaultTierTable() map[string]Tier {
	return map[string]Tier{
		model.TierFree: {
			Name:                model.TierFree,
			MonthlyQuotaMinutes: 5,
		},
		model.TierPayPerUse: {
			Name:             model.TierPayPerUse,
			OveragePermitted: true,
			PerUnitRate:      10,
		},
		model.TierProfessional: {
			Name:                model.TierProfessional,
			MonthlyQuotaMinutes: 50,
			MonthlyPrice:        299,
			OveragePermitted:    true,
			OverageRate:         12,
		},
		model.TierEnterprise: {
			Name:                model.TierEnterprise,
			MonthlyQuotaMinutes: 200,
			MonthlyPrice:        999,
			OveragePermitted:    true,
			OverageRate:         10,
		},
	}
}

var (
	tierTable   map[string]Tier
	tierTableMu sync.RWMutex
)

func init() {
	tierTable = defaultTierTable()
}

// tierOverride mirrors Tier with pointer fields so a deployment can override
// individual attributes; absent keys fall back to the defaults.
type tierOverride struct {
	MonthlyQuotaMinutes *float64 `json:"monthly_quota_minutes"`
	MonthlyPrice        *float64 `json:"monthly_price"`
	OveragePermitted    *bool    `json:"overage_permitted"`
	OverageRate         *float64 `json:"overage_rate"`
	PerUnitRate         *float64 `json:"per_unit_rate"`
}

// LoadTierOverrides applies DRAMA_TIER_TABLE_OVERRIDES (or the config file's
// tier_table_overrides) over the built-in table. Unknown tier names are
// rejected so typos fail loudly at startup.
func LoadTierOverrides() error {
	raw := config.TierTableOverrides
	if raw == "" {
		return nil
	}
	var overrides map[string]tierOverride
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		return errors.Wrap(err, "parse tier table overrides")
	}

	tierTableMu.Lock()
	defer tierTableMu.Unlock()
	for name, ov := range overrides {
		tier, ok := tierTable[name]
		if !ok {
			return errors.Errorf("tier override for unknown tier %q", name)
		}
		if ov.MonthlyQuotaMinutes != nil {
			tier.MonthlyQuotaMinutes = *ov.MonthlyQuotaMinutes
		}
		if ov.MonthlyPrice != nil {
			tier.MonthlyPrice = *ov.MonthlyPrice
		}
		if ov.OveragePermitted != nil {
			tier.OveragePermitted = *ov.OveragePermitted
		}
		if ov.OverageRate != nil {
			tier.OverageRate = *ov.OverageRate
		}
		if ov.PerUnitRate != nil {
			tier.PerUnitRate = *ov.PerUnitRate
		}
		tierTable[name] = tier
		logger.Logger.Info("tier override applied", zap.String("tier", name))
	}
	return nil
}

// GetTier returns the tier definition for the given name; unknown names fall
// back to FREE, the most restrictive tier.
func GetTier(name string) Tier {
	tierTableMu.RLock()
	defer tierTableMu.RUnlock()
	if tier, ok := tierTable[name]; ok {
		return tier
	}
	logger.Logger.Warn("unknown tier, falling back to FREE", zap.String("tier", name))
	return tierTable[model.TierFree]
}
