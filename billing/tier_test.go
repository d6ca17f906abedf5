package billing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/model"
)

func resetTierTable(t *testing.T) {
	t.Helper()
	prevOverrides := config.TierTableOverrides
	t.Cleanup(func() {
		config.TierTableOverrides = prevOverrides
		tierTableMu.Lock()
		tierTable = defaultTierTable()
		tierTableMu.Unlock()
	})
}

func TestLoadTierOverridesAppliesPartialFields(t *testing.T) {
	resetTierTable(t)
	config.TierTableOverrides = `{"PROFESSIONAL": {"overage_rate": 8, "monthly_quota_minutes": 80}}`

	require.NoError(t, LoadTierOverrides())

	tier := GetTier(model.TierProfessional)
	require.InDelta(t, 8, tier.OverageRate, 1e-9)
	require.InDelta(t, 80, tier.MonthlyQuotaMinutes, 1e-9)
	// Untouched fields keep their defaults.
	require.InDelta(t, 299, tier.MonthlyPrice, 1e-9)
	require.True(t, tier.OveragePermitted)
}

func TestLoadTierOverridesRejectsUnknownTier(t *testing.T) {
	resetTierTable(t)
	config.TierTableOverrides = `{"PLATINUM": {"overage_rate": 1}}`
	require.Error(t, LoadTierOverrides())
}

func TestLoadTierOverridesRejectsMalformedJSON(t *testing.T) {
	resetTierTable(t)
	config.TierTableOverrides = `{"PROFESSIONAL": `
	require.Error(t, LoadTierOverrides())
}

func TestLoadTierOverridesEmptyIsNoop(t *testing.T) {
	resetTierTable(t)
	config.TierTableOverrides = ""
	require.NoError(t, LoadTierOverrides())
	require.Equal(t, defaultTierTable()[model.TierFree], GetTier(model.TierFree))
}
