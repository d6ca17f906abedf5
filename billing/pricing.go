package billing

// Pure pricing arithmetic. All quantities carry minute precision of at least
// three decimal places; nothing here rounds, display formatting is the
// caller's concern.

// Estimate is the cost breakdown for a proposed render.
type Estimate struct {
	Tier           string  `json:"tier"`
	Minutes        float64 `json:"minutes"`
	QuotaConsumed  float64 `json:"quota_consumed"`
	OverageMinutes float64 `json:"overage_minutes"`
	BaseCost       float64 `json:"base_cost"`
	OverageCost    float64 `json:"overage_cost"`
	TotalCost      float64 `json:"total_cost"`
	Admissible     bool    `json:"admissible"`
}

// NeedsPayment reports whether confirming this render incurs charges.
func (e Estimate) NeedsPayment() bool {
	return e.TotalCost > 0
}

// Admissibility is the tri-state result of CheckAdmissible.
type Admissibility int

const (
	AdmissibleOK Admissibility = iota
	AdmissibleInsufficientQuota
	AdmissibleTierForbidsOverage
)

func (a Admissibility) String() string {
	switch a {
	case AdmissibleOK:
		return "ok"
	case AdmissibleInsufficientQuota:
		return "insufficient_quota"
	case AdmissibleTierForbidsOverage:
		return "tier_forbids_overage"
	default:
		return "unknown"
	}
}

// EstimateRender prices a render of `minutes` for a tenant in `tier` with
// `quotaRemaining` minutes left. Pure: identical inputs yield an identical
// Estimate.
func EstimateRender(tier Tier, quotaRemaining float64, minutes float64) Estimate {
	est := Estimate{
		Tier:    tier.Name,
		Minutes: minutes,
	}

	if tier.ConsumesQuota() {
		est.QuotaConsumed = min(minutes, quotaRemaining)
		est.OverageMinutes = max(0, minutes-quotaRemaining)
	} else {
		est.OverageMinutes = minutes
		est.BaseCost = minutes * tier.PerUnitRate
	}

	if tier.OveragePermitted {
		est.OverageCost = est.OverageMinutes * tier.OverageRate
	}
	est.TotalCost = est.BaseCost + est.OverageCost
	est.Admissible = est.OverageMinutes == 0 || tier.OveragePermitted
	return est
}

// CheckAdmissible decides whether the render may proceed at all. Only tiers
// that forbid overage (FREE) can refuse; everything else admits and bills.
func CheckAdmissible(tier Tier, quotaRemaining float64, minutes float64) Admissibility {
	est := EstimateRender(tier, quotaRemaining, minutes)
	if est.Admissible {
		return AdmissibleOK
	}
	return AdmissibleInsufficientQuota
}
