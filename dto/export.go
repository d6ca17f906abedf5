package dto

import (
	"github.com/playletworks/drama-api/billing"
)

type ExportEstimateRequest struct {
	Minutes float64 `json:"minutes" binding:"required,gt=0"`
}

type ExportConfirmRequest struct {
	Minutes   float64 `json:"minutes" binding:"required,gt=0"`
	Confirmed bool    `json:"confirmed"`
}

// ExportEstimateResponse is the pricing breakdown plus the consent flag the
// client needs to decide whether to prompt the user.
type ExportEstimateResponse struct {
	billing.Estimate
	NeedsPayment bool `json:"needs_payment"`
}
