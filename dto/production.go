// Package dto holds the request and response shapes of the HTTP surface.
package dto

import (
	"github.com/playletworks/drama-api/model"
)

// CreateProductionRequest creates a production from raw inputs or, when
// TemplateId is set, from a stored template whose config and script skeleton
// pre-fill the absent fields.
type CreateProductionRequest struct {
	Script        string                  `json:"script"`
	CharacterRefs []string                `json:"character_refs"`
	NarrationRef  string                  `json:"narration_ref" binding:"omitempty,artifactref"`
	Config        *model.ProductionConfig `json:"config"`
	TemplateId    string                  `json:"template_id"`
}

// AdvanceRequest drives the workflow: mode step runs exactly one stage, mode
// run advances until the production leaves RUNNING. Async returns immediately
// and advances in the background.
type AdvanceRequest struct {
	Mode  string `json:"mode" binding:"omitempty,oneof=step run"`
	Async bool   `json:"async"`
}

// ListProductionsQuery is the paging/filter query of the list endpoint.
type ListProductionsQuery struct {
	Status string `form:"status"`
	Page   int    `form:"p"`
	Size   int    `form:"size"`
}

// ProductionPage is one page of productions plus the unpaged total.
type ProductionPage struct {
	Items []*model.Production `json:"items"`
	Total int64               `json:"total"`
}
