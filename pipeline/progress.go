package pipeline

import (
	"github.com/playletworks/drama-api/model"
)

// Baseline wall-clock seconds of a full pipeline run per quality tier, used
// for the remaining-time estimate.
var baselineSeconds = map[string]float64{
	"720p":  300,
	"1080p": 600,
	"4K":    1800,
}

const defaultBaselineSeconds = 600

// Progress is the derived view of a production for external observers. It is
// computed from the production record alone; for one production the fraction
// never decreases unless the production fails or is cancelled.
type Progress struct {
	ProductionId              string                 `json:"production_id"`
	Status                    string                 `json:"status"`
	CurrentStage              model.StageId          `json:"current_stage"`
	StagesCompleted           int                    `json:"stages_completed"`
	ProgressFraction          float64                `json:"progress_fraction"`
	EstimatedRemainingSeconds float64                `json:"estimated_remaining_seconds"`
	FinalVideoRef             string                 `json:"final_video_ref,omitempty"`
	LastError                 *model.ProductionError `json:"last_error,omitempty"`
}

// Reporter derives progress views against the stage registry's weights.
type Reporter struct {
	registry *Registry
}

func NewReporter(registry *Registry) *Reporter {
	return &Reporter{registry: registry}
}

// Report computes the progress view of the production.
func (r *Reporter) Report(p *model.Production) Progress {
	completed := 0
	for _, stage := range model.StageOrder {
		if p.StageOutputs.Has(stage) {
			completed += r.registry.Weight(stage)
		}
	}
	fraction := float64(completed) / float64(r.registry.TotalWeight())

	baseline, ok := baselineSeconds[p.Config.Quality]
	if !ok {
		baseline = defaultBaselineSeconds
	}

	return Progress{
		ProductionId:              p.Id,
		Status:                    p.Status,
		CurrentStage:              p.StageOutputs.FirstIncomplete(),
		StagesCompleted:           p.StageOutputs.CompletedCount(),
		ProgressFraction:          fraction,
		EstimatedRemainingSeconds: (1 - fraction) * baseline,
		FinalVideoRef:             p.FinalVideoRef,
		LastError:                 p.LastError,
	}
}
