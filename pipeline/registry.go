// Package pipeline drives productions through the six-stage workflow:
// stage registry, workflow engine, export coordinator and progress reporter.
package pipeline

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/model"
)

// Typed input bundles, one per stage. The input selector builds them from the
// production record and fails with MissingPrerequisite when an earlier
// stage's output is absent.

type ScriptParseInput struct {
	Script string
	Config model.ProductionConfig
}

type CharacterModelInput struct {
	ProductionId  string
	CharacterRefs []string
}

type StoryboardInput struct {
	ProductionId string
	Scenes       []model.SceneDescriptor
	ModelRefs    []string
	Config       model.ProductionConfig
}

type LipSyncInput struct {
	ProductionId string
	NarrationRef string
	FrameRefs    []string
}

type SoundMatchInput struct {
	Scenes []model.SceneDescriptor
}

type RenderInput struct {
	ProductionId string
	FrameRefs    []string
	NarrationRef string
	Keyframes    []model.FrameKeyframes
	Placements   []model.SoundPlacement
	Config       model.ProductionConfig
}

// Worker executes one stage. Implementations must honour ctx cancellation;
// the engine aborts in-flight workers through it on cancel and timeout.
// Errors are classified with common.ErrStageTransient / ErrStagePermanent;
// anything unclassified is treated as permanent.
type Worker interface {
	Run(ctx context.Context, input any) (any, error)
}

// StageEntry is one registry row: the stage's weight in progress accounting,
// its input selector, skip rule, timeout and retry bounds, and the bound
// worker.
type StageEntry struct {
	Id     model.StageId
	Weight int

	// InputSelector builds the typed input bundle from production state.
	InputSelector func(p *model.Production) (any, error)
	// Skippable reports whether the stage may record an empty output instead
	// of running its worker.
	Skippable func(p *model.Production) bool
	// EmptyOutput is the output recorded when the stage is skipped.
	EmptyOutput func() any

	MaxAttempts    int
	defaultTimeout time.Duration

	Worker Worker
}

// Timeout returns the effective wall-clock limit, honouring per-stage
// configuration overrides.
func (s *StageEntry) Timeout() time.Duration {
	return config.StageTimeoutFor(string(s.Id), s.defaultTimeout)
}

// Registry is the fixed catalog of the six stages in execution order.
type Registry struct {
	entries map[model.StageId]*StageEntry
}

// Workers binds one worker per stage.
type Workers struct {
	ScriptParse    Worker
	CharacterModel Worker
	Storyboard     Worker
	LipSync        Worker
	SoundMatch     Worker
	Render         Worker
}

// NewRegistry builds the stage catalog with the given workers.
func NewRegistry(w Workers) *Registry {
	entries := []*StageEntry{
		{
			Id:     model.StageScriptParse,
			Weight: 5,
			InputSelector: func(p *model.Production) (any, error) {
				if p.Script == "" {
					return nil, errors.Wrap(common.ErrInvalidInput, "production has no script")
				}
				return &ScriptParseInput{Script: p.Script, Config: p.Config}, nil
			},
			defaultTimeout: config.StageTimeout,
			Worker:         w.ScriptParse,
		},
		{
			Id:     model.StageCharacterModel,
			Weight: 10,
			InputSelector: func(p *model.Production) (any, error) {
				return &CharacterModelInput{
					ProductionId:  p.Id,
					CharacterRefs: p.CharacterRefs,
				}, nil
			},
			defaultTimeout: config.StageTimeout,
			Worker:         w.CharacterModel,
		},
		{
			Id:     model.StageStoryboard,
			Weight: 40,
			InputSelector: func(p *model.Production) (any, error) {
				if p.StageOutputs.ScriptParse == nil {
					return nil, errors.Wrapf(common.ErrMissingPrerequisite,
						"storyboard needs %s output", model.StageScriptParse)
				}
				if p.StageOutputs.CharacterModel == nil {
					return nil, errors.Wrapf(common.ErrMissingPrerequisite,
						"storyboard needs %s output", model.StageCharacterModel)
				}
				return &StoryboardInput{
					ProductionId: p.Id,
					Scenes:       p.StageOutputs.ScriptParse.Scenes,
					ModelRefs:    p.StageOutputs.CharacterModel.ModelRefs,
					Config:       p.Config,
				}, nil
			},
			defaultTimeout: config.StageTimeout,
			Worker:         w.Storyboard,
		},
		{
			Id:     model.StageLipSync,
			Weight: 15,
			InputSelector: func(p *model.Production) (any, error) {
				if p.StageOutputs.Storyboard == nil {
					return nil, errors.Wrapf(common.ErrMissingPrerequisite,
						"lip sync needs %s output", model.StageStoryboard)
				}
				return &LipSyncInput{
					ProductionId: p.Id,
					NarrationRef: p.NarrationRef,
					FrameRefs:    p.StageOutputs.Storyboard.FrameRefs,
				}, nil
			},
			Skippable: func(p *model.Production) bool {
				return p.NarrationRef == ""
			},
			EmptyOutput: func() any {
				return &model.LipSyncOutput{Skipped: true}
			},
			defaultTimeout: config.StageTimeout,
			Worker:         w.LipSync,
		},
		{
			Id:     model.StageSoundMatch,
			Weight: 5,
			InputSelector: func(p *model.Production) (any, error) {
				if p.StageOutputs.ScriptParse == nil {
					return nil, errors.Wrapf(common.ErrMissingPrerequisite,
						"sound match needs %s output", model.StageScriptParse)
				}
				return &SoundMatchInput{Scenes: p.StageOutputs.ScriptParse.Scenes}, nil
			},
			defaultTimeout: config.StageTimeout,
			Worker:         w.SoundMatch,
		},
		{
			Id:     model.StageRender,
			Weight: 25,
			InputSelector: func(p *model.Production) (any, error) {
				if p.StageOutputs.Storyboard == nil {
					return nil, errors.Wrapf(common.ErrMissingPrerequisite,
						"render needs %s output", model.StageStoryboard)
				}
				if p.StageOutputs.LipSync == nil {
					return nil, errors.Wrapf(common.ErrMissingPrerequisite,
						"render needs %s output", model.StageLipSync)
				}
				if p.StageOutputs.SoundMatch == nil {
					return nil, errors.Wrapf(common.ErrMissingPrerequisite,
						"render needs %s output", model.StageSoundMatch)
				}
				return &RenderInput{
					ProductionId: p.Id,
					FrameRefs:    p.StageOutputs.Storyboard.FrameRefs,
					NarrationRef: p.NarrationRef,
					Keyframes:    p.StageOutputs.LipSync.Keyframes,
					Placements:   p.StageOutputs.SoundMatch.Placements,
					Config:       p.Config,
				}, nil
			},
			defaultTimeout: config.RenderTimeout,
			Worker:         w.Render,
		},
	}

	reg := &Registry{entries: make(map[model.StageId]*StageEntry, len(entries))}
	for _, entry := range entries {
		if entry.MaxAttempts == 0 {
			entry.MaxAttempts = config.RetryMaxAttempts
		}
		reg.entries[entry.Id] = entry
	}
	return reg
}

// Get looks up a stage entry; unknown ids indicate an engine bug.
func (r *Registry) Get(stage model.StageId) (*StageEntry, error) {
	entry, ok := r.entries[stage]
	if !ok {
		return nil, errors.Errorf("unknown stage %s", stage)
	}
	return entry, nil
}

// Weight returns the stage's progress weight, 0 for unknown stages.
func (r *Registry) Weight(stage model.StageId) int {
	if entry, ok := r.entries[stage]; ok {
		return entry.Weight
	}
	return 0
}

// TotalWeight is the sum of all stage weights.
func (r *Registry) TotalWeight() int {
	total := 0
	for _, entry := range r.entries {
		total += entry.Weight
	}
	return total
}
