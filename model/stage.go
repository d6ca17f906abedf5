package model

import (
	"github.com/Laisky/errors/v2"

	"github.com/playletworks/drama-api/common"
)

// StageId identifies one of the six pipeline stages. The zero value is not a
// valid stage.
type StageId string

const (
	StageScriptParse    StageId = "SCRIPT_PARSE"
	StageCharacterModel StageId = "CHARACTER_MODEL"
	StageStoryboard     StageId = "STORYBOARD"
	StageLipSync        StageId = "LIP_SYNC"
	StageSoundMatch     StageId = "SOUND_MATCH"
	StageRender         StageId = "RENDER"

	// StageTerminal marks a production with every stage output present.
	StageTerminal StageId = "TERMINAL"
)

// StageOrder is the fixed execution order. Stages run strictly in this
// sequence and each stage reads only outputs of strictly earlier stages.
var StageOrder = []StageId{
	StageScriptParse,
	StageCharacterModel,
	StageStoryboard,
	StageLipSync,
	StageSoundMatch,
	StageRender,
}

// SceneDescriptor is one parsed scene of the script.
type SceneDescriptor struct {
	SceneId         string   `json:"scene_id"`
	Type            string   `json:"type"`
	Actions         []string `json:"actions"`
	Emotions        []string `json:"emotions"`
	Keywords        []string `json:"keywords"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// ScriptParseOutput is the SCRIPT_PARSE result, stored inline.
type ScriptParseOutput struct {
	Scenes []SceneDescriptor `json:"scenes"`
}

// CharacterModelOutput references per-character feature models in the
// artifact store, ordered like the production's character refs.
type CharacterModelOutput struct {
	ModelRefs []string `json:"model_refs"`
}

// StoryboardOutput references the ordered frame images in the artifact store.
type StoryboardOutput struct {
	FrameRefs []string `json:"frame_refs"`
}

// PhonemeCue is a single mouth-shape cue within a frame.
type PhonemeCue struct {
	Phoneme    string `json:"phoneme"`
	StartMs    int64  `json:"start_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// FrameKeyframes carries the lip-sync cues for one storyboard frame.
type FrameKeyframes struct {
	FrameIndex int          `json:"frame_index"`
	Cues       []PhonemeCue `json:"cues"`
}

// LipSyncOutput is the LIP_SYNC result. Skipped is true when the production
// has no narration; the empty descriptor still counts as a completed stage.
type LipSyncOutput struct {
	Keyframes []FrameKeyframes `json:"keyframes"`
	Skipped   bool             `json:"skipped,omitempty"`
}

// SoundPlacement schedules one sound effect inside a scene.
type SoundPlacement struct {
	SceneId         string  `json:"scene_id"`
	EffectId        string  `json:"effect_id"`
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// SoundMatchOutput is the SOUND_MATCH result, stored inline.
type SoundMatchOutput struct {
	Placements []SoundPlacement `json:"placements"`
}

// RenderOutput references the final video artifact.
type RenderOutput struct {
	VideoRef        string  `json:"video_ref"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// StageOutputs is the persisted per-stage result set, one optional field per
// stage so the type system rules out unknown stages. An entry is set exactly
// once, when its stage completes, and never mutated afterwards.
type StageOutputs struct {
	ScriptParse    *ScriptParseOutput    `json:"script_parse,omitempty"`
	CharacterModel *CharacterModelOutput `json:"character_model,omitempty"`
	Storyboard     *StoryboardOutput     `json:"storyboard,omitempty"`
	LipSync        *LipSyncOutput        `json:"lip_sync,omitempty"`
	SoundMatch     *SoundMatchOutput     `json:"sound_match,omitempty"`
	Render         *RenderOutput         `json:"render,omitempty"`
}

// Has reports whether the stage has completed successfully.
func (so *StageOutputs) Has(stage StageId) bool {
	switch stage {
	case StageScriptParse:
		return so.ScriptParse != nil
	case StageCharacterModel:
		return so.CharacterModel != nil
	case StageStoryboard:
		return so.Storyboard != nil
	case StageLipSync:
		return so.LipSync != nil
	case StageSoundMatch:
		return so.SoundMatch != nil
	case StageRender:
		return so.Render != nil
	default:
		return false
	}
}

// Set records a stage output. It rejects double-writes and mismatched types,
// both of which indicate an engine bug.
func (so *StageOutputs) Set(stage StageId, output any) error {
	if so.Has(stage) {
		return errors.Errorf("stage %s output already recorded", stage)
	}
	switch stage {
	case StageScriptParse:
		v, ok := output.(*ScriptParseOutput)
		if !ok {
			return errors.Errorf("stage %s: unexpected output type %T", stage, output)
		}
		so.ScriptParse = v
	case StageCharacterModel:
		v, ok := output.(*CharacterModelOutput)
		if !ok {
			return errors.Errorf("stage %s: unexpected output type %T", stage, output)
		}
		so.CharacterModel = v
	case StageStoryboard:
		v, ok := output.(*StoryboardOutput)
		if !ok {
			return errors.Errorf("stage %s: unexpected output type %T", stage, output)
		}
		so.Storyboard = v
	case StageLipSync:
		v, ok := output.(*LipSyncOutput)
		if !ok {
			return errors.Errorf("stage %s: unexpected output type %T", stage, output)
		}
		so.LipSync = v
	case StageSoundMatch:
		v, ok := output.(*SoundMatchOutput)
		if !ok {
			return errors.Errorf("stage %s: unexpected output type %T", stage, output)
		}
		so.SoundMatch = v
	case StageRender:
		v, ok := output.(*RenderOutput)
		if !ok {
			return errors.Errorf("stage %s: unexpected output type %T", stage, output)
		}
		so.Render = v
	default:
		return errors.Wrapf(common.ErrInvalidInput, "unknown stage %s", stage)
	}
	return nil
}

// CompletedCount returns how many stages have outputs.
func (so *StageOutputs) CompletedCount() int {
	n := 0
	for _, stage := range StageOrder {
		if so.Has(stage) {
			n++
		}
	}
	return n
}

// FirstIncomplete returns the earliest stage without an output, or
// StageTerminal when every stage has completed. current_stage is always
// derived through this function, which keeps the prefix invariant: a stage
// output can only exist when all earlier outputs exist.
func (so *StageOutputs) FirstIncomplete() StageId {
	for _, stage := range StageOrder {
		if !so.Has(stage) {
			return stage
		}
	}
	return StageTerminal
}
