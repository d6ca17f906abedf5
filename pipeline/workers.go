package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/model"
	"github.com/playletworks/drama-api/storage"
)

// Builtin workers: deterministic, storage-backed implementations that let the
// pipeline run end to end without external AI services. Production
// deployments swap real model backends in behind the same Worker interface.

// NewBuiltinWorkers wires the builtin implementation of every stage against
// the artifact store.
func NewBuiltinWorkers(store storage.ArtifactStore) Workers {
	return Workers{
		ScriptParse:    &scriptParseWorker{},
		CharacterModel: &characterModelWorker{store: store},
		Storyboard:     &storyboardWorker{store: store},
		LipSync:        &lipSyncWorker{store: store},
		SoundMatch:     &soundMatchWorker{},
		Render:         &renderWorker{store: store},
	}
}

func wrongInput(stage model.StageId, input any) error {
	return common.StagePermanentf("stage %s received input of type %T", stage, input)
}

// scriptParseWorker segments the script into scenes on blank lines and
// derives per-scene descriptors with simple lexical heuristics.
type scriptParseWorker struct{}

var emotionLexicon = map[string]string{
	"cry": "sad", "tears": "sad", "weep": "sad",
	"laugh": "happy", "smile": "happy", "joy": "happy",
	"shout": "angry", "slam": "angry", "rage": "angry",
	"whisper": "tense", "shadow": "tense", "silence": "tense",
}

func (w *scriptParseWorker) Run(ctx context.Context, input any) (any, error) {
	in, ok := input.(*ScriptParseInput)
	if !ok {
		return nil, wrongInput(model.StageScriptParse, input)
	}
	if strings.TrimSpace(in.Script) == "" {
		return nil, common.StagePermanentf("script is empty")
	}

	blocks := strings.Split(strings.ReplaceAll(in.Script, "\r\n", "\n"), "\n\n")
	var scenes []model.SceneDescriptor
	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		sceneType := "narration"
		if strings.Contains(block, ":") {
			sceneType = "dialogue"
		}

		words := strings.Fields(strings.ToLower(block))
		var actions, emotions, keywords []string
		seenEmotion := map[string]bool{}
		for _, word := range words {
			word = strings.Trim(word, ".,!?\"'()")
			if emotion, ok := emotionLexicon[word]; ok && !seenEmotion[emotion] {
				emotions = append(emotions, emotion)
				seenEmotion[emotion] = true
			}
			if strings.HasSuffix(word, "s") && len(word) > 4 && len(actions) < 3 {
				actions = append(actions, word)
			}
			if len(word) > 6 && len(keywords) < 5 {
				keywords = append(keywords, word)
			}
		}

		scenes = append(scenes, model.SceneDescriptor{
			SceneId:  fmt.Sprintf("scene-%03d", len(scenes)+1),
			Type:     sceneType,
			Actions:  actions,
			Emotions: emotions,
			Keywords: keywords,
			// ~2.5 words per second of screen time.
			DurationSeconds: float64(len(words)) / 2.5,
		})
	}
	if len(scenes) == 0 {
		return nil, common.StagePermanentf("script contains no scenes")
	}
	return &model.ScriptParseOutput{Scenes: scenes}, nil
}

// characterModelWorker derives one feature-model artifact per character
// reference image.
type characterModelWorker struct {
	store storage.ArtifactStore
}

func (w *characterModelWorker) Run(ctx context.Context, input any) (any, error) {
	in, ok := input.(*CharacterModelInput)
	if !ok {
		return nil, wrongInput(model.StageCharacterModel, input)
	}

	modelRefs := make([]string, 0, len(in.CharacterRefs))
	for i, charRef := range in.CharacterRefs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		features, err := json.Marshal(map[string]any{
			"character_index": i,
			"source_ref":      charRef,
			"embedding_dim":   256,
		})
		if err != nil {
			return nil, common.StagePermanentf("marshal character features: %v", err)
		}
		key := fmt.Sprintf("%s/character-model/%03d.json", in.ProductionId, i)
		ref, err := w.store.Put(ctx, key, features, "application/json")
		if err != nil {
			return nil, common.StageTransientf("store character model %d: %v", i, err)
		}
		modelRefs = append(modelRefs, string(ref))
	}
	return &model.CharacterModelOutput{ModelRefs: modelRefs}, nil
}

// storyboardWorker generates one frame artifact per scene. Frames are
// independent, so generation fans out with a bounded errgroup.
type storyboardWorker struct {
	store storage.ArtifactStore
}

func (w *storyboardWorker) Run(ctx context.Context, input any) (any, error) {
	in, ok := input.(*StoryboardInput)
	if !ok {
		return nil, wrongInput(model.StageStoryboard, input)
	}

	frameRefs := make([]string, len(in.Scenes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, scene := range in.Scenes {
		g.Go(func() error {
			frame, err := json.Marshal(map[string]any{
				"scene_id":   scene.SceneId,
				"aspect":     in.Config.Aspect,
				"quality":    in.Config.Quality,
				"model_refs": in.ModelRefs,
				"keywords":   scene.Keywords,
			})
			if err != nil {
				return common.StagePermanentf("marshal frame %d: %v", i, err)
			}
			key := fmt.Sprintf("%s/storyboard/frame-%04d.json", in.ProductionId, i)
			ref, err := w.store.Put(gctx, key, frame, "application/json")
			if err != nil {
				return common.StageTransientf("store frame %d: %v", i, err)
			}
			frameRefs[i] = string(ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &model.StoryboardOutput{FrameRefs: frameRefs}, nil
}

// lipSyncWorker derives per-frame phoneme cues from the narration audio.
// The builtin version verifies the narration artifact exists and spaces
// neutral cues evenly across frames.
type lipSyncWorker struct {
	store storage.ArtifactStore
}

func (w *lipSyncWorker) Run(ctx context.Context, input any) (any, error) {
	in, ok := input.(*LipSyncInput)
	if !ok {
		return nil, wrongInput(model.StageLipSync, input)
	}
	if in.NarrationRef == "" {
		// The registry skips this stage when narration is absent; reaching
		// here without narration is an engine bug.
		return nil, common.StagePermanentf("lip sync invoked without narration")
	}

	exists, err := w.store.Exists(ctx, storage.Ref(in.NarrationRef))
	if err != nil {
		return nil, common.StageTransientf("probe narration artifact: %v", err)
	}
	if !exists {
		return nil, common.StagePermanentf("narration artifact %s is missing", in.NarrationRef)
	}

	const cueSpacingMs = 400
	keyframes := make([]model.FrameKeyframes, 0, len(in.FrameRefs))
	for i := range in.FrameRefs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keyframes = append(keyframes, model.FrameKeyframes{
			FrameIndex: i,
			Cues: []model.PhonemeCue{
				{Phoneme: "AA", StartMs: int64(i * cueSpacingMs), DurationMs: cueSpacingMs / 2},
				{Phoneme: "M", StartMs: int64(i*cueSpacingMs) + cueSpacingMs/2, DurationMs: cueSpacingMs / 2},
			},
		})
	}
	return &model.LipSyncOutput{Keyframes: keyframes}, nil
}

// soundMatchWorker places stock sound effects by scene keywords.
type soundMatchWorker struct{}

var effectCatalog = map[string]string{
	"rain": "sfx-rain-01", "storm": "sfx-thunder-02", "door": "sfx-door-03",
	"phone": "sfx-ring-04", "car": "sfx-engine-05", "crowd": "sfx-crowd-06",
}

func (w *soundMatchWorker) Run(ctx context.Context, input any) (any, error) {
	in, ok := input.(*SoundMatchInput)
	if !ok {
		return nil, wrongInput(model.StageSoundMatch, input)
	}

	var placements []model.SoundPlacement
	for _, scene := range in.Scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, keyword := range scene.Keywords {
			effect, ok := effectCatalog[keyword]
			if !ok {
				continue
			}
			placements = append(placements, model.SoundPlacement{
				SceneId:         scene.SceneId,
				EffectId:        effect,
				StartSeconds:    0,
				DurationSeconds: min(scene.DurationSeconds, 3),
			})
			break
		}
	}
	return &model.SoundMatchOutput{Placements: placements}, nil
}

// renderWorker assembles the final video artifact. The builtin version
// writes a render manifest in place of an encoded video.
type renderWorker struct {
	store storage.ArtifactStore
}

func (w *renderWorker) Run(ctx context.Context, input any) (any, error) {
	in, ok := input.(*RenderInput)
	if !ok {
		return nil, wrongInput(model.StageRender, input)
	}
	if len(in.FrameRefs) == 0 {
		return nil, common.StagePermanentf("render invoked without storyboard frames")
	}

	manifest, err := json.Marshal(map[string]any{
		"frames":     in.FrameRefs,
		"narration":  in.NarrationRef,
		"keyframes":  in.Keyframes,
		"placements": in.Placements,
		"aspect":     in.Config.Aspect,
		"quality":    in.Config.Quality,
		"format":     in.Config.Format,
	})
	if err != nil {
		return nil, common.StagePermanentf("marshal render manifest: %v", err)
	}

	key := fmt.Sprintf("%s/render/final.%s", in.ProductionId, in.Config.Format)
	ref, err := w.store.Put(ctx, key, manifest, "video/"+in.Config.Format)
	if err != nil {
		return nil, common.StageTransientf("store final video: %v", err)
	}
	return &model.RenderOutput{
		VideoRef:        string(ref),
		DurationMinutes: in.Config.TargetMinutes,
	}, nil
}
