package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/df07/blender-llm/agent/llm"
	"github.com/df07/blender-llm/scene"
)

// Analyzer turns a modification request against an existing scene into a
// structured diff. The LLM path is primary; when the model call fails or
// its JSON cannot be salvaged, a keyword fallback produces a best-effort
// diff so the turn still progresses.
type Analyzer struct {
	registry *llm.Registry
	model    string
	logger   *slog.Logger
}

func NewAnalyzer(registry *llm.Registry, model string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{registry: registry, model: model, logger: logger}
}

// Analyze returns a modification diff for prompt against state. It never
// returns an error for model failures; it falls back to heuristics and
// records the provenance in Modification.Source.
func (a *Analyzer) Analyze(ctx context.Context, state *scene.State, prompt string) *scene.Modification {
	mod, err := a.analyzeLLM(ctx, state, prompt)
	if err != nil {
		a.logger.Warn("modification analysis falling back to keywords", "error", err)
		mod = fallbackModification(state, prompt)
	}
	return mod
}

func (a *Analyzer) analyzeLLM(ctx context.Context, state *scene.State, prompt string) (*scene.Modification, error) {
	provider, err := a.registry.ProviderFor(a.model)
	if err != nil {
		return nil, err
	}
	resp, err := provider.GenerateText(ctx, &llm.GenerateRequest{
		Model:        a.model,
		SystemPrompt: modificationSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Text: fmt.Sprintf(modificationHumanPrompt, state.Description, describeObjects(state), prompt)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("modification analysis: %w", err)
	}

	mod, err := DecodeModification(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("modification analysis: %w", err)
	}
	remapObjectIDs(mod, state)
	mod.Source = scene.SourceLLM
	return mod, nil
}

var (
	reJSONFence     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// DecodeModification parses a model reply into a Modification, tolerating
// the usual contract violations: markdown fencing, surrounding prose,
// // comments, and trailing commas.
func DecodeModification(response string) (*scene.Modification, error) {
	raw := response
	if m := reJSONFence.FindStringSubmatch(response); m != nil {
		raw = m[1]
	}
	// Trim to the outermost object in case of surrounding prose.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	raw = raw[start : end+1]
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	var mod scene.Modification
	if err := json.Unmarshal([]byte(raw), &mod); err != nil {
		return nil, fmt.Errorf("invalid modification JSON: %w", err)
	}
	return &mod, nil
}

// remapObjectIDs rewrites keys in ObjectChanges and entries in
// RemoveObjectIDs that are not real ids but do match an object's id or
// name loosely. Unmatched keys are left alone; Apply logs and skips them.
func remapObjectIDs(mod *scene.Modification, state *scene.State) {
	resolve := func(key string) string {
		if state.FindObject(key) != nil {
			return key
		}
		lk := strings.ToLower(key)
		for _, obj := range state.Objects {
			ln := strings.ToLower(obj.Name)
			li := strings.ToLower(obj.ID)
			if ln == lk || strings.Contains(ln, lk) || strings.Contains(lk, ln) ||
				strings.Contains(li, lk) || strings.Contains(lk, li) {
				return obj.ID
			}
		}
		return key
	}

	if len(mod.ObjectChanges) > 0 {
		remapped := make(map[string]scene.ObjectPatch, len(mod.ObjectChanges))
		for key, patch := range mod.ObjectChanges {
			remapped[resolve(key)] = patch
		}
		mod.ObjectChanges = remapped
	}
	for i, id := range mod.RemoveObjectIDs {
		mod.RemoveObjectIDs[i] = resolve(id)
	}
}

// namedColors are the fallback's vocabulary, RGB in [0,1].
var namedColors = map[string][3]float64{
	"red":    {1, 0, 0},
	"green":  {0, 1, 0},
	"blue":   {0, 0, 1},
	"yellow": {1, 1, 0},
	"orange": {1, 0.5, 0},
	"purple": {0.5, 0, 0.5},
	"pink":   {1, 0.4, 0.7},
	"cyan":   {0, 1, 1},
	"white":  {1, 1, 1},
	"black":  {0, 0, 0},
	"gray":   {0.5, 0.5, 0.5},
}

// colorName buckets an RGB triple to the nearest named color for prompt
// descriptions.
func colorName(c [3]float64) string {
	best, bestDist := "gray", math.Inf(1)
	for name, ref := range namedColors {
		d := 0.0
		for i := 0; i < 3; i++ {
			diff := c[i] - ref[i]
			d += diff * diff
		}
		if d < bestDist {
			best, bestDist = name, d
		}
	}
	return best
}

var shapeWords = []string{scene.TypeSphere, scene.TypeCube, scene.TypeCylinder, scene.TypePlane}

// fallbackModification builds a diff from keywords alone. It targets
// objects whose type or name appears in the prompt, or every geometry
// object when nothing matches.
func fallbackModification(state *scene.State, prompt string) *scene.Modification {
	lp := strings.ToLower(prompt)
	mod := &scene.Modification{
		ObjectChanges: map[string]scene.ObjectPatch{},
		Source:        scene.SourceHeuristic,
	}

	targets := targetObjects(state, lp)

	if strings.Contains(lp, "remove") || strings.Contains(lp, "delete") || strings.Contains(lp, "eliminate") {
		for _, obj := range targets {
			mod.RemoveObjectIDs = append(mod.RemoveObjectIDs, obj.ID)
		}
		return mod
	}

	if strings.Contains(lp, "add") {
		for _, shape := range shapeWords {
			if strings.Contains(lp, shape) {
				obj := scene.Object{Type: shape, Scale: [3]float64{1, 1, 1}}
				if c, ok := promptColor(lp); ok {
					obj.Material = &scene.Material{Color: &c}
				}
				mod.AddObjects = append(mod.AddObjects, obj)
				return mod
			}
		}
	}

	for _, obj := range targets {
		patch := scene.ObjectPatch{}
		changed := false

		if c, ok := promptColor(lp); ok {
			cc := c
			patch.Material = &scene.Material{Color: &cc}
			changed = true
		}
		if strings.Contains(lp, "move") || strings.Contains(lp, "position") || strings.Contains(lp, "translate") {
			pos := obj.Position
			pos[0] += 2
			patch.Position = &pos
			changed = true
		}
		if strings.Contains(lp, "rotate") || strings.Contains(lp, "turn") || strings.Contains(lp, "spin") {
			rot := obj.Rotation
			rot[1] += 0.5
			patch.Rotation = &rot
			changed = true
		}
		if strings.Contains(lp, "smaller") || strings.Contains(lp, "shrink") {
			patch.Scale = scaled(obj.Scale, 0.75)
			changed = true
		} else if strings.Contains(lp, "bigger") || strings.Contains(lp, "larger") || strings.Contains(lp, "grow") ||
			strings.Contains(lp, "scale") || strings.Contains(lp, "size") {
			// Bare "scale"/"size" with no direction reads as enlarge.
			patch.Scale = scaled(obj.Scale, 1.5)
			changed = true
		}

		if changed {
			mod.ObjectChanges[obj.ID] = patch
		}
	}
	return mod
}

func targetObjects(state *scene.State, lowerPrompt string) []scene.Object {
	var matched []scene.Object
	for _, obj := range state.GeometryObjects() {
		if strings.Contains(lowerPrompt, obj.Type) ||
			(obj.Name != "" && strings.Contains(lowerPrompt, strings.ToLower(obj.Name))) {
			matched = append(matched, obj)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	return state.GeometryObjects()
}

func promptColor(lowerPrompt string) ([3]float64, bool) {
	for name, c := range namedColors {
		if strings.Contains(lowerPrompt, name) {
			return c, true
		}
	}
	return [3]float64{}, false
}

func scaled(s [3]float64, f float64) *[3]float64 {
	out := [3]float64{s[0] * f, s[1] * f, s[2] * f}
	return &out
}
