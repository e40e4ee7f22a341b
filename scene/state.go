// Package scene holds the persisted scene-state model extracted from generated
// Blender scripts, plus the modification diff applied to it between turns.
package scene

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object types understood by the parser and synthesizer.
const (
	TypeSphere   = "sphere"
	TypeCube     = "cube"
	TypeCylinder = "cylinder"
	TypePlane    = "plane"
	TypeCamera   = "camera"
	TypeLight    = "light"
)

// Material describes an object's surface. Fields are pointers where the
// parser may not find a value, so partial updates can merge key-wise.
type Material struct {
	Color            *[3]float64 `json:"color,omitempty"`
	Emission         *bool       `json:"emission,omitempty"`
	EmissionStrength float64     `json:"emissionStrength,omitempty"`
	Roughness        *float64    `json:"roughness,omitempty"`
	Metallic         *float64    `json:"metallic,omitempty"`
}

// Keyframe is a single literal (frame, value) pair captured from an
// animation loop. Values are kept as-parsed rather than interpreted.
type Keyframe struct {
	Frame int       `json:"frame"`
	Value []float64 `json:"value"`
}

// Animation is a simple keyframed track on one object property
// (location, rotation or scale).
type Animation struct {
	Property  string     `json:"property"`
	Keyframes []Keyframe `json:"keyframes"`
}

// Object is a single scene element. Cameras and lights are stored alongside
// geometry but excluded from user-facing descriptions.
type Object struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Position   [3]float64     `json:"position"`
	Rotation   [3]float64     `json:"rotation"`
	Scale      [3]float64     `json:"scale"`
	Material   *Material      `json:"material,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Animation  []Animation    `json:"animation,omitempty"`
}

// Settings holds scene-wide timing and environment values.
type Settings struct {
	FrameStart          int        `json:"frameStart"`
	FrameEnd            int        `json:"frameEnd"`
	FPS                 int        `json:"fps"`
	BackgroundColor     [3]float64 `json:"backgroundColor"`
	EnvironmentLighting *float64   `json:"environmentLighting,omitempty"`
}

// DefaultSettings are the values assumed when a script does not set them.
func DefaultSettings() Settings {
	return Settings{
		FrameStart:      1,
		FrameEnd:        250,
		FPS:             25,
		BackgroundColor: [3]float64{0.05, 0.05, 0.05},
	}
}

// State is one extracted scene, persisted per id and linked to the state it
// was derived from within a conversation thread.
type State struct {
	ID          string   `json:"id"`
	Objects     []Object `json:"objects"`
	Settings    Settings `json:"settings"`
	Description string   `json:"description"`
	CreatedAt   string   `json:"createdAt"`
	DerivedFrom string   `json:"derivedFrom,omitempty"`
	GLBURL      string   `json:"glbUrl,omitempty"`
}

// Clone returns a deep copy of the state so modifications never alias the
// persisted record.
func (s *State) Clone() *State {
	out := *s
	out.Objects = make([]Object, len(s.Objects))
	for i, obj := range s.Objects {
		out.Objects[i] = cloneObject(obj)
	}
	return &out
}

func cloneObject(obj Object) Object {
	out := obj
	if obj.Material != nil {
		m := *obj.Material
		if obj.Material.Color != nil {
			c := *obj.Material.Color
			m.Color = &c
		}
		if obj.Material.Emission != nil {
			e := *obj.Material.Emission
			m.Emission = &e
		}
		if obj.Material.Roughness != nil {
			r := *obj.Material.Roughness
			m.Roughness = &r
		}
		if obj.Material.Metallic != nil {
			mt := *obj.Material.Metallic
			m.Metallic = &mt
		}
		out.Material = &m
	}
	if obj.Properties != nil {
		out.Properties = make(map[string]any, len(obj.Properties))
		for k, v := range obj.Properties {
			out.Properties[k] = v
		}
	}
	if obj.Animation != nil {
		out.Animation = make([]Animation, len(obj.Animation))
		for i, anim := range obj.Animation {
			kfs := make([]Keyframe, len(anim.Keyframes))
			copy(kfs, anim.Keyframes)
			out.Animation[i] = Animation{Property: anim.Property, Keyframes: kfs}
		}
	}
	return out
}

// GeometryObjects returns the objects shown to the user, excluding cameras
// and lights which are retained in the state but not described.
func (s *State) GeometryObjects() []Object {
	var out []Object
	for _, obj := range s.Objects {
		if obj.Type != TypeCamera && obj.Type != TypeLight {
			out = append(out, obj)
		}
	}
	return out
}

// FindObject returns the object with the given id, or nil.
func (s *State) FindObject(id string) *Object {
	for i := range s.Objects {
		if s.Objects[i].ID == id {
			return &s.Objects[i]
		}
	}
	return nil
}

// Summary builds a short "Scene with 2 spheres, 1 cube" description counting
// geometry objects by type. Cameras and lights are not counted.
func (s *State) Summary() string {
	counts := make(map[string]int)
	for _, obj := range s.GeometryObjects() {
		counts[obj.Type]++
	}
	if len(counts) == 0 {
		return "Empty scene"
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		n := counts[t]
		suffix := ""
		if n > 1 {
			suffix = "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s%s", n, t, suffix))
	}
	return "Scene with " + strings.Join(parts, ", ")
}

// ObjectPatch is a partial Object carrying only the fields a modification
// changes. Nil fields are untouched; material and properties merge key-wise
// rather than replacing wholesale.
type ObjectPatch struct {
	Name       *string        `json:"name,omitempty"`
	Type       *string        `json:"type,omitempty"`
	Position   *[3]float64    `json:"position,omitempty"`
	Rotation   *[3]float64    `json:"rotation,omitempty"`
	Scale      *[3]float64    `json:"scale,omitempty"`
	Material   *Material      `json:"material,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Modification sources, exposed so callers can tell a well-understood edit
// from a keyword guess.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// Modification is the structured diff derived from a free-text edit request.
type Modification struct {
	ObjectChanges   map[string]ObjectPatch `json:"object_changes"`
	AddObjects      []Object               `json:"add_objects"`
	RemoveObjectIDs []string               `json:"remove_object_ids"`

	// Source records whether the diff came from the LLM analysis or the
	// keyword fallback. Not part of the wire contract.
	Source string `json:"-"`
}

// Empty reports whether the modification changes nothing.
func (m *Modification) Empty() bool {
	return len(m.ObjectChanges) == 0 && len(m.AddObjects) == 0 && len(m.RemoveObjectIDs) == 0
}

// Apply produces a new state derived from prior with the modification
// applied: changed fields patched (materials and properties merged), removed
// ids dropped, added objects appended with defaults filled. The result gets a
// fresh id, derivedFrom set to the prior state's id, and the new prompt as
// its description. Unknown ids in ObjectChanges are logged and skipped.
func Apply(prior *State, prompt string, mod *Modification) *State {
	next := prior.Clone()
	next.ID = uuid.New().String()
	next.DerivedFrom = prior.ID
	next.Description = prompt
	next.CreatedAt = time.Now().Format(time.RFC3339)
	next.GLBURL = ""

	for id, patch := range mod.ObjectChanges {
		obj := next.FindObject(id)
		if obj == nil {
			log.Printf("modification references unknown object %q, skipping", id)
			continue
		}
		applyPatch(obj, patch)
	}

	if len(mod.RemoveObjectIDs) > 0 {
		removed := make(map[string]bool, len(mod.RemoveObjectIDs))
		for _, id := range mod.RemoveObjectIDs {
			removed[id] = true
		}
		kept := next.Objects[:0]
		for _, obj := range next.Objects {
			if !removed[obj.ID] {
				kept = append(kept, obj)
			}
		}
		next.Objects = kept
	}

	for _, obj := range mod.AddObjects {
		next.Objects = append(next.Objects, FillDefaults(obj))
	}

	return next
}

func applyPatch(obj *Object, patch ObjectPatch) {
	if patch.Name != nil {
		obj.Name = *patch.Name
	}
	if patch.Type != nil {
		obj.Type = *patch.Type
	}
	if patch.Position != nil {
		obj.Position = *patch.Position
	}
	if patch.Rotation != nil {
		obj.Rotation = *patch.Rotation
	}
	if patch.Scale != nil {
		obj.Scale = *patch.Scale
	}
	if patch.Material != nil {
		obj.Material = mergeMaterial(obj.Material, patch.Material)
	}
	if patch.Properties != nil {
		if obj.Properties == nil {
			obj.Properties = make(map[string]any, len(patch.Properties))
		}
		for k, v := range patch.Properties {
			obj.Properties[k] = v
		}
	}
}

func mergeMaterial(old, update *Material) *Material {
	if old == nil {
		m := *update
		return &m
	}
	merged := *old
	if update.Color != nil {
		c := *update.Color
		merged.Color = &c
	}
	if update.Emission != nil {
		e := *update.Emission
		merged.Emission = &e
	}
	if update.EmissionStrength != 0 {
		merged.EmissionStrength = update.EmissionStrength
	}
	if update.Roughness != nil {
		r := *update.Roughness
		merged.Roughness = &r
	}
	if update.Metallic != nil {
		mt := *update.Metallic
		merged.Metallic = &mt
	}
	return &merged
}

// FillDefaults completes a freshly added object: missing id, name, scale and
// type-appropriate properties get sensible values so the synthesizer always
// has enough to emit a valid creation block.
func FillDefaults(obj Object) Object {
	if obj.ID == "" {
		obj.ID = uuid.New().String()
	}
	if obj.Type == "" {
		obj.Type = TypeSphere
	}
	if obj.Name == "" {
		obj.Name = "New " + strings.ToUpper(obj.Type[:1]) + obj.Type[1:]
	}
	if obj.Scale == ([3]float64{}) {
		obj.Scale = [3]float64{1, 1, 1}
	}
	if obj.Properties == nil {
		obj.Properties = make(map[string]any)
	}
	switch obj.Type {
	case TypeSphere:
		if _, ok := obj.Properties["radius"]; !ok {
			obj.Properties["radius"] = 1.0
		}
	case TypeCube, TypePlane:
		if _, ok := obj.Properties["size"]; !ok {
			obj.Properties["size"] = 2.0
		}
	case TypeCylinder:
		if _, ok := obj.Properties["radius"]; !ok {
			obj.Properties["radius"] = 1.0
		}
		if _, ok := obj.Properties["depth"]; !ok {
			obj.Properties["depth"] = 2.0
		}
	case TypeLight:
		if _, ok := obj.Properties["lightType"]; !ok {
			obj.Properties["lightType"] = "point"
		}
		if _, ok := obj.Properties["energy"]; !ok {
			obj.Properties["energy"] = 1.0
		}
	}
	return obj
}
