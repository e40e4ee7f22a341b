package script

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/df07/blender-llm/scene"
)

// Compiled once; every extraction step is independent and tolerant of
// absence, substituting defaults when a pattern is not found.
var (
	reFrameStart = regexp.MustCompile(`bpy\.context\.scene\.frame_start\s*=\s*(\d+)`)
	reFrameEnd   = regexp.MustCompile(`bpy\.context\.scene\.frame_end\s*=\s*(\d+)`)
	reFPS        = regexp.MustCompile(`bpy\.context\.scene\.render\.fps\s*=\s*(\d+)`)

	reActiveObject = regexp.MustCompile(`(\w+)\s*=\s*bpy\.context\.active_object`)

	rePrimitives = map[string]*regexp.Regexp{
		scene.TypeSphere:   regexp.MustCompile(`(?s)bpy\.ops\.mesh\.primitive_uv_sphere_add\(\s*(?:radius=([0-9.eE+-]+)\s*,?\s*)?(?:location=\(([^)]+)\))?\s*\)`),
		scene.TypeCube:     regexp.MustCompile(`(?s)bpy\.ops\.mesh\.primitive_cube_add\(\s*(?:size=([0-9.eE+-]+)\s*,?\s*)?(?:location=\(([^)]+)\))?\s*\)`),
		scene.TypeCylinder: regexp.MustCompile(`(?s)bpy\.ops\.mesh\.primitive_cylinder_add\(\s*(?:radius=([0-9.eE+-]+)\s*,?\s*)?(?:depth=([0-9.eE+-]+)\s*,?\s*)?(?:location=\(([^)]+)\))?\s*\)`),
		scene.TypePlane:    regexp.MustCompile(`(?s)bpy\.ops\.mesh\.primitive_plane_add\(\s*(?:size=([0-9.eE+-]+)\s*,?\s*)?(?:location=\(([^)]+)\))?\s*\)`),
	}

	reCamera    = regexp.MustCompile(`(?s)camera_data\s*=\s*bpy\.data\.cameras\.new\(name="([^"]+)"\).*?camera_object\s*=\s*bpy\.data\.objects\.new\("([^"]+)",\s*camera_data\).*?camera_object\.location\s*=\s*\(([^)]+)\).*?camera_object\.rotation_euler\s*=\s*\(([^)]+)\)`)
	reActiveCam = regexp.MustCompile(`bpy\.context\.scene\.camera\s*=\s*camera_object`)

	reLightData = regexp.MustCompile(`(\w+)_data\s*=\s*bpy\.data\.lights\.new\(name="([^"]+)",\s*type='([^']+)'\)`)

	reWorldColor    = regexp.MustCompile(`(?:world\.node_tree\.nodes\["Background"\]|bg_node)\.inputs\[0\]\.default_value\s*=\s*\(([^)]+)\)`)
	reWorldStrength = regexp.MustCompile(`(?:world\.node_tree\.nodes\["Background"\]|bg_node)\.inputs\[1\]\.default_value\s*=\s*([0-9.eE+-]+)`)

	reEmissionColor    = regexp.MustCompile(`node_emission\.inputs\[0\]\.default_value\s*=\s*\(([^)]+)\)`)
	reEmissionStrength = regexp.MustCompile(`node_emission\.inputs\[1\]\.default_value\s*=\s*([0-9.eE+-]+)`)
	reBaseColor        = regexp.MustCompile(`node_bsdf\.inputs\["Base Color"\]\.default_value\s*=\s*\(([^)]+)\)`)
	reRoughness        = regexp.MustCompile(`node_bsdf\.inputs\["Roughness"\]\.default_value\s*=\s*([0-9.eE+-]+)`)
	reMetallic         = regexp.MustCompile(`node_bsdf\.inputs\["Metallic"\]\.default_value\s*=\s*([0-9.eE+-]+)`)

	// Unrolled keyframe pairs: an attribute assignment immediately followed
	// by a keyframe_insert on the same variable.
	reKeyframePair = regexp.MustCompile(`(?m)^(\w+)\.(location|rotation_euler|scale)\s*=\s*\(([^)]+)\)\s*\n\s*(\w+)\.keyframe_insert\(data_path="(\w+)",\s*frame=(\d+)\)`)

	reRadians     = regexp.MustCompile(`radians\(([^)]+)\)`)
	reCommentLine = regexp.MustCompile(`\A#\s*(.+)`)
)

// Parse extracts scene state from a Blender script. The returned state has a
// freshly generated id and no derivedFrom link; the caller fills metadata and
// history linkage. Extraction is best-effort: scripts that do not follow the
// generator's code shapes yield partial or empty state, never an error.
func Parse(src string) *scene.State {
	state := &scene.State{
		ID:        uuid.New().String(),
		Settings:  scene.DefaultSettings(),
		CreatedAt: time.Now().Format(time.RFC3339),
	}

	parseFrameSettings(src, &state.Settings)
	state.Objects = parseGeometry(src)
	state.Objects = append(state.Objects, parseCameras(src)...)
	state.Objects = append(state.Objects, parseLights(src)...)
	parseAnimations(src, state.Objects)
	parseWorld(src, &state.Settings)
	state.Description = describe(src, state)

	return state
}

func parseFrameSettings(src string, settings *scene.Settings) {
	if m := reFrameStart.FindStringSubmatch(src); m != nil {
		settings.FrameStart, _ = strconv.Atoi(m[1])
	}
	if m := reFrameEnd.FindStringSubmatch(src); m != nil {
		settings.FrameEnd, _ = strconv.Atoi(m[1])
	}
	if m := reFPS.FindStringSubmatch(src); m != nil {
		settings.FPS, _ = strconv.Atoi(m[1])
	}
}

// parseGeometry finds every "variable = bpy.context.active_object"
// assignment and pairs it with the nearest preceding primitive creation
// call. Assignments with no preceding primitive are skipped (cameras and
// lights are handled separately).
func parseGeometry(src string) []scene.Object {
	assignments := reActiveObject.FindAllStringSubmatchIndex(src, -1)
	var objects []scene.Object

	for i, assign := range assignments {
		name := src[assign[2]:assign[3]]
		before := src[:assign[0]]

		objType, creation := nearestPrimitive(before)
		if objType == "" {
			continue
		}

		// Region for secondary scans: from this assignment to the next
		// object's assignment, or end of script.
		regionEnd := len(src)
		if i+1 < len(assignments) {
			regionEnd = assignments[i+1][0]
		}
		region := src[assign[1]:regionEnd]

		obj := scene.Object{
			ID:       uuid.New().String(),
			Name:     name,
			Type:     objType,
			Scale:    [3]float64{1, 1, 1},
			Rotation: [3]float64{0, 0, 0},
		}

		switch objType {
		case scene.TypeSphere:
			obj.Properties = map[string]any{"radius": floatOr(creation[0], 1.0)}
			obj.Position = vec3(parseVector(creation[1], "0, 0, 0"))
		case scene.TypeCube, scene.TypePlane:
			obj.Properties = map[string]any{"size": floatOr(creation[0], 2.0)}
			obj.Position = vec3(parseVector(creation[1], "0, 0, 0"))
		case scene.TypeCylinder:
			obj.Properties = map[string]any{
				"radius": floatOr(creation[0], 1.0),
				"depth":  floatOr(creation[1], 2.0),
			}
			obj.Position = vec3(parseVector(creation[2], "0, 0, 0"))
		}

		if m := objectAttr(name, "rotation_euler").FindStringSubmatch(region); m != nil {
			obj.Rotation = vec3(parseVector(m[1], ""))
		}
		if m := objectAttr(name, "scale").FindStringSubmatch(region); m != nil {
			obj.Scale = vec3(parseVector(m[1], ""))
		}
		obj.Material = parseMaterial(region)

		objects = append(objects, obj)
	}

	return objects
}

// nearestPrimitive returns the type and captured arguments of the primitive
// creation call closest to the end of the given prefix.
func nearestPrimitive(before string) (string, []string) {
	bestPos := -1
	var bestType string
	var bestArgs []string

	for objType, re := range rePrimitives {
		matches := re.FindAllStringSubmatchIndex(before, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		if last[0] > bestPos {
			bestPos = last[0]
			bestType = objType
			bestArgs = submatches(before, last)
		}
	}
	return bestType, bestArgs
}

// submatches extracts the capture-group strings from a FindSubmatchIndex
// result, with "" for groups that did not participate.
func submatches(s string, idx []int) []string {
	var out []string
	for g := 1; g*2 < len(idx); g++ {
		if idx[g*2] < 0 {
			out = append(out, "")
		} else {
			out = append(out, s[idx[g*2]:idx[g*2+1]])
		}
	}
	return out
}

func objectAttr(name, attr string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(name) + `\.` + attr + `\s*=\s*\(([^)]+)\)`)
}

// parseMaterial scans an object's script region for the material node
// assignments the generator emits. Returns nil when nothing is found.
func parseMaterial(region string) *scene.Material {
	var mat scene.Material
	found := false

	if strings.Contains(region, "ShaderNodeEmission") {
		if m := reEmissionColor.FindStringSubmatch(region); m != nil {
			c := vec3(parseVector(m[1], ""))
			mat.Color = &c
			found = true
		}
		if m := reEmissionStrength.FindStringSubmatch(region); m != nil {
			glow := true
			mat.Emission = &glow
			mat.EmissionStrength = floatOr(m[1], 1.0)
			found = true
		}
	} else {
		if m := reBaseColor.FindStringSubmatch(region); m != nil {
			c := vec3(parseVector(m[1], ""))
			mat.Color = &c
			found = true
		}
		if m := reRoughness.FindStringSubmatch(region); m != nil {
			r := floatOr(m[1], 0)
			mat.Roughness = &r
			found = true
		}
		if m := reMetallic.FindStringSubmatch(region); m != nil {
			mt := floatOr(m[1], 0)
			mat.Metallic = &mt
			found = true
		}
	}

	if !found {
		return nil
	}
	return &mat
}

func parseCameras(src string) []scene.Object {
	var cameras []scene.Object
	for _, m := range reCamera.FindAllStringSubmatch(src, -1) {
		cameras = append(cameras, scene.Object{
			ID:       uuid.New().String(),
			Name:     m[2],
			Type:     scene.TypeCamera,
			Position: vec3(parseVector(m[3], "")),
			Rotation: vec3(parseVector(m[4], "")),
			Scale:    [3]float64{1, 1, 1},
			Properties: map[string]any{
				"isActive": reActiveCam.MatchString(src),
			},
		})
	}
	return cameras
}

// parseLights finds each light-data creation and runs secondary scans keyed
// on the captured variable prefix for object creation, location, rotation,
// and energy.
func parseLights(src string) []scene.Object {
	var lights []scene.Object
	for _, m := range reLightData.FindAllStringSubmatch(src, -1) {
		prefix, name, lightType := m[1], m[2], strings.ToLower(m[3])
		q := regexp.QuoteMeta(prefix)

		objRe := regexp.MustCompile(q + `_object\s*=\s*bpy\.data\.objects\.new\((?:name="[^"]+",\s*object_data=` + q + `_data|"[^"]+",\s*` + q + `_data)\)`)
		if !objRe.MatchString(src) {
			continue
		}

		light := scene.Object{
			ID:    uuid.New().String(),
			Name:  name,
			Type:  scene.TypeLight,
			Scale: [3]float64{1, 1, 1},
			Properties: map[string]any{
				"lightType": lightType,
				"energy":    1.0,
			},
		}

		if lm := regexp.MustCompile(q + `_object\.location\s*=\s*\(([^)]+)\)`).FindStringSubmatch(src); lm != nil {
			light.Position = vec3(parseVector(lm[1], ""))
		}
		if rm := regexp.MustCompile(q + `_object\.rotation_euler\s*=\s*\(([^)]+)\)`).FindStringSubmatch(src); rm != nil {
			light.Rotation = vec3(parseVector(rm[1], ""))
		}
		if em := regexp.MustCompile(q + `_data\.energy\s*=\s*([0-9.eE+-]+)`).FindStringSubmatch(src); em != nil {
			light.Properties["energy"] = floatOr(em[1], 1.0)
		}

		lights = append(lights, light)
	}
	return lights
}

// parseAnimations collects literal (frame, value) keyframe pairs and attaches
// them to the matching object by variable name. Only literal numeric triples
// are captured; computed values inside loops are not interpreted.
func parseAnimations(src string, objects []scene.Object) {
	type key struct {
		name string
		prop string
	}
	tracks := make(map[key][]scene.Keyframe)
	var order []key

	for _, m := range reKeyframePair.FindAllStringSubmatch(src, -1) {
		if m[1] != m[4] {
			continue
		}
		prop := canonicalProperty(m[5])
		if prop == "" || !isLiteralVector(m[3]) {
			continue
		}
		frame, _ := strconv.Atoi(m[6])
		k := key{name: m[1], prop: prop}
		if _, seen := tracks[k]; !seen {
			order = append(order, k)
		}
		tracks[k] = append(tracks[k], scene.Keyframe{
			Frame: frame,
			Value: parseVector(m[3], ""),
		})
	}

	for _, k := range order {
		for i := range objects {
			if objects[i].Name == k.name {
				objects[i].Animation = append(objects[i].Animation, scene.Animation{
					Property:  k.prop,
					Keyframes: sortKeyframes(tracks[k]),
				})
				break
			}
		}
	}
}

func canonicalProperty(dataPath string) string {
	switch dataPath {
	case "location":
		return "location"
	case "rotation_euler":
		return "rotation"
	case "scale":
		return "scale"
	}
	return ""
}

func sortKeyframes(kfs []scene.Keyframe) []scene.Keyframe {
	sort.SliceStable(kfs, func(i, j int) bool { return kfs[i].Frame < kfs[j].Frame })
	return kfs
}

func isLiteralVector(s string) bool {
	for _, comp := range strings.Split(s, ",") {
		comp = strings.TrimSpace(comp)
		if _, err := strconv.ParseFloat(comp, 64); err != nil {
			return false
		}
	}
	return true
}

func parseWorld(src string, settings *scene.Settings) {
	if m := reWorldColor.FindStringSubmatch(src); m != nil {
		values := parseVector(m[1], "")
		if len(values) >= 3 {
			settings.BackgroundColor = [3]float64{values[0], values[1], values[2]}
		}
	}
	if m := reWorldStrength.FindStringSubmatch(src); m != nil {
		strength := floatOr(m[1], 0)
		settings.EnvironmentLighting = &strength
	}
}

// describe uses a comment on the script's first line if present, otherwise
// counts geometry objects by type. Comments further in are boilerplate.
func describe(src string, state *scene.State) string {
	if m := reCommentLine.FindStringSubmatch(src); m != nil {
		return strings.TrimSpace(m[1])
	}
	return state.Summary()
}

// parseVector splits a vector literal into floats. Angle literals wrapped in
// radians(x) are converted from degrees; any other non-numeric component
// becomes 0.
func parseVector(s, fallback string) []float64 {
	if s == "" {
		s = fallback
	}
	if s == "" {
		return nil
	}
	var values []float64
	for _, comp := range strings.Split(s, ",") {
		comp = strings.TrimSpace(comp)
		if rm := reRadians.FindStringSubmatch(comp); rm != nil {
			deg, err := strconv.ParseFloat(strings.TrimSpace(rm[1]), 64)
			if err != nil {
				values = append(values, 0)
			} else {
				values = append(values, deg*3.14159/180.0)
			}
			continue
		}
		v, err := strconv.ParseFloat(comp, 64)
		if err != nil {
			values = append(values, 0)
			continue
		}
		values = append(values, v)
	}
	return values
}

func vec3(values []float64) [3]float64 {
	var out [3]float64
	for i := 0; i < len(values) && i < 3; i++ {
		out[i] = values[i]
	}
	return out
}

func floatOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}
