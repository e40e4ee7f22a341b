package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/df07/blender-llm/scene"
)

// Generate synthesizes a complete Blender script from scene state. The fixed
// header and export footer are emitted unconditionally, so the output always
// satisfies Validate's required-component check.
//
// Emission order is fixed: header and output-path handling, object clearing
// and frame/world setup, cameras, lights, geometry objects (with materials
// and keyframes), export call.
func Generate(state *scene.State) string {
	var b strings.Builder

	if state.Description != "" {
		fmt.Fprintf(&b, "# %s\n", strings.SplitN(state.Description, "\n", 2)[0])
	}

	b.WriteString(`import bpy
import sys
import math
from math import sin, cos, pi, radians

# Get output path from command line arguments
if "--" not in sys.argv:
    raise Exception("Please provide the output path after '--'")
output_path = sys.argv[sys.argv.index("--") + 1]

# Clear existing objects
bpy.ops.object.select_all(action='SELECT')
bpy.ops.object.delete()

`)

	fmt.Fprintf(&b, "# Set frame range\nbpy.context.scene.frame_start = %d\nbpy.context.scene.frame_end = %d\nbpy.context.scene.render.fps = %d\n\n",
		state.Settings.FrameStart, state.Settings.FrameEnd, state.Settings.FPS)

	bg := state.Settings.BackgroundColor
	fmt.Fprintf(&b, `# Create and setup world
world = bpy.data.worlds.new(name="Animation World")
bpy.context.scene.world = world
world.use_nodes = True
bg_node = world.node_tree.nodes["Background"]
bg_node.inputs[0].default_value = (%s, %s, %s, 1.0)
`, num(bg[0]), num(bg[1]), num(bg[2]))
	if state.Settings.EnvironmentLighting != nil {
		fmt.Fprintf(&b, "bg_node.inputs[1].default_value = %s\n", num(*state.Settings.EnvironmentLighting))
	}

	// Variable names for cross-references from animation blocks.
	varNames := make(map[string]string, len(state.Objects))

	for _, obj := range state.Objects {
		if obj.Type == scene.TypeCamera {
			emitCamera(&b, obj)
			varNames[obj.ID] = "camera_object"
		}
	}
	for _, obj := range state.Objects {
		if obj.Type == scene.TypeLight {
			varNames[obj.ID] = emitLight(&b, obj)
		}
	}
	for _, obj := range state.Objects {
		if obj.Type != scene.TypeCamera && obj.Type != scene.TypeLight {
			varNames[obj.ID] = emitGeometry(&b, obj)
		}
	}

	for _, obj := range state.Objects {
		if varName, ok := varNames[obj.ID]; ok {
			emitAnimations(&b, obj, varName)
		}
	}

	b.WriteString(`
# Export scene to GLB
bpy.ops.export_scene.gltf(
    filepath=output_path,
    export_format='GLB',
    export_animations=True,
    export_cameras=True,
    export_lights=True
)
`)

	return b.String()
}

func emitCamera(b *strings.Builder, obj scene.Object) {
	fmt.Fprintf(b, `
# Create camera
camera_data = bpy.data.cameras.new(name="%s")
camera_object = bpy.data.objects.new("%s", camera_data)
bpy.context.scene.collection.objects.link(camera_object)
camera_object.location = %s
camera_object.rotation_euler = %s
`, obj.Name, obj.Name, tuple(obj.Position), tuple(obj.Rotation))

	if active, _ := obj.Properties["isActive"].(bool); active {
		b.WriteString(`
# Make this the active camera
bpy.context.scene.camera = camera_object
`)
	}
}

func emitLight(b *strings.Builder, obj scene.Object) string {
	lightType := "POINT"
	if t, ok := obj.Properties["lightType"].(string); ok && t != "" {
		lightType = strings.ToUpper(t)
	}
	energy := 1.0
	if e, ok := toFloat(obj.Properties["energy"]); ok {
		energy = e
	}
	prefix := pyIdent(obj.Name)

	fmt.Fprintf(b, `
# Create %s
%s_data = bpy.data.lights.new(name="%s", type='%s')
%s_object = bpy.data.objects.new(name="%s", object_data=%s_data)
bpy.context.scene.collection.objects.link(%s_object)
%s_object.location = %s
%s_object.rotation_euler = %s
%s_data.energy = %s
`, obj.Name,
		prefix, obj.Name, lightType,
		prefix, obj.Name, prefix,
		prefix,
		prefix, tuple(obj.Position),
		prefix, tuple(obj.Rotation),
		prefix, num(energy))

	return prefix + "_object"
}

func emitGeometry(b *strings.Builder, obj scene.Object) string {
	varName := pyIdent(obj.Name)

	fmt.Fprintf(b, "\n# Create %s\n", obj.Name)
	switch obj.Type {
	case scene.TypeSphere:
		fmt.Fprintf(b, "bpy.ops.mesh.primitive_uv_sphere_add(\n    radius=%s,\n    location=%s\n)\n",
			num(propFloat(obj, "radius", 1.0)), tuple(obj.Position))
	case scene.TypeCube:
		fmt.Fprintf(b, "bpy.ops.mesh.primitive_cube_add(\n    size=%s,\n    location=%s\n)\n",
			num(propFloat(obj, "size", 2.0)), tuple(obj.Position))
	case scene.TypeCylinder:
		fmt.Fprintf(b, "bpy.ops.mesh.primitive_cylinder_add(\n    radius=%s,\n    depth=%s,\n    location=%s\n)\n",
			num(propFloat(obj, "radius", 1.0)), num(propFloat(obj, "depth", 2.0)), tuple(obj.Position))
	case scene.TypePlane:
		fmt.Fprintf(b, "bpy.ops.mesh.primitive_plane_add(\n    size=%s,\n    location=%s\n)\n",
			num(propFloat(obj, "size", 2.0)), tuple(obj.Position))
	default:
		// Unknown geometry types fall back to a sphere so the scene still
		// renders something where the object should be.
		fmt.Fprintf(b, "bpy.ops.mesh.primitive_uv_sphere_add(\n    radius=%s,\n    location=%s\n)\n",
			num(propFloat(obj, "radius", 1.0)), tuple(obj.Position))
	}

	fmt.Fprintf(b, "%s = bpy.context.active_object\n", varName)
	fmt.Fprintf(b, "%s.rotation_euler = %s\n", varName, tuple(obj.Rotation))
	fmt.Fprintf(b, "%s.scale = %s\n", varName, tuple(obj.Scale))

	if obj.Material != nil {
		emitMaterial(b, obj, varName)
	}
	return varName
}

func emitMaterial(b *strings.Builder, obj scene.Object, varName string) {
	mat := obj.Material
	color := [3]float64{0.8, 0.8, 0.8}
	if mat.Color != nil {
		color = *mat.Color
	}

	fmt.Fprintf(b, `
# Create material for %s
material = bpy.data.materials.new(name="%s_Material")
material.use_nodes = True
nodes = material.node_tree.nodes
links = material.node_tree.links
nodes.clear()
`, obj.Name, obj.Name)

	if mat.Emission != nil && *mat.Emission {
		strength := mat.EmissionStrength
		if strength == 0 {
			strength = 1.0
		}
		fmt.Fprintf(b, `node_emission = nodes.new(type='ShaderNodeEmission')
node_emission.inputs[0].default_value = (%s, %s, %s, 1.0)
node_emission.inputs[1].default_value = %s
node_output = nodes.new(type='ShaderNodeOutputMaterial')
links.new(node_emission.outputs[0], node_output.inputs[0])
`, num(color[0]), num(color[1]), num(color[2]), num(strength))
	} else {
		fmt.Fprintf(b, `node_bsdf = nodes.new(type='ShaderNodeBsdfPrincipled')
node_bsdf.inputs["Base Color"].default_value = (%s, %s, %s, 1.0)
`, num(color[0]), num(color[1]), num(color[2]))
		if mat.Roughness != nil {
			fmt.Fprintf(b, "node_bsdf.inputs[\"Roughness\"].default_value = %s\n", num(*mat.Roughness))
		}
		if mat.Metallic != nil {
			fmt.Fprintf(b, "node_bsdf.inputs[\"Metallic\"].default_value = %s\n", num(*mat.Metallic))
		}
		b.WriteString(`node_output = nodes.new(type='ShaderNodeOutputMaterial')
links.new(node_bsdf.outputs[0], node_output.inputs[0])
`)
	}

	fmt.Fprintf(b, `if %s.data.materials:
    %s.data.materials[0] = material
else:
    %s.data.materials.append(material)
`, varName, varName, varName)
}

func emitAnimations(b *strings.Builder, obj scene.Object, varName string) {
	for _, anim := range obj.Animation {
		attr, dataPath := animationTarget(anim.Property)
		if attr == "" || len(anim.Keyframes) == 0 {
			continue
		}
		fmt.Fprintf(b, "\n# Animation for %s (%s)\n", obj.Name, anim.Property)
		for _, kf := range anim.Keyframes {
			fmt.Fprintf(b, "%s.%s = %s\n", varName, attr, tuple(vec3of(kf.Value)))
			fmt.Fprintf(b, "%s.keyframe_insert(data_path=\"%s\", frame=%d)\n", varName, dataPath, kf.Frame)
		}
	}
}

func animationTarget(property string) (attr, dataPath string) {
	switch property {
	case "location", "position":
		return "location", "location"
	case "rotation":
		return "rotation_euler", "rotation_euler"
	case "scale":
		return "scale", "scale"
	}
	return "", ""
}

// pyIdent lowers a display name into a Python variable name.
func pyIdent(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_', r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "obj"
	}
	return b.String()
}

func propFloat(obj scene.Object, key string, fallback float64) float64 {
	if v, ok := toFloat(obj.Properties[key]); ok {
		return v
	}
	return fallback
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func tuple(v [3]float64) string {
	return fmt.Sprintf("(%s, %s, %s)", num(v[0]), num(v[1]), num(v[2]))
}

func vec3of(values []float64) [3]float64 {
	var out [3]float64
	for i := 0; i < len(values) && i < 3; i++ {
		out[i] = values[i]
	}
	return out
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
