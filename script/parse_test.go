package script

import (
	"math"
	"testing"

	"github.com/df07/blender-llm/scene"
)

const animationScript = `# A red cube orbiting a glowing sphere
import bpy
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

# Set frame range
bpy.context.scene.frame_start = 1
bpy.context.scene.frame_end = 120
bpy.context.scene.render.fps = 30

# Create and setup world
world = bpy.data.worlds.new(name="Animation World")
bpy.context.scene.world = world
world.use_nodes = True
bg_node = world.node_tree.nodes["Background"]
bg_node.inputs[0].default_value = (0.1, 0.1, 0.2, 1.0)
bg_node.inputs[1].default_value = 0.5

# Create camera
camera_data = bpy.data.cameras.new(name="Camera")
camera_object = bpy.data.objects.new("Camera", camera_data)
bpy.context.scene.collection.objects.link(camera_object)
camera_object.location = (10, -10, 10)
camera_object.rotation_euler = (radians(45), 0, radians(45))
bpy.context.scene.camera = camera_object

# Create key light
key_light_data = bpy.data.lights.new(name="Key Light", type='SUN')
key_light_object = bpy.data.objects.new(name="Key Light", object_data=key_light_data)
bpy.context.scene.collection.objects.link(key_light_object)
key_light_object.location = (5, -5, 10)
key_light_object.rotation_euler = (radians(30), radians(15), radians(20))
key_light_data.energy = 5

# Create cube
bpy.ops.mesh.primitive_cube_add(
    size=2.0,
    location=(3, 0, 0)
)
cube = bpy.context.active_object
cube.rotation_euler = (0, 0, 0)
cube.scale = (1, 1, 1)

# Create material for cube
material = bpy.data.materials.new(name="Cube_Material")
material.use_nodes = True
nodes = material.node_tree.nodes
links = material.node_tree.links
nodes.clear()
node_bsdf = nodes.new(type='ShaderNodeBsdfPrincipled')
node_bsdf.inputs["Base Color"].default_value = (1, 0, 0, 1.0)
node_bsdf.inputs["Roughness"].default_value = 0.4
node_output = nodes.new(type='ShaderNodeOutputMaterial')
links.new(node_bsdf.outputs[0], node_output.inputs[0])
if cube.data.materials:
    cube.data.materials[0] = material
else:
    cube.data.materials.append(material)

# Create sphere
bpy.ops.mesh.primitive_uv_sphere_add(
    radius=0.5,
    location=(0, 0, 0)
)
sphere = bpy.context.active_object
sphere.rotation_euler = (0, 0, 0)
sphere.scale = (1, 1, 1)

# Create material for sphere
material = bpy.data.materials.new(name="Sphere_Material")
material.use_nodes = True
nodes = material.node_tree.nodes
links = material.node_tree.links
nodes.clear()
node_emission = nodes.new(type='ShaderNodeEmission')
node_emission.inputs[0].default_value = (1, 0.8, 0.2, 1.0)
node_emission.inputs[1].default_value = 3
node_output = nodes.new(type='ShaderNodeOutputMaterial')
links.new(node_emission.outputs[0], node_output.inputs[0])

# Animation for cube (location)
cube.location = (3, 0, 0)
cube.keyframe_insert(data_path="location", frame=1)
cube.location = (0, 3, 0)
cube.keyframe_insert(data_path="location", frame=60)
cube.location = (3, 0, 0)
cube.keyframe_insert(data_path="location", frame=120)

# Export scene to GLB
bpy.ops.export_scene.gltf(
    filepath=output_path,
    export_format='GLB',
    export_animations=True,
    export_cameras=True,
    export_lights=True
)
`

func approx(t *testing.T, got, want float64, what string) {
	t.Helper()
	if math.Abs(got-want) > 1e-4 {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

func findByName(t *testing.T, state *scene.State, name string) *scene.Object {
	t.Helper()
	for i := range state.Objects {
		if state.Objects[i].Name == name {
			return &state.Objects[i]
		}
	}
	t.Fatalf("object %q not found in %+v", name, state.Objects)
	return nil
}

func TestParseFullScript(t *testing.T) {
	state := Parse(animationScript)

	if state.ID == "" {
		t.Error("no id assigned")
	}
	if state.Description != "A red cube orbiting a glowing sphere" {
		t.Errorf("description = %q", state.Description)
	}

	if state.Settings.FrameStart != 1 || state.Settings.FrameEnd != 120 || state.Settings.FPS != 30 {
		t.Errorf("frame settings = %+v", state.Settings)
	}
	if state.Settings.BackgroundColor != [3]float64{0.1, 0.1, 0.2} {
		t.Errorf("background = %v", state.Settings.BackgroundColor)
	}
	if state.Settings.EnvironmentLighting == nil || *state.Settings.EnvironmentLighting != 0.5 {
		t.Errorf("environment lighting = %v", state.Settings.EnvironmentLighting)
	}

	cube := findByName(t, state, "cube")
	if cube.Type != scene.TypeCube {
		t.Errorf("cube type = %q", cube.Type)
	}
	if cube.Position != [3]float64{3, 0, 0} {
		t.Errorf("cube position = %v", cube.Position)
	}
	if cube.Properties["size"] != 2.0 {
		t.Errorf("cube size = %v", cube.Properties["size"])
	}
	if cube.Material == nil || cube.Material.Color == nil || *cube.Material.Color != [3]float64{1, 0, 0} {
		t.Errorf("cube material = %+v", cube.Material)
	}
	if cube.Material.Roughness == nil || *cube.Material.Roughness != 0.4 {
		t.Errorf("cube roughness = %+v", cube.Material.Roughness)
	}
	if cube.Material.Emission != nil && *cube.Material.Emission {
		t.Error("cube marked emissive")
	}

	sphere := findByName(t, state, "sphere")
	if sphere.Type != scene.TypeSphere {
		t.Errorf("sphere type = %q", sphere.Type)
	}
	if sphere.Properties["radius"] != 0.5 {
		t.Errorf("sphere radius = %v", sphere.Properties["radius"])
	}
	if sphere.Material == nil || sphere.Material.Emission == nil || !*sphere.Material.Emission {
		t.Fatalf("sphere material = %+v, want emissive", sphere.Material)
	}
	if sphere.Material.EmissionStrength != 3 {
		t.Errorf("emission strength = %v", sphere.Material.EmissionStrength)
	}

	cam := findByName(t, state, "Camera")
	if cam.Type != scene.TypeCamera {
		t.Errorf("camera type = %q", cam.Type)
	}
	if cam.Position != [3]float64{10, -10, 10} {
		t.Errorf("camera position = %v", cam.Position)
	}
	approx(t, cam.Rotation[0], 45*3.14159/180, "camera rotation x")
	if active, _ := cam.Properties["isActive"].(bool); !active {
		t.Error("camera not marked active")
	}

	light := findByName(t, state, "Key Light")
	if light.Type != scene.TypeLight {
		t.Errorf("light type = %q", light.Type)
	}
	if light.Properties["lightType"] != "sun" {
		t.Errorf("light type property = %v", light.Properties["lightType"])
	}
	if light.Properties["energy"] != 5.0 {
		t.Errorf("light energy = %v", light.Properties["energy"])
	}
	if light.Position != [3]float64{5, -5, 10} {
		t.Errorf("light position = %v", light.Position)
	}
	approx(t, light.Rotation[1], 15*3.14159/180, "light rotation y")

	if len(cube.Animation) != 1 {
		t.Fatalf("cube animations = %+v", cube.Animation)
	}
	track := cube.Animation[0]
	if track.Property != "location" {
		t.Errorf("track property = %q", track.Property)
	}
	if len(track.Keyframes) != 3 {
		t.Fatalf("keyframes = %+v", track.Keyframes)
	}
	if track.Keyframes[1].Frame != 60 || track.Keyframes[1].Value[1] != 3 {
		t.Errorf("middle keyframe = %+v", track.Keyframes[1])
	}
	if len(sphere.Animation) != 0 {
		t.Errorf("sphere animations = %+v", sphere.Animation)
	}
}

func TestParseDefaultsWhenAbsent(t *testing.T) {
	state := Parse("import bpy\nimport sys\noutput_path = sys.argv[sys.argv.index(\"--\") + 1]")

	def := scene.DefaultSettings()
	if state.Settings.FrameStart != def.FrameStart ||
		state.Settings.FrameEnd != def.FrameEnd ||
		state.Settings.FPS != def.FPS {
		t.Errorf("settings = %+v, want defaults", state.Settings)
	}
	if state.Settings.BackgroundColor != def.BackgroundColor {
		t.Errorf("background = %v", state.Settings.BackgroundColor)
	}
	if len(state.Objects) != 0 {
		t.Errorf("objects = %+v", state.Objects)
	}
	if state.Description != "Empty scene" {
		t.Errorf("description = %q", state.Description)
	}
}

func TestParseSkipsComputedKeyframes(t *testing.T) {
	src := `import bpy
bpy.ops.mesh.primitive_cube_add(
    size=2.0,
    location=(0, 0, 0)
)
cube = bpy.context.active_object
cube.location = (frame * 0.1, 0, 0)
cube.keyframe_insert(data_path="location", frame=10)
cube.location = (1, 0, 0)
cube.keyframe_insert(data_path="location", frame=20)
`
	state := Parse(src)
	cube := findByName(t, state, "cube")
	if len(cube.Animation) != 1 || len(cube.Animation[0].Keyframes) != 1 {
		t.Fatalf("animations = %+v, want only the literal keyframe", cube.Animation)
	}
	if cube.Animation[0].Keyframes[0].Frame != 20 {
		t.Errorf("kept keyframe = %+v", cube.Animation[0].Keyframes[0])
	}
}
