package agent

import (
	"fmt"
	"strings"

	"github.com/df07/blender-llm/scene"
)

// intentSystemPrompt classifies the first turn of a thread. The model must
// tag its reply so routeIntent can parse it; untagged replies are treated as
// conversation.
const intentSystemPrompt = `You are an AI assistant that specializes in creating 3D animations.

Decide whether the user's latest message is a request to generate a 3D animation or general conversation.

Reply with exactly one of:
GENERATE_ANIMATION: <a one-line summary of the animation to create>
CONVERSATION: <your conversational reply to the user>

If you are unsure, reply with CONVERSATION and ask a clarifying question such as what they would like to animate.`

// blenderScriptPrompt is the fixed template the script generator fills with
// the user's animation description. The exact code shapes matter: the parser
// only understands scripts that follow these patterns.
const blenderScriptPrompt = `Create a Python script for Blender that will generate a 3D animation based on this description:
%s

The script must start with this exact code for handling the output path and imports:
` + "```python" + `
import bpy
import sys
import math
from math import sin, cos, pi, radians

# Get output path from command line arguments
if "--" not in sys.argv:
    raise Exception("Please provide the output path after '--'")
output_path = sys.argv[sys.argv.index("--") + 1]
` + "```" + `

Then include these essential components in this exact order:

1. Basic Setup:
   - Clear existing objects:
     bpy.ops.object.select_all(action='SELECT')
     bpy.ops.object.delete()
   - Set frame range (start=1, end=250 for a 10-second animation at 25fps):
     bpy.context.scene.frame_start = 1
     bpy.context.scene.frame_end = 250
   - Create and setup world (EXACTLY like this):
     world = bpy.data.worlds.new(name="Animation World")
     bpy.context.scene.world = world
     world.use_nodes = True

2. Camera Setup (EXACTLY like this):
   camera_data = bpy.data.cameras.new(name="Camera")
   camera_object = bpy.data.objects.new("Camera", camera_data)
   bpy.context.scene.collection.objects.link(camera_object)
   camera_object.location = (10, -10, 10)
   camera_object.rotation_euler = (radians(45), 0, radians(45))
   bpy.context.scene.camera = camera_object

3. Lighting Setup (EXACTLY like this):
   key_light_data = bpy.data.lights.new(name="Key Light", type='SUN')
   key_light_object = bpy.data.objects.new(name="Key Light", object_data=key_light_data)
   bpy.context.scene.collection.objects.link(key_light_object)
   key_light_object.location = (5, -5, 10)
   key_light_object.rotation_euler = (radians(30), radians(15), radians(20))
   key_light_data.energy = 5

4. Objects: ALWAYS use these exact creation patterns:
   For a UV Sphere:
   bpy.ops.mesh.primitive_uv_sphere_add(radius=1.0, location=(0, 0, 0))
   sphere = bpy.context.active_object
   For a Cube:
   bpy.ops.mesh.primitive_cube_add(size=2.0, location=(0, 0, 0))
   cube = bpy.context.active_object
   For a Cylinder:
   bpy.ops.mesh.primitive_cylinder_add(radius=1.0, depth=2.0, location=(0, 0, 0))
   cylinder = bpy.context.active_object

5. Animation: set the attribute then insert a keyframe, for example:
   cube.location = (1, 0, 0)
   cube.keyframe_insert(data_path="location", frame=10)

6. Animation Export: use EXACTLY this export code at the end of the script:
   bpy.ops.export_scene.gltf(
       filepath=output_path,
       export_format='GLB',
       export_animations=True,
       export_cameras=True,
       export_lights=True
   )

The script must run without a GUI (headless mode).
Never use subprocess, os.system, eval, exec, file or network I/O.
Do not use any attributes or methods not shown in the examples above.
Return the complete script in a single ` + "```python```" + ` block.`

// modificationSystemPrompt frames the scene-edit analysis call.
const modificationSystemPrompt = `You are an assistant that specializes in understanding requests to modify 3D scenes.
Your task is to analyze the user's request and convert it into specific modifications for objects in the scene.
You will receive a description of the current scene, a list of objects with their properties, and the user's request.
Identify which objects to modify, add, or remove, and what specific changes to make to their properties.`

// modificationHumanPrompt is filled with the scene description, the object
// list, and the user's request, and demands a strict JSON reply.
const modificationHumanPrompt = `Current scene description: %s

The scene contains these objects:
%s

The user wants to modify the scene with this request: "%s"

Provide your analysis as a valid JSON object in exactly this format:
` + "```json" + `
{
  "object_changes": {
    "object_id_1": {
      "position": [x, y, z],
      "rotation": [x, y, z],
      "scale": [x, y, z],
      "material": {
        "color": [r, g, b]
      }
    }
  },
  "add_objects": [
    {
      "type": "sphere",
      "name": "New Object Name",
      "position": [x, y, z],
      "rotation": [0, 0, 0],
      "scale": [1, 1, 1],
      "material": {
        "color": [r, g, b]
      },
      "properties": {
        "radius": 1.0
      }
    }
  ],
  "remove_object_ids": ["object_id_2"]
}
` + "```" + `

Only include fields that change. Use the exact object ids from the scene when
referring to existing objects. Colors are RGB values between 0 and 1.
Only include the JSON response with no additional text.`

// describeObjects renders the geometry objects of a state as one line each
// for the modification-analysis prompt: id, name, type, position, a rough
// color name, and the key size parameter.
func describeObjects(state *scene.State) string {
	var lines []string
	for _, obj := range state.GeometryObjects() {
		line := fmt.Sprintf("- id=%s name=%q type=%s position=(%.1f, %.1f, %.1f)",
			obj.ID, obj.Name, obj.Type, obj.Position[0], obj.Position[1], obj.Position[2])
		if obj.Material != nil && obj.Material.Color != nil {
			line += " color=" + colorName(*obj.Material.Color)
		}
		if size := keySizeParam(obj); size != "" {
			line += " " + size
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "(no objects)"
	}
	return strings.Join(lines, "\n")
}

func keySizeParam(obj scene.Object) string {
	switch obj.Type {
	case scene.TypeSphere, scene.TypeCylinder:
		if r, ok := obj.Properties["radius"].(float64); ok {
			return fmt.Sprintf("radius=%.1f", r)
		}
	case scene.TypeCube, scene.TypePlane:
		if s, ok := obj.Properties["size"].(float64); ok {
			return fmt.Sprintf("size=%.1f", s)
		}
	}
	return ""
}
