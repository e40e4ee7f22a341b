package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/df07/blender-llm/agent/llm"
	"github.com/df07/blender-llm/script"
)

// ScriptGenerator turns an animation description into a validated Blender
// script via a single LLM call.
type ScriptGenerator struct {
	registry *llm.Registry
	model    string
}

func NewScriptGenerator(registry *llm.Registry, model string) *ScriptGenerator {
	return &ScriptGenerator{registry: registry, model: model}
}

// Generate asks the model for a script, extracts it from any markdown
// fencing, repairs the usual mistakes, and validates the result.
func (g *ScriptGenerator) Generate(ctx context.Context, description string) (string, error) {
	provider, err := g.registry.ProviderFor(g.model)
	if err != nil {
		return "", err
	}

	resp, err := provider.GenerateText(ctx, &llm.GenerateRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Text: fmt.Sprintf(blenderScriptPrompt, description)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("script generation: %w", err)
	}

	raw := ExtractScript(resp.Text)
	if raw == "" {
		return "", fmt.Errorf("script generation: no python code in model response")
	}

	fixed := FixCommonScriptIssues(raw)
	fixed = EnsureOutputPath(fixed)

	if result := script.Validate(fixed); !result.Valid {
		return "", fmt.Errorf("generated script rejected: %s", result.Error)
	}
	return fixed, nil
}

var (
	rePythonFence = regexp.MustCompile("(?s)```python\\s*\\n(.*?)```")
	reAnyFence    = regexp.MustCompile("(?s)```\\s*\\n(.*?)```")
)

// ExtractScript pulls the script body out of a model response. Fenced
// python blocks win, then any fenced block, then the raw text if it
// already looks like a Blender script.
func ExtractScript(response string) string {
	if m := rePythonFence.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reAnyFence.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	trimmed := strings.TrimSpace(response)
	if strings.Contains(trimmed, "import bpy") {
		return trimmed
	}
	return ""
}

// scriptFixes repairs API mistakes models make often enough to special-case:
// removed 2.7x-era arguments and misnamed export parameters.
var scriptFixes = []struct{ old, new string }{
	{"enter_editmode=False, ", ""},
	{"enter_editmode=False", ""},
	{"align='WORLD', ", ""},
	{"align='WORLD'", ""},
	{"export_cameras=True, export_lights=True, export_animations=True", "export_animations=True,\n    export_cameras=True,\n    export_lights=True"},
	{"use_selection=False,", ""},
	{"export_apply=True,", ""},
	{"filepath=output_file", "filepath=output_path"},
}

// FixCommonScriptIssues applies the textual fix-ups and strips any
// trailing commas the removals leave behind in call argument lists.
func FixCommonScriptIssues(s string) string {
	for _, f := range scriptFixes {
		s = strings.ReplaceAll(s, f.old, f.new)
	}
	s = strings.ReplaceAll(s, ", )", ")")
	s = strings.ReplaceAll(s, ",)", ")")
	return s
}

const outputPathBlock = `
# Get output path from command line arguments
if "--" not in sys.argv:
    raise Exception("Please provide the output path after '--'")
output_path = sys.argv[sys.argv.index("--") + 1]
`

// EnsureOutputPath injects the argv handling block after the imports when
// the model forgot it, adding the sys import if that is missing too.
func EnsureOutputPath(s string) string {
	if strings.Contains(s, "sys.argv.index(\"--\")") || strings.Contains(s, "sys.argv.index('--')") {
		return s
	}
	if !strings.Contains(s, "import sys") {
		s = strings.Replace(s, "import bpy", "import bpy\nimport sys", 1)
	}
	lines := strings.Split(s, "\n")
	last := 0
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "import ") || strings.HasPrefix(t, "from ") {
			last = i
		}
	}
	var out []string
	out = append(out, lines[:last+1]...)
	out = append(out, outputPathBlock)
	out = append(out, lines[last+1:]...)
	return strings.Join(out, "\n")
}
