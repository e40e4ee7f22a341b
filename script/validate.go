// Package script is the codec between Blender Python scripts and the scene
// state model: Validate checks a script against the safety deny/allow lists,
// Parse extracts scene state from a script, and Generate re-synthesizes a
// script from scene state.
//
// Parse and Generate are two halves of one format: the parser only
// understands the code shapes the generator (and the LLM prompt template)
// produce. Scripts written any other way yield partial or empty state rather
// than errors. Keep the two in sync and covered by the round-trip tests.
package script

import (
	"fmt"
	"strings"
)

// Result is the outcome of validating a script.
type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// forbiddenTerms are substrings that indicate arbitrary code or process
// execution, raw file access, or network calls. This is a textual heuristic,
// not a sandbox: it rejects the obvious patterns and guarantees nothing more.
var forbiddenTerms = []string{
	"subprocess",
	"os.system",
	"eval(",
	"exec(",
	"__import__",
	"import requests",
	"import urllib",
	"open(",
}

// requiredComponents are substrings every runnable animation script must
// contain: the Blender API import, the CLI output-path plumbing, and the
// fixed GLB export call.
var requiredComponents = []string{
	"import bpy",
	"import sys",
	"sys.argv",
	"bpy.ops.export_scene.gltf(",
	"filepath=output_path",
	"export_format='GLB'",
}

// Validate scans a script for forbidden terms and required components.
// It performs no parsing and has no side effects.
func Validate(script string) Result {
	for _, term := range forbiddenTerms {
		if strings.Contains(script, term) {
			return Result{Error: fmt.Sprintf("script contains forbidden term: %s", term)}
		}
	}
	for _, component := range requiredComponents {
		if !strings.Contains(script, component) {
			return Result{Error: fmt.Sprintf("script missing required component: %s", component)}
		}
	}
	return Result{Valid: true}
}
