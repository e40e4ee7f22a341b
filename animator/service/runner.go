package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// exportMarkers are the stdout lines Blender's glTF exporter prints on a
// successful export. Blender exits 0 even when a script throws, so the
// marker check is what actually decides success.
var exportMarkers = []string{
	"Successfully exported",
	"Finished glTF 2.0 export",
}

// BlenderRunner renders scripts with a headless Blender subprocess.
type BlenderRunner struct {
	Binary  string
	Timeout time.Duration
	Log     *slog.Logger
}

func NewBlenderRunner(binary string, timeout time.Duration, log *slog.Logger) *BlenderRunner {
	if binary == "" {
		binary = "blender"
	}
	if timeout == 0 {
		timeout = 4 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &BlenderRunner{Binary: binary, Timeout: timeout, Log: log}
}

// Render runs Blender on scriptPath and checks that a GLB landed at
// outputPath. Autoexec stays disabled and factory startup keeps user
// preferences out of the render.
func (r *BlenderRunner) Render(ctx context.Context, scriptPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Binary,
		"--background",
		"--factory-startup",
		"--disable-autoexec",
		"--python", scriptPath,
		"--", outputPath,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	stdout := out.String()

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("blender timed out after %s", r.Timeout)
	}
	if err != nil {
		r.Log.Error("blender exited with error", "error", err, "output", tail(stdout, 2000))
		return fmt.Errorf("blender failed: %w", err)
	}

	exported := false
	for _, marker := range exportMarkers {
		if strings.Contains(stdout, marker) {
			exported = true
			break
		}
	}
	if !exported {
		r.Log.Error("no export marker in blender output", "output", tail(stdout, 2000))
		return fmt.Errorf("blender ran but did not export a GLB")
	}

	if info, err := os.Stat(outputPath); err != nil || info.Size() == 0 {
		return fmt.Errorf("blender reported success but %s is missing or empty", outputPath)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
