package videoqc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// CommandGenerator renders clips by shelling out to an external generation
// command. The command receives the prompt, scene number, and output path in
// STORYLOOM_PROMPT, STORYLOOM_SCENE, and STORYLOOM_OUT and must write the
// clip to STORYLOOM_OUT.
type CommandGenerator struct {
	Command string
	OutDir  string
}

// NewCommandGenerator creates a generator for the given shell command.
func NewCommandGenerator(command, outDir string) (*CommandGenerator, error) {
	if command == "" {
		return nil, fmt.Errorf("generation command is required")
	}
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &CommandGenerator{Command: command, OutDir: outDir}, nil
}

// Generate implements Generator.
func (g *CommandGenerator) Generate(ctx context.Context, prompt string, sceneNumber int) (string, error) {
	out := filepath.Join(g.OutDir, fmt.Sprintf("scene-%d-%s.mp4", sceneNumber, uuid.NewString()[:8]))

	cmd := exec.CommandContext(ctx, "sh", "-c", g.Command)
	cmd.Env = append(os.Environ(),
		"STORYLOOM_PROMPT="+prompt,
		fmt.Sprintf("STORYLOOM_SCENE=%d", sceneNumber),
		"STORYLOOM_OUT="+out,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("generation command for scene %d: %w (%s)", sceneNumber, err, firstLine(output))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("generation command for scene %d wrote no clip at %s", sceneNumber, out)
	}
	return out, nil
}
