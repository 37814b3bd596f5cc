package inference

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CLIGenerator backs Generator by shelling out to a llama.cpp-compatible
// CLI binary (llama-cli or a compatible wrapper) baked into the enclave
// image. It is the Go-native equivalent of the reference runtime's
// llama-cpp-2 bindings: no cgo binding for that library is available here,
// so the enclave invokes the prebuilt binary directly instead.
type CLIGenerator struct {
	binaryPath string
	modelPath  string
	params     SessionParams
}

// NewCLIGenerator constructs a CLIGenerator. binaryPath is the path to the
// llama.cpp CLI binary baked into the enclave image, modelPath the GGUF
// model file it should load.
func NewCLIGenerator(binaryPath, modelPath string, params SessionParams) *CLIGenerator {
	return &CLIGenerator{binaryPath: binaryPath, modelPath: modelPath, params: params}
}

// Generate runs the model against req.Prompt and returns its completion.
func (g *CLIGenerator) Generate(ctx context.Context, req PromptReq) (string, error) {
	args := []string{
		"-m", g.modelPath,
		"-p", req.Prompt,
		"-n", strconv.Itoa(int(req.NPredict)),
		"-c", strconv.Itoa(g.params.ContextSize),
		"-b", strconv.Itoa(g.params.BatchSize),
		"--temp", strconv.FormatFloat(float64(req.Temperature), 'f', -1, 32),
		"--top-p", strconv.FormatFloat(float64(req.TopP), 'f', -1, 32),
		"-t", strconv.Itoa(g.params.ThreadCount),
		"--no-display-prompt",
	}

	cmd := exec.CommandContext(ctx, g.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("inference: run %s: %w: %s", g.binaryPath, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
