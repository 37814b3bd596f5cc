package inference

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeFakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness assumes a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-llama-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestCLIGeneratorReturnsTrimmedStdout(t *testing.T) {
	bin := writeFakeBinary(t, `echo "  hello from the model  "`)
	gen := NewCLIGenerator(bin, "/models/fake.gguf", DefaultSessionParams(2))

	out, err := gen.Generate(context.Background(), PromptReq{Prompt: "hi", NPredict: 8})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "hello from the model" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCLIGeneratorPropagatesFailure(t *testing.T) {
	bin := writeFakeBinary(t, `echo "boom" >&2; exit 1`)
	gen := NewCLIGenerator(bin, "/models/fake.gguf", DefaultSessionParams(2))

	_, err := gen.Generate(context.Background(), PromptReq{Prompt: "hi", NPredict: 8})
	if err == nil {
		t.Fatal("expected error from failing binary")
	}
}
