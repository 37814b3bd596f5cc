package inference

import "context"

// Generator produces a completion for a prompt. The service treats the
// underlying model runtime as a black box and depends only on this
// interface; CLIGenerator, which runs the llama.cpp CLI, is the
// implementation the llm-enclave binary uses.
type Generator interface {
	Generate(ctx context.Context, req PromptReq) (string, error)
}

// SessionParams mirrors the fixed context-window sizing a Generator backed
// by a real local model runtime is expected to apply.
type SessionParams struct {
	ContextSize int
	BatchSize   int
	UbatchSize  int
	ThreadCount int
}

// DefaultSessionParams returns the reference session sizing — a 4096-token
// context, 2048-token batch, 512-token micro-batch — threaded across
// threadCount (the caller passes runtime.NumCPU() in production).
func DefaultSessionParams(threadCount int) SessionParams {
	return SessionParams{ContextSize: 4096, BatchSize: 2048, UbatchSize: 512, ThreadCount: threadCount}
}
