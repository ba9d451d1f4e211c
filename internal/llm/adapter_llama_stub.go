//go:build !llama

package llm

// No-CGO stub compiled when the 'llama' build tag is NOT set. The real
// engine lives in adapter_llama.go.

import "context"

// Built indicates this binary was compiled with real llama support.
const Built = false

// LlamaConfig holds process-wide llama.cpp settings applied to every load.
type LlamaConfig struct {
	ContextSize int
	Threads     int
	GPULayers   int
}

type llamaEngine struct {
	cfg LlamaConfig
}

// NewLlamaEngine returns an engine that refuses to load anything.
func NewLlamaEngine(cfg LlamaConfig) Engine {
	return &llamaEngine{cfg: cfg}
}

func (e *llamaEngine) Load(ctx context.Context, path string, opts LoadOptions) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrDependencyUnavailable
}
