//go:build llama

package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// Built indicates this binary was compiled with real llama support.
const Built = true

// LlamaConfig holds process-wide llama.cpp settings applied to every load.
type LlamaConfig struct {
	ContextSize int
	Threads     int
	GPULayers   int
}

type llamaEngine struct {
	cfg LlamaConfig
}

// NewLlamaEngine returns the in-process go-llama.cpp engine.
func NewLlamaEngine(cfg LlamaConfig) Engine {
	return &llamaEngine{cfg: cfg}
}

// llamaModel owns one *llama.LLama. go-llama.cpp keeps a single token
// callback per model, so every predict/embed call is serialized through mu.
type llamaModel struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
}

func (e *llamaEngine) Load(ctx context.Context, path string, opts LoadOptions) (Model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{llama.SetContext(zn(e.cfg.ContextSize, 2048))}
	if e.cfg.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(e.cfg.GPULayers))
	}
	if opts.Embeddings {
		mo = append(mo, llama.EnableEmbeddings)
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaModel{model: m, threads: max(1, e.cfg.Threads)}, nil
}

func (m *llamaModel) NewEmbeddingContext() (EmbeddingContext, error) {
	return &llamaEmbedder{m: m}, nil
}

func (m *llamaModel) NewRankingContext() (RankingContext, error) {
	return &llamaRanker{m: m}, nil
}

func (m *llamaModel) NewGenerationContext() (GenerationContext, error) {
	return &llamaGenerator{m: m}, nil
}

func (m *llamaModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}

func (m *llamaModel) embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	return m.model.Embeddings(text, llama.SetThreads(m.threads))
}

type llamaEmbedder struct{ m *llamaModel }

func (e *llamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.m.embed(ctx, text)
}

func (e *llamaEmbedder) Close() error { return nil }

// llamaRanker scores documents by cosine similarity of their embeddings with
// the query; go-llama.cpp exposes no cross-encoder head.
type llamaRanker struct{ m *llamaModel }

func (r *llamaRanker) Rank(ctx context.Context, query, document string) (float32, error) {
	q, err := r.m.embed(ctx, query)
	if err != nil {
		return 0, err
	}
	d, err := r.m.embed(ctx, document)
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(q, d), nil
}

func (r *llamaRanker) Close() error { return nil }

type llamaGenerator struct{ m *llamaModel }

func (g *llamaGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions, onToken func(string) error) (string, error) {
	m := g.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model == nil {
		return "", errors.New("llama model not initialized")
	}
	var cbErr error
	// Bridge token streaming to onToken and respect cancellation
	m.model.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		if err := onToken(tok); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	defer m.model.SetTokenCallback(nil)

	text, err := m.model.Predict(prompt, predictOptions(opts, m.threads)...)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if cbErr != nil {
		return "", cbErr
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (g *llamaGenerator) Close() error { return nil }

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts GenerateOptions into go-llama.cpp options.
func predictOptions(opts GenerateOptions, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(opts.MaxTokens, llama.DefaultOptions.Tokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTemperature(opts.Temperature),
		llama.SetTopP(llama.DefaultOptions.TopP),
		llama.SetTopK(llama.DefaultOptions.TopK),
		llama.SetPenalty(llama.DefaultOptions.Penalty),
	}
	if len(opts.Stop) > 0 {
		po = append(po, llama.SetStopWords(opts.Stop...))
	}
	return po
}
