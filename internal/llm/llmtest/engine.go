// Package llmtest provides a deterministic in-memory llm.Engine for tests.
package llmtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"llmd/internal/llm"
)

// Engine is a scripted llm.Engine. Zero value is ready to use; set fields
// before handing it to the code under test.
type Engine struct {
	// LoadDelay simulates disk + engine initialization time.
	LoadDelay time.Duration
	// LoadErr, when set, is returned by every Load after the file check.
	LoadErr error
	// Tokens is the script every generation emits. Defaults to DefaultTokens.
	Tokens []string
	// GenErr fails a generation after FailAfter tokens were emitted.
	GenErr    error
	FailAfter int
	// TokenDelay is slept between emitted tokens.
	TokenDelay time.Duration

	mu         sync.Mutex
	loads      map[string]int
	closed     int
	misordered int
	prompts    []string
}

// DefaultTokens is the generation script used when Engine.Tokens is empty.
var DefaultTokens = []string{"Hel", "lo", " there", ",", " friend", "!"}

// Loads returns how many times path has been loaded.
func (e *Engine) Loads(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads[path]
}

// TotalLoads returns the number of successful and failed loads across all paths.
func (e *Engine) TotalLoads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.loads {
		n += c
	}
	return n
}

// Closed returns how many models have been closed.
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Misordered counts teardown ordering faults: a model closed while one of its
// generation contexts was still open, or a context closed after its model.
func (e *Engine) Misordered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.misordered
}

// Prompts returns every prompt passed to Generate, in call order.
func (e *Engine) Prompts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.prompts...)
}

// Output returns the text a generation produces with the current script.
func (e *Engine) Output() string {
	return strings.Join(e.tokens(), "")
}

func (e *Engine) tokens() []string {
	if len(e.Tokens) > 0 {
		return e.Tokens
	}
	return DefaultTokens
}

func (e *Engine) Load(ctx context.Context, path string, opts llm.LoadOptions) (llm.Model, error) {
	e.mu.Lock()
	if e.loads == nil {
		e.loads = make(map[string]int)
	}
	e.loads[path]++
	e.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	if e.LoadDelay > 0 {
		select {
		case <-time.After(e.LoadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	return &model{e: e, embeddings: opts.Embeddings}, nil
}

type model struct {
	e          *Engine
	embeddings bool
	mu         sync.Mutex
	closed     bool
	open       int // generation contexts not yet closed
}

func (e *Engine) fault() {
	e.mu.Lock()
	e.misordered++
	e.mu.Unlock()
}

var errClosed = errors.New("llmtest: model closed")

func (m *model) live() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	return nil
}

func (m *model) NewEmbeddingContext() (llm.EmbeddingContext, error) {
	if !m.embeddings {
		return nil, errors.New("llmtest: model loaded without embeddings")
	}
	if err := m.live(); err != nil {
		return nil, err
	}
	return embedder{m: m}, nil
}

func (m *model) NewRankingContext() (llm.RankingContext, error) {
	if !m.embeddings {
		return nil, errors.New("llmtest: model loaded without embeddings")
	}
	if err := m.live(); err != nil {
		return nil, err
	}
	return ranker{m: m}, nil
}

func (m *model) NewGenerationContext() (llm.GenerationContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	m.open++
	return &generator{m: m}, nil
}

func (m *model) Close() error {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	open := m.open
	m.mu.Unlock()
	if !already && open > 0 {
		m.e.fault()
	}
	if !already {
		m.e.mu.Lock()
		m.e.closed++
		m.e.mu.Unlock()
	}
	return nil
}

// Vector is the deterministic embedding of text: letter frequencies folded
// into 8 buckets.
func Vector(text string) []float32 {
	v := make([]float32, 8)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[(r-'a')%8]++
		}
	}
	return v
}

type embedder struct{ m *model }

func (x embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := x.m.live(); err != nil {
		return nil, err
	}
	return Vector(text), nil
}

func (embedder) Close() error { return nil }

type ranker struct{ m *model }

func (x ranker) Rank(ctx context.Context, query, document string) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := x.m.live(); err != nil {
		return 0, err
	}
	return llm.CosineSimilarity(Vector(query), Vector(document)), nil
}

func (ranker) Close() error { return nil }

type generator struct {
	m      *model
	closed bool // guarded by m.mu
}

func (g *generator) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions, onToken func(string) error) (string, error) {
	e := g.m.e
	e.mu.Lock()
	e.prompts = append(e.prompts, prompt)
	e.mu.Unlock()
	if err := g.m.live(); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, tok := range e.tokens() {
		if opts.MaxTokens > 0 && i >= opts.MaxTokens {
			break
		}
		if e.GenErr != nil && i >= e.FailAfter {
			return "", e.GenErr
		}
		if e.TokenDelay > 0 {
			select {
			case <-time.After(e.TokenDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := onToken(tok); err != nil {
			return "", err
		}
		b.WriteString(tok)
	}
	if e.GenErr != nil && e.FailAfter >= len(e.tokens()) {
		return "", e.GenErr
	}
	return b.String(), nil
}

func (g *generator) Close() error {
	m := g.m
	m.mu.Lock()
	late := m.closed
	if !g.closed {
		g.closed = true
		m.open--
	}
	m.mu.Unlock()
	if late {
		m.e.fault()
	}
	return nil
}
