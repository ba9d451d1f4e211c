// Package llm defines the boundary between llmd and the numerical inference
// engine. The engine itself (tokenization, forward pass, vectors, scoring)
// lives behind these interfaces; llmd only decides when and on which loaded
// model the operations run.
//
// The in-process go-llama.cpp engine is compiled with `-tags=llama`. Default
// builds get a stub whose Load fails with ErrDependencyUnavailable, keeping
// CI CGO-free.
package llm

import (
	"context"
	"errors"
	"math"
)

// ErrDependencyUnavailable is returned when no inference engine is compiled in.
var ErrDependencyUnavailable = errors.New("inference engine not available (build with -tags=llama)")

// LoadOptions tunes how an artifact is loaded.
type LoadOptions struct {
	// Embeddings enables the vector output path (embedding and reranker models).
	Embeddings bool
}

// Engine loads artifacts into opaque model handles.
type Engine interface {
	// Load reads the artifact at path. A missing file must surface as an
	// error wrapping fs.ErrNotExist.
	Load(ctx context.Context, path string, opts LoadOptions) (Model, error)
}

// Model is a loaded artifact. Contexts created from it must not be used
// after Close.
type Model interface {
	NewEmbeddingContext() (EmbeddingContext, error)
	NewRankingContext() (RankingContext, error)
	NewGenerationContext() (GenerationContext, error)
	// Close frees the model. Every context created from it has been closed
	// and no call on them is in flight when Close runs.
	Close() error
}

// EmbeddingContext turns text into a vector.
type EmbeddingContext interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// RankingContext scores how relevant a document is to a query.
type RankingContext interface {
	Rank(ctx context.Context, query, document string) (float32, error)
	Close() error
}

// GenerateOptions captures sampling parameters for one generation.
type GenerateOptions struct {
	Temperature float32
	// MaxTokens <= 0 means the engine default.
	MaxTokens int
	Stop      []string
}

// GenerationContext produces text for a prompt. onToken is invoked for each
// token as it is produced; returning an error stops generation. Generate must
// return when ctx is canceled.
type GenerationContext interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions, onToken func(string) error) (string, error)
	Close() error
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is empty or zero or the lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
