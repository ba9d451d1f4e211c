package types

import "fmt"

// Category selects which execution context an artifact is loaded into.
type Category string

const (
	CategoryChat      Category = "chat"
	CategoryEmbedding Category = "embedding"
	CategoryReranker  Category = "reranker"
)

// Categories returns every category in the fixed iteration order used for
// listing and for name lookups that span categories.
func Categories() []Category {
	return []Category{CategoryChat, CategoryEmbedding, CategoryReranker}
}

// ParseCategory validates s as a Category.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryChat, CategoryEmbedding, CategoryReranker:
		return c, nil
	default:
		return "", fmt.Errorf("invalid model type %q (want chat, embedding or reranker)", s)
	}
}

// Model is one artifact as reported by GET /v1/models.
type Model struct {
	// Artifact file name including extension.
	// example: qwen2.5-0.5b-instruct-q4_k_m.gguf
	Name string `json:"name" example:"qwen2.5-0.5b-instruct-q4_k_m.gguf"`
	// Category the artifact lives under.
	// example: chat
	Type Category `json:"type" example:"chat"`
	// Whether the artifact is currently held by the model cache.
	// example: false
	Loaded bool `json:"loaded" example:"false"`
}
