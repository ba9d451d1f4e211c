package types

import (
	"encoding/json"
	"errors"
)

// UnknownTokens is reported in every usage field; token accounting is not tracked.
const UnknownTokens = -1

// StringList decodes either a single JSON string or an array of strings.
type StringList []string

func (s *StringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("input must be a string or an array of strings")
	}
	*s = many
	return nil
}

// EmbeddingRequest is the body of POST /v1/embeddings.
type EmbeddingRequest struct {
	// example: nomic-embed-text-v1.5.Q4_K_M
	Model string `json:"model" example:"nomic-embed-text-v1.5.Q4_K_M"`
	// String or array of strings to embed.
	Input StringList `json:"input" swaggertype:"array,string"`
}

// Usage reports token counts; always UnknownTokens.
type Usage struct {
	PromptTokens int `json:"prompt_tokens" example:"-1"`
	TotalTokens  int `json:"total_tokens" example:"-1"`
}

// UnknownUsage returns a Usage with every field set to UnknownTokens.
func UnknownUsage() Usage {
	return Usage{PromptTokens: UnknownTokens, TotalTokens: UnknownTokens}
}

// EmbeddingData is one vector, positioned by its input index.
type EmbeddingData struct {
	Object    string    `json:"object" example:"embedding"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index" example:"0"`
}

// EmbeddingResponse is returned by POST /v1/embeddings.
type EmbeddingResponse struct {
	Object string          `json:"object" example:"list"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  Usage           `json:"usage"`
}

// RerankRequest is the body of POST /v1/rerank.
type RerankRequest struct {
	Model     string   `json:"model" example:"bge-reranker-v2-m3-Q4_K_M"`
	Query     string   `json:"query" example:"what is a panda?"`
	Documents []string `json:"documents"`
}

// RerankResult is one scored document. Index is the rank (0 = most relevant).
type RerankResult struct {
	Object         string  `json:"object" example:"rerank_result"`
	Document       string  `json:"document"`
	RelevanceScore float32 `json:"relevance_score" example:"0.87"`
	Index          int     `json:"index" example:"0"`
}

// RerankResponse is returned by POST /v1/rerank.
type RerankResponse struct {
	Object string         `json:"object" example:"list"`
	Model  string         `json:"model"`
	Data   []RerankResult `json:"data"`
	Usage  Usage          `json:"usage"`
}

// ChatMessage is one conversation turn.
type ChatMessage struct {
	Role    string `json:"role" example:"user"`
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model    string        `json:"model" example:"qwen2.5-0.5b-instruct-q4_k_m"`
	Messages []ChatMessage `json:"messages"`
	// Sampling temperature; defaults to 0.7 when omitted.
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Maximum number of new tokens; engine default when omitted.
	MaxTokens *int `json:"max_tokens,omitempty" example:"256"`
	Stream    bool `json:"stream,omitempty" example:"false"`
	// Optional session to continue. Also accepted as the X-Session-ID header.
	SessionID string `json:"session_id,omitempty"`
}

// ChatUsage reports token counts; always UnknownTokens.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens" example:"-1"`
	CompletionTokens int `json:"completion_tokens" example:"-1"`
	TotalTokens      int `json:"total_tokens" example:"-1"`
}

// UnknownChatUsage returns a ChatUsage with every field set to UnknownTokens.
func UnknownChatUsage() ChatUsage {
	return ChatUsage{PromptTokens: UnknownTokens, CompletionTokens: UnknownTokens, TotalTokens: UnknownTokens}
}

// ChatChoice is the single choice of a non-streaming completion.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason" example:"stop"`
}

// ChatCompletionResponse is returned by non-streaming chat completions.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object" example:"chat.completion"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatDelta carries the incremental part of a streamed completion.
type ChatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is the single choice of a streamed chunk. FinishReason is null
// until the terminal chunk.
type ChunkChoice struct {
	Index        int       `json:"index"`
	Delta        ChatDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

// ChatCompletionChunk is one SSE frame of a streaming completion.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object" example:"chat.completion.chunk"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// OpenAIErrorBody is the inner object of the OpenAI error envelope.
type OpenAIErrorBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type" example:"invalid_request_error"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// OpenAIError is the error envelope used by the /v1 inference endpoints.
type OpenAIError struct {
	Error OpenAIErrorBody `json:"error"`
}
