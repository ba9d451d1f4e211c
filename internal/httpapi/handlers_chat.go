package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llmd/internal/manager"
	"llmd/internal/session"
	"llmd/pkg/types"
)

// defaultTemperature applies when a chat request omits temperature.
const defaultTemperature = 0.7

// SessionHeader carries the chat session identifier in both directions.
const SessionHeader = "X-Session-ID"

// splitMessages separates a chat request into the system prompt, the turns
// before the last user message, and that message. ok is false when there is
// no user message.
func splitMessages(msgs []types.ChatMessage) (system string, history []session.Turn, prompt string, ok bool) {
	last := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return "", nil, "", false
	}
	var sys []string
	for _, m := range msgs[:last] {
		switch m.Role {
		case session.RoleSystem:
			sys = append(sys, m.Content)
		case session.RoleUser, session.RoleAssistant:
			history = append(history, session.Turn{Role: m.Role, Content: m.Content})
		}
	}
	return strings.Join(sys, "\n"), history, msgs[last].Content, true
}

// withSession acquires the chat model, resolves the session and runs fn.
// A model or session released before generation starts is retried once.
func (a *api) withSession(ctx context.Context, req *types.ChatCompletionRequest, key, system string, history []session.Turn, fn func(*session.Session) error) error {
	for attempt := 0; ; attempt++ {
		lm, err := a.models.Acquire(ctx, req.Model, types.CategoryChat)
		if err != nil {
			return err
		}
		s, created, err := a.sessions.GetOrCreate(key, lm, system)
		if err == nil {
			if created && len(history) > 0 {
				s.Seed(history)
			}
			err = fn(s)
		}
		if attempt == 0 && (errors.Is(err, manager.ErrModelClosed) || errors.Is(err, session.ErrSessionClosed)) {
			continue
		}
		return err
	}
}

// chatCompletions godoc
// @Summary      Create a chat completion
// @Description  Streams Server-Sent Events when stream is true. A session is selected by session_id or the X-Session-ID header and echoed in X-Session-ID.
// @Tags         openai
// @Accept       json
// @Produce      json
// @Produce      text/event-stream
// @Param        body  body      types.ChatCompletionRequest  true  "Chat request"
// @Success      200   {object}  types.ChatCompletionResponse
// @Failure      400   {object}  types.OpenAIError
// @Failure      404   {object}  types.OpenAIError
// @Failure      429   {object}  types.OpenAIError
// @Failure      500   {object}  types.OpenAIError
// @Router       /v1/chat/completions [post]
func (a *api) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req types.ChatCompletionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		badRequest(w, "Missing required parameter: model")
		return
	}
	if len(req.Messages) == 0 {
		badRequest(w, "Missing required parameter: messages must be a non-empty array")
		return
	}
	system, history, prompt, ok := splitMessages(req.Messages)
	if !ok {
		badRequest(w, "messages must contain a user message")
		return
	}
	opts := session.Options{Temperature: defaultTemperature}
	if req.Temperature != nil {
		opts.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	key := req.SessionID
	if key == "" {
		key = r.Header.Get(SessionHeader)
	}

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	created := time.Now().Unix()

	if req.Stream {
		a.streamChat(ctx, w, r, &req, key, system, history, prompt, opts, created)
		return
	}

	var id, out string
	err := a.withSession(ctx, &req, key, system, history, func(s *session.Session) error {
		id = s.ID()
		var err error
		out, err = a.sessions.Prompt(ctx, s, prompt, opts)
		return err
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeOpenAIFailure(w, err)
		return
	}
	w.Header().Set(SessionHeader, id)
	writeJSON(w, http.StatusOK, types.ChatCompletionResponse{
		ID:      "chatcmpl-" + id,
		Object:  "chat.completion",
		Created: created,
		Model:   req.Model,
		Choices: []types.ChatChoice{{
			Index:        0,
			Message:      types.ChatMessage{Role: session.RoleAssistant, Content: out},
			FinishReason: "stop",
		}},
		Usage: types.UnknownChatUsage(),
	})
}

// streamChat writes the reply as chat.completion.chunk events followed by
// [DONE]. A failure before the first event is reported as a JSON error; a
// failure after it aborts the connection so the client never sees [DONE].
func (a *api) streamChat(ctx context.Context, w http.ResponseWriter, r *http.Request, req *types.ChatCompletionRequest, key, system string, history []session.Turn, prompt string, opts session.Options, created int64) {
	var sse *sseWriter
	err := a.withSession(ctx, req, key, system, history, func(s *session.Session) error {
		id := "chatcmpl-" + s.ID()
		w.Header().Set(SessionHeader, s.ID())
		return a.sessions.PromptStreaming(ctx, s, prompt, opts, func(c session.Chunk) error {
			delta := types.ChatDelta{Content: c.Text}
			if sse == nil {
				sse = newSSEWriter(w)
				delta.Role = session.RoleAssistant
			}
			choice := types.ChunkChoice{Index: 0, Delta: delta}
			if c.Final {
				stop := "stop"
				choice.FinishReason = &stop
			}
			return sse.json(types.ChatCompletionChunk{
				ID:      id,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   req.Model,
				Choices: []types.ChunkChoice{choice},
			})
		})
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		if sse == nil {
			writeOpenAIFailure(w, err)
			return
		}
		streamAbortsTotal.Inc()
		requestEvent(r, zerolog.ErrorLevel).Err(err).Str("model", req.Model).Msg("chat stream aborted")
		panic(http.ErrAbortHandler)
	}
	if sse == nil {
		// nothing was generated and no error surfaced
		sse = newSSEWriter(w)
	}
	_ = sse.done()
}
