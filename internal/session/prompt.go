package session

import (
	"context"
	"errors"
	"time"

	"llmd/internal/llm"
	"llmd/internal/manager"
)

// Options are the sampling parameters of one prompt.
type Options struct {
	Temperature float32
	// MaxTokens <= 0 leaves the limit to the engine.
	MaxTokens int
}

// Prompt runs one user turn on s and returns the assistant reply. The turn
// and the reply are appended to the session history on success.
func (c *Controller) Prompt(ctx context.Context, s *Session, text string, opts Options) (string, error) {
	return c.run(ctx, s, text, opts, "sync", nil)
}

// PromptStreaming runs one user turn on s, handing the reply to onChunk in
// pieces that end on whitespace. The last call carries Final=true with the
// remaining text. The context is checked before every chunk; an error from
// onChunk stops generation and is returned as is.
func (c *Controller) PromptStreaming(ctx context.Context, s *Session, text string, opts Options, onChunk func(Chunk) error) error {
	_, err := c.run(ctx, s, text, opts, "stream", onChunk)
	return err
}

func (c *Controller) run(ctx context.Context, s *Session, text string, opts Options, mode string, onChunk func(Chunk) error) (string, error) {
	leave, err := s.admit(ctx, c.maxWait)
	if err != nil {
		return "", err
	}
	defer leave()

	s.mu.Lock()
	s.history = trimHistory(s.history, c.historyChars-len(s.system)-len(text))
	prompt := render(s.system, s.history, text)
	s.mu.Unlock()

	var ch *chunker
	onToken := func(string) error { return nil }
	if onChunk != nil {
		ch = &chunker{ctx: ctx, emit: onChunk}
		onToken = ch.write
	}

	start := time.Now()
	var out string
	var sinkErr error
	err = s.model.Do(func() error {
		var gerr error
		out, gerr = s.gen.Generate(ctx, prompt, llm.GenerateOptions{
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Stop:        stopSequences,
		}, func(tok string) error {
			if err := onToken(tok); err != nil {
				sinkErr = err
				return err
			}
			return nil
		})
		return gerr
	})
	if err == nil && ch != nil {
		if err = ch.finish(); err != nil {
			sinkErr = err
		}
	}
	if err != nil {
		generationDuration.WithLabelValues(mode, "error").Observe(time.Since(start).Seconds())
		switch {
		case errors.Is(err, manager.ErrModelClosed):
			return "", ErrSessionClosed
		case sinkErr != nil:
			return "", sinkErr
		case ctx.Err() != nil:
			return "", ctx.Err()
		}
		c.log.Error().Err(err).Str("event", "generation_failed").Str("session", s.id).Str("model", s.model.Name()).Msg("generation failed")
		return "", &GenerationError{Err: err}
	}
	generationDuration.WithLabelValues(mode, "ok").Observe(time.Since(start).Seconds())

	s.mu.Lock()
	s.history = append(s.history, Turn{Role: RoleUser, Content: text}, Turn{Role: RoleAssistant, Content: out})
	s.mu.Unlock()
	c.touch(s)
	return out, nil
}
