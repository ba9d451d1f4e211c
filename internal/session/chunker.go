package session

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk is one piece of a streamed reply. The last chunk of a reply has
// Final set and may carry empty Text.
type Chunk struct {
	Text  string
	Final bool
}

// chunker buffers tokens and emits text up to and including the last
// whitespace seen, so sub-word fragments are never sent on their own.
type chunker struct {
	ctx  context.Context
	buf  strings.Builder
	emit func(Chunk) error
}

func (c *chunker) write(tok string) error {
	c.buf.WriteString(tok)
	s := c.buf.String()
	i := strings.LastIndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return nil
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	cut := i + size
	c.buf.Reset()
	c.buf.WriteString(s[cut:])
	return c.send(Chunk{Text: s[:cut]})
}

// finish flushes whatever is buffered as the final chunk.
func (c *chunker) finish() error {
	s := c.buf.String()
	c.buf.Reset()
	return c.send(Chunk{Text: s, Final: true})
}

func (c *chunker) send(ch Chunk) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	return c.emit(ch)
}
