package httpapi

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"llmd/internal/llm/llmtest"
	"llmd/internal/session"
	"llmd/pkg/types"
)

// sseEvents parses `data:` frames; done reports whether [DONE] was seen.
func sseEvents(t *testing.T, body string) (chunks []types.ChatCompletionChunk, done bool) {
	t.Helper()
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			t.Fatalf("unexpected SSE line %q", line)
		}
		if payload == "[DONE]" {
			done = true
			continue
		}
		if done {
			t.Fatalf("frame after [DONE]: %q", payload)
		}
		var c types.ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			t.Fatalf("chunk json: %v (%q)", err, payload)
		}
		chunks = append(chunks, c)
	}
	return chunks, done
}

func TestChatCompletionNonStreaming(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.artifact(t, types.CategoryChat, "qwen")
	w := ts.do(http.MethodPost, "/v1/chat/completions", `{"model":"qwen","messages":[{"role":"system","content":"be nice"},{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	sid := w.Header().Get(SessionHeader)
	if sid == "" || resp.ID != "chatcmpl-"+sid {
		t.Fatalf("id=%q session=%q", resp.ID, sid)
	}
	if resp.Object != "chat.completion" || resp.Model != "qwen" || resp.Created == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices=%d", len(resp.Choices))
	}
	c := resp.Choices[0]
	if c.Index != 0 || c.FinishReason != "stop" || c.Message.Role != "assistant" || c.Message.Content != ts.engine.Output() {
		t.Fatalf("unexpected choice: %+v", c)
	}
	if resp.Usage.PromptTokens != -1 || resp.Usage.CompletionTokens != -1 || resp.Usage.TotalTokens != -1 {
		t.Fatalf("usage must be -1: %+v", resp.Usage)
	}
	if p := ts.engine.Prompts(); len(p) != 1 || !strings.Contains(p[0], "system\nbe nice") {
		t.Fatalf("system prompt not applied: %q", p)
	}
}

func TestChatCompletionStreamingMatchesNonStreaming(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.artifact(t, types.CategoryChat, "qwen")
	body := `{"model":"qwen","temperature":0,"messages":[{"role":"user","content":"hi"}]}`

	w := ts.do(http.MethodPost, "/v1/chat/completions", body)
	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}

	w = ts.do(http.MethodPost, "/v1/chat/completions", strings.Replace(body, `"temperature":0`, `"temperature":0,"stream":true`, 1))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}
	if w.Header().Get("Cache-Control") != "no-cache" {
		t.Fatalf("missing Cache-Control")
	}
	chunks, done := sseEvents(t, w.Body.String())
	if !done {
		t.Fatalf("stream not terminated by [DONE]")
	}
	var b strings.Builder
	sid := w.Header().Get(SessionHeader)
	for i, c := range chunks {
		if c.Object != "chat.completion.chunk" || c.ID != "chatcmpl-"+sid || len(c.Choices) != 1 {
			t.Fatalf("chunk %d: %+v", i, c)
		}
		last := i == len(chunks)-1
		if fr := c.Choices[0].FinishReason; (fr != nil) != last || (last && *fr != "stop") {
			t.Fatalf("chunk %d finish_reason=%v", i, fr)
		}
		if (c.Choices[0].Delta.Role == "assistant") != (i == 0) {
			t.Fatalf("chunk %d role=%q", i, c.Choices[0].Delta.Role)
		}
		b.WriteString(c.Choices[0].Delta.Content)
	}
	if b.String() != resp.Choices[0].Message.Content {
		t.Fatalf("stream %q != non-stream %q", b.String(), resp.Choices[0].Message.Content)
	}
}

func TestChatSessionReuse(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.artifact(t, types.CategoryChat, "qwen")
	first := ts.do(http.MethodPost, "/v1/chat/completions", `{"model":"qwen","messages":[{"role":"user","content":"one"}]}`, SessionHeader, "conv")
	if first.Code != http.StatusOK || first.Header().Get(SessionHeader) != "conv" {
		t.Fatalf("first: %d session=%q", first.Code, first.Header().Get(SessionHeader))
	}
	second := ts.do(http.MethodPost, "/v1/chat/completions", `{"model":"qwen","session_id":"conv","messages":[{"role":"user","content":"two"}]}`)
	if second.Code != http.StatusOK {
		t.Fatalf("second: %d", second.Code)
	}
	if len(ts.sessions.Snapshot()) != 1 {
		t.Fatalf("expected one session, got %d", len(ts.sessions.Snapshot()))
	}
	prompts := ts.engine.Prompts()
	if len(prompts) != 2 {
		t.Fatalf("prompts=%d", len(prompts))
	}
	if !strings.Contains(prompts[1], "user\none") || !strings.Contains(prompts[1], "assistant\n"+ts.engine.Output()) {
		t.Fatalf("second prompt lost the conversation: %q", prompts[1])
	}
}

func TestChatNewSessionSeedsHistory(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.artifact(t, types.CategoryChat, "qwen")
	w := ts.do(http.MethodPost, "/v1/chat/completions", `{"model":"qwen","messages":[
		{"role":"user","content":"earlier"},
		{"role":"assistant","content":"noted"},
		{"role":"user","content":"now"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	p := ts.engine.Prompts()[0]
	if !strings.Contains(p, "user\nearlier") || !strings.Contains(p, "assistant\nnoted") || !strings.HasSuffix(p, "user\nnow<|im_end|>\n<|im_start|>assistant\n") {
		t.Fatalf("unexpected prompt %q", p)
	}
}

func TestChatValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, body := range []string{
		`{"model":"qwen"}`,
		`{"model":"qwen","messages":[]}`,
		`{"messages":[{"role":"user","content":"hi"}]}`,
		`{"model":"qwen","messages":[{"role":"system","content":"only system"}]}`,
	} {
		w := ts.do(http.MethodPost, "/v1/chat/completions", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", body, w.Code)
		}
		if e := decodeOpenAIError(t, w.Body.Bytes()); e.Type != errTypeInvalidRequest {
			t.Fatalf("%s: type=%q", body, e.Type)
		}
	}
}

func TestChatMaxTokensAndTemperature(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.artifact(t, types.CategoryChat, "qwen")
	w := ts.do(http.MethodPost, "/v1/chat/completions", `{"model":"qwen","max_tokens":2,"temperature":0.2,"messages":[{"role":"user","content":"hi"}]}`)
	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Choices[0].Message.Content != "Hello" {
		t.Fatalf("max_tokens not honored: %q", resp.Choices[0].Message.Content)
	}
}

func TestChatGenerationErrorBeforeStream(t *testing.T) {
	ts := newTestServer(t, &llmtest.Engine{GenErr: errBoom})
	ts.artifact(t, types.CategoryChat, "qwen")
	for _, stream := range []string{"false", "true"} {
		w := ts.do(http.MethodPost, "/v1/chat/completions", `{"model":"qwen","stream":`+stream+`,"messages":[{"role":"user","content":"hi"}]}`)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("stream=%s: status=%d", stream, w.Code)
		}
		if e := decodeOpenAIError(t, w.Body.Bytes()); !strings.Contains(e.Message, "boom") || e.Type != errTypeServer {
			t.Fatalf("stream=%s: %+v", stream, e)
		}
	}
}

func TestChatStreamAbortsOnMidStreamFailure(t *testing.T) {
	ts := newTestServer(t, &llmtest.Engine{GenErr: errBoom, FailAfter: 3})
	ts.artifact(t, types.CategoryChat, "qwen")
	srv := httptest.NewServer(ts.h)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"qwen","stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	body, readErr := io.ReadAll(resp.Body)
	if readErr == nil {
		t.Fatalf("expected a transport error, got clean EOF with body %q", body)
	}
	if strings.Contains(string(body), "[DONE]") {
		t.Fatalf("aborted stream must not carry [DONE]: %q", body)
	}
	if !strings.Contains(string(body), "Hello ") {
		t.Fatalf("expected the chunk emitted before the failure: %q", body)
	}
}

func TestChatStreamClientDisconnectStopsGeneration(t *testing.T) {
	eng := &llmtest.Engine{Tokens: []string{"a ", "b ", "c ", "d ", "e ", "f ", "g ", "h "}, TokenDelay: 20 * time.Millisecond}
	ts := newTestServer(t, eng)
	ts.artifact(t, types.CategoryChat, "qwen")
	srv := httptest.NewServer(ts.h)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/chat/completions",
		strings.NewReader(`{"model":"qwen","stream":true,"session_id":"gone","messages":[{"role":"user","content":"hi"}]}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "data: ") {
		t.Fatalf("first frame: %q %v", line, err)
	}
	resp.Body.Close()

	// the session records nothing for an interrupted turn and frees its slot
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := ts.do(http.MethodPost, "/v1/chat/completions", `{"model":"qwen","session_id":"gone","messages":[{"role":"user","content":"again"}]}`)
		if w.Code == http.StatusOK {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("session stayed busy after client disconnect")
}

func TestChatBusySession429(t *testing.T) {
	eng := &llmtest.Engine{TokenDelay: 30 * time.Millisecond}
	ts := newTestServer(t, eng)
	ts.sessions = session.New(session.Config{AdmissionWait: 10 * time.Millisecond})
	ts.h = NewMux(ts.mgr, ts.sessions)
	t.Cleanup(ts.sessions.Close)
	ts.artifact(t, types.CategoryChat, "qwen")

	done := make(chan int, 1)
	go func() {
		w := ts.do(http.MethodPost, "/v1/chat/completions", `{"model":"qwen","session_id":"s","messages":[{"role":"user","content":"long"}]}`)
		done <- w.Code
	}()
	deadline := time.Now().Add(time.Second)
	for len(ts.engine.Prompts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	w := ts.do(http.MethodPost, "/v1/chat/completions", `{"model":"qwen","session_id":"s","messages":[{"role":"user","content":"second"}]}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", w.Code, w.Body.String())
	}
	if e := decodeOpenAIError(t, w.Body.Bytes()); e.Code == nil || *e.Code != codeSessionBusy {
		t.Fatalf("unexpected error %+v", e)
	}
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first request status=%d", code)
	}
}

func TestSplitMessages(t *testing.T) {
	sys, hist, prompt, ok := splitMessages([]types.ChatMessage{
		{Role: "system", Content: "a"},
		{Role: "user", Content: "u1"},
		{Role: "system", Content: "b"},
		{Role: "assistant", Content: "r1"},
		{Role: "tool", Content: "ignored"},
		{Role: "user", Content: "u2"},
		{Role: "assistant", Content: "trailing"},
	})
	if !ok || sys != "a\nb" || prompt != "u2" || len(hist) != 2 || hist[0].Content != "u1" || hist[1].Content != "r1" {
		t.Fatalf("unexpected split: %q %+v %q %v", sys, hist, prompt, ok)
	}
	if _, _, _, ok := splitMessages([]types.ChatMessage{{Role: "assistant", Content: "x"}}); ok {
		t.Fatalf("expected no user message")
	}
}
