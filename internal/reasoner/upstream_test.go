package reasoner

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"adaptive-reasoner/internal/models"
	"adaptive-reasoner/internal/provider/openai"
)

// scriptedUpstream answers the n-th chat completion call with the n-th handler and records
// every request body it receives.
type scriptedUpstream struct {
	t        *testing.T
	mu       sync.Mutex
	handlers []http.HandlerFunc
	bodies   [][]byte
	server   *httptest.Server
}

func newScriptedUpstream(t *testing.T, handlers ...http.HandlerFunc) *scriptedUpstream {
	t.Helper()
	u := &scriptedUpstream{t: t, handlers: handlers}
	u.server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.server.Close)
	return u
}

func (u *scriptedUpstream) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	u.mu.Lock()
	idx := len(u.bodies)
	u.bodies = append(u.bodies, body)
	u.mu.Unlock()

	if idx >= len(u.handlers) {
		u.t.Errorf("unexpected upstream call #%d", idx+1)
		http.Error(w, "unexpected call", http.StatusInternalServerError)
		return
	}
	u.handlers[idx](w, r)
}

func (u *scriptedUpstream) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.bodies)
}

func (u *scriptedUpstream) body(i int) []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	require.Greater(u.t, len(u.bodies), i, "upstream call #%d was not made", i+1)
	return u.bodies[i]
}

func (u *scriptedUpstream) route(mode models.RenderingMode, budget int) models.Route {
	return models.Route{
		Name:            "adaptive",
		ModelName:       "upstream-model",
		APIURL:          u.server.URL,
		APIKey:          "key",
		ReasoningBudget: budget,
		RenderingMode:   mode,
	}
}

func newTestReasoner(t *testing.T, opts ...Option) *Reasoner {
	t.Helper()
	client, err := openai.New(http.DefaultClient)
	require.NoError(t, err)
	return New(client, opts...)
}

func userRequest(maxTokens *int) models.ChatCompletionRequest {
	return models.ChatCompletionRequest{
		Model: "adaptive",
		Messages: models.Messages{
			models.SystemMessage{Content: models.TextContent("be brief")},
			models.UserMessage{Content: models.TextContent("what is 6*7?")},
		},
		MaxTokens: maxTokens,
	}
}

func intPtr(v int) *int { return &v }

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// completionJSON serves a non-streamed completion with one choice.
func completionJSON(id, content, finish string, prompt, completion int) http.HandlerFunc {
	return completionWith(id, map[string]any{"role": "assistant", "content": content}, finish, prompt, completion)
}

func completionWith(id string, message map[string]any, finish string, prompt, completion int) http.HandlerFunc {
	body := mustJSON(map[string]any{
		"id":      id,
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "upstream-model",
		"choices": []any{map[string]any{"index": 0, "message": message, "finish_reason": finish}},
		"usage":   map[string]any{"prompt_tokens": prompt, "completion_tokens": completion, "total_tokens": prompt + completion},
	})
	return rawResponse(http.StatusOK, "application/json", body)
}

func rawResponse(status int, contentType, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// eventStream serves each payload as one SSE event followed by the [DONE] terminator.
func eventStream(payloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, p := range payloads {
			_, _ = io.WriteString(w, "data: "+p+"\n\n")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}
}

func deltaEvent(id string, created int64, content string, finish string) string {
	choice := map[string]any{"index": 0, "delta": map[string]any{"content": content}, "finish_reason": nil}
	if content == "" {
		choice["delta"] = map[string]any{}
	}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	return mustJSON(map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": created,
		"model":   "upstream-model",
		"choices": []any{choice},
	})
}

func usageEvent(id string, created int64, prompt, completion int) string {
	return mustJSON(map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": created,
		"model":   "upstream-model",
		"choices": []any{},
		"usage":   map[string]any{"prompt_tokens": prompt, "completion_tokens": completion, "total_tokens": prompt + completion},
	})
}

func lastMessageContent(body []byte) string {
	n := gjson.GetBytes(body, "messages.#").Int()
	return gjson.GetBytes(body, fmt.Sprintf("messages.%d.content", n-1)).String()
}
