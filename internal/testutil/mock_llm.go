package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
)

// ChatMessage is a chat completion message as received by MockLLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion request as received by MockLLM.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// UserContent returns the content of the last user message.
func (r ChatRequest) UserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// MockLLMReply defines one completion reply.
type MockLLMReply struct {
	StatusCode       int
	Content          string
	RawBody          string
	PromptTokens     int
	CompletionTokens int
}

var markdownLink = regexp.MustCompile(`^\[([^\]]*)\]\(([^)]*)\)\s*\[?([^\]]*)\]?$`)

// MockLLM is an OpenAI-compatible chat completion server. By default it
// "extracts" every markdown link line of the user message into a record.
type MockLLM struct {
	server  *httptest.Server
	mu      sync.RWMutex
	replyFn func(ChatRequest) MockLLMReply

	// Tracking
	RequestCount int
	LastRequest  ChatRequest
	LastAuth     string
}

// NewMockLLM creates a new mock completion server.
func NewMockLLM() *MockLLM {
	mock := &MockLLM{replyFn: ExtractLinks}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
			return
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequest = req
		mock.LastAuth = r.Header.Get("Authorization")
		replyFn := mock.replyFn
		mock.mu.Unlock()

		reply := replyFn(req)
		status := reply.StatusCode
		if status == 0 {
			status = http.StatusOK
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)

		if reply.RawBody != "" || status != http.StatusOK {
			w.Write([]byte(reply.RawBody))
			return
		}

		resp := map[string]any{
			"id":     "chatcmpl-mock",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": reply.Content},
			}},
			"usage": map[string]int{
				"prompt_tokens":     reply.PromptTokens,
				"completion_tokens": reply.CompletionTokens,
				"total_tokens":      reply.PromptTokens + reply.CompletionTokens,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))

	return mock
}

// BaseURL returns the API base URL to configure clients with.
func (m *MockLLM) BaseURL() string {
	return m.server.URL + "/v1"
}

// Close shuts down the mock server.
func (m *MockLLM) Close() {
	m.server.Close()
}

// SetReplyFunc replaces the reply behaviour.
func (m *MockLLM) SetReplyFunc(fn func(ChatRequest) MockLLMReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replyFn = fn
}

// SetReply makes every request return the same reply.
func (m *MockLLM) SetReply(reply MockLLMReply) {
	m.SetReplyFunc(func(ChatRequest) MockLLMReply { return reply })
}

// GetRequestCount returns the number of completion requests.
func (m *MockLLM) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastRequest returns the most recent completion request.
func (m *MockLLM) GetLastRequest() ChatRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequest
}

// ExtractLinks is the default reply: every "[title](link) [time]" line of the
// user message becomes one Title/Time/Link object.
func ExtractLinks(req ChatRequest) MockLLMReply {
	items := []map[string]string{}
	for _, line := range strings.Split(req.UserContent(), "\n") {
		m := markdownLink.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		items = append(items, map[string]string{
			"Title": m[1],
			"Time":  strings.TrimSpace(m[3]),
			"Link":  m[2],
		})
	}

	content, _ := json.Marshal(items)
	return MockLLMReply{
		Content:          string(content),
		PromptTokens:     len(req.UserContent()) / 4,
		CompletionTokens: len(content) / 4,
	}
}
