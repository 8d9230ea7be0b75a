// ABOUTME: Tests for the chat-completion client
// ABOUTME: Verifies retry policy, error mapping and per-channel client caching

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ragdesk/internal/models"
)

func testClient(baseURL string) *Client {
	return New(Config{
		APIKey:     "test-key",
		BaseURL:    baseURL + "/v1",
		Model:      "test-model",
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Timeout:    5 * time.Second,
	})
}

func completionJSON(content string) string {
	return fmt.Sprintf(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "test-model",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}]
	}`, content)
}

func userMessage(text string) []models.ChatMessage {
	return []models.ChatMessage{{Role: models.RoleUser, Content: text}}
}

func TestInvoke_Success(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionJSON("hello there"))
	}))
	defer server.Close()

	c := testClient(server.URL)
	comp, err := c.Invoke(context.Background(), userMessage("hi"), Options{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if comp.Content != "hello there" {
		t.Errorf("Content = %q, want %q", comp.Content, "hello there")
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("server received %d requests, want 1", n)
	}
}

func TestInvoke_RetryExhaustion(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited", "type": "rate_limit_error"}}`)
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Invoke(context.Background(), userMessage("hi"), Options{})
	if !errors.Is(err, models.ErrLLMUnavailable) {
		t.Fatalf("error = %v, want ErrLLMUnavailable", err)
	}
	// MaxRetries of 3 means one initial attempt plus three retries.
	if n := atomic.LoadInt32(&requests); n != 4 {
		t.Errorf("server received %d requests, want 4", n)
	}
}

func TestInvoke_RetriesServerErrorThenSucceeds(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error": {"message": "upstream exploded", "type": "server_error"}}`)
			return
		}
		fmt.Fprint(w, completionJSON("recovered"))
	}))
	defer server.Close()

	c := testClient(server.URL)
	comp, err := c.Invoke(context.Background(), userMessage("hi"), Options{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if comp.Content != "recovered" {
		t.Errorf("Content = %q, want %q", comp.Content, "recovered")
	}
	if n := atomic.LoadInt32(&requests); n != 3 {
		t.Errorf("server received %d requests, want 3", n)
	}
}

func TestInvoke_NonRetryableFailsFast(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "bad request", "type": "invalid_request_error"}}`)
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Invoke(context.Background(), userMessage("hi"), Options{})
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
	if errors.Is(err, models.ErrLLMUnavailable) {
		t.Errorf("HTTP 400 should not be retried into ErrLLMUnavailable: %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("server received %d requests, want 1", n)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionJSON("too late"))
	}))
	defer server.Close()

	c := New(Config{
		APIKey:     "test-key",
		BaseURL:    server.URL + "/v1",
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Timeout:    20 * time.Millisecond,
	})

	_, err := c.Invoke(context.Background(), userMessage("hi"), Options{})
	if !errors.Is(err, models.ErrLLMTimeout) {
		t.Fatalf("error = %v, want ErrLLMTimeout", err)
	}
}

func TestInvoke_ToolCallsExtracted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-2",
			"object": "chat.completion",
			"model": "test-model",
			"choices": [{"index": 0, "message": {
				"role": "assistant",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {
					"name": "create_support_ticket",
					"arguments": "{\"category_id\": \"billing\"}"
				}}]
			}, "finish_reason": "tool_calls"}]
		}`)
	}))
	defer server.Close()

	c := testClient(server.URL)
	comp, err := c.Invoke(context.Background(), userMessage("hi"), Options{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(comp.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(comp.ToolCalls))
	}
	tc := comp.ToolCalls[0]
	if tc.Name != "create_support_ticket" {
		t.Errorf("Name = %q", tc.Name)
	}
	if tc.ID != "call_1" {
		t.Errorf("ID = %q", tc.ID)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		t.Fatalf("arguments do not parse: %v", err)
	}
	if args["category_id"] != "billing" {
		t.Errorf("category_id = %q", args["category_id"])
	}
}

func TestInvoke_ModelOverride(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionJSON("ok"))
	}))
	defer server.Close()

	c := testClient(server.URL)
	if _, err := c.Invoke(context.Background(), userMessage("hi"), Options{Model: "other-model"}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if gotModel != "other-model" {
		t.Errorf("request model = %q, want override", gotModel)
	}
}

func TestAPIFor_CachesPerKeyAndURL(t *testing.T) {
	c := New(DefaultConfig("key-a"))

	first := c.apiFor("key-a", "https://one.example/v1")
	second := c.apiFor("key-a", "https://one.example/v1")
	if first != second {
		t.Error("same key/URL pair should share a client")
	}

	other := c.apiFor("key-b", "https://one.example/v1")
	if other == first {
		t.Error("different keys should not share a client")
	}
}
