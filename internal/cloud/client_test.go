package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func userMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}

func TestChat(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello!"}}]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	got, err := c.Chat(context.Background(), userMessage("hi"))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Hello!" {
		t.Errorf("got %q, want %q", got, "Hello!")
	}
	if captured.Model != "test-model" {
		t.Errorf("request model = %q, want test-model", captured.Model)
	}
}

func TestChat_AuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	if _, err := c.Chat(context.Background(), userMessage("hi")); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	want := "Bearer test-key"
	if gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
}

func TestChat_RateLimit_Retry(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempt.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"second try"}}]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	got, err := c.Chat(context.Background(), userMessage("hi"))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "second try" {
		t.Errorf("got %q, want %q", got, "second try")
	}
	if n := attempt.Load(); n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

func TestChat_RateLimit_Exhausted(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	_, err := c.Chat(context.Background(), userMessage("hi"))
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "rate limited")
	}
	if n := attempt.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestChat_ServerError_NoRetry(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt.Add(1)
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	_, err := c.Chat(context.Background(), userMessage("hi"))
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
	if n := attempt.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on server error)", n)
	}
}

func TestChat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	_, err := c.Chat(context.Background(), userMessage("hi"))
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestGenerate_BuildsSystemAndUserMessages(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"answer"}}]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", "test-model", srv.URL)
	got, err := c.Generate(context.Background(), "ground rules", "the question")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "answer" {
		t.Errorf("got %q, want %q", got, "answer")
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "ground rules" {
		t.Errorf("system message = %+v", captured.Messages[0])
	}
	if captured.Messages[1].Role != "user" || captured.Messages[1].Content != "the question" {
		t.Errorf("user message = %+v", captured.Messages[1])
	}
}
