package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChatClient_NoKey(t *testing.T) {
	c := NewCerebrasClient("", "model")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, "hi", Options{}); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestChatClient_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("not-json")) }},
		{"empty_choices", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewCerebrasClient("key", "model")
			c.HTTPClient = redirectClient(srv)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := c.Generate(ctx, "hi", Options{}); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

func TestChatClient_SendsOptions(t *testing.T) {
	var got chatCompletionsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer auth")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Tell me more.  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", "gpt-3.5-turbo")
	c.HTTPClient = redirectClient(srv)
	out, err := c.Generate(context.Background(), "prompt", Options{System: "sys", Temperature: 0.8, MaxTokens: 100})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "Tell me more." {
		t.Fatalf("expected trimmed reply, got %q", out)
	}
	if got.Model != "gpt-3.5-turbo" || got.MaxTokens != 100 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != 0.8 {
		t.Fatalf("temperature not sent: %+v", got.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "sys" || got.Messages[1].Content != "prompt" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func redirectClient(srv *httptest.Server) *http.Client {
	return &http.Client{Timeout: time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
