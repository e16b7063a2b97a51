package transcript

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWhisper_SendsAttemptFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format=%q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language=%q", got)
		}
		if got := r.FormValue("temperature"); got != "0" {
			t.Errorf("temperature=%q", got)
		}
		if r.FormValue("prompt") == "" {
			t.Errorf("expected prompt")
		}
		if _, hdr, err := r.FormFile("file"); err != nil || hdr.Filename != "answer.webm" {
			t.Errorf("file part missing: %v", err)
		}
		_, _ = w.Write([]byte(`{"text":"I build APIs","language":"english","duration":3.2}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "answer.webm")
	if err := os.WriteFile(path, clip(MinAudioBytes), 0o600); err != nil {
		t.Fatal(err)
	}
	c := NewWhisperClient("key", "")
	c.Endpoint = srv.URL
	got, err := c.Recognize(context.Background(), path, DefaultAttempts[0])
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if got != "I build APIs" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestWhisper_TextFormatAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("bad key"))
			return
		}
		_, _ = w.Write([]byte("plain text answer\n"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "answer.wav")
	if err := os.WriteFile(path, clip(10), 0o600); err != nil {
		t.Fatal(err)
	}
	c := NewWhisperClient("key", "whisper-1")
	c.Endpoint = srv.URL
	c.HTTPClient = &http.Client{Timeout: time.Second}
	got, err := c.Recognize(context.Background(), path, DefaultAttempts[2])
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if got != "plain text answer\n" {
		t.Fatalf("unexpected text %q", got)
	}

	c.APIKey = "wrong"
	if _, err := c.Recognize(context.Background(), path, DefaultAttempts[2]); err == nil {
		t.Fatalf("expected error on 401")
	}
	c.APIKey = ""
	if _, err := c.Recognize(context.Background(), path, DefaultAttempts[2]); err == nil {
		t.Fatalf("expected error without key")
	}
}
