package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestElevenLabs_SynthesizeMP3(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "mp3_44100_128" {
			t.Errorf("unexpected format %s", r.URL.RawQuery)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fakeaudio"))
	}))
	defer srv.Close()

	e := NewElevenLabsClient("key", "voice-1")
	e.BaseURL = srv.URL
	audio, err := e.Synthesize(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "ID3fakeaudio" {
		t.Fatalf("unexpected audio %q", audio)
	}
	settings, _ := body["voice_settings"].(map[string]any)
	if settings["speed"] != 0.9 {
		t.Fatalf("expected fixed speed 0.9, got %v", settings["speed"])
	}
	if body["text"] != "Hello there" {
		t.Fatalf("unexpected text %v", body["text"])
	}
}

func TestElevenLabs_Failures(t *testing.T) {
	if _, err := NewElevenLabsClient("", "v").Synthesize(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error without key")
	}
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(401); _, _ = w.Write([]byte("nope")) }},
		{"empty_body", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			e := NewElevenLabsClient("key", "v")
			e.BaseURL = srv.URL
			if _, err := e.Synthesize(context.Background(), "hi"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
