package agent

import (
	"context"

	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/internal/llm"
)

// LLM generates a single reply for a prompt.
type LLM interface {
	Generate(ctx context.Context, prompt string, opts llm.Options) (string, error)
}

// TTS turns one utterance into playable audio.
type TTS interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ReplyKind says how an interviewer turn was produced.
type ReplyKind string

const (
	KindOpening       ReplyKind = "opening"
	KindScripted      ReplyKind = "scripted"
	KindClarification ReplyKind = "clarification"
	KindFollowUp      ReplyKind = "follow_up"
	KindFallback      ReplyKind = "fallback"
	KindClosing       ReplyKind = "closing"
	KindResume        ReplyKind = "resume"
)

// Reply is everything one engine step produced, in emission order:
// Candidate, then System, then Interviewer.
type Reply struct {
	Candidate    *interview.Turn
	System       *interview.Turn
	Interviewer  interview.Turn
	Kind         ReplyKind
	Audio        []byte
	SynthesisErr error
	// ShouldEnd is set when the interviewer turn closes the interview.
	ShouldEnd bool
}
