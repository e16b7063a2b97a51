package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/internal/metrics"
)

// MinAudioBytes is the smallest clip worth sending to a recognizer.
const MinAudioBytes = 8000

var (
	ErrAudioTooShort = errors.New("audio too short")
	// ErrNoSpeech means every attempt came back empty without a service error.
	ErrNoSpeech = errors.New("no speech detected")
	// ErrNoValidTranscript means attempts produced text but none passed validation.
	ErrNoValidTranscript = errors.New("no valid transcription")
)

// Recognizer turns an audio file into raw text.
type Recognizer interface {
	Recognize(ctx context.Context, path string, p AttemptPolicy) (string, error)
}

// Pipeline runs validated, multi-attempt transcription of audio clips.
type Pipeline struct {
	Recognizer Recognizer
	Attempts   []AttemptPolicy
	// TempDir holds clips while they are transcribed; empty means os.TempDir.
	TempDir string
	// AttemptTimeout bounds each recognizer call.
	AttemptTimeout time.Duration
	Log            logrus.FieldLogger
	Metrics        *metrics.Metrics
}

func NewPipeline(r Recognizer, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		Recognizer:     r,
		Attempts:       DefaultAttempts,
		AttemptTimeout: 30 * time.Second,
		Log:            log,
	}
}

// Transcribe converts an audio clip into cleaned text.
func (p *Pipeline) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) < MinAudioBytes {
		return "", interview.Errorf(interview.KindValidation, ErrAudioTooShort, "clip is %d bytes", len(audio))
	}

	path, err := p.writeTemp(audio, mimeType)
	if err != nil {
		return "", err
	}
	defer func() {
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			p.logger().WithError(rerr).Warn("transcript: remove temp file")
		}
	}()

	var lastErr error
	sawInvalid := false
	for _, policy := range p.Attempts {
		res := p.attempt(ctx, path, policy)
		p.logger().WithFields(logrus.Fields{
			"attempt": policy.Name,
			"outcome": res.Outcome.String(),
		}).Debug("transcript: attempt finished")
		switch res.Outcome {
		case outcomeOK:
			return Clean(res.Text), nil
		case outcomeInvalid:
			if res.Raw != "" {
				sawInvalid = true
			}
		case outcomeFailed:
			lastErr = res.Err
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}

	switch {
	case lastErr != nil:
		return "", interview.Errorf(interview.KindTransient, lastErr, "all transcription attempts failed")
	case sawInvalid:
		return "", ErrNoValidTranscript
	default:
		return "", ErrNoSpeech
	}
}

func (p *Pipeline) attempt(ctx context.Context, path string, policy AttemptPolicy) attemptResult {
	timeout := p.AttemptTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := p.Recognizer.Recognize(actx, path, policy)
	p.Metrics.RecordExternalCall("transcription", err, time.Since(start))
	if err != nil {
		p.logger().WithError(err).WithField("attempt", policy.Name).Warn("transcript: recognizer error")
		return attemptResult{Policy: policy, Outcome: outcomeFailed, Err: err}
	}
	if !Valid(raw) {
		return attemptResult{Policy: policy, Outcome: outcomeInvalid, Raw: raw}
	}
	return attemptResult{Policy: policy, Outcome: outcomeOK, Text: raw}
}

func (p *Pipeline) writeTemp(audio []byte, mimeType string) (string, error) {
	f, err := os.CreateTemp(p.TempDir, "answer-*"+ExtensionFor(mimeType))
	if err != nil {
		return "", interview.Errorf(interview.KindResource, err, "create temp file")
	}
	path := f.Name()
	if _, err := f.Write(audio); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", interview.Errorf(interview.KindResource, err, "write temp file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", interview.Errorf(interview.KindResource, err, "close temp file")
	}
	info, err := os.Stat(path)
	if err != nil {
		_ = os.Remove(path)
		return "", interview.Errorf(interview.KindResource, err, "stat temp file")
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return "", interview.Errorf(interview.KindResource, fmt.Errorf("empty temp file %s", path), "temp file is empty")
	}
	if info.Size() < MinAudioBytes {
		_ = os.Remove(path)
		return "", interview.Errorf(interview.KindValidation, ErrAudioTooShort, "stored clip is %d bytes", info.Size())
	}
	return path, nil
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}
