package tts

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"github.com/sirupsen/logrus"
)

// DeepgramClient synthesizes with Deepgram Aura over the SDK websocket client and
// returns the collected linear16 audio as a WAV file.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
	// idleWindow ends collection once audio stops arriving for this long.
	idleWindow time.Duration
	deadline   time.Duration
	log        logrus.FieldLogger
}

func NewDeepgramClient(apiKey, model string, log logrus.FieldLogger) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DeepgramClient{
		apiKey:     apiKey,
		model:      model,
		sampleRate: 24000,
		encoding:   "linear16",
		idleWindow: 400 * time.Millisecond,
		deadline:   12 * time.Second,
		log:        log,
	}
}

func (d *DeepgramClient) ContentType() string { return "audio/wav" }

func (d *DeepgramClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: API key missing")
	}
	if text == "" {
		return nil, fmt.Errorf("deepgram: empty text")
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   d.encoding,
		SampleRate: d.sampleRate,
	}

	var (
		mu           sync.Mutex
		pcm          bytes.Buffer
		lastRecvUnix int64
		seenAudio    int32
	)
	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		atomic.StoreInt64(&lastRecvUnix, time.Now().UnixNano())
		atomic.StoreInt32(&seenAudio, 1)
		mu.Lock()
		pcm.Write(data)
		mu.Unlock()
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		d.log.WithError(err).Warn("deepgram: flush error")
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(d.deadline)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if atomic.LoadInt32(&seenAudio) == 1 {
			last := time.Unix(0, atomic.LoadInt64(&lastRecvUnix))
			if time.Since(last) > d.idleWindow {
				break
			}
		}
		if time.Now().After(deadline) {
			if atomic.LoadInt32(&seenAudio) == 0 {
				return nil, fmt.Errorf("deepgram: no audio before deadline")
			}
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return pcmToWAV(pcm.Bytes(), d.sampleRate, 1), nil
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
