package tts

import (
	"context"
	"encoding/binary"
	"testing"
	"time"
)

// Without an API key Synthesize must fail fast and never dial out.
func TestDeepgram_Synthesize_NoKey(t *testing.T) {
	d := NewDeepgramClient("", "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := d.Synthesize(ctx, "hello"); err == nil {
		t.Fatalf("expected error when api key missing")
	}
	if d.ContentType() != "audio/wav" {
		t.Fatalf("unexpected content type %q", d.ContentType())
	}
}

func TestPCMToWAV_Header(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	wav := pcmToWAV(pcm, 24000, 1)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("unexpected length %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Fatalf("sample rate=%d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 48000 {
		t.Fatalf("byte rate=%d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size=%d", got)
	}
}
