package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chadiek/ai-interviewer/internal/agent"
	"github.com/chadiek/ai-interviewer/internal/infra/db"
	"github.com/chadiek/ai-interviewer/internal/infra/storage"
	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/internal/llm"
	"github.com/chadiek/ai-interviewer/internal/summary"
	"github.com/chadiek/ai-interviewer/internal/transcript"
)

type fakeLLM struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, nil
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

type transcribeResult struct {
	text string
	err  error
}

type fakeTranscriber struct {
	results []transcribeResult
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(f.results) == 0 {
		return "", errors.New("unexpected transcription")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.text, r.err
}

// manualScheduler records scheduled callbacks so tests decide when they run.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (m *manualScheduler) schedule(d time.Duration, f func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, f)
	return func() {}
}

func (m *manualScheduler) waitTasks(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		got := len(m.tasks)
		m.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d scheduled tasks", n)
}

func (m *manualScheduler) fire(i int) {
	m.mu.Lock()
	f := m.tasks[i]
	m.mu.Unlock()
	f()
}

const scoreJSON = `{"summary":"Solid candidate.","scores":{"communication":8,"technical":7,"problemSolving":6,"culturalFit":9},` +
	`"strengths":["clear"],"weaknesses":["brief"],"recommendation":"Hire"}`

type harness struct {
	sess      *Session
	store     *db.Memory
	opening   interview.Turn
	sched     *manualScheduler
	summaryAI *fakeLLM
	in        chan Inbound
	runErr    chan error
	cancel    context.CancelFunc
}

var harnessNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, followUpAt int, tr Transcriber) *harness {
	t.Helper()
	now := harnessNow
	store := db.NewMemory()
	rec := interview.Record{
		ID:              "iv-1",
		ApplicationID:   "app-1",
		CandidateName:   "Ada",
		UniqueLink:      "link-1",
		ScheduledAt:     now,
		ActualStartedAt: &now,
		IsActive:        true,
		Job:             interview.JobContext{Title: "Backend Engineer", Description: "Go services", ScreenshotInterval: 30},
	}
	store.Put(rec)
	return startHarness(t, store, &rec, followUpAt, tr)
}

// startHarness runs a session for rec, which must already be in store.
func startHarness(t *testing.T, store *db.Memory, rec *interview.Record, followUpAt int, tr Transcriber) *harness {
	t.Helper()
	clock := func() time.Time { return harnessNow }

	engine, err := agent.NewEngine(&fakeLLM{reply: "Tell me about a system you designed."}, fakeTTS{}, agent.Config{
		CandidateName: rec.CandidateName,
		Job:           rec.Job,
		History:       rec.Transcript,
		FollowUpAt:    followUpAt,
		Intn:          func(int) int { return 0 },
		Now:           clock,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	media, err := storage.NewLocal(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	summaryAI := &fakeLLM{reply: scoreJSON}
	sched := &manualScheduler{}
	if tr == nil {
		tr = &fakeTranscriber{}
	}

	sess := New(rec, Deps{
		Engine:      engine,
		Transcriber: tr,
		Summarizer:  summary.NewGenerator(summaryAI, time.Second, nil, nil),
		Store:       store,
		Media:       media,
	}, Config{Now: clock, schedule: sched.schedule})

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		sess:      sess,
		store:     store,
		sched:     sched,
		summaryAI: summaryAI,
		in:        make(chan Inbound),
		runErr:    make(chan error, 1),
		cancel:    cancel,
	}
	go func() { h.runErr <- sess.Run(ctx, h.in) }()
	t.Cleanup(cancel)

	h.expect(t, TypeVoiceConnected)
	h.opening = turnOf(t, h.expect(t, TypeTranscriptUpdate))
	h.expect(t, TypeAudioChunk)
	h.expect(t, TypeInterviewReady)
	sched.waitTasks(t, 1)
	return h
}

func (h *harness) next(t *testing.T) (Outbound, bool) {
	t.Helper()
	select {
	case msg, ok := <-h.sess.Outbound():
		return msg, ok
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound message")
		return Outbound{}, false
	}
}

func (h *harness) expect(t *testing.T, typ string) Outbound {
	t.Helper()
	msg, ok := h.next(t)
	if !ok {
		t.Fatalf("outbound closed while waiting for %s", typ)
	}
	if msg.Type != typ {
		t.Fatalf("got %q (%+v), want %q", msg.Type, msg, typ)
	}
	return msg
}

func (h *harness) expectClose(t *testing.T, code int) {
	t.Helper()
	msg, ok := h.next(t)
	if !ok || msg.Close == nil {
		t.Fatalf("expected close request, got %+v (open=%v)", msg, ok)
	}
	if msg.Close.Code != code {
		t.Fatalf("close code %d, want %d", msg.Close.Code, code)
	}
	if _, ok := h.next(t); ok {
		t.Fatalf("outbound must be closed after the close request")
	}
	if err := <-h.runErr; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func (h *harness) send(msg Inbound) { h.in <- msg }

func turnOf(t *testing.T, msg Outbound) interview.Turn {
	t.Helper()
	turn, ok := msg.Message.(interview.Turn)
	if !ok {
		t.Fatalf("message is %T, want interview.Turn", msg.Message)
	}
	return turn
}

func TestSession_TimerFiredTwiceScoresOnce(t *testing.T) {
	h := newHarness(t, 0, nil)

	h.sched.fire(0)
	h.sched.fire(0)

	system := turnOf(t, h.expect(t, TypeTranscriptUpdate))
	if system.Role != interview.RoleSystem || !strings.Contains(system.Content, "0 seconds remaining") {
		t.Fatalf("unexpected system turn %+v", system)
	}
	closing := turnOf(t, h.expect(t, TypeTranscriptUpdate))
	if closing.Role != interview.RoleInterviewer {
		t.Fatalf("unexpected closing turn %+v", closing)
	}
	h.expect(t, TypeAudioChunk)
	h.expect(t, TypeInterviewComplete)

	h.sched.waitTasks(t, 2)
	h.sched.fire(1)
	h.sched.fire(1)
	done := h.expect(t, TypeInterviewCompleted)
	if done.Summary == nil || done.Summary.Recommendation != "Hire" || done.Summary.TotalScore != 7.5 {
		t.Fatalf("unexpected summary %+v", done.Summary)
	}

	h.sched.waitTasks(t, 3)
	h.sched.fire(2)
	h.expectClose(t, CloseNormal)

	if got := len(h.store.Scores("iv-1")); got != 1 {
		t.Fatalf("expected exactly one score card, got %d", got)
	}
	if got := h.summaryAI.Calls(); got != 1 {
		t.Fatalf("expected one summary generation, got %d", got)
	}
	rec, _ := h.store.Interview("iv-1")
	if rec.EndedAt == nil {
		t.Fatalf("interview must be marked ended")
	}
	if got := h.store.ApplicationStatus("app-1"); got != interview.ApplicationInterviewCompleted {
		t.Fatalf("application status %q", got)
	}
	if h.sess.State() != interview.StateEnded {
		t.Fatalf("state %v, want ended", h.sess.State())
	}
}

func TestSession_EndInterviewPersistsEverything(t *testing.T) {
	speech := base64.StdEncoding.EncodeToString(make([]byte, transcript.MinAudioBytes))
	tr := &fakeTranscriber{results: []transcribeResult{{text: "I have built payment systems in Go for five years."}}}
	h := newHarness(t, 0, tr)

	h.send(Inbound{Type: TypeAudioData, AudioData: speech, MimeType: "audio/webm"})
	cand := turnOf(t, h.expect(t, TypeTranscriptUpdate))
	if cand.Role != interview.RoleCandidate {
		t.Fatalf("expected candidate turn first, got %+v", cand)
	}
	follow := turnOf(t, h.expect(t, TypeTranscriptUpdate))
	if follow.Content != "Tell me about a system you designed." {
		t.Fatalf("unexpected follow-up %q", follow.Content)
	}
	chunk := h.expect(t, TypeAudioChunk)
	if chunk.MimeType != "audio/mpeg" || chunk.Data == "" {
		t.Fatalf("unexpected audio chunk %+v", chunk)
	}

	png := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	h.send(Inbound{Type: TypeScreenshot, ImageData: png})
	h.send(Inbound{Type: TypeProctorEvent, Event: "tab-hidden", At: "2025-03-01T10:01:00Z"})
	h.send(Inbound{Type: TypeEndInterview})

	h.expect(t, TypeInterviewComplete)
	done := h.expect(t, TypeInterviewCompleted)
	s := done.Summary
	for _, v := range []int{s.Scores.Communication, s.Scores.Technical, s.Scores.ProblemSolving, s.Scores.CulturalFit} {
		if v < 0 || v > 10 {
			t.Fatalf("sub-score out of range: %+v", s.Scores)
		}
	}
	if _, ok := interview.ParseRecommendation(s.Recommendation); !ok {
		t.Fatalf("unknown recommendation %q", s.Recommendation)
	}

	h.sched.waitTasks(t, 2)
	h.sched.fire(1)
	h.expectClose(t, CloseNormal)

	if shots := h.store.Screenshots("iv-1"); len(shots) != 1 || !strings.HasPrefix(shots[0].URL, "/uploads/screenshots/iv-1-") {
		t.Fatalf("unexpected screenshots %+v", shots)
	}
	if events := h.store.ProctorEvents("iv-1"); len(events) != 1 || events[0].Event != "tab-hidden" {
		t.Fatalf("unexpected proctor events %+v", events)
	}
	recs := h.store.Recordings("iv-1")
	if len(recs) != 1 || recs[0].Kind != interview.RecordingAudio || !strings.HasPrefix(recs[0].URL, "/uploads/recordings/") {
		t.Fatalf("unexpected recordings %+v", recs)
	}
	turns := h.store.Transcript("iv-1")
	if len(turns) != 3 || turns[1].Role != interview.RoleCandidate {
		t.Fatalf("unexpected persisted transcript %+v", turns)
	}
	if h.store.Summary("iv-1") != "Solid candidate." {
		t.Fatalf("summary not persisted")
	}
}

func TestSession_AudioProblemsKeepSessionActive(t *testing.T) {
	tr := &fakeTranscriber{results: []transcribeResult{
		{err: interview.Errorf(interview.KindValidation, transcript.ErrAudioTooShort, "short")},
		{err: transcript.ErrNoSpeech},
		{err: interview.Errorf(interview.KindTransient, errors.New("503"), "all attempts failed")},
	}}
	h := newHarness(t, 0, tr)
	clipData := base64.StdEncoding.EncodeToString([]byte("tiny"))

	h.send(Inbound{Type: TypeAudioData, AudioData: clipData})
	if msg := h.expect(t, TypeError); msg.Message != msgSpeakLonger {
		t.Fatalf("got %v", msg.Message)
	}
	h.send(Inbound{Type: TypeAudioData, AudioData: clipData})
	if msg := h.expect(t, TypeTranscriptionStatus); msg.Message != msgNoSpeech {
		t.Fatalf("got %v", msg.Message)
	}
	h.send(Inbound{Type: TypeAudioData, AudioData: clipData})
	if msg := h.expect(t, TypeError); msg.Message != msgAudioError {
		t.Fatalf("got %v", msg.Message)
	}
	h.send(Inbound{Type: TypeAudioData, AudioData: "%%not-base64%%"})
	if msg := h.expect(t, TypeError); msg.Message != msgAudioError {
		t.Fatalf("got %v", msg.Message)
	}

	h.send(Inbound{Type: TypeTextMessage, Text: "um"})
	h.expect(t, TypeTranscriptUpdate)
	clarify := turnOf(t, h.expect(t, TypeTranscriptUpdate))
	if !strings.Contains(clarify.Content, "didn't catch that") {
		t.Fatalf("expected clarification, got %q", clarify.Content)
	}
	h.expect(t, TypeAudioChunk)

	h.send(Inbound{Type: "unknown-type"})
	if msg := h.expect(t, TypeError); msg.Message != msgBadMessage {
		t.Fatalf("got %v", msg.Message)
	}
}

func TestSession_NaturalEndThenTimerFinalizesOnce(t *testing.T) {
	h := newHarness(t, -1, nil)

	// Scripted mode: the last scripted question closes the interview.
	for i := 0; ; i++ {
		h.send(Inbound{Type: TypeTextMessage, Text: "I enjoy building reliable backend services."})
		h.expect(t, TypeTranscriptUpdate)
		turn := turnOf(t, h.expect(t, TypeTranscriptUpdate))
		h.expect(t, TypeAudioChunk)
		if strings.Contains(turn.Content, "That concludes our interview") {
			break
		}
		if i > 10 {
			t.Fatalf("script never reached its closing statement")
		}
	}
	h.expect(t, TypeInterviewComplete)

	// Further input is ignored while concluding.
	h.send(Inbound{Type: TypeTextMessage, Text: "One more thing about my background."})
	if msg := h.expect(t, TypeTranscriptionStatus); msg.Message != msgInterviewOver {
		t.Fatalf("got %v", msg.Message)
	}

	h.sched.waitTasks(t, 2)
	h.sched.fire(0) // timer expiry after the natural end is ignored
	h.sched.fire(1)
	h.expect(t, TypeInterviewCompleted)
	h.sched.waitTasks(t, 3)
	h.sched.fire(2)
	h.expectClose(t, CloseNormal)

	if got := len(h.store.Scores("iv-1")); got != 1 {
		t.Fatalf("expected one score card, got %d", got)
	}
}

func TestSession_DisconnectWhileActiveLeavesInterviewResumable(t *testing.T) {
	h := newHarness(t, 0, nil)
	close(h.in)

	if _, ok := h.next(t); ok {
		t.Fatalf("expected outbound to close")
	}
	if err := <-h.runErr; err != nil {
		t.Fatalf("run: %v", err)
	}
	rec, _ := h.store.Interview("iv-1")
	if rec.EndedAt != nil || len(h.store.Scores("iv-1")) != 0 {
		t.Fatalf("disconnect must not finalize an active interview")
	}
	if turns := h.store.Transcript("iv-1"); len(turns) != 1 || turns[0].Content != h.opening.Content {
		t.Fatalf("opening question should be saved, got %+v", turns)
	}
}

// answer sends one spoken answer and consumes the engine's reply.
func (h *harness) answer(t *testing.T, audio string) interview.Turn {
	t.Helper()
	h.send(Inbound{Type: TypeAudioData, AudioData: audio, MimeType: "audio/webm"})
	h.expect(t, TypeTranscriptUpdate)
	reply := turnOf(t, h.expect(t, TypeTranscriptUpdate))
	h.expect(t, TypeAudioChunk)
	return reply
}

func TestSession_CancelWhileActiveSavesProgress(t *testing.T) {
	speech := base64.StdEncoding.EncodeToString(make([]byte, transcript.MinAudioBytes))
	tr := &fakeTranscriber{results: []transcribeResult{{text: "I have built payment systems in Go for five years."}}}
	h := newHarness(t, 0, tr)

	h.answer(t, speech)
	h.send(Inbound{Type: TypeProctorEvent, Event: "tab-hidden"})
	h.sess.Notify("server restarting soon")
	h.expect(t, TypeTranscriptionStatus)
	h.cancel()
	h.expectClose(t, CloseGoingAway)

	rec, _ := h.store.Interview("iv-1")
	if rec.EndedAt != nil || !rec.IsActive || len(h.store.Scores("iv-1")) != 0 {
		t.Fatalf("cancel must leave the interview resumable: %+v", rec)
	}
	if turns := h.store.Transcript("iv-1"); len(turns) != 3 || turns[1].Role != interview.RoleCandidate {
		t.Fatalf("unexpected saved transcript %+v", turns)
	}
	if events := h.store.ProctorEvents("iv-1"); len(events) != 1 {
		t.Fatalf("proctor log not saved: %+v", events)
	}
	if recs := h.store.Recordings("iv-1"); len(recs) != 1 || recs[0].Kind != interview.RecordingAudio {
		t.Fatalf("answer audio not saved: %+v", recs)
	}
}

func TestSession_ResumeContinuesSavedInterview(t *testing.T) {
	speech := base64.StdEncoding.EncodeToString(make([]byte, transcript.MinAudioBytes))
	first := newHarness(t, 0, &fakeTranscriber{results: []transcribeResult{{text: "I have built payment systems in Go for five years."}}})
	question := first.answer(t, speech)
	first.send(Inbound{Type: TypeProctorEvent, Event: "tab-hidden"})
	first.cancel()
	first.expectClose(t, CloseGoingAway)

	rec, err := first.store.FindInterviewByLink(context.Background(), "link-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	second := startHarness(t, first.store, rec, 0, &fakeTranscriber{results: []transcribeResult{{text: "I designed the ledger service and its Postgres schema."}}})
	if !strings.HasPrefix(second.opening.Content, "Welcome back") || !strings.HasSuffix(second.opening.Content, question.Content) {
		t.Fatalf("resume should repeat the last question, got %q", second.opening.Content)
	}
	second.answer(t, speech)
	second.send(Inbound{Type: TypeProctorEvent, Event: "window-blur"})
	second.send(Inbound{Type: TypeEndInterview})
	second.expect(t, TypeInterviewComplete)
	second.expect(t, TypeInterviewCompleted)
	second.sched.waitTasks(t, 2)
	second.sched.fire(1)
	second.expectClose(t, CloseNormal)

	turns := second.store.Transcript("iv-1")
	if len(turns) != 6 || turns[0].Content != first.opening.Content {
		t.Fatalf("final transcript must span both connections: %+v", turns)
	}
	if events := second.store.ProctorEvents("iv-1"); len(events) != 2 {
		t.Fatalf("proctor log must span both connections: %+v", events)
	}
	if recs := second.store.Recordings("iv-1"); len(recs) != 2 {
		t.Fatalf("expected answer audio from both connections, got %+v", recs)
	}
	if len(second.store.Scores("iv-1")) != 1 {
		t.Fatalf("expected one score")
	}
}

func TestSession_ProctorLogIsBounded(t *testing.T) {
	h := newHarness(t, 0, nil)
	for i := 0; i < maxProctorEvents+5; i++ {
		h.send(Inbound{Type: TypeProctorEvent, Event: fmt.Sprintf("e-%d", i)})
	}
	h.send(Inbound{Type: TypeEndInterview})
	h.expect(t, TypeInterviewComplete)
	h.expect(t, TypeInterviewCompleted)
	h.sched.waitTasks(t, 2)
	h.sched.fire(1)
	h.expectClose(t, CloseNormal)

	events := h.store.ProctorEvents("iv-1")
	if len(events) != maxProctorEvents || events[0].Event != "e-5" || events[len(events)-1].Event != fmt.Sprintf("e-%d", maxProctorEvents+4) {
		t.Fatalf("unexpected bounded log: %d events", len(events))
	}
	if h.sess.dropped != 5 {
		t.Fatalf("dropped = %d, want 5", h.sess.dropped)
	}
}

func TestSession_CancelSendsGoingAway(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.cancel()
	h.expectClose(t, CloseGoingAway)
}

func TestSession_NotifyReachesClient(t *testing.T) {
	h := newHarness(t, 0, nil)
	h.sess.Notify("server restarting soon")
	if msg := h.expect(t, TypeTranscriptionStatus); msg.Message != "server restarting soon" {
		t.Fatalf("got %v", msg.Message)
	}
}
