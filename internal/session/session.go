// Package session runs one accepted interview connection: it turns client
// messages into interviewer turns, enforces the time limit and persists the
// outcome exactly once.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chadiek/ai-interviewer/internal/agent"
	"github.com/chadiek/ai-interviewer/internal/infra/storage"
	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/internal/metrics"
	"github.com/chadiek/ai-interviewer/internal/transcript"
)

// Engine produces interviewer turns.
type Engine interface {
	Start(ctx context.Context) agent.Reply
	Respond(ctx context.Context, candidateText string, secondsLeft int) agent.Reply
	Conclude(ctx context.Context) agent.Reply
	Transcript() []interview.Turn
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript []interview.Turn, job interview.JobContext) interview.ScoreCard
}

// Store is the part of the persistence gateway a session writes to.
type Store interface {
	UpsertInterview(ctx context.Context, u interview.Update) error
	CreateScore(ctx context.Context, interviewID string, card interview.ScoreCard) error
	CreateRecording(ctx context.Context, interviewID string, rec interview.Recording) error
	CreateScreenshot(ctx context.Context, interviewID string, shot interview.Screenshot) error
	SetApplicationStatus(ctx context.Context, applicationID, status string) error
}

// Deps are the collaborators of one session.
type Deps struct {
	Engine      Engine
	Transcriber Transcriber
	Summarizer  Summarizer
	Store       Store
	Media       storage.Storage
}

// Config holds session timings. Zero values pick defaults.
type Config struct {
	Duration        time.Duration
	NaturalEndGrace time.Duration
	ForcedEndGrace  time.Duration
	CloseDelay      time.Duration
	FinalizeTimeout time.Duration
	// AudioMIME is the content type of synthesized audio chunks.
	AudioMIME      string
	OutboundBuffer int
	Now            func() time.Time
	Log            logrus.FieldLogger
	Metrics        *metrics.Metrics

	schedule scheduleFunc
}

func (c *Config) setDefaults() {
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	if c.NaturalEndGrace <= 0 {
		c.NaturalEndGrace = 3 * time.Second
	}
	if c.ForcedEndGrace <= 0 {
		c.ForcedEndGrace = 5 * time.Second
	}
	if c.CloseDelay <= 0 {
		c.CloseDelay = 2 * time.Second
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 90 * time.Second
	}
	if c.AudioMIME == "" {
		c.AudioMIME = "audio/mpeg"
	}
	if c.OutboundBuffer <= 0 {
		c.OutboundBuffer = 64
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	if c.schedule == nil {
		c.schedule = afterFunc
	}
}

// event is work executed on the session loop.
type event func(ctx context.Context)

// maxProctorEvents bounds the proctor log kept for one interview; older events
// are dropped first.
const maxProctorEvents = 1000

type clip struct {
	data     []byte
	mimeType string
}

// Session owns one interview connection. All state is confined to the Run loop;
// timers and other goroutines talk to it by posting events.
type Session struct {
	ID string

	rec   *interview.Record
	deps  Deps
	cfg   Config
	log   logrus.FieldLogger
	timer *Timer

	events chan event
	out    chan Outbound
	done   chan struct{}

	state     interview.State
	startedAt time.Time
	clips     []clip
	proctor   []interview.ProctorEvent
	dropped   int
	pending   []func()
	closing   bool
}

// New prepares a session for an interview the gatekeeper accepted.
func New(rec *interview.Record, deps Deps, cfg Config) *Session {
	cfg.setDefaults()
	id := uuid.NewString()
	started := cfg.Now()
	if rec.ActualStartedAt != nil {
		started = *rec.ActualStartedAt
	}
	s := &Session{
		ID:    id,
		rec:   rec,
		deps:  deps,
		cfg:   cfg,
		log:   cfg.Log.WithFields(logrus.Fields{"session": id, "interview": rec.ID}),
		timer: NewTimer(started, cfg.Duration, cfg.Now, cfg.schedule),

		events: make(chan event, 8),
		out:    make(chan Outbound, cfg.OutboundBuffer),
		done:   make(chan struct{}),
		state:  interview.StatePending,
	}
	for _, ev := range rec.ProctorEvents {
		s.appendProctor(ev)
	}
	return s
}

// Outbound is drained by the transport. It is closed when Run returns.
func (s *Session) Outbound() <-chan Outbound { return s.out }

// State is only meaningful once Run has returned.
func (s *Session) State() interview.State { return s.state }

// Notify queues a status message for the client. Safe to call from any goroutine.
func (s *Session) Notify(text string) {
	s.post(func(ctx context.Context) { s.send(ctx, statusMessage(text)) })
}

// Run drives the interview until it is finalized, the client goes away or ctx
// is canceled.
func (s *Session) Run(ctx context.Context, in <-chan Inbound) error {
	defer close(s.out)
	defer close(s.done)
	defer s.stopAll()

	s.state = interview.StateActive
	s.startedAt = s.cfg.Now()
	s.cfg.Metrics.RecordSessionStart()
	defer func() {
		s.cfg.Metrics.RecordSessionEnd(s.state.String(), s.cfg.Now().Sub(s.startedAt))
	}()
	s.log.Info("session: started")

	s.send(ctx, Outbound{Type: TypeVoiceConnected})
	s.emit(ctx, s.deps.Engine.Start(ctx))
	s.send(ctx, Outbound{Type: TypeInterviewReady, Interview: &ReadyInterview{
		ID:                 s.rec.ID,
		ScheduledAt:        s.rec.ScheduledAt,
		Job:                s.rec.Job,
		ScreenshotInterval: s.rec.Job.ScreenshotInterval,
		SecondsRemaining:   s.timer.SecondsRemaining(),
	}})
	s.timer.Start(func() { s.post(s.onTimeUp) })

	for !s.closing {
		select {
		case <-ctx.Done():
			s.log.Info("session: canceled")
			s.leave(ctx)
			s.trySend(Outbound{Close: &CloseRequest{Code: CloseGoingAway, Reason: ReasonShutdown}})
			return nil
		case msg, ok := <-in:
			if !ok {
				s.log.Info("session: client disconnected")
				s.leave(ctx)
				return nil
			}
			s.handle(ctx, msg)
		case ev := <-s.events:
			ev(ctx)
		}
	}
	return nil
}

func (s *Session) handle(ctx context.Context, msg Inbound) {
	if msg.Type == TypeEndInterview && s.state == interview.StateConcluding {
		s.finalize(ctx, "end_interview")
		return
	}
	if s.state != interview.StateActive {
		s.send(ctx, statusMessage(msgInterviewOver))
		return
	}
	switch msg.Type {
	case TypeAudioData:
		s.onAudio(ctx, msg)
	case TypeTextMessage:
		if strings.TrimSpace(msg.Text) != "" {
			s.respond(ctx, msg.Text)
		}
	case TypeScreenshot:
		s.onScreenshot(ctx, msg)
	case TypeProctorEvent:
		s.onProctorEvent(msg)
	case TypeEndInterview:
		s.finalize(ctx, "end_interview")
	default:
		s.log.WithField("type", msg.Type).Debug("session: unknown message type")
		s.send(ctx, errorMessage(msgBadMessage))
	}
}

func (s *Session) onAudio(ctx context.Context, msg Inbound) {
	if msg.AudioData == "" {
		return
	}
	audio, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		s.log.WithError(err).Warn("session: bad audio payload")
		s.send(ctx, errorMessage(msgAudioError))
		return
	}
	s.cfg.Metrics.RecordAudio("inbound", len(audio))

	text, err := s.deps.Transcriber.Transcribe(ctx, audio, msg.MimeType)
	switch {
	case errors.Is(err, transcript.ErrAudioTooShort):
		s.send(ctx, errorMessage(msgSpeakLonger))
		return
	case errors.Is(err, transcript.ErrNoSpeech), errors.Is(err, transcript.ErrNoValidTranscript):
		s.send(ctx, statusMessage(msgNoSpeech))
		return
	case err != nil:
		s.log.WithError(err).WithField("kind", interview.KindOf(err).String()).Warn("session: transcription failed")
		s.send(ctx, errorMessage(msgAudioError))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.send(ctx, statusMessage(msgNoSpeech))
		return
	}
	s.clips = append(s.clips, clip{data: audio, mimeType: msg.MimeType})
	s.respond(ctx, text)
}

func (s *Session) respond(ctx context.Context, text string) {
	reply := s.deps.Engine.Respond(ctx, text, s.timer.SecondsRemaining())
	s.emit(ctx, reply)
	if reply.ShouldEnd {
		s.scheduleFinalize(ctx, s.cfg.NaturalEndGrace, "natural_end")
	}
}

func (s *Session) onTimeUp(ctx context.Context) {
	if s.state != interview.StateActive {
		return
	}
	s.log.Info("session: time limit reached")
	s.emit(ctx, s.deps.Engine.Conclude(ctx))
	s.scheduleFinalize(ctx, s.cfg.ForcedEndGrace, "timer")
}

// scheduleFinalize moves an active session to Concluding and finalizes it after
// delay. Later triggers are ignored.
func (s *Session) scheduleFinalize(ctx context.Context, delay time.Duration, trigger string) {
	if s.state != interview.StateActive {
		return
	}
	s.state = interview.StateConcluding
	s.timer.Stop()
	s.send(ctx, Outbound{Type: TypeInterviewComplete})
	s.after(delay, func(ctx context.Context) { s.finalize(ctx, trigger) })
}

// finalize summarizes and persists the interview. It runs at most once.
func (s *Session) finalize(ctx context.Context, trigger string) {
	if s.state == interview.StateEnded {
		return
	}
	wasActive := s.state == interview.StateActive
	s.state = interview.StateConcluding
	s.timer.Stop()
	if wasActive {
		s.send(ctx, Outbound{Type: TypeInterviewComplete})
	}
	s.cfg.Metrics.RecordFinalized(trigger)
	log := s.log.WithField("trigger", trigger)
	log.Info("session: finalizing")
	if s.dropped > 0 {
		log.WithField("dropped", s.dropped).Warn("session: proctor log truncated")
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
	defer cancel()

	turns := s.deps.Engine.Transcript()
	card := s.deps.Summarizer.Summarize(fctx, turns, s.rec.Job)
	s.storeRecordings(fctx, log)

	ended := s.cfg.Now()
	err := s.deps.Store.UpsertInterview(fctx, interview.Update{
		ID:            s.rec.ID,
		EndedAt:       &ended,
		Summary:       card.Summary,
		Transcript:    turns,
		ProctorEvents: s.proctor,
	})
	if err == nil {
		err = s.deps.Store.CreateScore(fctx, s.rec.ID, card)
	}
	s.state = interview.StateEnded
	if err != nil {
		log.WithError(err).Error("session: persist interview")
		s.send(ctx, errorMessage(msgEndError))
		s.after(s.cfg.CloseDelay, s.closeWith(CloseInternalError, ReasonInternal))
		return
	}
	if s.rec.ApplicationID != "" {
		if err := s.deps.Store.SetApplicationStatus(fctx, s.rec.ApplicationID, interview.ApplicationInterviewCompleted); err != nil {
			log.WithError(err).Warn("session: update application status")
		}
	}

	s.send(ctx, Outbound{Type: TypeInterviewCompleted, Summary: summaryOf(card)})
	log.WithField("recommendation", card.Recommendation).Info("session: interview completed")
	s.after(s.cfg.CloseDelay, s.closeWith(CloseNormal, ReasonCompleted))
}

// leave runs when the connection goes away. A concluding interview is
// finalized; an active one saves its progress and stays resumable.
func (s *Session) leave(ctx context.Context) {
	switch s.state {
	case interview.StateConcluding:
		s.finalize(ctx, "disconnect")
	case interview.StateActive:
		s.saveProgress(ctx)
	}
}

// saveProgress stores the transcript, proctor log and answer audio so far
// without ending the interview.
func (s *Session) saveProgress(ctx context.Context) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
	defer cancel()
	s.storeRecordings(pctx, s.log)
	turns := s.deps.Engine.Transcript()
	err := s.deps.Store.UpsertInterview(pctx, interview.Update{
		ID:            s.rec.ID,
		Transcript:    turns,
		ProctorEvents: s.proctor,
	})
	if err != nil {
		s.log.WithError(err).Error("session: save progress")
		return
	}
	s.log.WithField("turns", len(turns)).Info("session: progress saved")
}

func (s *Session) storeRecordings(ctx context.Context, log logrus.FieldLogger) {
	if s.deps.Media == nil {
		return
	}
	for _, c := range s.clips {
		ct := c.mimeType
		if ct == "" {
			ct = "audio/webm"
		}
		url, err := s.deps.Media.Store(ctx, "recordings", storage.ObjectName(s.rec.ID, ct), ct, c.data)
		if err != nil {
			log.WithError(err).Warn("session: upload answer audio")
			continue
		}
		rec := interview.Recording{URL: url, Kind: interview.RecordingAudio, ContentType: ct, CreatedAt: s.cfg.Now()}
		if err := s.deps.Store.CreateRecording(ctx, s.rec.ID, rec); err != nil {
			log.WithError(err).Warn("session: save recording")
		}
	}
	s.clips = nil
}

func (s *Session) closeWith(code int, reason string) event {
	return func(ctx context.Context) {
		s.send(ctx, Outbound{Close: &CloseRequest{Code: code, Reason: reason}})
		s.closing = true
	}
}

func (s *Session) onScreenshot(ctx context.Context, msg Inbound) {
	if msg.ImageData == "" || s.deps.Media == nil {
		return
	}
	data, ct, err := storage.DecodeDataURL(msg.ImageData, "image/png")
	if err != nil {
		s.log.WithError(err).Warn("session: bad screenshot payload")
		return
	}
	url, err := s.deps.Media.Store(ctx, "screenshots", storage.ObjectName(s.rec.ID, ct), ct, data)
	if err != nil {
		s.log.WithError(err).Error("session: store screenshot")
		s.send(ctx, errorMessage(msgScreenshotError))
		return
	}
	if err := s.deps.Store.CreateScreenshot(ctx, s.rec.ID, interview.Screenshot{URL: url, TakenAt: s.cfg.Now()}); err != nil {
		s.log.WithError(err).Error("session: save screenshot")
		return
	}
	s.log.WithField("url", url).Debug("session: screenshot saved")
}

func (s *Session) onProctorEvent(msg Inbound) {
	if msg.Event == "" {
		return
	}
	s.appendProctor(interview.ProctorEvent{Event: msg.Event, At: msg.At, ReceivedAt: s.cfg.Now()})
	s.cfg.Metrics.RecordProctorEvent(msg.Event)
}

func (s *Session) appendProctor(ev interview.ProctorEvent) {
	if len(s.proctor) >= maxProctorEvents {
		n := copy(s.proctor, s.proctor[1:])
		s.proctor = s.proctor[:n]
		s.dropped++
	}
	s.proctor = append(s.proctor, ev)
}

// emit sends one engine step to the client in transcript order.
func (s *Session) emit(ctx context.Context, r agent.Reply) {
	if r.Candidate != nil {
		s.send(ctx, Outbound{Type: TypeTranscriptUpdate, Message: *r.Candidate})
	}
	if r.System != nil {
		s.send(ctx, Outbound{Type: TypeTranscriptUpdate, Message: *r.System})
	}
	s.send(ctx, Outbound{Type: TypeTranscriptUpdate, Message: r.Interviewer})
	if r.SynthesisErr != nil {
		s.send(ctx, errorMessage(msgVoiceError))
		return
	}
	if len(r.Audio) > 0 {
		s.cfg.Metrics.RecordAudio("outbound", len(r.Audio))
		s.send(ctx, Outbound{
			Type:     TypeAudioChunk,
			Data:     base64.StdEncoding.EncodeToString(r.Audio),
			MimeType: s.cfg.AudioMIME,
		})
	}
}

func (s *Session) send(ctx context.Context, msg Outbound) {
	select {
	case s.out <- msg:
	case <-ctx.Done():
	}
}

func (s *Session) trySend(msg Outbound) {
	select {
	case s.out <- msg:
	default:
	}
}

// post hands ev to the Run loop; it is dropped once the session is over.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) after(d time.Duration, ev event) {
	cancel := s.cfg.schedule(d, func() { s.post(ev) })
	s.pending = append(s.pending, cancel)
}

func (s *Session) stopAll() {
	s.timer.Stop()
	for _, cancel := range s.pending {
		cancel()
	}
	s.pending = nil
}
