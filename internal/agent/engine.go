package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/internal/llm"
	"github.com/chadiek/ai-interviewer/internal/metrics"
)

const (
	fallbackOnError = "That's great. Can you tell me more about that experience?"
	fallbackOnEmpty = "That's interesting. Tell me more about that."
	timeUpNotice    = "Interview time limit reached. 0 seconds remaining."
	resumePrefix    = "Welcome back, let's pick up where we left off. "
)

// followUpOptions are the generation settings for contextual replies.
var followUpOptions = llm.Options{Temperature: 0.8, MaxTokens: 100}

// Config customizes an Engine. Zero values pick defaults.
type Config struct {
	CandidateName string
	Job           interview.JobContext
	Bank          *QuestionBank
	// History is the transcript saved by an earlier connection to the same
	// interview. The engine continues from it instead of starting over.
	History []interview.Turn
	// FollowUpAt is the script cursor at which the engine switches to contextual
	// follow-ups for the rest of the interview. Zero means 1; negative disables it.
	FollowUpAt int
	// Intn picks a clarification prompt; defaults to math/rand.
	Intn       func(n int) int
	Now        func() time.Time
	LLMTimeout time.Duration
	TTSTimeout time.Duration
	Log        logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// Engine decides what the interviewer says next. It is owned by a single session
// and must not be used concurrently.
type Engine struct {
	llm LLM
	tts TTS
	cfg Config

	context        string
	script         []string
	clarifications []string
	closing        string

	// index is the position of the next scripted question.
	index      int
	followUp   bool
	resumed    bool
	transcript []interview.Turn
}

// NewEngine prepares the script and interview context for one candidate.
func NewEngine(l LLM, t TTS, cfg Config) (*Engine, error) {
	if l == nil || t == nil {
		return nil, errors.New("agent: llm and tts are required")
	}
	if cfg.Bank == nil {
		cfg.Bank = DefaultQuestionBank()
	}
	if cfg.FollowUpAt == 0 {
		cfg.FollowUpAt = 1
	}
	if cfg.Intn == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		cfg.Intn = rng.Intn
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 15 * time.Second
	}
	if cfg.TTSTimeout <= 0 {
		cfg.TTSTimeout = 15 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	script, err := cfg.Bank.Script(cfg.CandidateName, cfg.Job.Title, cfg.Job.CustomQuestions)
	if err != nil {
		return nil, fmt.Errorf("agent: render script: %w", err)
	}
	ctxText, err := buildContext(cfg.CandidateName, cfg.Job)
	if err != nil {
		return nil, fmt.Errorf("agent: render context: %w", err)
	}
	e := &Engine{
		llm:            l,
		tts:            t,
		cfg:            cfg,
		context:        ctxText,
		script:         script,
		clarifications: cfg.Bank.Clarifications,
		closing:        cfg.Bank.Closing,
	}
	e.restore(cfg.History)
	return e, nil
}

// restore replays a saved transcript to recover the script cursor and
// follow-up mode. The script is rebuilt from the same inputs, so asked
// questions match it verbatim.
func (e *Engine) restore(history []interview.Turn) {
	e.transcript = append([]interview.Turn(nil), history...)
	for _, t := range history {
		if t.Role != interview.RoleInterviewer {
			continue
		}
		e.resumed = true
		switch {
		case strings.HasPrefix(t.Content, resumePrefix):
		case !e.followUp && e.index < len(e.script) && t.Content == e.script[e.index]:
			e.index++
		case t.Content == e.closing || slices.Contains(e.clarifications, t.Content):
		case e.index > 0:
			e.followUp = true
		}
	}
}

// lastQuestion is the most recent interviewer turn that was not a resume greeting.
func (e *Engine) lastQuestion() string {
	for i := len(e.transcript) - 1; i >= 0; i-- {
		t := e.transcript[i]
		if t.Role == interview.RoleInterviewer {
			return strings.TrimPrefix(t.Content, resumePrefix)
		}
	}
	return e.script[0]
}

// Start asks the opening question. The cursor then points at the second question.
// A resumed interview repeats the last question instead.
func (e *Engine) Start(ctx context.Context) Reply {
	if e.resumed {
		return e.speak(ctx, Reply{Kind: KindResume}, resumePrefix+e.lastQuestion())
	}
	text := e.script[0]
	e.index = 1
	return e.speak(ctx, Reply{Kind: KindOpening}, text)
}

// Respond records the candidate's answer and produces the interviewer's next turn.
func (e *Engine) Respond(ctx context.Context, candidateText string, secondsLeft int) Reply {
	candidate := e.appendTurn(interview.RoleCandidate, candidateText)
	reply := Reply{Candidate: &candidate}

	var text string
	switch {
	case IsUnclear(candidateText):
		reply.Kind = KindClarification
		text = e.clarifications[e.cfg.Intn(len(e.clarifications))]
	case !e.followUp && e.index == e.cfg.FollowUpAt:
		e.followUp = true
		reply.Kind, text = e.generate(ctx, candidateText, secondsLeft)
	case !e.followUp && e.index < len(e.script):
		reply.Kind = KindScripted
		text = e.script[e.index]
		e.index++
	default:
		reply.Kind, text = e.generate(ctx, candidateText, secondsLeft)
	}
	return e.speak(ctx, reply, text)
}

// Conclude records that time ran out and delivers the closing statement.
func (e *Engine) Conclude(ctx context.Context) Reply {
	system := e.appendTurn(interview.RoleSystem, timeUpNotice)
	return e.speak(ctx, Reply{System: &system, Kind: KindClosing}, e.closing)
}

// Transcript returns a copy of the turns so far.
func (e *Engine) Transcript() []interview.Turn {
	out := make([]interview.Turn, len(e.transcript))
	copy(out, e.transcript)
	return out
}

// Index is the position of the next scripted question.
func (e *Engine) Index() int { return e.index }

// InFollowUp reports whether the script has been handed over to contextual generation.
func (e *Engine) InFollowUp() bool { return e.followUp }

func (e *Engine) generate(ctx context.Context, candidateText string, secondsLeft int) (ReplyKind, string) {
	prompt, err := buildFollowUpPrompt(e.context, e.transcript, candidateText, secondsLeft)
	if err != nil {
		e.cfg.Log.WithError(err).Error("agent: build follow-up prompt")
		return KindFallback, fallbackOnError
	}
	gctx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()
	start := time.Now()
	out, err := e.llm.Generate(gctx, prompt, followUpOptions)
	e.cfg.Metrics.RecordExternalCall("generation", err, time.Since(start))
	if err != nil {
		e.cfg.Log.WithError(err).Warn("agent: llm error, using fallback")
		return KindFallback, fallbackOnError
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return KindFallback, fallbackOnEmpty
	}
	return KindFollowUp, out
}

// speak appends the interviewer turn, synthesizes it, and checks for a natural end.
func (e *Engine) speak(ctx context.Context, reply Reply, text string) Reply {
	reply.Interviewer = e.appendTurn(interview.RoleInterviewer, text)
	e.cfg.Metrics.RecordTurn(string(reply.Kind))

	sctx, cancel := context.WithTimeout(ctx, e.cfg.TTSTimeout)
	defer cancel()
	start := time.Now()
	audio, err := e.tts.Synthesize(sctx, text)
	e.cfg.Metrics.RecordExternalCall("synthesis", err, time.Since(start))
	if err != nil {
		e.cfg.Log.WithError(err).Warn("agent: synthesis failed")
		reply.SynthesisErr = err
	} else {
		reply.Audio = audio
	}

	reply.ShouldEnd = reply.Kind == KindClosing || ShouldEnd(text, len(e.transcript))
	return reply
}

func (e *Engine) appendTurn(role interview.Role, content string) interview.Turn {
	t := interview.Turn{Role: role, Content: content, Timestamp: e.cfg.Now()}
	e.transcript = append(e.transcript, t)
	return t
}
