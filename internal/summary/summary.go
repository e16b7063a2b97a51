// Package summary turns a finished interview transcript into a scored assessment.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/internal/llm"
	"github.com/chadiek/ai-interviewer/internal/metrics"
	"github.com/chadiek/ai-interviewer/prompts"
)

const fallbackSummary = "Summary could not be generated due to an AI response error."

var summaryOptions = llm.Options{
	System:      "You are an interview analyst. You reply with a single JSON object.",
	Temperature: 0.1,
	MaxTokens:   800,
}

var summaryTpl = template.Must(template.New("summary").Funcs(template.FuncMap{
	"upper": func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
}).Parse(prompts.SummaryTemplate))

// LLM generates a single reply for a prompt.
type LLM interface {
	Generate(ctx context.Context, prompt string, opts llm.Options) (string, error)
}

// Generator produces score cards. It never fails: problems yield Fallback().
type Generator struct {
	llm     LLM
	timeout time.Duration
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewGenerator(l LLM, timeout time.Duration, log logrus.FieldLogger, m *metrics.Metrics) *Generator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Generator{llm: l, timeout: timeout, log: log, metrics: m}
}

// Fallback is the neutral score card used when no assessment could be produced.
func Fallback() interview.ScoreCard {
	return interview.ScoreCard{
		Summary:        fallbackSummary,
		Strengths:      []string{},
		Weaknesses:     []string{},
		Recommendation: interview.NoRecommendation,
	}
}

// Summarize assesses the transcript against the job.
func (g *Generator) Summarize(ctx context.Context, transcript []interview.Turn, job interview.JobContext) interview.ScoreCard {
	var prompt bytes.Buffer
	if err := summaryTpl.Execute(&prompt, map[string]any{
		"JobTitle":       job.Title,
		"JobDescription": job.Description,
		"Transcript":     transcript,
	}); err != nil {
		g.log.WithError(err).Error("summary: render prompt")
		return Fallback()
	}

	sctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	out, err := g.llm.Generate(sctx, prompt.String(), summaryOptions)
	g.metrics.RecordExternalCall("summary", err, time.Since(start))
	if err != nil {
		g.log.WithError(err).Warn("summary: generation failed, using fallback")
		return Fallback()
	}
	card, err := Parse(out)
	if err != nil {
		g.log.WithError(err).WithField("reply", truncate(out, 200)).Warn("summary: unparseable reply, using fallback")
		return Fallback()
	}
	return card
}

type rawScores struct {
	Communication  float64 `json:"communication"`
	Technical      float64 `json:"technical"`
	ProblemSolving float64 `json:"problemSolving"`
	CulturalFit    float64 `json:"culturalFit"`
}

type rawCard struct {
	Summary        string     `json:"summary"`
	Scores         *rawScores `json:"scores"`
	Strengths      []string   `json:"strengths"`
	Weaknesses     []string   `json:"weaknesses"`
	Recommendation string     `json:"recommendation"`
}

var errNoObject = errors.New("no JSON object in reply")

// Parse extracts a score card from a model reply. Code fences and prose around
// the object are ignored.
func Parse(reply string) (interview.ScoreCard, error) {
	obj, err := extractObject(reply)
	if err != nil {
		return interview.ScoreCard{}, err
	}
	var raw rawCard
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return interview.ScoreCard{}, fmt.Errorf("decode score card: %w", err)
	}
	if raw.Scores == nil {
		return interview.ScoreCard{}, errors.New("score card has no scores")
	}
	rec, _ := interview.ParseRecommendation(raw.Recommendation)
	card := interview.ScoreCard{
		Summary:        strings.TrimSpace(raw.Summary),
		Communication:  clampScore(raw.Scores.Communication),
		Technical:      clampScore(raw.Scores.Technical),
		ProblemSolving: clampScore(raw.Scores.ProblemSolving),
		CulturalFit:    clampScore(raw.Scores.CulturalFit),
		Strengths:      nonEmpty(raw.Strengths),
		Weaknesses:     nonEmpty(raw.Weaknesses),
		Recommendation: rec,
	}
	card.Total = interview.TotalScore(card.Communication, card.Technical, card.ProblemSolving, card.CulturalFit)
	return card, nil
}

func extractObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errNoObject
	}
	return s[start : end+1], nil
}

func clampScore(v float64) int {
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > 10 {
		return 10
	}
	return r
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
