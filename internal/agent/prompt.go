package agent

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/prompts"
)

// contextWindow is how many recent turns a follow-up prompt carries.
const contextWindow = 6

const (
	wrapUpInstruction     = "IMPORTANT: There is only 1 minute left in the interview. Please ask a final or wrap-up question."
	prioritizeInstruction = "NOTE: Only a few minutes remain. Prioritize the most important questions."
)

var funcs = template.FuncMap{
	"upper": func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
	"join":  strings.Join,
}

var (
	contextTpl  = template.Must(template.New("context").Funcs(funcs).Parse(prompts.InterviewerContextTemplate))
	followUpTpl = template.Must(template.New("follow_up").Funcs(funcs).Parse(prompts.FollowUpTemplate))
)

// timeInstruction maps seconds remaining to the pacing note given to the model.
func timeInstruction(secondsLeft int) string {
	switch {
	case secondsLeft <= 60:
		return wrapUpInstruction
	case secondsLeft <= 180:
		return prioritizeInstruction
	default:
		return fmt.Sprintf("Time remaining in interview: %d minutes.", secondsLeft/60)
	}
}

func buildContext(candidateName string, job interview.JobContext) (string, error) {
	if candidateName == "" {
		candidateName = "the candidate"
	}
	var out bytes.Buffer
	err := contextTpl.Execute(&out, map[string]any{
		"JobTitle":        job.Title,
		"JobDescription":  job.Description,
		"CustomQuestions": job.CustomQuestions,
		"CandidateName":   candidateName,
	})
	return out.String(), err
}

// buildFollowUpPrompt formats the interview context, pacing note, and the most
// recent turns for contextual generation.
func buildFollowUpPrompt(ctxText string, transcript []interview.Turn, candidateText string, secondsLeft int) (string, error) {
	recent := transcript
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}
	var out bytes.Buffer
	err := followUpTpl.Execute(&out, map[string]any{
		"Context":         ctxText,
		"TimeInstruction": timeInstruction(secondsLeft),
		"Recent":          recent,
		"CandidateText":   candidateText,
	})
	return out.String(), err
}
