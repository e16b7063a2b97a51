package agent

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/chadiek/ai-interviewer/prompts"
)

// QuestionBank is the scripted part of an interview.
type QuestionBank struct {
	Questions      []string `yaml:"questions"`
	Clarifications []string `yaml:"clarifications"`
	Closing        string   `yaml:"closing"`
}

// ParseQuestionBank decodes a YAML question bank.
func ParseQuestionBank(data []byte) (*QuestionBank, error) {
	var b QuestionBank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("question bank: %w", err)
	}
	if len(b.Questions) < 2 {
		return nil, fmt.Errorf("question bank: need at least 2 questions, got %d", len(b.Questions))
	}
	if len(b.Clarifications) == 0 {
		return nil, fmt.Errorf("question bank: no clarification prompts")
	}
	if strings.TrimSpace(b.Closing) == "" {
		return nil, fmt.Errorf("question bank: closing statement is empty")
	}
	return &b, nil
}

// DefaultQuestionBank returns the embedded bank.
func DefaultQuestionBank() *QuestionBank {
	b, err := ParseQuestionBank(prompts.DefaultQuestionBank)
	if err != nil {
		panic(err)
	}
	return b
}

// LoadQuestionBank reads a bank from path, or returns the embedded one when path is empty.
func LoadQuestionBank(path string) (*QuestionBank, error) {
	if path == "" {
		return DefaultQuestionBank(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("question bank: %w", err)
	}
	return ParseQuestionBank(data)
}

type scriptVars struct {
	CandidateName string
	JobTitle      string
}

// Script renders the questions for one candidate. Custom questions go before the
// last two scripted ones.
func (b *QuestionBank) Script(candidateName, jobTitle string, custom []string) ([]string, error) {
	if candidateName == "" {
		candidateName = "there"
	}
	vars := scriptVars{CandidateName: candidateName, JobTitle: jobTitle}
	rendered := make([]string, 0, len(b.Questions)+len(custom))
	for i, q := range b.Questions {
		tpl, err := template.New(fmt.Sprintf("q%d", i)).Parse(q)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		var out bytes.Buffer
		if err := tpl.Execute(&out, vars); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		rendered = append(rendered, out.String())
	}

	var extra []string
	for _, q := range custom {
		if q = strings.TrimSpace(q); q != "" {
			extra = append(extra, q)
		}
	}
	if len(extra) == 0 {
		return rendered, nil
	}
	cut := len(rendered) - 2
	script := make([]string, 0, len(rendered)+len(extra))
	script = append(script, rendered[:cut]...)
	script = append(script, extra...)
	script = append(script, rendered[cut:]...)
	return script, nil
}
