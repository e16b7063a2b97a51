package agent

import (
	"regexp"
	"strings"
)

var (
	fillerOnly = regexp.MustCompile(`(?i)^(?:(?:u+m+|u+h+|e+r+m*|h+m+|a+h+|oh|well|so|like|i|the|and|a|an)[\s,.!?-]*)+$`)
	noLetters  = regexp.MustCompile(`^[^a-zA-Z]*$`)
)

// errorMarkers are placeholders upstream components insert instead of speech.
var errorMarkers = []string{"[unclear", "[speech", "[audio", "[inaudible", "[no speech"}

// IsUnclear reports whether a candidate utterance is too garbled to answer.
func IsUnclear(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || len(t) < 3 {
		return true
	}
	if fillerOnly.MatchString(t) || noLetters.MatchString(t) {
		return true
	}
	lower := strings.ToLower(t)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var closingPhrases = []string{
	"thank you for your time",
	"that concludes",
	"we're all done",
	"end of the interview",
}

// endThreshold is the transcript length after which "final question" also ends the interview.
const endThreshold = 20

// ShouldEnd reports whether an interviewer utterance closes the interview.
func ShouldEnd(utterance string, transcriptLen int) bool {
	lower := strings.ToLower(utterance)
	for _, p := range closingPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return transcriptLen > endThreshold && strings.Contains(lower, "final question")
}
