package transcript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Recognizers hallucinate on silence or noise: captions, links, legal boilerplate.
var invalidPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://\S+`),
	regexp.MustCompile(`(?i)www\.\S+`),
	regexp.MustCompile(`(?i)\.com\S*`),
	regexp.MustCompile(`(?i)disclaimer`),
	regexp.MustCompile(`^[^a-zA-Z]*$`),
	regexp.MustCompile(`^.{0,3}$`),
}

// Valid reports whether recognizer output looks like real speech.
func Valid(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, p := range invalidPatterns {
		if p.MatchString(text) {
			return false
		}
	}
	return true
}

var (
	multiSpace    = regexp.MustCompile(`\s+`)
	leadingJunk   = regexp.MustCompile(`^[^a-zA-Z0-9]+`)
	trailingJunk  = regexp.MustCompile(`[^a-zA-Z0-9\s.,!?'-]+$`)
	terminalPunct = regexp.MustCompile(`[.!?]$`)
)

// Clean normalizes accepted recognizer output.
func Clean(text string) string {
	out := strings.TrimSpace(text)
	out = multiSpace.ReplaceAllString(out, " ")
	out = leadingJunk.ReplaceAllString(out, "")
	out = trailingJunk.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	if out == "" {
		return out
	}
	r, size := utf8.DecodeRuneInString(out)
	out = string(unicode.ToUpper(r)) + out[size:]
	if len(out) > 10 && !terminalPunct.MatchString(out) {
		out += "."
	}
	return out
}

// ExtensionFor picks a file extension the recognizer accepts for a browser MIME type.
func ExtensionFor(mimeType string) string {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "webm"):
		return ".webm"
	case strings.Contains(m, "mp4"), strings.Contains(m, "m4a"):
		return ".mp4"
	case strings.Contains(m, "wav"):
		return ".wav"
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return ".mp3"
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return ".ogg"
	default:
		return ".webm"
	}
}
