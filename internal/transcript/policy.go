package transcript

// ResponseFormat is the recognizer output format requested by an attempt.
type ResponseFormat string

const (
	FormatVerboseJSON ResponseFormat = "verbose_json"
	FormatText        ResponseFormat = "text"
)

// AttemptPolicy describes one recognition attempt. Attempts run in order until one
// yields text that passes validation.
type AttemptPolicy struct {
	Name        string
	Format      ResponseFormat
	Language    string
	Temperature float64
	Prompt      string
}

// DefaultAttempts moves from a heavily guided request to a bare one.
var DefaultAttempts = []AttemptPolicy{
	{
		Name:        "guided",
		Format:      FormatVerboseJSON,
		Language:    "en",
		Temperature: 0.0,
		Prompt:      "This is a professional job interview conversation. The speaker is answering questions about their work experience, skills, and background. Please transcribe accurately.",
	},
	{
		Name:        "hinted",
		Format:      FormatText,
		Language:    "en",
		Temperature: 0.1,
		Prompt:      "Job interview conversation. Candidate speaking about their experience.",
	},
	{
		Name:        "bare",
		Format:      FormatText,
		Temperature: 0.2,
	},
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeInvalid
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeInvalid:
		return "invalid"
	default:
		return "failed"
	}
}

// attemptResult is the tagged result of a single attempt: Text is set for ok,
// Raw for invalid, Err for failed.
type attemptResult struct {
	Policy  AttemptPolicy
	Outcome outcome
	Text    string
	Raw     string
	Err     error
}
