package session

import (
	"time"

	"github.com/chadiek/ai-interviewer/internal/interview"
)

// Inbound message types sent by the browser.
const (
	TypeAudioData    = "audio-data"
	TypeTextMessage  = "text-message"
	TypeScreenshot   = "screenshot"
	TypeProctorEvent = "proctor-event"
	TypeEndInterview = "end-interview"
)

// Outbound message types.
const (
	TypeVoiceConnected      = "voice-connected"
	TypeAudioChunk          = "audio-chunk"
	TypeTranscriptUpdate    = "transcript-update"
	TypeTranscriptionStatus = "transcription-status"
	TypeInterviewReady      = "interview-ready"
	TypeInterviewComplete   = "interview-complete"
	TypeInterviewCompleted  = "interview-completed"
	TypeError               = "error"
)

// Client-facing texts. Internal error detail never reaches the browser.
const (
	msgSpeakLonger     = "Please speak for at least 1-2 seconds before stopping recording."
	msgAudioError      = "Error processing your audio. Please try speaking again."
	msgNoSpeech        = "No speech detected. Please try speaking more clearly."
	msgVoiceError      = "Voice interview error occurred"
	msgEndError        = "Error ending interview"
	msgInterviewOver   = "Interview is ending; input ignored."
	msgBadMessage      = "Unsupported message."
	msgScreenshotError = "Error saving screenshot"
)

// Close codes and reasons used on the realtime connection.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	ClosePolicy        = 1008
	CloseInternalError = 1011

	ReasonCompleted = "Interview completed"
	ReasonInternal  = "Internal server error"
	ReasonShutdown  = "Session ended by server"
)

// Inbound is one decoded client frame. Fields are populated per Type.
type Inbound struct {
	Type      string `json:"type"`
	AudioData string `json:"audioData,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	Size      int    `json:"size,omitempty"`
	Text      string `json:"text,omitempty"`
	ImageData string `json:"imageData,omitempty"`
	Event     string `json:"event,omitempty"`
	At        string `json:"at,omitempty"`
}

// Outbound is one server frame. A non-nil Close asks the transport to close
// the connection after everything queued before it has been written.
type Outbound struct {
	Type      string          `json:"type"`
	Data      string          `json:"data,omitempty"`
	MimeType  string          `json:"mimeType,omitempty"`
	Message   any             `json:"message,omitempty"`
	Interview *ReadyInterview `json:"interview,omitempty"`
	Summary   *Summary        `json:"summary,omitempty"`

	Close *CloseRequest `json:"-"`
}

type CloseRequest struct {
	Code   int
	Reason string
}

// ReadyInterview is what the client learns about the interview once it starts.
type ReadyInterview struct {
	ID                 string               `json:"id"`
	ScheduledAt        time.Time            `json:"scheduledAt"`
	Job                interview.JobContext `json:"job"`
	ScreenshotInterval int                  `json:"screenshotInterval,omitempty"`
	SecondsRemaining   int                  `json:"secondsRemaining"`
}

// Summary is the candidate-safe part of a score card.
type Summary struct {
	Summary        string   `json:"summary"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	Recommendation string   `json:"recommendation"`
	Scores         Scores   `json:"scores"`
	TotalScore     float64  `json:"totalScore"`
}

type Scores struct {
	Communication  int `json:"communication"`
	Technical      int `json:"technical"`
	ProblemSolving int `json:"problemSolving"`
	CulturalFit    int `json:"culturalFit"`
}

func summaryOf(c interview.ScoreCard) *Summary {
	return &Summary{
		Summary:        c.Summary,
		Strengths:      nonNil(c.Strengths),
		Weaknesses:     nonNil(c.Weaknesses),
		Recommendation: string(c.Recommendation),
		Scores: Scores{
			Communication:  c.Communication,
			Technical:      c.Technical,
			ProblemSolving: c.ProblemSolving,
			CulturalFit:    c.CulturalFit,
		},
		TotalScore: c.Total,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func statusMessage(text string) Outbound {
	return Outbound{Type: TypeTranscriptionStatus, Message: text}
}

func errorMessage(text string) Outbound {
	return Outbound{Type: TypeError, Message: text}
}
