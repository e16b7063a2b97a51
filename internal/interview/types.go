package interview

import (
	"math"
	"time"
)

// State is the lifecycle state of a live interview session.
type State int

const (
	StatePending State = iota
	StateActive
	StateConcluding
	StateEnded
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateConcluding:
		return "concluding"
	case StateEnded:
		return "ended"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Role identifies who produced a transcript turn.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
	// RoleSystem marks turns injected by the server, such as time expiry.
	RoleSystem Role = "system"
)

// Turn is a single transcript entry.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// JobContext is the job information the interviewer talks about.
type JobContext struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	CustomQuestions    []string `json:"customQuestions,omitempty"`
	ScreenshotInterval int      `json:"screenshotInterval,omitempty"`
}

// Record is an interview as stored by the persistence layer.
type Record struct {
	ID              string
	ApplicationID   string
	CandidateID     string
	CandidateName   string
	UniqueLink      string
	ScheduledAt     time.Time
	ActualStartedAt *time.Time
	EndedAt         *time.Time
	IsActive        bool
	Job             JobContext
	// Transcript and ProctorEvents hold progress saved by an earlier connection.
	Transcript    []Turn
	ProctorEvents []ProctorEvent
}

// Ended reports whether the interview has already been concluded.
func (r *Record) Ended() bool { return r.EndedAt != nil }

// Update carries the fields the session writes back to an interview.
// Nil pointers and empty values are left untouched by stores.
type Update struct {
	ID              string
	ActualStartedAt *time.Time
	IsActive        *bool
	EndedAt         *time.Time
	Summary         string
	Transcript      []Turn
	ProctorEvents   []ProctorEvent
}

// ProctorEvent is an opaque client-side proctoring signal.
type ProctorEvent struct {
	Event      string    `json:"event"`
	At         string    `json:"at,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Recording points at stored interview media.
type Recording struct {
	URL         string
	Kind        string
	ContentType string
	CreatedAt   time.Time
}

const (
	RecordingAudio = "audio"
	RecordingVideo = "video"
)

// Screenshot is a periodic capture of the candidate's screen or camera.
type Screenshot struct {
	URL     string
	TakenAt time.Time
}

// Recommendation is the hiring recommendation attached to a score card.
type Recommendation string

const (
	StrongHire       Recommendation = "Strong Hire"
	Hire             Recommendation = "Hire"
	NoHire           Recommendation = "No Hire"
	StrongNoHire     Recommendation = "Strong No Hire"
	NoRecommendation Recommendation = "No Recommendation"
)

// ParseRecommendation maps free text to a known recommendation, case-insensitively.
func ParseRecommendation(s string) (Recommendation, bool) {
	for _, r := range []Recommendation{StrongHire, Hire, NoHire, StrongNoHire, NoRecommendation} {
		if equalFold(string(r), s) {
			return r, true
		}
	}
	return NoRecommendation, false
}

// ScoreCard is the structured assessment produced once per interview.
type ScoreCard struct {
	Summary        string         `json:"summary"`
	Communication  int            `json:"communication"`
	Technical      int            `json:"technical"`
	ProblemSolving int            `json:"problemSolving"`
	CulturalFit    int            `json:"culturalFit"`
	Total          float64        `json:"totalScore"`
	Strengths      []string       `json:"strengths"`
	Weaknesses     []string       `json:"weaknesses"`
	Recommendation Recommendation `json:"recommendation"`
}

// TotalScore is the mean of the four sub-scores rounded to one decimal.
func TotalScore(communication, technical, problemSolving, culturalFit int) float64 {
	mean := float64(communication+technical+problemSolving+culturalFit) / 4
	return math.Round(mean*10) / 10
}

// ApplicationStatus values written back to the candidate's application.
const ApplicationInterviewCompleted = "INTERVIEW_COMPLETED"
