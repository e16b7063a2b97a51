// Package db is the persistence gateway for interview state, scores and media rows.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/chadiek/ai-interviewer/internal/interview"
)

var ErrNotFound = errors.New("interview not found")

// Gateway is the durable store the interview server reads and writes.
type Gateway interface {
	FindInterviewByLink(ctx context.Context, link string) (*interview.Record, error)
	UpsertInterview(ctx context.Context, u interview.Update) error
	CreateScore(ctx context.Context, interviewID string, card interview.ScoreCard) error
	CreateRecording(ctx context.Context, interviewID string, rec interview.Recording) error
	CreateScreenshot(ctx context.Context, interviewID string, shot interview.Screenshot) error
	SetApplicationStatus(ctx context.Context, applicationID, status string) error
	Ping(ctx context.Context) error
	Close() error
}

// scoreDetails is the JSON stored alongside numeric scores.
type scoreDetails struct {
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	Recommendation string   `json:"recommendation"`
}

func detailsOf(card interview.ScoreCard) scoreDetails {
	return scoreDetails{
		Strengths:      card.Strengths,
		Weaknesses:     card.Weaknesses,
		Recommendation: string(card.Recommendation),
	}
}

func nowUTC() time.Time { return time.Now().UTC() }
