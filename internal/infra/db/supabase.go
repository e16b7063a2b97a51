package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/chadiek/ai-interviewer/internal/interview"
)

// sessionRow mirrors the interview_sessions view, which flattens an interview with
// its application and job.
type sessionRow struct {
	ID                 string     `json:"id"`
	UniqueLink         string     `json:"unique_link"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	ActualStartedAt    *time.Time `json:"actual_started_at"`
	EndedAt            *time.Time `json:"ended_at"`
	IsActive           bool       `json:"is_active"`
	ApplicationID      string     `json:"application_id"`
	CandidateID        string     `json:"candidate_id"`
	CandidateName      string     `json:"candidate_name"`
	JobTitle           string     `json:"job_title"`
	JobDescription     string     `json:"job_description"`
	CustomQuestions    []string   `json:"custom_questions"`
	ScreenshotInterval int        `json:"screenshot_interval"`

	Transcript []interview.Turn         `json:"ai_transcript"`
	ProctorLog []interview.ProctorEvent `json:"proctor_log"`
}

func (r sessionRow) record() *interview.Record {
	return &interview.Record{
		ID:              r.ID,
		ApplicationID:   r.ApplicationID,
		CandidateID:     r.CandidateID,
		CandidateName:   r.CandidateName,
		UniqueLink:      r.UniqueLink,
		ScheduledAt:     r.ScheduledAt,
		ActualStartedAt: r.ActualStartedAt,
		EndedAt:         r.EndedAt,
		IsActive:        r.IsActive,
		Job: interview.JobContext{
			Title:              r.JobTitle,
			Description:        r.JobDescription,
			CustomQuestions:    r.CustomQuestions,
			ScreenshotInterval: r.ScreenshotInterval,
		},
		Transcript:    r.Transcript,
		ProctorEvents: r.ProctorLog,
	}
}

// Supabase is a Gateway backed by Supabase's PostgREST API.
type Supabase struct {
	client *supabase.Client
}

func NewSupabase(url, serviceRoleKey string) (*Supabase, error) {
	if url == "" || serviceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create Supabase client: %w", err)
	}
	return &Supabase{client: client}, nil
}

func (s *Supabase) FindInterviewByLink(ctx context.Context, link string) (*interview.Record, error) {
	var rows []sessionRow
	_, err := s.client.From("interview_sessions").
		Select("*", "", false).
		Eq("unique_link", link).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabase: find interview: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].record(), nil
}

func (s *Supabase) UpsertInterview(ctx context.Context, u interview.Update) error {
	values := map[string]any{}
	if u.ActualStartedAt != nil {
		values["actual_started_at"] = u.ActualStartedAt.UTC()
	}
	if u.IsActive != nil {
		values["is_active"] = *u.IsActive
	}
	if u.EndedAt != nil {
		values["ended_at"] = u.EndedAt.UTC()
	}
	if u.Summary != "" {
		values["ai_summary"] = u.Summary
	}
	if u.Transcript != nil {
		values["ai_transcript"] = u.Transcript
	}
	if u.ProctorEvents != nil {
		values["proctor_log"] = u.ProctorEvents
	}
	if len(values) == 0 {
		return nil
	}
	_, _, err := s.client.From("interviews").Update(values, "minimal", "").Eq("id", u.ID).Execute()
	if err != nil {
		return fmt.Errorf("supabase: update interview: %w", err)
	}
	return nil
}

func (s *Supabase) CreateScore(ctx context.Context, interviewID string, card interview.ScoreCard) error {
	details, err := json.Marshal(detailsOf(card))
	if err != nil {
		return err
	}
	row := map[string]any{
		"interview_id":    interviewID,
		"communication":   card.Communication,
		"technical":       card.Technical,
		"problem_solving": card.ProblemSolving,
		"cultural_fit":    card.CulturalFit,
		"total_score":     card.Total,
		"summary":         card.Summary,
		"details":         json.RawMessage(details),
	}
	return s.insert("interview_scores", row)
}

func (s *Supabase) CreateRecording(ctx context.Context, interviewID string, rec interview.Recording) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = nowUTC()
	}
	return s.insert("recordings", map[string]any{
		"interview_id": interviewID,
		"url":          rec.URL,
		"kind":         rec.Kind,
		"content_type": rec.ContentType,
		"created_at":   rec.CreatedAt,
	})
}

func (s *Supabase) CreateScreenshot(ctx context.Context, interviewID string, shot interview.Screenshot) error {
	return s.insert("screenshots", map[string]any{
		"interview_id": interviewID,
		"url":          shot.URL,
		"taken_at":     shot.TakenAt.UTC(),
	})
}

func (s *Supabase) SetApplicationStatus(ctx context.Context, applicationID, status string) error {
	_, _, err := s.client.From("applications").
		Update(map[string]any{"status": status}, "minimal", "").
		Eq("id", applicationID).
		Execute()
	if err != nil {
		return fmt.Errorf("supabase: update application: %w", err)
	}
	return nil
}

func (s *Supabase) Ping(ctx context.Context) error {
	_, _, err := s.client.From("interviews").Select("id", "", true).Limit(1, "").Execute()
	return err
}

func (s *Supabase) Close() error { return nil }

func (s *Supabase) insert(table string, row map[string]any) error {
	_, _, err := s.client.From(table).Insert(row, false, "", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("supabase: insert %s: %w", table, err)
	}
	return nil
}
