package db

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/chadiek/ai-interviewer/internal/interview"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres is a Gateway on a direct Postgres connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("postgres: DATABASE_URL is empty")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Migrate applies the embedded schema migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	sqlDB := stdlib.OpenDBFromPool(p.pool)
	defer sqlDB.Close()
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

const findByLinkSQL = `
SELECT id::text, unique_link, scheduled_at, actual_started_at, ended_at, is_active,
       application_id::text, candidate_id::text, candidate_name,
       job_title, job_description, custom_questions, screenshot_interval,
       COALESCE(ai_transcript, '[]'::jsonb), COALESCE(proctor_log, '[]'::jsonb)
FROM interview_sessions
WHERE unique_link = $1`

func (p *Postgres) FindInterviewByLink(ctx context.Context, link string) (*interview.Record, error) {
	var r sessionRow
	err := p.pool.QueryRow(ctx, findByLinkSQL, link).Scan(
		&r.ID, &r.UniqueLink, &r.ScheduledAt, &r.ActualStartedAt, &r.EndedAt, &r.IsActive,
		&r.ApplicationID, &r.CandidateID, &r.CandidateName,
		&r.JobTitle, &r.JobDescription, &r.CustomQuestions, &r.ScreenshotInterval,
		&r.Transcript, &r.ProctorLog,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find interview: %w", err)
	}
	return r.record(), nil
}

func (p *Postgres) UpsertInterview(ctx context.Context, u interview.Update) error {
	var transcript, proctor []byte
	var err error
	if u.Transcript != nil {
		if transcript, err = json.Marshal(u.Transcript); err != nil {
			return err
		}
	}
	if u.ProctorEvents != nil {
		if proctor, err = json.Marshal(u.ProctorEvents); err != nil {
			return err
		}
	}
	var summary *string
	if u.Summary != "" {
		summary = &u.Summary
	}
	tag, err := p.pool.Exec(ctx, `
UPDATE interviews SET
    actual_started_at = COALESCE($2, actual_started_at),
    is_active         = COALESCE($3, is_active),
    ended_at          = COALESCE($4, ended_at),
    ai_summary        = COALESCE($5, ai_summary),
    ai_transcript     = COALESCE($6::jsonb, ai_transcript),
    proctor_log       = COALESCE($7::jsonb, proctor_log)
WHERE id = $1`,
		u.ID, u.ActualStartedAt, u.IsActive, u.EndedAt, summary, transcript, proctor)
	if err != nil {
		return fmt.Errorf("postgres: update interview: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateScore(ctx context.Context, interviewID string, card interview.ScoreCard) error {
	details, err := json.Marshal(detailsOf(card))
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO interview_scores (interview_id, communication, technical, problem_solving, cultural_fit, total_score, summary, details)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		interviewID, card.Communication, card.Technical, card.ProblemSolving, card.CulturalFit, card.Total, card.Summary, details)
	if err != nil {
		return fmt.Errorf("postgres: insert score: %w", err)
	}
	return nil
}

func (p *Postgres) CreateRecording(ctx context.Context, interviewID string, rec interview.Recording) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = nowUTC()
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO recordings (interview_id, url, kind, content_type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		interviewID, rec.URL, rec.Kind, rec.ContentType, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert recording: %w", err)
	}
	return nil
}

func (p *Postgres) CreateScreenshot(ctx context.Context, interviewID string, shot interview.Screenshot) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO screenshots (interview_id, url, taken_at) VALUES ($1, $2, $3)`,
		interviewID, shot.URL, shot.TakenAt)
	if err != nil {
		return fmt.Errorf("postgres: insert screenshot: %w", err)
	}
	return nil
}

func (p *Postgres) SetApplicationStatus(ctx context.Context, applicationID, status string) error {
	_, err := p.pool.Exec(ctx, `UPDATE applications SET status = $2, updated_at = now() WHERE id = $1`, applicationID, status)
	if err != nil {
		return fmt.Errorf("postgres: update application: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
