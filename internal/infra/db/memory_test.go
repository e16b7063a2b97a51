package db

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/chadiek/ai-interviewer/internal/interview"
)

func TestMemory_FindAndUpdate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.FindInterviewByLink(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	m.Put(interview.Record{ID: "iv-1", UniqueLink: "abc", ApplicationID: "app-1", ScheduledAt: time.Unix(100, 0)})
	rec, err := m.FindInterviewByLink(ctx, "abc")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	rec.IsActive = true
	if got, _ := m.Interview("iv-1"); got.IsActive {
		t.Fatalf("returned record must be a copy")
	}

	started := time.Unix(200, 0)
	active := true
	if err := m.UpsertInterview(ctx, interview.Update{ID: "iv-1", ActualStartedAt: &started, IsActive: &active}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ended := time.Unix(300, 0)
	turns := []interview.Turn{{Role: interview.RoleInterviewer, Content: "Hi"}}
	if err := m.UpsertInterview(ctx, interview.Update{ID: "iv-1", EndedAt: &ended, Summary: "done", Transcript: turns}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ := m.Interview("iv-1")
	if !got.IsActive || got.ActualStartedAt == nil || !got.ActualStartedAt.Equal(started) || !got.Ended() {
		t.Fatalf("unexpected record %+v", got)
	}
	if m.Summary("iv-1") != "done" || len(m.Transcript("iv-1")) != 1 {
		t.Fatalf("summary or transcript not stored")
	}
	if err := m.UpsertInterview(ctx, interview.Update{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestMemory_Rows(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.CreateScore(ctx, "iv", interview.ScoreCard{Total: 7.5})
	_ = m.CreateRecording(ctx, "iv", interview.Recording{URL: "/uploads/recordings/a.webm", Kind: interview.RecordingAudio})
	_ = m.CreateScreenshot(ctx, "iv", interview.Screenshot{URL: "/uploads/screenshots/a.png", TakenAt: time.Unix(1, 0)})
	_ = m.SetApplicationStatus(ctx, "app", interview.ApplicationInterviewCompleted)

	if len(m.Scores("iv")) != 1 || len(m.Screenshots("iv")) != 1 {
		t.Fatalf("rows not stored")
	}
	recs := m.Recordings("iv")
	if len(recs) != 1 || recs[0].CreatedAt.IsZero() {
		t.Fatalf("recording should get a creation time: %+v", recs)
	}
	if m.ApplicationStatus("app") != interview.ApplicationInterviewCompleted {
		t.Fatalf("status not stored")
	}
}

func TestMigrations_Embedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected migrations, got %d", len(entries))
	}
	for _, e := range entries {
		data, _ := fs.ReadFile(migrations, "migrations/"+e.Name())
		if !strings.Contains(string(data), "-- +goose Up") || !strings.Contains(string(data), "-- +goose Down") {
			t.Fatalf("%s is missing goose annotations", e.Name())
		}
	}
}

func TestMemory_FindReturnsSavedProgress(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Put(interview.Record{ID: "iv-1", UniqueLink: "abc"})

	rec, _ := m.FindInterviewByLink(ctx, "abc")
	if len(rec.Transcript) != 0 || len(rec.ProctorEvents) != 0 {
		t.Fatalf("fresh interview has no progress: %+v", rec)
	}

	turns := []interview.Turn{{Role: interview.RoleInterviewer, Content: "Hi"}, {Role: interview.RoleCandidate, Content: "Hello"}}
	events := []interview.ProctorEvent{{Event: "tab_switch"}}
	if err := m.UpsertInterview(ctx, interview.Update{ID: "iv-1", Transcript: turns, ProctorEvents: events}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, _ = m.FindInterviewByLink(ctx, "abc")
	if len(rec.Transcript) != 2 || rec.Transcript[1].Content != "Hello" || len(rec.ProctorEvents) != 1 {
		t.Fatalf("saved progress not returned: %+v", rec)
	}
	rec.Transcript[0].Content = "changed"
	if m.Transcript("iv-1")[0].Content != "Hi" {
		t.Fatalf("returned transcript must be a copy")
	}
	if rec.Ended() {
		t.Fatalf("saving progress must not end the interview")
	}
}
