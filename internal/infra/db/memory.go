package db

import (
	"context"
	"sync"

	"github.com/chadiek/ai-interviewer/internal/interview"
)

// Memory is an in-process Gateway for development and tests.
type Memory struct {
	mu           sync.Mutex
	interviews   map[string]*interview.Record
	byLink       map[string]string
	summaries    map[string]string
	transcripts  map[string][]interview.Turn
	proctor      map[string][]interview.ProctorEvent
	scores       map[string][]interview.ScoreCard
	recordings   map[string][]interview.Recording
	screenshots  map[string][]interview.Screenshot
	applications map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		interviews:   make(map[string]*interview.Record),
		byLink:       make(map[string]string),
		summaries:    make(map[string]string),
		transcripts:  make(map[string][]interview.Turn),
		proctor:      make(map[string][]interview.ProctorEvent),
		scores:       make(map[string][]interview.ScoreCard),
		recordings:   make(map[string][]interview.Recording),
		screenshots:  make(map[string][]interview.Screenshot),
		applications: make(map[string]string),
	}
}

// Put stores or replaces an interview record.
func (m *Memory) Put(rec interview.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := rec
	cp.Transcript, cp.ProctorEvents = nil, nil
	m.interviews[rec.ID] = &cp
	m.byLink[rec.UniqueLink] = rec.ID
	if rec.Transcript != nil {
		m.transcripts[rec.ID] = append([]interview.Turn(nil), rec.Transcript...)
	}
	if rec.ProctorEvents != nil {
		m.proctor[rec.ID] = append([]interview.ProctorEvent(nil), rec.ProctorEvents...)
	}
}

func (m *Memory) FindInterviewByLink(ctx context.Context, link string) (*interview.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byLink[link]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.interviews[id]
	cp.Transcript = append([]interview.Turn(nil), m.transcripts[id]...)
	cp.ProctorEvents = append([]interview.ProctorEvent(nil), m.proctor[id]...)
	return &cp, nil
}

func (m *Memory) UpsertInterview(ctx context.Context, u interview.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.interviews[u.ID]
	if !ok {
		return ErrNotFound
	}
	if u.ActualStartedAt != nil {
		t := *u.ActualStartedAt
		rec.ActualStartedAt = &t
	}
	if u.IsActive != nil {
		rec.IsActive = *u.IsActive
	}
	if u.EndedAt != nil {
		t := *u.EndedAt
		rec.EndedAt = &t
	}
	if u.Summary != "" {
		m.summaries[u.ID] = u.Summary
	}
	if u.Transcript != nil {
		m.transcripts[u.ID] = append([]interview.Turn(nil), u.Transcript...)
	}
	if u.ProctorEvents != nil {
		m.proctor[u.ID] = append([]interview.ProctorEvent(nil), u.ProctorEvents...)
	}
	return nil
}

func (m *Memory) CreateScore(ctx context.Context, interviewID string, card interview.ScoreCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[interviewID] = append(m.scores[interviewID], card)
	return nil
}

func (m *Memory) CreateRecording(ctx context.Context, interviewID string, rec interview.Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = nowUTC()
	}
	m.recordings[interviewID] = append(m.recordings[interviewID], rec)
	return nil
}

func (m *Memory) CreateScreenshot(ctx context.Context, interviewID string, shot interview.Screenshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenshots[interviewID] = append(m.screenshots[interviewID], shot)
	return nil
}

func (m *Memory) SetApplicationStatus(ctx context.Context, applicationID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications[applicationID] = status
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

// Interview returns a copy of the stored record.
func (m *Memory) Interview(id string) (interview.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.interviews[id]
	if !ok {
		return interview.Record{}, false
	}
	return *rec, true
}

func (m *Memory) Summary(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries[id]
}

func (m *Memory) Transcript(id string) []interview.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interview.Turn(nil), m.transcripts[id]...)
}

func (m *Memory) ProctorEvents(id string) []interview.ProctorEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interview.ProctorEvent(nil), m.proctor[id]...)
}

func (m *Memory) Scores(id string) []interview.ScoreCard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interview.ScoreCard(nil), m.scores[id]...)
}

func (m *Memory) Recordings(id string) []interview.Recording {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interview.Recording(nil), m.recordings[id]...)
}

func (m *Memory) Screenshots(id string) []interview.Screenshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interview.Screenshot(nil), m.screenshots[id]...)
}

func (m *Memory) ApplicationStatus(applicationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applications[applicationID]
}
