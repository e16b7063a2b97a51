package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/chadiek/ai-interviewer/internal/gatekeeper"
	"github.com/chadiek/ai-interviewer/internal/infra/db"
	"github.com/chadiek/ai-interviewer/internal/infra/storage"
	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/internal/metrics"
	"github.com/chadiek/ai-interviewer/internal/middleware"
	"github.com/chadiek/ai-interviewer/internal/rtc"
	"github.com/chadiek/ai-interviewer/internal/sessions"
)

// MaxRecordingBytes bounds a full-session recording upload.
const MaxRecordingBytes = 200 << 20

// Checker validates an interview link without starting it.
type Checker interface {
	Check(ctx context.Context, link string) (*interview.Record, error)
}

// Store is the part of the persistence gateway the HTTP API needs.
type Store interface {
	FindInterviewByLink(ctx context.Context, link string) (*interview.Record, error)
	CreateRecording(ctx context.Context, interviewID string, rec interview.Recording) error
	Ping(ctx context.Context) error
}

type Handlers struct {
	Gate    Checker
	Store   Store
	Media   storage.Storage
	WS      *rtc.Handler
	Tracker *sessions.Tracker
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
	// UploadsDir is served under /uploads when media is stored locally.
	UploadsDir   string
	MetricsToken string
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/readyz", h.readyz)
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics.Handler()), middleware.RequireToken(h.MetricsToken))
	}
	e.GET("/ws/interview/:link", h.websocket)

	api := e.Group("/api/interviews")
	api.GET("/:link", h.availability)
	api.POST("/:link/recording", h.uploadRecording, echomw.BodyLimit("200M"))

	if h.UploadsDir != "" {
		e.Static("/uploads", h.UploadsDir)
	}
}

func (h Handlers) readyz(c echo.Context) error {
	if h.Tracker != nil && h.Tracker.IsDraining() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "draining"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		h.logger().WithError(err).Warn("http: readiness ping failed")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (h Handlers) websocket(c echo.Context) error {
	h.WS.ServeWebSocket(c.Response(), c.Request(), c.Param("link"))
	return nil
}

type availabilityResponse struct {
	ID            string               `json:"id"`
	CandidateName string               `json:"candidateName"`
	ScheduledAt   time.Time            `json:"scheduledAt"`
	StartedAt     *time.Time           `json:"actualStartedAt,omitempty"`
	IsActive      bool                 `json:"isActive"`
	Job           interview.JobContext `json:"job"`
}

func (h Handlers) availability(c echo.Context) error {
	rec, err := h.Gate.Check(c.Request().Context(), c.Param("link"))
	if err != nil {
		if reason, ok := gatekeeper.Reason(err); ok {
			return c.JSON(statusForReason(reason), map[string]string{"error": reason})
		}
		h.logger().WithError(err).Error("http: check interview")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, availabilityResponse{
		ID:            rec.ID,
		CandidateName: rec.CandidateName,
		ScheduledAt:   rec.ScheduledAt,
		StartedAt:     rec.ActualStartedAt,
		IsActive:      rec.IsActive,
		Job:           rec.Job,
	})
}

func statusForReason(reason string) int {
	switch reason {
	case gatekeeper.ReasonNotFound:
		return http.StatusNotFound
	case gatekeeper.ReasonCompleted:
		return http.StatusConflict
	case gatekeeper.ReasonExpired:
		return http.StatusGone
	default:
		return http.StatusForbidden
	}
}

// uploadRecording stores the browser's full-session recording. It is accepted
// for finished interviews too, since clients upload after the session closes.
func (h Handlers) uploadRecording(c echo.Context) error {
	ctx := c.Request().Context()
	rec, err := h.Store.FindInterviewByLink(ctx, c.Param("link"))
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Interview not found"})
	}
	if err != nil {
		h.logger().WithError(err).Error("http: load interview for recording")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if rec.ActualStartedAt == nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Interview has not started yet"})
	}

	fh, err := c.FormFile("recording")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "recording file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable recording"})
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxRecordingBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable recording"})
	}
	if len(data) == 0 || len(data) > MaxRecordingBytes {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "recording is empty or too large"})
	}
	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" || contentType == echo.MIMEOctetStream {
		contentType = "video/webm"
	}

	url, err := h.Media.Store(ctx, "recordings", storage.ObjectName(rec.ID, contentType), contentType, data)
	if err != nil {
		h.logger().WithError(err).Error("http: store recording")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to store recording"})
	}
	if err := h.Store.CreateRecording(ctx, rec.ID, interview.Recording{
		URL:         url,
		Kind:        interview.RecordingVideo,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		h.logger().WithError(err).Error("http: save recording")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	h.logger().WithFields(logrus.Fields{"interview": rec.ID, "bytes": len(data)}).Info("http: recording stored")
	return c.JSON(http.StatusCreated, map[string]string{"url": url})
}

func (h Handlers) logger() logrus.FieldLogger {
	if h.Log == nil {
		return logrus.StandardLogger()
	}
	return h.Log
}
