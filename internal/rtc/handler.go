// Package rtc carries interview sessions over WebSocket connections.
package rtc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/chadiek/ai-interviewer/internal/gatekeeper"
	"github.com/chadiek/ai-interviewer/internal/interview"
	"github.com/chadiek/ai-interviewer/internal/metrics"
	"github.com/chadiek/ai-interviewer/internal/session"
	"github.com/chadiek/ai-interviewer/internal/sessions"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Candidates join from the web app's origin; links are unguessable.
		return true
	},
}

// Accepter admits a connection for an interview link.
type Accepter interface {
	Accept(ctx context.Context, link string) (*interview.Record, error)
}

// SessionFactory builds the session for an accepted interview.
type SessionFactory func(rec *interview.Record) (*session.Session, error)

// Config tunes the connection. Zero values pick defaults.
type Config struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// ReadTimeout is how long the connection may stay silent, pongs included.
	ReadTimeout     time.Duration
	MaxMessageBytes int64
	// TakeoverTimeout bounds the wait for an earlier connection to the same
	// interview to save its progress.
	TakeoverTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Minute
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 16 << 20
	}
	if c.TakeoverTimeout <= 0 {
		c.TakeoverTimeout = 30 * time.Second
	}
}

// Handler runs one interview session per WebSocket connection.
type Handler struct {
	gate       Accepter
	newSession SessionFactory
	tracker    *sessions.Tracker
	cfg        Config
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

func NewHandler(gate Accepter, newSession SessionFactory, tracker *sessions.Tracker, cfg Config, log logrus.FieldLogger, m *metrics.Metrics) *Handler {
	cfg.setDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	if tracker == nil {
		tracker = sessions.NewTracker()
	}
	return &Handler{gate: gate, newSession: newSession, tracker: tracker, cfg: cfg, log: log, metrics: m}
}

// ServeWebSocket upgrades the request, admits the interview behind link and
// runs its session until it ends.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request, link string) {
	if h.tracker.IsDraining() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("rtc: ws upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()
	log := h.log.WithField("link", link)

	rec, ok := h.admit(r.Context(), conn, link, log)
	if !ok {
		return
	}
	tctx, tcancel := context.WithTimeout(r.Context(), h.cfg.TakeoverTimeout)
	replaced := h.tracker.Release(tctx, rec.ID)
	tcancel()
	if replaced {
		// Reload so the new session sees what the old one saved.
		log.WithField("interview", rec.ID).Info("rtc: replacing earlier connection")
		if rec, ok = h.admit(r.Context(), conn, link, log); !ok {
			return
		}
	}

	sess, err := h.newSession(rec)
	if err != nil {
		log.WithError(err).Error("rtc: create session")
		h.closeConn(conn, session.CloseInternalError, session.ReasonInternal)
		return
	}
	log = log.WithFields(logrus.Fields{"session": sess.ID, "interview": rec.ID})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	unregister, err := h.tracker.Register(rec.ID, sessions.Handle{SessionID: sess.ID, Cancel: cancel, Notify: sess.Notify})
	defer unregister()
	if err != nil {
		h.closeConn(conn, session.CloseGoingAway, session.ReasonShutdown)
		return
	}

	in := make(chan session.Inbound, 16)
	go h.readLoop(ctx, conn, in, log)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		wr := &outboundWriter{ws: conn, out: sess.Outbound(), pingInterval: h.cfg.PingInterval, writeTimeout: h.cfg.WriteTimeout}
		if err := wr.Run(); err != nil {
			log.WithError(err).Debug("rtc: writer stopped")
		}
	}()

	if err := sess.Run(ctx, in); err != nil {
		log.WithError(err).Warn("rtc: session ended with error")
	}
	select {
	case <-writerDone:
	case <-time.After(2 * h.cfg.WriteTimeout):
		log.Warn("rtc: writer did not finish")
	}
	log.WithField("state", sess.State().String()).Info("rtc: connection closed")
}

// admit runs the gatekeeper and closes conn with the matching code on failure.
func (h *Handler) admit(ctx context.Context, conn *websocket.Conn, link string, log logrus.FieldLogger) (*interview.Record, bool) {
	rec, err := h.gate.Accept(ctx, link)
	if err == nil {
		return rec, true
	}
	if reason, ok := gatekeeper.Reason(err); ok {
		h.metrics.RecordRejection(reason)
		log.WithField("reason", reason).Info("rtc: interview rejected")
		h.closeConn(conn, session.ClosePolicy, reason)
		return nil, false
	}
	h.metrics.RecordRejection("internal")
	log.WithError(err).Error("rtc: accept interview")
	h.closeConn(conn, session.CloseInternalError, session.ReasonInternal)
	return nil, false
}

// readLoop decodes client frames until the connection fails. It closes in on exit.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, in chan<- session.Inbound, log logrus.FieldLogger) {
	defer close(in)
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.WithError(err).Debug("rtc: read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		var msg session.Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithError(err).Debug("rtc: invalid client frame")
			continue
		}
		select {
		case in <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(h.cfg.WriteTimeout))
}
