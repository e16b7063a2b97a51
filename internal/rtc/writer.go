package rtc

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/ai-interviewer/internal/session"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// outboundWriter is the only goroutine writing to a connection. It drains the
// session's queue in order, keeps the connection alive with pings and ends
// with a close frame.
type outboundWriter struct {
	ws           wsWriter
	out          <-chan session.Outbound
	pingInterval time.Duration
	writeTimeout time.Duration
}

func (w *outboundWriter) Run() error {
	pingInterval := w.pingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.writeTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		case msg, ok := <-w.out:
			if !ok {
				return w.writeClose(session.CloseNormal, "", writeTimeout)
			}
			if msg.Close != nil {
				return w.writeClose(msg.Close.Code, msg.Close.Reason, writeTimeout)
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return err
			}
			if err := w.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		}
	}
}

func (w *outboundWriter) writeClose(code int, reason string, writeTimeout time.Duration) error {
	return w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
}
