// Package events attaches to the agent's event stream for a session. The
// stream is informational only: nothing in the analysis outcome depends on it.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/telemetry"
)

// SessionPlaceholder is replaced by the session id in the stream URL.
const SessionPlaceholder = "{session_id}"

// MaxFrameBytes caps a single stream frame. A larger frame ends the stream.
const MaxFrameBytes = 1 << 20

// Event is one decoded stream frame.
type Event struct {
	Type       string          `json:"type"`
	Message    string          `json:"message,omitempty"`
	Raw        jsonvalue.Value `json:"raw"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Source delivers the events of one session to fn until ctx ends or the
// stream closes.
type Source interface {
	Subscribe(ctx context.Context, sessionID string, fn func(Event)) error
}

// Subscriber is the websocket Source.
type Subscriber struct {
	urlTemplate string
	apiKey      string
	dialer      *websocket.Dialer
	logger      *slog.Logger
	metrics     *telemetry.Metrics
}

// NewSubscriber builds a Subscriber. urlTemplate may contain {session_id};
// otherwise the session id is appended as a path segment.
func NewSubscriber(urlTemplate, apiKey string, logger *slog.Logger, metrics *telemetry.Metrics) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		urlTemplate: strings.TrimSpace(urlTemplate),
		apiKey:      strings.TrimSpace(apiKey),
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:      logger,
		metrics:     metrics,
	}
}

// URL returns the stream URL for sessionID.
func (s *Subscriber) URL(sessionID string) string {
	esc := url.PathEscape(sessionID)
	if strings.Contains(s.urlTemplate, SessionPlaceholder) {
		return strings.ReplaceAll(s.urlTemplate, SessionPlaceholder, esc)
	}
	return strings.TrimRight(s.urlTemplate, "/") + "/" + esc
}

// Subscribe dials the stream and calls fn for each frame, in order. It
// returns nil when ctx ends or the server closes normally.
func (s *Subscriber) Subscribe(ctx context.Context, sessionID string, fn func(Event)) error {
	if s.urlTemplate == "" {
		return errors.New("events: stream URL is not configured")
	}
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("x-api-key", s.apiKey)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.URL(sessionID), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("events: dial: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(MaxFrameBytes)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	s.logger.Debug("event stream attached", slog.String("session_id", sessionID))
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("events: read: %w", err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		ev := Decode(data)
		s.metrics.StreamEvent(ev.Type)
		fn(ev)
	}
}

// Decode turns a frame into an Event. Frames that are not JSON become
// "message" events carrying the text.
func Decode(data []byte) Event {
	ev := Event{ReceivedAt: time.Now().UTC()}
	v, err := jsonvalue.Parse(data)
	if err != nil {
		ev.Type = "message"
		ev.Message = strings.TrimSpace(string(data))
		ev.Raw = jsonvalue.Text(ev.Message)
		return ev
	}
	ev.Raw = v
	for _, key := range []string{"event_type", "type", "event"} {
		if t, ok := v.Path(key).AsText(); ok && t != "" {
			ev.Type = t
			break
		}
	}
	if ev.Type == "" {
		ev.Type = "unknown"
	}
	for _, key := range []string{"message", "status", "thinking", "content"} {
		if m, ok := v.Path(key).AsText(); ok && m != "" {
			ev.Message = m
			break
		}
	}
	return ev
}
