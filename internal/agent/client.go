// Package agent invokes the hosted analysis agent and turns its answer into
// normalized insights.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/telemetry"
)

const maxResponseBytes = 8 << 20

var agentTracer trace.Tracer = otel.Tracer("patternflow/internal/agent")

// Request is one agent invocation.
type Request struct {
	UserID    string   `json:"user_id"`
	AgentID   string   `json:"agent_id"`
	SessionID string   `json:"session_id"`
	Message   string   `json:"message"`
	Assets    []string `json:"assets"`
}

// Invoker calls the agent and returns an AgentInvokeResponse-shaped document:
//
//	{success, session_id, response: {result, message?}, module_outputs?, error?}
//
// An upstream rejection is reported in the document (success false); only a
// missing configuration or an unreachable service is returned as an error.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (jsonvalue.Value, error)
}

// NewSessionID returns a session id for agentID. It is generated before the
// call so an event subscription can attach while the call is in flight.
func NewSessionID(agentID string) string {
	if agentID == "" {
		return uuid.NewString()
	}
	return agentID + "-" + uuid.NewString()
}

// Options configures a Client.
type Options struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// Retries applies to connection failures and 502/503/504 answers only.
	Retries int
	Backoff time.Duration
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Client is the HTTP Invoker.
type Client struct {
	url     string
	apiKey  string
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff == 0 {
		opts.Backoff = 300 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		url:     strings.TrimSpace(opts.URL),
		apiKey:  strings.TrimSpace(opts.APIKey),
		client:  &http.Client{Timeout: opts.Timeout},
		retries: opts.Retries,
		backoff: opts.Backoff,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Invoke posts req to the chat endpoint.
func (c *Client) Invoke(ctx context.Context, req Request) (jsonvalue.Value, error) {
	if c.apiKey == "" {
		return jsonvalue.Null(), apperror.Configuration("Server configuration error: agent API key is not set.")
	}
	if c.url == "" {
		return jsonvalue.Null(), apperror.Configuration("Server configuration error: agent chat URL is not set.")
	}
	if req.Assets == nil {
		req.Assets = []string{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return jsonvalue.Null(), err
	}

	ctx, span := agentTracer.Start(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("agent.id", req.AgentID),
		attribute.String("agent.session_id", req.SessionID),
		attribute.Int("agent.assets", len(req.Assets)),
	))
	defer span.End()

	start := time.Now()
	status, body, err := c.post(ctx, payload)
	if err != nil {
		c.metrics.AgentLatency("error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("agent invoke failed",
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()),
		)
		return jsonvalue.Null(), apperror.Network("Network error: could not reach the analysis service. Please try again.", err)
	}
	c.metrics.AgentLatency(strconv.Itoa(status), time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", status))

	parsed, perr := jsonvalue.Parse(body)
	if status < 200 || status >= 300 {
		msg := rejectionMessage(status, parsed, body)
		span.SetStatus(codes.Error, msg)
		c.logger.Warn("agent rejected invocation",
			slog.String("session_id", req.SessionID),
			slog.Int("status", status),
			slog.String("message", msg),
		)
		return failure(req.SessionID, msg), nil
	}
	if perr != nil {
		// Plain-text answers are kept as the result text.
		parsed = jsonvalue.Text(string(body))
	}
	return envelope(req.SessionID, parsed), nil
}

// post sends payload, retrying transient failures with exponential backoff.
func (c *Client) post(ctx context.Context, payload []byte) (int, []byte, error) {
	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = err
		} else {
			body, rerr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			resp.Body.Close()
			switch {
			case rerr != nil:
				lastErr = fmt.Errorf("read agent response: %w", rerr)
			case transient(resp.StatusCode) && attempt < tries-1:
				lastErr = errors.New(resp.Status)
			default:
				return resp.StatusCode, body, nil
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			}
		}
	}
	return 0, nil, lastErr
}

func transient(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

// envelope shapes a 2xx answer as an AgentInvokeResponse. Documents that
// already carry a success flag are passed through.
func envelope(sessionID string, body jsonvalue.Value) jsonvalue.Value {
	if _, ok := body.Get("success"); ok {
		return body
	}
	if sid, ok := body.Path("session_id").AsText(); ok && sid != "" {
		sessionID = sid
	}
	result := body
	if r, ok := body.Get("response"); ok {
		result = r
	}
	var message jsonvalue.Value
	if r := result.Path("result"); !r.IsNull() {
		// {response: {result, message}} is already the inner shape.
		message = result.Path("message")
		result = r
	}
	response := []jsonvalue.Member{jsonvalue.M("result", result)}
	if !message.IsNull() {
		response = append(response, jsonvalue.M("message", message))
	}
	members := []jsonvalue.Member{
		jsonvalue.M("success", jsonvalue.Bool(true)),
		jsonvalue.M("session_id", jsonvalue.Text(sessionID)),
		jsonvalue.M("response", jsonvalue.Map(response...)),
	}
	if mo, ok := body.Get("module_outputs"); ok {
		members = append(members, jsonvalue.M("module_outputs", mo))
	}
	return jsonvalue.Map(members...)
}

func failure(sessionID, msg string) jsonvalue.Value {
	return jsonvalue.Map(
		jsonvalue.M("success", jsonvalue.Bool(false)),
		jsonvalue.M("session_id", jsonvalue.Text(sessionID)),
		jsonvalue.M("error", jsonvalue.Text(msg)),
	)
}

func rejectionMessage(status int, parsed jsonvalue.Value, body []byte) string {
	for _, key := range []string{"detail", "message", "error"} {
		if s, ok := parsed.Path(key).AsText(); ok && strings.TrimSpace(s) != "" {
			return fmt.Sprintf("Analysis failed (%d): %s", status, strings.TrimSpace(s))
		}
	}
	if parsed.IsNull() {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
			return fmt.Sprintf("Analysis failed (%d): %s", status, text)
		}
	}
	return fmt.Sprintf("Analysis failed with status %d.", status)
}
