package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// Transport sends one file to the upload service under a given multipart
// field name. A returned error means no HTTP answer was obtained (or the
// client is not configured); any HTTP status is reported through Response.
type Transport interface {
	Send(ctx context.Context, f File, field string) (Response, error)
}

// Response is the upstream answer to one upload attempt.
type Response struct {
	Status int
	Body   []byte
	// Value is the decoded body, or null when the body is not JSON.
	Value jsonvalue.Value
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Client is the HTTP Transport for the hosted upload API.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewClient builds a Client. timeout defaults to 60s.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{endpoint: endpoint, apiKey: strings.TrimSpace(apiKey), client: &http.Client{Timeout: timeout}}
}

// Send posts f as multipart/form-data under field.
func (c *Client) Send(ctx context.Context, f File, field string) (Response, error) {
	if c.apiKey == "" {
		return Response{}, apperror.Configuration("Server configuration error: upload API key is not set.")
	}
	if strings.TrimSpace(c.endpoint) == "" {
		return Response{}, apperror.Configuration("Server configuration error: upload URL is not set.")
	}

	body, contentType, err := encodeMultipart(f, field)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{Status: resp.StatusCode}, fmt.Errorf("read upload response: %w", err)
	}
	out := Response{Status: resp.StatusCode, Body: raw}
	if v, err := jsonvalue.Parse(raw); err == nil {
		out.Value = v
	}
	return out, nil
}

func encodeMultipart(f File, field string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Name))
	h.Set("Content-Type", f.MultipartContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
