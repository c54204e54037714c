// Package upload forwards spreadsheet files to the hosted upload API and
// resolves the asset identifiers it answers with.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/assets"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/telemetry"
)

// FieldNames are the multipart field names tried, in order. The upload API
// does not document which one it expects.
var FieldNames = []string{"file", "files"}

// DebugBodyLimit is how much of an unresolvable body is kept for debugging.
const DebugBodyLimit = 500

var uploadTracer trace.Tracer = otel.Tracer("patternflow/internal/upload")

// Attempt records one upstream request.
type Attempt struct {
	Field    string `json:"field"`
	Status   int    `json:"status"`
	Resolved int    `json:"resolved"`
}

// Debug is attached to failed resolutions. It is meant for developers, not
// shown to end users.
type Debug struct {
	Diagnostics assets.Diagnostics `json:"diagnostics"`
	RawBody     string             `json:"raw_body,omitempty"`
	Attempts    []Attempt          `json:"attempts,omitempty"`
}

// FileResult is the outcome for one file.
type FileResult struct {
	AssetID  string `json:"asset_id"`
	FileName string `json:"file_name"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`

	AssetIDs []string  `json:"-"`
	Attempts []Attempt `json:"-"`
	Debug    *Debug    `json:"-"`
	// Err is the classified failure, nil on success.
	Err error `json:"-"`
}

// Result is the normalized upload result returned to clients.
// Success is true exactly when AssetIDs is non-empty.
type Result struct {
	Success           bool         `json:"success"`
	AssetIDs          []string     `json:"asset_ids"`
	Files             []FileResult `json:"files"`
	TotalFiles        int          `json:"total_files"`
	SuccessfulUploads int          `json:"successful_uploads"`
	FailedUploads     int          `json:"failed_uploads"`
	Message           string       `json:"message"`
	Error             string       `json:"error,omitempty"`
	Debug             *Debug       `json:"debug,omitempty"`

	// Err is the first classified failure when nothing succeeded.
	Err error `json:"-"`
}

// StatusCode is the HTTP status the upload endpoint answers with: 200 for
// success and recoverable failures, otherwise the failure's own status
// (upstream status, 500 for configuration or transport absence).
func (r Result) StatusCode() int {
	if r.Success || r.Err == nil {
		return http.StatusOK
	}
	if e, ok := apperror.As(r.Err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Service applies the field-name retry and asset resolution on top of a
// Transport.
type Service struct {
	Transport Transport
	Resolver  *assets.Resolver
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
}

// NewService wires a Service; nil logger and metrics are allowed.
func NewService(t Transport, r *assets.Resolver, logger *slog.Logger, metrics *telemetry.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Transport: t, Resolver: r, Logger: logger, Metrics: metrics}
}

// Upload sends f and resolves its asset ids. Attempt one uses field "file";
// a 400/422 answer, or a 2xx answer with no resolvable id, triggers a single
// second attempt with field "files". Any other status, or a transport
// failure, ends the exchange.
func (s *Service) Upload(ctx context.Context, f File) FileResult {
	res := FileResult{FileName: f.Name, AssetIDs: []string{}}
	if err := Validate(f); err != nil {
		return s.fail(res, err)
	}
	if s.Transport == nil {
		return s.fail(res, apperror.Configuration("Server configuration error: upload transport is not available."))
	}

	var last Response
	for i, field := range FieldNames {
		resp, ids, err := s.attempt(ctx, f, field)
		s.Metrics.UploadAttempt(field, resp.Status)
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Field: field, Status: resp.Status})
			if _, ok := apperror.As(err); ok {
				return s.fail(res, err)
			}
			s.Logger.Warn("upload transport failed",
				slog.String("file", f.Name),
				slog.String("field", field),
				slog.String("error", err.Error()),
			)
			return s.fail(res, apperror.UploadTransport("Upload failed: the upload service could not be reached.", 0, err))
		}
		res.Attempts = append(res.Attempts, Attempt{Field: field, Status: resp.Status, Resolved: len(ids)})
		last = resp

		if resp.OK() && len(ids) > 0 {
			res.AssetIDs = ids
			res.AssetID = ids[0]
			res.Success = true
			s.Metrics.UploadOutcome("success", len(ids))
			s.Logger.Info("file uploaded",
				slog.String("file", f.Name),
				slog.String("field", field),
				slog.Int("asset_ids", len(ids)),
			)
			return res
		}
		if i == len(FieldNames)-1 || !shouldRetry(resp, ids) {
			break
		}
		s.Logger.Debug("retrying upload with alternate field",
			slog.String("file", f.Name),
			slog.String("field", field),
			slog.Int("status", resp.Status),
		)
	}

	if last.OK() {
		debug := &Debug{
			Diagnostics: assets.Diagnose(last.Value),
			RawBody:     Truncate(last.Body, DebugBodyLimit),
			Attempts:    res.Attempts,
		}
		res.Debug = debug
		s.Logger.Warn("no asset id in upload response",
			slog.String("file", f.Name),
			slog.Any("top_level_keys", debug.Diagnostics.TopLevelKeys),
			slog.String("raw", debug.RawBody),
		)
		detail := fmt.Sprintf("kind=%s keys=%v body=%s", debug.Diagnostics.Kind, debug.Diagnostics.TopLevelKeys, debug.RawBody)
		return s.fail(res, apperror.Resolution("Upload succeeded but no asset ID was returned.", detail))
	}
	msg := upstreamMessage(last)
	s.Logger.Warn("upload rejected",
		slog.String("file", f.Name),
		slog.Int("status", last.Status),
		slog.String("message", msg),
	)
	e := apperror.UploadTransport(msg, last.Status, nil)
	e.Detail = Truncate(last.Body, DebugBodyLimit)
	return s.fail(res, e)
}

func (s *Service) attempt(ctx context.Context, f File, field string) (Response, []string, error) {
	ctx, span := uploadTracer.Start(ctx, "upload.attempt", trace.WithAttributes(
		attribute.String("upload.field", field),
		attribute.String("upload.file", f.Name),
		attribute.Int("upload.bytes", len(f.Data)),
	))
	defer span.End()

	resp, err := s.Transport.Send(ctx, f, field)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, nil, err
	}
	var ids []string
	if resp.OK() {
		ids = s.Resolver.Resolve(resp.Value)
	}
	span.SetAttributes(
		attribute.Int("http.status_code", resp.Status),
		attribute.Int("upload.resolved", len(ids)),
	)
	return resp, ids, nil
}

func (s *Service) fail(res FileResult, err error) FileResult {
	res.Success = false
	res.Err = err
	res.Error = apperror.Message(err)
	s.Metrics.UploadOutcome(string(apperror.KindOf(err)), 0)
	return res
}

func shouldRetry(resp Response, ids []string) bool {
	switch {
	case resp.Status == http.StatusBadRequest, resp.Status == http.StatusUnprocessableEntity:
		return true
	case resp.OK() && len(ids) == 0:
		return true
	}
	return false
}

// UploadAll uploads files one after another and aggregates the outcome.
func (s *Service) UploadAll(ctx context.Context, files []File) Result {
	if len(files) == 0 {
		err := apperror.Validation("No files provided.")
		return Result{
			AssetIDs: []string{},
			Files:    []FileResult{},
			Message:  "No files provided.",
			Error:    err.Message,
			Err:      err,
		}
	}
	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		results = append(results, s.Upload(ctx, f))
	}
	return Aggregate(results)
}

// Aggregate builds a Result from per-file outcomes. Asset ids keep file order
// and are unique.
func Aggregate(files []FileResult) Result {
	r := Result{AssetIDs: []string{}, Files: files, TotalFiles: len(files)}
	seen := map[string]struct{}{}
	for _, f := range files {
		if f.Success {
			r.SuccessfulUploads++
		} else {
			r.FailedUploads++
			if r.Err == nil {
				r.Err = f.Err
				r.Error = f.Error
				r.Debug = f.Debug
			}
		}
		for _, id := range f.AssetIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			r.AssetIDs = append(r.AssetIDs, id)
		}
	}
	r.Success = len(r.AssetIDs) > 0
	switch {
	case r.Success && r.FailedUploads == 0:
		r.Message = fmt.Sprintf("Uploaded %d of %d file(s).", r.SuccessfulUploads, r.TotalFiles)
		r.Error, r.Err, r.Debug = "", nil, nil
	case r.Success:
		r.Message = fmt.Sprintf("Uploaded %d of %d file(s); %d failed.", r.SuccessfulUploads, r.TotalFiles, r.FailedUploads)
	default:
		r.Message = "Upload failed."
		if r.Error == "" {
			r.Error = "No asset IDs were returned by the upload service."
		}
	}
	return r
}

// upstreamMessage picks a human-readable message out of an error body.
func upstreamMessage(resp Response) string {
	for _, key := range []string{"detail", "message", "error"} {
		v := resp.Value.Path(key)
		if s, ok := v.AsText(); ok && strings.TrimSpace(s) != "" {
			return fmt.Sprintf("Upload failed (%d): %s", resp.Status, strings.TrimSpace(s))
		}
		// FastAPI-style validation errors carry a list under detail.
		if v.Kind() == jsonvalue.KindSequence && v.Len() > 0 {
			if s, ok := v.Items()[0].Path("msg").AsText(); ok && s != "" {
				return fmt.Sprintf("Upload failed (%d): %s", resp.Status, s)
			}
		}
	}
	if body := strings.TrimSpace(Truncate(resp.Body, 200)); body != "" && resp.Value.IsNull() {
		return fmt.Sprintf("Upload failed (%d): %s", resp.Status, body)
	}
	return fmt.Sprintf("Upload failed with status %d.", resp.Status)
}

// Truncate returns at most n bytes of b as text without splitting a rune.
func Truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "..."
}
