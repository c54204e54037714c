package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/config"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/app"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/logging"
)

type upstreams struct {
	upload      *httptest.Server
	agent       *httptest.Server
	uploadCalls int32
	agentCalls  int32
}

// newUpstreams fakes the upload API (answering uploadStatus/uploadBody) and
// the agent API (answering agentBody).
func newUpstreams(t *testing.T, uploadStatus int, uploadBody, agentBody string) *upstreams {
	t.Helper()
	u := &upstreams{}
	u.upload = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.uploadCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(uploadStatus)
		_, _ = io.WriteString(w, uploadBody)
	}))
	u.agent = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.agentCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, agentBody)
	}))
	t.Cleanup(func() {
		u.upload.Close()
		u.agent.Close()
	})
	return u
}

func testConfig(u *upstreams, apiKey string) *config.Config {
	return &config.Config{
		General:   config.GeneralConfig{LogLevel: "info", LogFormat: "text"},
		Server:    config.ServerConfig{Address: ":0", MaxUploadBytes: 1 << 20, AllowedOrigins: []string{"*"}},
		Upstream:  config.UpstreamConfig{APIKey: apiKey, UploadURL: u.upload.URL, Timeout: 5 * time.Second},
		Agent:     config.AgentConfig{ChatURL: u.agent.URL, AgentID: "agent-1", UserID: "tester", Timeout: 5 * time.Second},
		Storage:   config.StorageConfig{Driver: "memory", SessionTTL: time.Hour},
		Telemetry: config.TelemetryConfig{MetricsEnabled: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	a, err := app.New(t.Context(), cfg, logging.Discard(), true)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return New(a)
}

func multipartBody(t *testing.T, field, name, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + name + `"`}
		h["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = io.WriteString(part, content)
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(e *echo.Echo, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestUploadReadiness(t *testing.T) {
	u := newUpstreams(t, 200, `{}`, `{}`)
	e := newTestServer(t, testConfig(u, "key"))
	rec := do(e, http.MethodGet, "/api/upload", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if out := decode(t, rec); out["status"] != "ready" {
		t.Fatalf("unexpected payload %v", out)
	}
}

func TestUploadEndpointStatuses(t *testing.T) {
	tests := []struct {
		name         string
		apiKey       string
		uploadStatus int
		uploadBody   string
		field        string
		fileName     string
		contentType  string
		wantStatus   int
		wantSuccess  bool
		wantCalls    int32
		wantError    string
	}{
		{
			name: "success", apiKey: "key", uploadStatus: 200, uploadBody: `{"asset_ids":["abc1234567"]}`,
			field: "file", fileName: "data.csv", contentType: "text/csv",
			wantStatus: 200, wantSuccess: true, wantCalls: 1,
		},
		{
			name: "files field accepted", apiKey: "key", uploadStatus: 200, uploadBody: `{"asset_id":"abc1234567"}`,
			field: "files", fileName: "book.xlsx", contentType: "application/octet-stream",
			wantStatus: 200, wantSuccess: true, wantCalls: 1,
		},
		{
			name: "no files", apiKey: "key", uploadStatus: 200, uploadBody: `{}`,
			wantStatus: 400, wantCalls: 0, wantError: "No files provided.",
		},
		{
			name: "missing api key", apiKey: "", uploadStatus: 200, uploadBody: `{}`,
			field: "file", fileName: "data.csv", contentType: "text/csv",
			wantStatus: 500, wantCalls: 0, wantError: MissingKeyMessage,
		},
		{
			name: "upstream rejects", apiKey: "key", uploadStatus: 401, uploadBody: `{"detail":"bad key"}`,
			field: "file", fileName: "data.csv", contentType: "text/csv",
			wantStatus: 401, wantCalls: 1,
		},
		{
			name: "nothing resolved", apiKey: "key", uploadStatus: 200, uploadBody: `{"status":"ok"}`,
			field: "file", fileName: "data.csv", contentType: "text/csv",
			wantStatus: 200, wantCalls: 2, wantError: "Upload succeeded but no asset ID was returned.",
		},
		{
			name: "unsupported type", apiKey: "key", uploadStatus: 200, uploadBody: `{}`,
			field: "file", fileName: "report.pdf", contentType: "application/pdf",
			wantStatus: 400, wantCalls: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpstreams(t, tt.uploadStatus, tt.uploadBody, `{}`)
			e := newTestServer(t, testConfig(u, tt.apiKey))
			body, ct := multipartBody(t, tt.field, tt.fileName, tt.contentType, "a,b\n1,2\n")
			rec := do(e, http.MethodPost, "/api/upload", body, ct)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			out := decode(t, rec)
			if out["success"] != tt.wantSuccess {
				t.Fatalf("success = %v (%v)", out["success"], out)
			}
			if ids, ok := out["asset_ids"].([]interface{}); !ok || (len(ids) > 0) != tt.wantSuccess {
				t.Fatalf("asset_ids = %v", out["asset_ids"])
			}
			if tt.wantError != "" && out["error"] != tt.wantError {
				t.Fatalf("error = %v, want %q", out["error"], tt.wantError)
			}
			if _, ok := out["debug"]; ok {
				t.Fatalf("debug context must not be exposed outside debug mode")
			}
			if got := atomic.LoadInt32(&u.uploadCalls); got != tt.wantCalls {
				t.Fatalf("upstream calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	u := newUpstreams(t, 200, `{}`, `{"response":"{\"executive_summary\":\"ok\",\"key_findings\":[{\"finding\":\"F\",\"importance\":\"high\"}]}","module_outputs":{"artifact_files":[{"file_url":"U1"},{"file_url":"U2"}]}}`)
	e := newTestServer(t, testConfig(u, "key"))

	rec := do(e, http.MethodPost, "/api/analyze", strings.NewReader(`{"asset_ids":["abc1234567"]}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	ins, _ := out["insights"].(map[string]interface{})
	if out["success"] != true || ins["executive_summary"] != "ok" || out["report_url"] != "U1" {
		t.Fatalf("unexpected payload %v", out)
	}
	if sid, _ := out["session_id"].(string); !strings.HasPrefix(sid, "agent-1-") {
		t.Fatalf("session id = %q", sid)
	}

	rec = do(e, http.MethodPost, "/api/analyze", strings.NewReader(`{"asset_ids":[]}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty asset ids: status %d", rec.Code)
	}
}

func TestAnalyzeEndpointAgentFailure(t *testing.T) {
	u := newUpstreams(t, 200, `{}`, `{"success":false,"error":"X"}`)
	e := newTestServer(t, testConfig(u, "key"))
	rec := do(e, http.MethodPost, "/api/analyze", strings.NewReader(`{"asset_ids":["abc1234567"]}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	out := decode(t, rec)
	if out["success"] != false || out["error"] != "X" || out["retryable"] != true || out["insights"] != nil {
		t.Fatalf("unexpected payload %v", out)
	}
}

func TestSessionFlow(t *testing.T) {
	u := newUpstreams(t, 200, `{"asset_ids":["abc1234567"]}`, `{"success":true,"response":{"result":"{\"executive_summary\":\"ok\"}"}}`)
	e := newTestServer(t, testConfig(u, "key"))

	rec := do(e, http.MethodPost, "/api/sessions", nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}
	id, _ := decode(t, rec)["id"].(string)
	base := "/api/sessions/" + id

	if rec := do(e, http.MethodPost, base+"/analyze", nil, ""); rec.Code != http.StatusConflict {
		t.Fatalf("analyze before upload: %d", rec.Code)
	}

	body, ct := multipartBody(t, "file", "report.pdf", "application/pdf", "%PDF")
	rec = do(e, http.MethodPost, base+"/file", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("pdf: %d", rec.Code)
	}
	snap := decode(t, rec)["snapshot"].(map[string]interface{})
	if snap["state"] != "idle" || snap["error"] == nil {
		t.Fatalf("pdf snapshot %v", snap)
	}
	if rec := do(e, http.MethodDelete, base+"/error", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("dismiss error: %d", rec.Code)
	}

	body, ct = multipartBody(t, "file", "data.csv", "text/csv", "a,b\n")
	rec = do(e, http.MethodPost, base+"/file", body, ct)
	out := decode(t, rec)
	snap = out["snapshot"].(map[string]interface{})
	if rec.Code != http.StatusOK || snap["state"] != "upload_ready" {
		t.Fatalf("csv: %d %v", rec.Code, snap)
	}
	if acts := out["actions"].(map[string]interface{}); acts["analyze"] != true {
		t.Fatalf("actions %v", acts)
	}

	rec = do(e, http.MethodPost, base+"/analyze", nil, "")
	snap = decode(t, rec)["snapshot"].(map[string]interface{})
	ins, _ := snap["insights"].(map[string]interface{})
	if rec.Code != http.StatusOK || snap["state"] != "results" || ins["executive_summary"] != "ok" {
		t.Fatalf("analyze: %d %v", rec.Code, snap)
	}

	rec = do(e, http.MethodGet, base, nil, "")
	if snap := decode(t, rec)["snapshot"].(map[string]interface{}); snap["state"] != "results" {
		t.Fatalf("get: %v", snap)
	}

	rec = do(e, http.MethodPost, base+"/reset", nil, "")
	snap = decode(t, rec)["snapshot"].(map[string]interface{})
	if snap["state"] != "idle" || len(snap["asset_ids"].([]interface{})) != 0 || snap["insights"] != nil {
		t.Fatalf("reset: %v", snap)
	}

	if rec := do(e, http.MethodDelete, base, nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, base, nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	u := newUpstreams(t, 200, `{}`, `{}`)
	e := newTestServer(t, testConfig(u, "key"))
	if rec := do(e, http.MethodGet, "/healthz", nil, ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	rec := do(e, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestReadyHandlerDirect(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/upload", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	h := &UploadHandler{MaxUploadBytes: 1024}
	if err := h.ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if out := decode(t, rec); out["max_upload_bytes"] != float64(1024) {
		t.Fatalf("unexpected payload %v", out)
	}
}

func TestBodyLimit(t *testing.T) {
	tests := map[int64]string{0: "25M", 25 << 20: "25M", 512 << 10: "512K", 1000: "1000B"}
	for in, want := range tests {
		if got := bodyLimit(in); got != want {
			t.Fatalf("bodyLimit(%d) = %q, want %q", in, got, want)
		}
	}
}
