// Package coordinator drives one upload-then-analyze session through its
// states and owns everything the session holds.
package coordinator

import (
	"errors"
	"time"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/events"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/insights"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/upload"
)

type State string

const (
	Idle        State = "idle"
	Uploading   State = "uploading"
	UploadReady State = "upload_ready"
	Analyzing   State = "analyzing"
	Results     State = "results"
	Failed      State = "failed"
)

var (
	ErrUploadInFlight   = errors.New("coordinator: an upload is already in progress")
	ErrAnalysisInFlight = errors.New("coordinator: an analysis is already in progress")
	ErrNotReady         = errors.New("coordinator: no uploaded file is ready for analysis")
	ErrNothingToRetry   = errors.New("coordinator: there is no failed analysis to retry")
	// ErrSuperseded is returned when a Reset or a new file selection happened
	// while the call was running; its outcome was discarded.
	ErrSuperseded = errors.New("coordinator: outcome discarded after reset")
)

// ErrorView is the user-facing error region.
type ErrorView struct {
	Kind      apperror.Kind `json:"kind"`
	Message   string        `json:"message"`
	Retryable bool          `json:"retryable"`
	// Detail is debugging context; clients should not show it by default.
	Detail string `json:"detail,omitempty"`
}

func viewOf(err error) *ErrorView {
	if err == nil {
		return nil
	}
	v := &ErrorView{Kind: apperror.KindOf(err), Message: apperror.Message(err), Retryable: apperror.Retryable(err)}
	if e, ok := apperror.As(err); ok {
		v.Detail = e.Detail
	}
	return v
}

// Snapshot is everything a session holds at one point in time. A snapshot is
// never modified after it is published; each transition publishes a new one.
type Snapshot struct {
	State     State            `json:"state"`
	FileName  string           `json:"file_name,omitempty"`
	AssetIDs  []string         `json:"asset_ids"`
	Insights  *insights.Result `json:"insights,omitempty"`
	ReportURL string           `json:"report_url,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Degraded  bool             `json:"degraded,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Error     *ErrorView       `json:"error,omitempty"`
	Debug     *upload.Debug    `json:"debug,omitempty"`
	Events    []events.Event   `json:"events,omitempty"`

	// Generation changes on every new file selection and on Reset.
	Generation uint64    `json:"generation"`
	Version    uint64    `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CanAnalyze reports whether Analyze would be accepted.
func (s Snapshot) CanAnalyze() bool { return s.State == UploadReady }

// CanRetry reports whether Retry would be accepted.
func (s Snapshot) CanRetry() bool { return s.State == Failed }

// settle maps states that only exist while a call is running onto the state
// the session is left in when that call is gone, e.g. after a restart.
func (s Snapshot) settle() Snapshot {
	switch s.State {
	case Uploading:
		s.State = Idle
		s.FileName = ""
		s.AssetIDs = nil
	case Analyzing:
		s.State = UploadReady
		s.SessionID = ""
	case "":
		s.State = Idle
	}
	if s.AssetIDs == nil {
		s.AssetIDs = []string{}
	}
	return s
}
