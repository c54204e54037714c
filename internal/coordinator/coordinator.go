package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/events"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/insights"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/telemetry"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/upload"
)

// DefaultMaxEvents caps the event log kept in a snapshot.
const DefaultMaxEvents = 200

// Uploader sends one file and resolves its asset ids.
type Uploader interface {
	Upload(ctx context.Context, f upload.File) upload.FileResult
}

// Analyzer runs one analysis over assetIDs.
type Analyzer interface {
	Analyze(ctx context.Context, sessionID string, assetIDs []string, message string) (insights.Outcome, error)
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithEvents attaches an event source followed while analyzing.
func WithEvents(src events.Source) Option { return func(c *Coordinator) { c.source = src } }

// WithObserver registers fn to receive every published snapshot, in order.
// fn must not call back into the Coordinator.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, fn) }
}

// WithSessionIDs sets the generator for agent session ids.
func WithSessionIDs(fn func() string) Option { return func(c *Coordinator) { c.newSessionID = fn } }

// WithInstruction sets the message sent with each analysis.
func WithInstruction(msg string) Option { return func(c *Coordinator) { c.instruction = msg } }

// WithSnapshot starts from a previously published snapshot. States that
// require a running call are settled first.
func WithSnapshot(s Snapshot) Option { return func(c *Coordinator) { c.snap = s.settle() } }

func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// Coordinator is safe for concurrent use. At most one upload and one
// analysis run at a time; Reset abandons running calls without cancelling
// them.
type Coordinator struct {
	uploader     Uploader
	analyzer     Analyzer
	source       events.Source
	observers    []func(Snapshot)
	newSessionID func() string
	instruction  string
	maxEvents    int
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	now          func() time.Time

	mu   sync.Mutex
	snap Snapshot
	// uploadBusy and analyzeBusy stay set while a call is on the wire, even
	// after Reset has moved the snapshot on.
	uploadBusy  bool
	analyzeBusy bool
	// notifyMu keeps observer calls in publication order.
	notifyMu sync.Mutex
}

// New builds an idle Coordinator.
func New(u Uploader, a Analyzer, opts ...Option) *Coordinator {
	c := &Coordinator{
		uploader:     u,
		analyzer:     a,
		newSessionID: uuid.NewString,
		maxEvents:    DefaultMaxEvents,
		logger:       slog.Default(),
		now:          time.Now,
		snap:         Snapshot{State: Idle, AssetIDs: []string{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current snapshot.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

var errStale = errors.New("stale")

// apply publishes fn's successor of the current snapshot. fn runs under the
// lock and must not block.
func (c *Coordinator) apply(fn func(cur Snapshot) (Snapshot, error)) (Snapshot, error) {
	c.mu.Lock()
	next, err := fn(c.snap)
	if err != nil {
		cur := c.snap
		c.mu.Unlock()
		return cur, err
	}
	if next.AssetIDs == nil {
		next.AssetIDs = []string{}
	}
	next.Version = c.snap.Version + 1
	next.UpdatedAt = c.now().UTC()
	moved := next.State != c.snap.State
	c.snap = next
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	if moved {
		c.metrics.Transition(string(next.State))
		c.logger.Debug("session transition",
			slog.String("state", string(next.State)),
			slog.Uint64("generation", next.Generation),
		)
	}
	for _, fn := range c.observers {
		fn(next)
	}
	return next, nil
}

// SelectFile validates f locally and uploads it. A file that fails
// validation never reaches the network and leaves the held data alone.
// Selecting a file starts a new cycle and abandons any running analysis.
func (c *Coordinator) SelectFile(ctx context.Context, f upload.File) error {
	if err := upload.Validate(f); err != nil {
		_, aerr := c.apply(func(cur Snapshot) (Snapshot, error) {
			if cur.State == Uploading {
				return cur, ErrUploadInFlight
			}
			cur.Error = viewOf(err)
			return cur, nil
		})
		if aerr != nil {
			return aerr
		}
		return err
	}

	started, err := c.apply(func(cur Snapshot) (Snapshot, error) {
		if cur.State == Uploading || c.uploadBusy {
			return cur, ErrUploadInFlight
		}
		c.uploadBusy = true
		return Snapshot{State: Uploading, FileName: f.Name, Generation: cur.Generation + 1}, nil
	})
	if err != nil {
		return err
	}
	gen := started.Generation

	var res upload.FileResult
	if c.uploader == nil {
		res = upload.FileResult{Err: apperror.Configuration("Server configuration error: upload service is not available.")}
	} else {
		res = c.uploader.Upload(ctx, f)
	}
	c.release(&c.uploadBusy)
	failure := res.Err
	if !res.Success && failure == nil {
		failure = apperror.Resolution("Upload succeeded but no asset ID was returned.", "")
	}

	_, err = c.apply(func(cur Snapshot) (Snapshot, error) {
		if cur.Generation != gen || cur.State != Uploading {
			return cur, errStale
		}
		if res.Success {
			return Snapshot{State: UploadReady, FileName: f.Name, AssetIDs: res.AssetIDs, Generation: gen}, nil
		}
		return Snapshot{State: Idle, Generation: gen, Error: viewOf(failure), Debug: res.Debug}, nil
	})
	if errors.Is(err, errStale) {
		c.logger.Info("discarding upload outcome after reset", slog.String("file", f.Name))
		return ErrSuperseded
	}
	if !res.Success {
		return failure
	}
	return nil
}

// Analyze runs the analysis over the held asset ids. It is accepted only in
// UploadReady.
func (c *Coordinator) Analyze(ctx context.Context) error {
	return c.analyze(ctx, UploadReady, ErrNotReady)
}

// Retry re-runs a failed analysis with the same asset ids. Nothing is
// uploaded again.
func (c *Coordinator) Retry(ctx context.Context) error {
	return c.analyze(ctx, Failed, ErrNothingToRetry)
}

func (c *Coordinator) analyze(ctx context.Context, from State, wrongState error) error {
	started, err := c.apply(func(cur Snapshot) (Snapshot, error) {
		if cur.State == Analyzing || (cur.State == from && c.analyzeBusy) {
			return cur, ErrAnalysisInFlight
		}
		if cur.State != from {
			return cur, wrongState
		}
		c.analyzeBusy = true
		return Snapshot{
			State:      Analyzing,
			FileName:   cur.FileName,
			AssetIDs:   cur.AssetIDs,
			SessionID:  c.newSessionID(),
			Generation: cur.Generation,
		}, nil
	})
	if err != nil {
		return err
	}
	gen, sid := started.Generation, started.SessionID

	stop := c.follow(gen, sid)
	var out insights.Outcome
	if c.analyzer == nil {
		err = apperror.Configuration("Server configuration error: analysis service is not available.")
	} else {
		out, err = c.analyzer.Analyze(ctx, sid, started.AssetIDs, c.instruction)
	}
	stop()
	c.release(&c.analyzeBusy)
	if err != nil {
		if _, ok := apperror.As(err); !ok {
			err = apperror.Network("Network error: could not reach the analysis service. Please try again.", err)
		}
	}

	_, aerr := c.apply(func(cur Snapshot) (Snapshot, error) {
		if cur.Generation != gen || cur.State != Analyzing || cur.SessionID != sid {
			return cur, errStale
		}
		next := cur
		if err != nil {
			next.State = Failed
			next.Error = viewOf(err)
			return next, nil
		}
		res := out.Insights
		next.State = Results
		next.Insights = &res
		next.ReportURL = out.ReportURL
		next.Degraded = out.Degraded
		next.Warnings = out.Warnings
		if out.SessionID != "" {
			next.SessionID = out.SessionID
		}
		return next, nil
	})
	if errors.Is(aerr, errStale) {
		c.logger.Info("discarding analysis outcome after reset", slog.String("session_id", sid))
		return ErrSuperseded
	}
	return err
}

func (c *Coordinator) release(busy *bool) {
	c.mu.Lock()
	*busy = false
	c.mu.Unlock()
}

// follow relays agent events for sid into the snapshot until the returned
// stop function is called. Stream failures are logged and otherwise ignored.
func (c *Coordinator) follow(gen uint64, sid string) (stop func()) {
	if c.source == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := c.source.Subscribe(ctx, sid, func(ev events.Event) {
			_, _ = c.apply(func(cur Snapshot) (Snapshot, error) {
				if cur.Generation != gen || cur.SessionID != sid {
					return cur, errStale
				}
				cur.Events = appendEvent(cur.Events, ev, c.maxEvents)
				return cur, nil
			})
		})
		if err != nil {
			c.logger.Debug("event stream ended", slog.String("session_id", sid), slog.String("error", err.Error()))
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// appendEvent returns a new slice so published snapshots stay unchanged.
func appendEvent(log []events.Event, ev events.Event, limit int) []events.Event {
	start := 0
	if limit > 0 && len(log) >= limit {
		start = len(log) - limit + 1
	}
	out := make([]events.Event, 0, len(log)-start+1)
	out = append(out, log[start:]...)
	return append(out, ev)
}

// Reset returns to Idle and clears everything held. Running calls are not
// cancelled; their outcomes are discarded when they complete.
func (c *Coordinator) Reset() Snapshot {
	s, _ := c.apply(func(cur Snapshot) (Snapshot, error) {
		return Snapshot{State: Idle, Generation: cur.Generation + 1}, nil
	})
	return s
}

// DismissError clears the error region without changing state.
func (c *Coordinator) DismissError() Snapshot {
	s, _ := c.apply(func(cur Snapshot) (Snapshot, error) {
		if cur.Error == nil {
			return cur, errStale
		}
		cur.Error = nil
		cur.Debug = nil
		return cur, nil
	})
	return s
}
