package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/insights"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/session"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/session/inmemory"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/upload"
)

type okUploader struct{}

func (okUploader) Upload(context.Context, upload.File) upload.FileResult {
	return upload.FileResult{Success: true, AssetIDs: []string{"abc1234567"}}
}

type okAnalyzer struct{}

func (okAnalyzer) Analyze(context.Context, string, []string, string) (insights.Outcome, error) {
	return insights.Outcome{Insights: insights.SummaryOnly("ok")}, nil
}

func factory(opts ...coordinator.Option) *coordinator.Coordinator {
	return coordinator.New(okUploader{}, okAnalyzer{}, opts...)
}

func TestManagerMirrorsSnapshots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := inmemory.NewStore()
	m := session.NewManager(store, time.Hour, factory, nil)

	id, c, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.SelectFile(ctx, upload.File{Name: "a.csv", Data: []byte("x")}); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	stored, err := store.Load(ctx, id)
	if err != nil || stored.State != coordinator.UploadReady {
		t.Fatalf("stored snapshot: %+v %v", stored, err)
	}

	got, err := m.Get(ctx, id)
	if err != nil || got != c {
		t.Fatalf("Get returned a different coordinator (%v)", err)
	}
}

func TestManagerRestoresFromStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := inmemory.NewStore()
	snap := coordinator.Snapshot{State: coordinator.Analyzing, FileName: "a.csv", AssetIDs: []string{"abc1234567"}, SessionID: "s"}
	_ = store.Save(ctx, "elsewhere", snap, time.Hour)

	m := session.NewManager(store, time.Hour, factory, nil)
	c, err := m.Get(ctx, "elsewhere")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s := c.Snapshot(); s.State != coordinator.UploadReady || len(s.AssetIDs) != 1 {
		t.Fatalf("restored snapshot %+v", s)
	}
	if err := c.Analyze(ctx); err != nil {
		t.Fatalf("Analyze on restored session: %v", err)
	}
	stored, _ := store.Load(ctx, "elsewhere")
	if stored.State != coordinator.Results {
		t.Fatalf("store not updated: %+v", stored)
	}
}

func TestManagerDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := session.NewManager(inmemory.NewStore(), 0, factory, nil)
	id, _, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, id); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("live sessions = %d", m.Len())
	}
}

// gatedAnalyzer blocks until release is closed.
type gatedAnalyzer struct {
	started chan struct{}
	release chan struct{}
}

func (g gatedAnalyzer) Analyze(ctx context.Context, _ string, _ []string, _ string) (insights.Outcome, error) {
	close(g.started)
	<-g.release
	return insights.Outcome{Insights: insights.SummaryOnly("late")}, nil
}

func TestManagerDeleteDuringAnalysis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := inmemory.NewStore()
	gate := gatedAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
	m := session.NewManager(store, time.Hour, func(opts ...coordinator.Option) *coordinator.Coordinator {
		return coordinator.New(okUploader{}, gate, opts...)
	}, nil)

	id, c, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.SelectFile(ctx, upload.File{Name: "a.csv", Data: []byte("x")}); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.Analyze(ctx) }()
	<-gate.started

	if err := m.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if c.Snapshot().State != coordinator.Results {
		t.Fatalf("analysis should still complete, got %s", c.Snapshot().State)
	}

	if _, err := store.Load(ctx, id); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("store still holds the deleted session: %v", err)
	}
	if _, err := m.Get(ctx, id); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
}
