// Package app wires configuration into the upload, analysis and session
// components shared by the HTTP server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/config"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/agent"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/assets"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/events"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/insights"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/logging"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/session"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/session/inmemory"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/session/redisstore"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/telemetry"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/upload"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
	Resolver   *assets.Resolver
	Uploads    *upload.Service
	Analyzer   *agent.Service
	Normalizer *insights.Normalizer
	Events     events.Source
	Sessions   *session.Manager

	redis *redis.Client
}

// New wires every component from cfg. The session store is only dialled
// when withSessions is set, so one-shot CLI commands never need Redis.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, withSessions bool) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	if cfg.Telemetry.MetricsEnabled {
		a.Metrics = telemetry.NewMetrics()
	}
	a.Resolver = assets.NewResolver(cfg.Resolver.KeyNames, cfg.Resolver.MinFallbackLength, cfg.Resolver.MaxDepth)

	client := upload.NewClient(cfg.Upstream.UploadURL, cfg.Upstream.APIKey, cfg.Upstream.Timeout)
	a.Uploads = upload.NewService(client, a.Resolver, logging.Component(logger, "upload"), a.Metrics)

	a.Normalizer = insights.NewNormalizer(logging.Component(logger, "insights"), a.Metrics)
	invoker := agent.NewClient(agent.Options{
		URL:     cfg.Agent.ChatURL,
		APIKey:  cfg.Upstream.APIKey,
		Timeout: cfg.Agent.Timeout,
		Retries: cfg.Agent.Retries,
		Logger:  logging.Component(logger, "agent"),
		Metrics: a.Metrics,
	})
	a.Analyzer = &agent.Service{
		Invoker:     invoker,
		Normalizer:  a.Normalizer,
		AgentID:     cfg.Agent.AgentID,
		UserID:      cfg.Agent.UserID,
		Instruction: cfg.Agent.Instruction,
		Logger:      logging.Component(logger, "agent"),
		Metrics:     a.Metrics,
	}
	if cfg.Events.Enabled {
		a.Events = events.NewSubscriber(cfg.Events.URL, cfg.Upstream.APIKey, logging.Component(logger, "events"), a.Metrics)
	}

	if withSessions {
		store, err := a.sessionStore(ctx)
		if err != nil {
			return nil, err
		}
		a.Sessions = session.NewManager(store, cfg.Storage.SessionTTL, a.NewCoordinator, logging.Component(logger, "session"))
	}
	return a, nil
}

func (a *App) sessionStore(ctx context.Context) (session.Store, error) {
	switch a.Config.Storage.Driver {
	case "redis":
		rc := a.Config.Storage.Redis
		client, err := redisstore.Conn(ctx, rc.Host, rc.Port, rc.Password, rc.DB, rc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed (%s:%s): %w", rc.Host, rc.Port, err)
		}
		a.redis = client
		return redisstore.NewStore(client, a.Config.Storage.KeyPrefix), nil
	default:
		return inmemory.NewStore(), nil
	}
}

// NewCoordinator builds a coordinator over the wired upload and analysis
// services. extra options are applied last.
func (a *App) NewCoordinator(extra ...coordinator.Option) *coordinator.Coordinator {
	agentID := a.Config.Agent.AgentID
	opts := []coordinator.Option{
		coordinator.WithLogger(logging.Component(a.Logger, "coordinator")),
		coordinator.WithMetrics(a.Metrics),
		coordinator.WithInstruction(a.Config.Agent.Instruction),
		coordinator.WithSessionIDs(func() string { return agent.NewSessionID(agentID) }),
	}
	if a.Events != nil {
		opts = append(opts, coordinator.WithEvents(a.Events))
	}
	return coordinator.New(a.Uploads, a.Analyzer, append(opts, extra...)...)
}

// Close releases connections.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
