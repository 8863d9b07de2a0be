// Package app assembles the gateway's components into a runnable unit.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aleotti/iris/internal/config"
	"github.com/aleotti/iris/internal/gemini"
	"github.com/aleotti/iris/internal/history"
	"github.com/aleotti/iris/internal/httpapi"
	"github.com/aleotti/iris/internal/jobs"
	"github.com/aleotti/iris/internal/observability"
	"github.com/aleotti/iris/internal/session"
	"github.com/aleotti/iris/internal/voices"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Client   *gemini.Client
	Jobs     *jobs.Manager
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey: cfg.GeminiAPIKey,
		Models: gemini.Models{
			Chat:       cfg.ChatModel,
			Image:      cfg.ImageModel,
			ImageEdit:  cfg.ImageEditModel,
			Video:      cfg.VideoModel,
			Speech:     cfg.SpeechModel,
			Transcribe: cfg.TranscribeModel,
			Live:       cfg.LiveModel,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init failed: %w", err)
	}

	catalog, err := voices.Load(cfg.VoicesFile)
	if err != nil {
		return nil, fmt.Errorf("voice catalog init failed: %w", err)
	}

	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}

	jobManager := jobs.NewManager(client, jobs.Config{
		PollInterval: cfg.VideoPollInterval,
		Deadline:     cfg.VideoJobDeadline,
	})
	jobManager.SetTransitionHook(func(status jobs.Status) {
		metrics.GenerationJobs.WithLabelValues(string(status)).Inc()
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})
	sessions.SetEvictHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("evicted").Inc()
	})

	api := httpapi.New(cfg, sessions, client, gemini.NewLiveDialer(client), catalog, store, jobManager, metrics)

	cleanup := func() error {
		var errs []string
		jobManager.Close()
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Client:   client,
		Jobs:     jobManager,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}
