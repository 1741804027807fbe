// Package app wires configuration into the pieces both binaries share.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"bodyscan-coach/api/internal/analysis"
	"bodyscan-coach/api/internal/analysis/gemini"
	"bodyscan-coach/api/internal/analysis/gpt"
	"bodyscan-coach/api/internal/config"
	"bodyscan-coach/api/internal/prompt"
	"bodyscan-coach/api/internal/store"
)

type App struct {
	Cfg     *config.Config
	Service *analysis.Service

	// nil when DATABASE_URL is not set
	DB      *store.DB
	Reports *store.ReportRepo
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	ps, err := prompt.Load(cfg.PromptDir)
	if err != nil {
		return nil, fmt.Errorf("prompts: %w", err)
	}

	a := &App{Cfg: cfg}
	if cfg.DatabaseURL != "" {
		octx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		db, err := store.Open(octx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		log.Printf("db connected: %s", store.Summary(cfg.DatabaseURL))
		a.DB = db
		a.Reports = store.NewReportRepo(db)
	}

	engines := &analysis.Engines{Default: cfg.LLMDefault}
	if cfg.OpenAIAPIKey != "" {
		engines.OpenAI = gpt.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.RequestTimeout)
	}
	if cfg.GeminiAPIKey != "" {
		engines.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}

	opt := analysis.Options{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if a.Reports != nil && cfg.AnalysisCacheTTL > 0 {
		opt.Cache = a.Reports
		opt.CacheTTL = cfg.AnalysisCacheTTL
	}
	a.Service = analysis.NewService(engines, ps, opt)
	return a, nil
}

// Health pings the database; it is nil without one.
func (a *App) Health() func(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext
}

// RunRetention deletes reports older than REPORT_RETENTION once an hour
// until ctx is done. It returns at once when retention is off.
func (a *App) RunRetention(ctx context.Context) {
	if a.Reports == nil || a.Cfg.ReportRetention <= 0 {
		return
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		n, err := a.Reports.PurgeOlderThan(ctx, a.Cfg.ReportRetention)
		if err != nil {
			log.Printf("report retention: %v", err)
		} else if n > 0 {
			log.Printf("report retention: deleted %d reports", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
