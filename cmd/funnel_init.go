package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/channel"
	"github.com/sells-group/outreach-cli/internal/composer"
	"github.com/sells-group/outreach-cli/internal/enricher"
	"github.com/sells-group/outreach-cli/internal/funnel"
	"github.com/sells-group/outreach-cli/internal/leadsource"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/llm"
)

// funnelEnv holds the initialized store and controller the run/serve/status
// commands share.
type funnelEnv struct {
	Store      store.Store
	Controller *funnel.Controller
}

// Close releases resources held by the environment.
func (fe *funnelEnv) Close() {
	if fe.Store != nil {
		_ = fe.Store.Close()
	}
}

// initFunnel sets up the store, collaborators, and the funnel controller.
// Callers should defer env.Close().
func initFunnel(ctx context.Context) (*funnelEnv, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	if err := cfg.Validate("outreach"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	source, err := initSource()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	// AI modes share one completion client; offline modes need none. The
	// client is built whenever a key is configured so a per-run
	// composition_mode=ai override works even with a template default.
	var llmClient llm.Client
	if cfg.Funnel.EnrichmentMode == "ai" || cfg.Funnel.CompositionMode == "ai" {
		if err := cfg.Validate("llm"); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	if cfg.LLM.Key != "" {
		llmClient = llm.NewClient(cfg.LLM.Key, llm.Options{
			Model:         cfg.LLM.Model,
			MaxTokens:     cfg.LLM.MaxTokens,
			RatePerSecond: cfg.LLM.RatePerSecond,
		})
	}

	var enr funnel.Enricher = enricher.Offline{}
	if cfg.Funnel.EnrichmentMode == "ai" {
		enr = &enricher.LLM{Client: llmClient, Fallback: true}
	}

	composers := map[string]funnel.Composer{"template": composer.Template{}}
	if llmClient != nil {
		composers["ai"] = &composer.LLM{Client: llmClient}
	}
	comp, ok := composers[cfg.Funnel.CompositionMode]
	if !ok {
		_ = st.Close()
		return nil, eris.Errorf("unsupported composition mode %q", cfg.Funnel.CompositionMode)
	}

	channels := map[model.Channel]funnel.Channel{
		model.ChannelLinkedIn: channel.NewLinkedIn(0, cfg.Capture.Seed),
	}
	if !cfg.Outreach.DryRun {
		if err := cfg.Validate("smtp"); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	channels[model.ChannelEmail] = channel.NewEmail(channel.EmailConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		FromEmail: cfg.SMTP.FromEmail,
	})

	runChannels := model.ParseChannels(cfg.Funnel.Channels)
	if runChannels == nil {
		_ = st.Close()
		return nil, eris.Errorf("unknown funnel.channels %q", cfg.Funnel.Channels)
	}

	ctrl := funnel.NewController(funnel.Deps{
		Store:     st,
		Source:    source,
		Enricher:  enr,
		Composer:  comp,
		Composers: composers,
		Channels:  channels,
		Limiter:   resilience.NewWindowLimiter(cfg.Outreach.RatePerWindow, cfg.Outreach.RateWindow),
		Policy: resilience.Policy{
			MaxAttempts: cfg.Outreach.MaxAttempts,
			BaseDelay:   cfg.Outreach.BaseBackoff,
			MaxDelay:    cfg.Outreach.MaxBackoff,
		},
		AcquireTimeout: cfg.Outreach.AcquireTimeout,
		Defaults: funnel.Defaults{
			RecordLimit:     cfg.Funnel.RecordLimit,
			CompositionMode: cfg.Funnel.CompositionMode,
			Channels:        runChannels,
			Variations:      cfg.Funnel.Variations,
			DryRun:          cfg.Outreach.DryRun,
			Workers:         cfg.Funnel.Workers,
		},
	})

	zap.L().Info("funnel initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("source", cfg.Capture.Source),
		zap.String("enrichment_mode", cfg.Funnel.EnrichmentMode),
		zap.String("composition_mode", cfg.Funnel.CompositionMode),
		zap.Bool("dry_run", cfg.Outreach.DryRun),
	)
	return &funnelEnv{Store: st, Controller: ctrl}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func initSource() (funnel.Source, error) {
	switch cfg.Capture.Source {
	case "synthetic":
		return &leadsource.Synthetic{Seed: cfg.Capture.Seed}, nil
	case "xlsx":
		if cfg.Capture.XLSXPath == "" {
			return nil, eris.New("capture.xlsx_path is required for the xlsx source")
		}
		return &leadsource.XLSX{Path: cfg.Capture.XLSXPath}, nil
	default:
		return nil, eris.Errorf("unsupported capture source %q", cfg.Capture.Source)
	}
}
