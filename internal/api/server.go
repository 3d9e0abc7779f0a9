// Package api implements the HTTP surface of the fleetops service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"fleetops/internal/auth"
	"fleetops/internal/config"
	"fleetops/internal/corridor"
	"fleetops/internal/ingest"
	"fleetops/internal/model"
	"fleetops/internal/planner"
	"fleetops/internal/simulate"
	"fleetops/internal/store"
	"fleetops/internal/webhooks"
)

type Server struct {
	Cfg      config.Config
	Store    store.Store
	Planner  *planner.Planner
	Pub      *webhooks.Publisher
	Auth     *auth.Verifier
	Broker   EventBroker
	Corridor corridor.Corridor
	Log      *slog.Logger

	limiter   *rate.Limiter
	mapClient *http.Client
	started   time.Time
}

// NewServer builds the store, broker and planner selected by cfg, applies
// migrations and seeds data when configured.
func NewServer(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// file-backed settings are read before any connection is opened
	cor := corridor.Default()
	if cfg.Corridor.File != "" {
		var err error
		if cor, err = corridor.Load(cfg.Corridor.File); err != nil {
			return nil, fmt.Errorf("load corridor: %w", err)
		}
	}

	st, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	var broker EventBroker = NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := NewRedisBroker(cfg.Redis.URL, logger)
		if err != nil {
			logger.Warn("redis broker unavailable, using in-memory broker", "err", err)
		} else {
			broker = rb
		}
	}

	s := &Server{
		Cfg:       cfg,
		Store:     st,
		Planner:   planner.New(st, plannerConfig(cfg.Planner), logger),
		Pub:       webhooks.NewPublisher(st, logger),
		Auth:      auth.New(cfg.Auth),
		Broker:    broker,
		Corridor:  cor,
		Log:       logger,
		mapClient: &http.Client{Timeout: 10 * time.Second},
		started:   time.Now(),
	}
	if cfg.Server.RateRPS > 0 {
		burst := cfg.Server.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateRPS), burst)
	}
	if err := s.seed(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", "driver", cfg.Driver, "migrated", cfg.Migrate && cfg.Driver != "memory" && cfg.Driver != "")
	return st, nil
}

func plannerConfig(c config.PlannerConfig) planner.Config {
	pc := planner.DefaultConfig()
	pc.AuditLimit = c.AuditLimit
	pc.ConflictWindow = c.ConflictWindow
	pc.BatchConcurrency = c.BatchConcurrency
	if c.ServiceRequired > 0 || c.StandbyRequired > 0 {
		pc.DefaultRequirements = model.Requirements{Service: c.ServiceRequired, Standby: c.StandbyRequired}
	}
	if c.BrandingThreshold > 0 {
		pc.Options.BrandingThreshold = c.BrandingThreshold
	}
	if c.CertWarnDays > 0 {
		pc.Options.CertWarnDays = c.CertWarnDays
	}
	return pc
}

// seed loads a dataset into an empty store when cfg.Seed asks for one.
func (s *Server) seed(ctx context.Context) error {
	var src ingest.Source
	switch {
	case s.Cfg.Seed.Dir != "":
		src = ingest.DirSource{Dir: s.Cfg.Seed.Dir}
	case s.Cfg.Seed.Generate:
		p := simulate.DefaultProfile()
		if s.Cfg.Seed.Profile != "" {
			var err error
			if p, err = simulate.LoadProfile(s.Cfg.Seed.Profile); err != nil {
				return fmt.Errorf("seed profile: %w", err)
			}
		}
		ds, err := simulate.Generate(p)
		if err != nil {
			return fmt.Errorf("seed generate: %w", err)
		}
		src = ingest.StaticSource{Label: "simulate", Data: ds}
	default:
		return nil
	}
	dates, err := s.Store.ListDates(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if len(dates) > 0 {
		s.Log.Info("store already holds data, skipping seed", "dates", len(dates))
		return nil
	}
	im := &ingest.Importer{Store: s.Store, Logger: s.Log}
	if _, err := im.Import(ctx, src); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}

// NewWebhookWorker creates the background delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.Webhooks, s.Log)
}

// Close releases the broker and store.
func (s *Server) Close() error {
	var errs []error
	if c, ok := s.Broker.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.Store.Close())
	return errors.Join(errs...)
}
