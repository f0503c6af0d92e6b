package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/hitcastor/snapshotter/internal/anchor"
	"github.com/hitcastor/snapshotter/internal/chart"
	"github.com/hitcastor/snapshotter/internal/config"
	"github.com/hitcastor/snapshotter/internal/ledger"
	"github.com/hitcastor/snapshotter/internal/pipeline"
	"github.com/hitcastor/snapshotter/internal/store"
)

// app bundles the collaborators a pipeline invocation needs.
type app struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	store  store.Store
	pipe   *pipeline.Pipeline
}

// newApp loads the environment configuration and connects every
// collaborator. Callers must Close it.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.New(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("error initializing object store: %w", err)
	}

	led, err := ledger.New(cfg.PGURL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("error connecting to ledger: %w", err)
	}

	fetcher := chart.NewFetcher(cfg.FetcherConfig(), cfg.Alerter())
	anchorer := anchor.New(cfg.AnchorConfig())

	return &app{
		cfg:    cfg,
		ledger: led,
		store:  st,
		pipe: pipeline.New(fetcher, st, anchorer, led, pipeline.Options{
			VerifyExisting: cfg.VerifyExisting,
		}),
	}, nil
}

func (r *app) Close() {
	if err := r.ledger.Close(); err != nil {
		log.Printf("error closing ledger: %v", err)
	}
	if err := r.store.Close(); err != nil {
		log.Printf("error closing object store: %v", err)
	}
}
