// Package app builds the long-lived collaborators from configuration. The API
// server and the CLI share it so both run against the same wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/wa-finance/internal/archive"
	"github.com/dvloznov/wa-finance/internal/classifier"
	"github.com/dvloznov/wa-finance/internal/config"
	"github.com/dvloznov/wa-finance/internal/domain"
	"github.com/dvloznov/wa-finance/internal/mirror"
	bqmirror "github.com/dvloznov/wa-finance/internal/mirror/bigquery"
	"github.com/dvloznov/wa-finance/internal/mirror/notion"
	"github.com/dvloznov/wa-finance/internal/mirror/sheets"
	"github.com/dvloznov/wa-finance/internal/router"
	"github.com/dvloznov/wa-finance/internal/store/memory"
	"github.com/dvloznov/wa-finance/internal/store/postgres"
	"github.com/dvloznov/wa-finance/internal/whatsapp"
	"github.com/rs/zerolog"
)

// Store is everything the service needs from the transaction store.
type Store interface {
	router.ProcessedSet
	router.TransactionStore
	ListTransactions(ctx context.Context, r domain.DateRange) ([]domain.Transaction, error)
}

// Classifier is both the router classifier and the chat responder.
type Classifier interface {
	router.Classifier
	router.ChatResponder
}

// App holds the process-wide collaborators.
type App struct {
	Config *config.Config

	Store    Store
	Postgres *postgres.Store // nil when running on the in-memory store

	Classifier Classifier
	WhatsApp   *whatsapp.Client

	Sheets   *sheets.Mirror  // nil when not configured
	BigQuery *bqmirror.Mirror // nil when not configured
	Mirrors  *mirror.Fanout

	Archive *archive.GCS // nil when no bucket is configured

	Router *router.Router

	closers []func() error
}

// New builds every collaborator. Optional integrations are skipped when their
// configuration is absent; a configured integration that fails to start is an
// error.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}
	if err := a.build(ctx, log); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, log zerolog.Logger) error {
	cfg := a.Config

	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("app.New: %w", err)
		}
		a.Postgres = pg
		a.Store = pg
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		log.Info().Msg("using postgres store")
	} else {
		a.Store = memory.New()
		log.Warn().Msg("POSTGRES_URL not set, using in-memory store")
	}

	if cfg.Gemini.APIKey != "" {
		g, err := classifier.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout)
		if err != nil {
			return fmt.Errorf("app.New: %w", err)
		}
		a.Classifier = g
	} else {
		a.Classifier = classifier.Disabled{}
		log.Warn().Msg("GOOGLE_AI_API_KEY not set, classifier disabled")
	}

	wa := cfg.WhatsApp
	a.WhatsApp = whatsapp.NewClient(wa.GraphBaseURL, wa.APIVersion, wa.PhoneNumberID, wa.Token)
	if wa.Token == "" || wa.PhoneNumberID == "" {
		log.Warn().Msg("WhatsApp credentials not set, replies will fail")
	}

	var targets []mirror.Target
	if cfg.Sheets.Enabled() {
		m, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID: cfg.Sheets.SpreadsheetID,
			Range:         cfg.Sheets.Range,
			Credentials: sheets.Credentials{
				ServiceAccountJSON:    cfg.Sheets.ServiceAccountJSON,
				ServiceAccountJSONB64: cfg.Sheets.ServiceAccountJSONB64,
				ClientEmail:           cfg.Sheets.ClientEmail,
				PrivateKeyB64:         cfg.Sheets.PrivateKeyB64,
			},
		})
		if err != nil {
			return fmt.Errorf("app.New: %w", err)
		}
		a.Sheets = m
		targets = append(targets, mirror.Target{Name: "sheets", Appender: m})
	}
	if cfg.BigQuery.Enabled() {
		m, err := bqmirror.New(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
		if err != nil {
			return fmt.Errorf("app.New: %w", err)
		}
		a.BigQuery = m
		a.closers = append(a.closers, m.Close)
		targets = append(targets, mirror.Target{Name: "bigquery", Appender: m})
	}
	if cfg.Notion.Enabled() {
		m := notion.New(notion.NewClient(cfg.Notion.Token), cfg.Notion.DatabaseID)
		targets = append(targets, mirror.Target{Name: "notion", Appender: m})
	}
	a.Mirrors = mirror.NewFanout(targets...)
	log.Info().Strs("mirrors", a.Mirrors.Names()).Msg("mirrors configured")

	if cfg.Archive.Bucket != "" {
		arc, err := archive.NewGCS(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err != nil {
			return fmt.Errorf("app.New: %w", err)
		}
		a.Archive = arc
		a.closers = append(a.closers, arc.Close)
	}

	a.Router = router.New(a.Store, a.Store, a.Classifier, a.Classifier, a.WhatsApp,
		router.WithMirror(a.Mirrors),
		router.WithLocation(cfg.Location()),
		router.WithRecentLimit(cfg.RecentLimit),
	)
	return nil
}

var timeNow = time.Now

// Today returns the current date in the configured zone.
func (a *App) Today() civil.Date {
	return domain.Today(timeNow(), a.Config.Location())
}

// Close releases clients in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
