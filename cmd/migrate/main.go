package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/wa-finance/internal/logger"
	bqmirror "github.com/dvloznov/wa-finance/internal/mirror/bigquery"
	"github.com/dvloznov/wa-finance/internal/store/postgres"
)

var (
	databaseURL = flag.String("database-url", os.Getenv("POSTGRES_URL"), "Postgres connection string (or set POSTGRES_URL)")
	appliedBy   = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	statusOnly  = flag.Bool("status", false, "Print migration status without applying anything")
	bqProject   = flag.String("bigquery-project", os.Getenv("BIGQUERY_PROJECT"), "Also create the BigQuery mirror table in this project")
	bqDataset   = flag.String("bigquery-dataset", envOr("BIGQUERY_DATASET", "finance"), "BigQuery dataset of the mirror table")
	bqTable     = flag.String("bigquery-table", envOr("BIGQUERY_TABLE", "whatsapp_transactions"), "BigQuery mirror table")
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	flag.Parse()
	log := logger.New()

	if *databaseURL == "" {
		log.Fatal().Msg("Error: -database-url flag or POSTGRES_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := postgres.New(ctx, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer store.Close()

	migrations, err := postgres.Migrations()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Found embedded migrations")

	if *statusOnly {
		applied, err := store.AppliedMigrations(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to get applied migrations")
		}
		for _, line := range statusLines(migrations, applied) {
			fmt.Println(line)
		}
		return
	}

	ran, err := store.Migrate(ctx, *appliedBy)
	for _, m := range ran {
		log.Info().Msgf("  [OK]   %04d_%s", m.Version, m.Name)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	if len(ran) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Msgf("Successfully applied %d migration(s)", len(ran))
	}

	if *bqProject != "" {
		m, err := bqmirror.New(ctx, *bqProject, *bqDataset, *bqTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer m.Close()

		created, err := m.EnsureTable(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure BigQuery table")
		}
		log.Info().
			Bool("created", created).
			Str("table", fmt.Sprintf("%s.%s.%s", *bqProject, *bqDataset, *bqTable)).
			Msg("BigQuery mirror table ready")
	}
}

// statusLines renders one line per known migration, plus applied versions
// that no longer have a file.
func statusLines(migrations []postgres.Migration, applied []postgres.AppliedMigration) []string {
	done := make(map[int]postgres.AppliedMigration, len(applied))
	for _, am := range applied {
		done[am.Version] = am
	}

	lines := make([]string, 0, len(migrations))
	known := make(map[int]bool, len(migrations))
	for _, m := range migrations {
		known[m.Version] = true
		am, ok := done[m.Version]
		switch {
		case !ok:
			lines = append(lines, fmt.Sprintf("  [PENDING] %04d_%s", m.Version, m.Name))
		case am.Checksum != m.Checksum:
			lines = append(lines, fmt.Sprintf("  [CHANGED] %04d_%s (applied %s)", m.Version, m.Name, am.AppliedAt.UTC().Format(time.RFC3339)))
		default:
			lines = append(lines, fmt.Sprintf("  [APPLIED] %04d_%s (%s by %s)", m.Version, m.Name, am.AppliedAt.UTC().Format(time.RFC3339), am.AppliedBy))
		}
	}
	for _, am := range applied {
		if !known[am.Version] {
			lines = append(lines, fmt.Sprintf("  [MISSING] %04d_%s (no file)", am.Version, am.Name))
		}
	}
	return lines
}
