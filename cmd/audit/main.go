// cmd/audit/main.go
package main

import (
	"context"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"libraengage/internal/clients"
	"libraengage/internal/config"
	"libraengage/internal/consistency"
	"libraengage/internal/logging"
	"libraengage/internal/store/postgres"
)

// Runs the consistency checks once and exits non-zero when any fails.
// With AUDIT_REMOTE_URL set, the report is fetched from a running engage server instead.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := run(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("audit failed")
	}

	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatal().Err(err).Msg("failed to write report")
	}

	if !report.Healthy {
		log.Error().Int("violations", report.Violations()).Msg("store is inconsistent")
		os.Exit(1)
	}
	log.Info().Dur("duration", report.Duration).Msg("store is consistent")
}

func run(ctx context.Context, cfg *config.Config) (*consistency.Report, error) {
	if remote := os.Getenv("AUDIT_REMOTE_URL"); remote != "" {
		return clients.NewAuditClient(remote, os.Getenv("AUDIT_TOKEN")).Fetch(ctx)
	}

	st, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return consistency.NewAuditor(st).Run(ctx)
}
