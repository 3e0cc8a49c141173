// cmd/engage/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"libraengage/internal/attendance"
	"libraengage/internal/auth"
	"libraengage/internal/catalog"
	"libraengage/internal/circulation"
	"libraengage/internal/clients"
	"libraengage/internal/config"
	"libraengage/internal/consistency"
	"libraengage/internal/dashboard"
	"libraengage/internal/engagement"
	"libraengage/internal/httpapi"
	"libraengage/internal/logging"
	"libraengage/internal/membership"
	"libraengage/internal/ranking"
	"libraengage/internal/review"
	"libraengage/internal/store"
	"libraengage/internal/store/memory"
	"libraengage/internal/store/postgres"
	"libraengage/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, "libraengage", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init telemetry")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load policy")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	st, ping, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("failed to open store")
	}
	defer st.Close()

	var eligibility membership.EligibilityChecker = membership.PhotoOnFile{}
	if cfg.IdentityURL != "" {
		eligibility = clients.NewIdentityClient(cfg.IdentityURL, clients.WithFallback(membership.PhotoOnFile{}))
	}

	ledger := engagement.NewLedger()
	rank := ranking.NewService(st, policy, ranking.WithPersistEvery(cfg.RankPersistEvery))
	svc := httpapi.Services{
		Catalog:     catalog.NewService(st),
		Membership:  membership.NewService(st),
		Circulation: circulation.NewService(st, ledger, eligibility, policy),
		Attendance:  attendance.NewService(st, ledger, policy),
		Engagement:  engagement.NewService(st, ledger, policy),
		Review:      review.NewService(st, ledger, policy),
		Ranking:     rank,
		Dashboard:   dashboard.NewService(st),
		Auditor:     consistency.NewAuditor(st),
	}
	authn := auth.NewAuthenticator(cfg.JWTSecret, cfg.KioskKeyHashes)

	if cfg.RecomputeInterval > 0 {
		go ranking.RunScheduled(ctx, rank, cfg.RecomputeInterval, time.Now)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(svc, authn, ping),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("starting engage service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, httpapi.Ping, error) {
	if cfg.Store == "memory" {
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return memory.New(), nil, nil
	}

	pg, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.DB().PingContext, nil
}
