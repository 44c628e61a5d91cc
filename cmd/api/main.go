package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"member-portal/internal/adapters/httpapi"
	"member-portal/internal/adapters/repo"
	"member-portal/internal/domain"
	"member-portal/internal/infra/cache"
	"member-portal/internal/infra/config"
	"member-portal/internal/infra/db"
	httpinfra "member-portal/internal/infra/http"
	applog "member-portal/internal/infra/log"
	"member-portal/internal/infra/metrics"
	"member-portal/internal/infra/queue"
	"member-portal/internal/usecase/contact"
	"member-portal/internal/usecase/featured"
	"member-portal/internal/usecase/templates"
	"member-portal/internal/usecase/updates"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("api: не указан секрет подписи токенов (AUTH_JWT_SECRET)")
	}

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool, cfg.Featured.SurveyRPC)

	var (
		redisClient *redis.Client
		rateCache   domain.Cache
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к Redis")
		}
		defer redisClient.Close()
		rateCache = cache.NewRedis(redisClient)
	} else {
		logger.Warn().Msg("api: Redis не настроен, ограничение частоты обращений отключено")
	}

	emailQueue, err := queue.OpenEmailQueue(queue.Settings{
		Backend:             cfg.Queues.Backend,
		Key:                 cfg.Queues.Email,
		RabbitURL:           cfg.RabbitURL,
		RabbitManagementURL: cfg.RabbitManagementURL,
	}, redisClient)
	if err != nil {
		logger.Warn().Err(err).Msg("api: очередь писем недоступна, уведомления об обращениях отключены")
		emailQueue = nil
	}

	surveyStatus := featured.NewFallbackStatus(
		featured.NewConsolidatedStatus(repoAdapter, cfg.Featured.ReadTimeout),
		featured.NewDecomposedStatus(repoAdapter, cfg.Featured.ReadTimeout),
		logger.With().Str("component", "survey_status").Logger(),
	)
	selector := featured.NewSelector(repoAdapter, repoAdapter, surveyStatus, repoAdapter, repoAdapter, repoAdapter,
		featured.WithReadTimeout(cfg.Featured.ReadTimeout),
		featured.WithLogger(logger.With().Str("component", "featured").Logger()),
	)

	contactService := contact.NewService(repoAdapter, repoAdapter, rateCache, emailQueue, cfg.Contact.NotifyAddress, cfg.Contact.RateWindow, logger)
	api := httpapi.NewServer(
		httpinfra.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience),
		featured.NewLoaders(selector, cfg.Featured.SessionTTL),
		httpapi.WithLogger(logger.With().Str("component", "httpapi").Logger()),
		httpapi.WithUpdates(updates.NewService(repoAdapter, repoAdapter)),
		httpapi.WithContact(contactService),
		httpapi.WithTemplates(templates.NewService(repoAdapter)),
	)

	srv := httpinfra.NewServer(logger)
	api.Register(srv.Router)

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
