package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"member-portal/internal/adapters/emailfn"
	"member-portal/internal/adapters/repo"
	"member-portal/internal/infra/cache"
	"member-portal/internal/infra/config"
	"member-portal/internal/infra/db"
	applog "member-portal/internal/infra/log"
	"member-portal/internal/infra/metrics"
	"member-portal/internal/infra/queue"
	"member-portal/internal/usecase/mailer"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "mailer")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("mailer: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool, cfg.Featured.SurveyRPC)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("mailer: нет подключения к Redis")
		}
		defer redisClient.Close()
	}

	emailQueue, err := queue.OpenEmailQueue(queue.Settings{
		Backend:             cfg.Queues.Backend,
		Key:                 cfg.Queues.Email,
		RabbitURL:           cfg.RabbitURL,
		RabbitManagementURL: cfg.RabbitManagementURL,
	}, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("mailer: не удалось инициализировать очередь")
	}

	if cfg.Email.FunctionURL == "" {
		logger.Fatal().Msg("mailer: не указан адрес функции отправки (EMAIL_FUNCTION_URL)")
	}
	sender, err := emailfn.New(cfg.Email.FunctionURL, emailfn.WithAPIKey(cfg.Email.FunctionKey), emailfn.WithTimeout(cfg.Email.Timeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("mailer: не удалось создать клиента функции отправки")
	}

	worker := mailer.NewWorker(emailQueue, repoAdapter, sender, logger)
	logger.Info().Msg("mailer: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("mailer: остановлен")
}
