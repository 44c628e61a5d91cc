package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов портала.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	Auth struct {
		JWTSecret   string `envconfig:"AUTH_JWT_SECRET"`
		JWTAudience string `envconfig:"AUTH_JWT_AUDIENCE" default:"authenticated"`
	} `envconfig:""`

	Featured struct {
		ReadTimeout time.Duration `envconfig:"FEATURED_READ_TIMEOUT" default:"5s"`
		SurveyRPC   string        `envconfig:"FEATURED_SURVEY_RPC" default:"get_user_survey_status"`
		SessionTTL  time.Duration `envconfig:"FEATURED_SESSION_TTL" default:"30m"`
	} `envconfig:""`

	Contact struct {
		RateWindow    time.Duration `envconfig:"CONTACT_RATE_WINDOW" default:"1m"`
		NotifyAddress string        `envconfig:"CONTACT_NOTIFY_ADDRESS"`
	} `envconfig:""`

	Email struct {
		FunctionURL string        `envconfig:"EMAIL_FUNCTION_URL"`
		FunctionKey string        `envconfig:"EMAIL_FUNCTION_KEY"`
		Timeout     time.Duration `envconfig:"EMAIL_FUNCTION_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Queues struct {
		Backend string `envconfig:"EMAIL_QUEUE_BACKEND" default:"redis"`
		Email   string `envconfig:"EMAIL_QUEUE_KEY" default:"email_jobs"`
	} `envconfig:""`

	RabbitURL           string `envconfig:"RABBITMQ_URL"`
	RabbitManagementURL string `envconfig:"RABBITMQ_MANAGEMENT_URL"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
