package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeaturedEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "featured_evaluations_total",
		Help: "Количество выбранных карточек по типу",
	}, []string{"type"})
	FeaturedEvaluationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "featured_evaluation_seconds",
		Help:    "Время выбора карточки",
		Buckets: prometheus.DefBuckets,
	})
	FeaturedFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "featured_fallback_total",
		Help: "Вычисления, завершившиеся карточкой по умолчанию из-за ошибки",
	}, []string{"reason"})
	SurveyStatusFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "survey_status_fallback_total",
		Help: "Переключения на ручной расчёт статуса опросов",
	})

	ContactSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contact_submissions_total",
		Help: "Обращения из контактной формы",
	}, []string{"status"})
	EmailSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "email_send_errors_total",
		Help: "Ошибки отправки писем",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeaturedEvaluations,
		FeaturedEvaluationSeconds,
		FeaturedFallbacks,
		SurveyStatusFallbacks,
		ContactSubmissions,
		EmailSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveFeatured записывает выбранный тип карточки и время вычисления.
func ObserveFeatured(kind string, start time.Time) {
	if kind == "" {
		kind = "unknown"
	}
	FeaturedEvaluations.WithLabelValues(kind).Inc()
	FeaturedEvaluationSeconds.Observe(time.Since(start).Seconds())
}
