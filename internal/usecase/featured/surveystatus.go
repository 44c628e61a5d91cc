package featured

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"member-portal/internal/domain"
	"member-portal/internal/infra/metrics"
)

// ConsolidatedStatus получает статусы опросов одним вызовом хранимой процедуры.
type ConsolidatedStatus struct {
	repo    domain.SurveyRepo
	timeout time.Duration
}

// NewConsolidatedStatus создаёт провайдер поверх хранимой процедуры.
func NewConsolidatedStatus(repo domain.SurveyRepo, timeout time.Duration) *ConsolidatedStatus {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &ConsolidatedStatus{repo: repo, timeout: timeout}
}

// SurveyStatuses реализует domain.SurveyStatusProvider.
func (c *ConsolidatedStatus) SurveyStatuses(ctx context.Context, userID uuid.UUID) ([]domain.SurveyStatus, error) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	rows, err := c.repo.CallSurveyStatus(rctx, userID)
	if err != nil {
		return nil, fmt.Errorf("вызов процедуры статуса опросов: %w", err)
	}
	out := make([]domain.SurveyStatus, 0, len(rows))
	for _, row := range rows {
		row.ProgressPercentage = domain.ClampProgress(float64(row.ProgressPercentage))
		switch row.UserStatus {
		case domain.SurveyCompleted, domain.SurveyInProgress:
		default:
			row.UserStatus = domain.SurveyNotStarted
		}
		out = append(out, row)
	}
	return out, nil
}

// DecomposedStatus собирает статусы из трёх отдельных чтений и вычисляет их на стороне приложения.
type DecomposedStatus struct {
	repo    domain.SurveyRepo
	timeout time.Duration
}

// NewDecomposedStatus создаёт запасной провайдер.
func NewDecomposedStatus(repo domain.SurveyRepo, timeout time.Duration) *DecomposedStatus {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &DecomposedStatus{repo: repo, timeout: timeout}
}

// SurveyStatuses реализует domain.SurveyStatusProvider.
func (d *DecomposedStatus) SurveyStatuses(ctx context.Context, userID uuid.UUID) ([]domain.SurveyStatus, error) {
	surveys, err := d.publishedSurveys(ctx)
	if err != nil {
		return nil, err
	}
	if len(surveys) == 0 {
		return nil, nil
	}
	responses, err := d.userResponses(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(surveys))
	for _, s := range surveys {
		ids = append(ids, s.ID)
	}
	counts, err := d.questionCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	bySurvey := make(map[uuid.UUID]domain.SurveyResponse, len(responses))
	for _, r := range responses {
		bySurvey[r.SurveyID] = r
	}
	out := make([]domain.SurveyStatus, 0, len(surveys))
	for _, s := range surveys {
		var resp *domain.SurveyResponse
		if r, ok := bySurvey[s.ID]; ok {
			resp = &r
		}
		status, progress := domain.DeriveSurveyStatus(resp, counts[s.ID])
		out = append(out, domain.SurveyStatus{
			SurveyID:           s.ID,
			Title:              s.Title,
			Description:        s.Description,
			DueDate:            s.DueDate,
			PublishedAt:        s.PublishedAt,
			UserStatus:         status,
			ProgressPercentage: progress,
		})
	}
	return out, nil
}

func (d *DecomposedStatus) publishedSurveys(ctx context.Context) ([]domain.Survey, error) {
	rctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	surveys, err := d.repo.ListPublishedSurveys(rctx)
	if err != nil {
		return nil, fmt.Errorf("опубликованные опросы: %w", err)
	}
	return surveys, nil
}

func (d *DecomposedStatus) userResponses(ctx context.Context, userID uuid.UUID) ([]domain.SurveyResponse, error) {
	rctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	responses, err := d.repo.ListUserResponses(rctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ответы пользователя: %w", err)
	}
	return responses, nil
}

func (d *DecomposedStatus) questionCounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	rctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	counts, err := d.repo.CountQuestions(rctx, ids)
	if err != nil {
		return nil, fmt.Errorf("количество вопросов: %w", err)
	}
	return counts, nil
}

// FallbackStatus пробует основной провайдер и при ошибке прозрачно переключается на запасной.
type FallbackStatus struct {
	primary   domain.SurveyStatusProvider
	secondary domain.SurveyStatusProvider
	log       zerolog.Logger
}

// NewFallbackStatus создаёт адаптер с переключением.
func NewFallbackStatus(primary, secondary domain.SurveyStatusProvider, log zerolog.Logger) *FallbackStatus {
	return &FallbackStatus{primary: primary, secondary: secondary, log: log}
}

// SurveyStatuses реализует domain.SurveyStatusProvider.
func (f *FallbackStatus) SurveyStatuses(ctx context.Context, userID uuid.UUID) ([]domain.SurveyStatus, error) {
	statuses, err := f.primary.SurveyStatuses(ctx, userID)
	if err == nil {
		return statuses, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.log.Warn().Err(err).Str("user_id", userID.String()).Msg("featured: процедура статуса опросов недоступна, считаем вручную")
	metrics.SurveyStatusFallbacks.Inc()
	return f.secondary.SurveyStatuses(ctx, userID)
}

var (
	_ domain.SurveyStatusProvider = (*ConsolidatedStatus)(nil)
	_ domain.SurveyStatusProvider = (*DecomposedStatus)(nil)
	_ domain.SurveyStatusProvider = (*FallbackStatus)(nil)
)
