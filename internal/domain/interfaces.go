package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound возвращается репозиториями, если запись отсутствует.
var ErrNotFound = errors.New("запись не найдена")

// ProfileRepo читает профили пользователей.
type ProfileRepo interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (UserProfile, error)
}

// BusinessRepo читает компании пользователя.
type BusinessRepo interface {
	ListUserBusinesses(ctx context.Context, userID uuid.UUID, limit int) ([]BusinessRecord, error)
}

// SurveyRepo отдаёт опросы, ответы и сводный статус из хранимой процедуры.
type SurveyRepo interface {
	CallSurveyStatus(ctx context.Context, userID uuid.UUID) ([]SurveyStatus, error)
	ListPublishedSurveys(ctx context.Context) ([]Survey, error)
	ListUserResponses(ctx context.Context, userID uuid.UUID) ([]SurveyResponse, error)
	CountQuestions(ctx context.Context, surveyIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// SurveyStatusProvider возвращает статус всех опубликованных опросов для пользователя.
type SurveyStatusProvider interface {
	SurveyStatuses(ctx context.Context, userID uuid.UUID) ([]SurveyStatus, error)
}

// EventRepo читает мероприятия и регистрации. Все выборки ограничены status='published'.
type EventRepo interface {
	ListActiveRegistrations(ctx context.Context, userID uuid.UUID) ([]EventRegistration, error)
	// ListEventsByIDs возвращает мероприятия из списка, начинающиеся не раньше startsFrom, по возрастанию начала.
	ListEventsByIDs(ctx context.Context, ids []uuid.UUID, startsFrom time.Time) ([]Event, error)
	// ListOpenEventsPublishedSince возвращает мероприятия с открытой регистрацией, новые первыми.
	ListOpenEventsPublishedSince(ctx context.Context, since, startsAfter time.Time) ([]Event, error)
}

// UpdateRepo читает опубликованные объявления.
type UpdateRepo interface {
	// ListCompulsoryUpdates возвращает обязательные объявления, новые первыми.
	ListCompulsoryUpdates(ctx context.Context) ([]Update, error)
	CountUpdatesSince(ctx context.Context, since time.Time) (int, error)
	GetPublishedUpdate(ctx context.Context, id uuid.UUID) (Update, error)
}

// AcknowledgmentRepo управляет подтверждениями объявлений.
type AcknowledgmentRepo interface {
	ListAcknowledgedUpdateIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	SaveAcknowledgment(ctx context.Context, ack UpdateAcknowledgment) error
}

// ContactRepo сохраняет обращения из контактной формы.
type ContactRepo interface {
	SaveContactMessage(ctx context.Context, msg ContactMessage) (ContactMessage, error)
}

// TemplateRepo читает шаблоны писем.
type TemplateRepo interface {
	GetTemplate(ctx context.Context, key string) (EmailTemplate, error)
}

// EmailSender доставляет письмо через внешнюю функцию.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// Cache выполняет действие не чаще одного раза за окно ttl для ключа.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error)
}
