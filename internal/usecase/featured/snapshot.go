package featured

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"member-portal/internal/domain"
)

const day = 24 * time.Hour

// snapshot хранит сигналы одного вычисления. Сигналы загружаются лениво,
// поэтому чтения для правил после сработавшего не выполняются.
type snapshot struct {
	sel     *Selector
	userID  uuid.UUID
	now     time.Time
	opts    Options
	profile domain.UserProfile

	surveys       []domain.SurveyStatus
	surveysErr    error
	surveysLoaded bool

	// результаты сработавших правил
	completeness  int
	urgentSurvey  domain.SurveyStatus
	urgentDays    int
	upcomingEvent domain.Event
	upcomingDays  int
	newSurvey     domain.SurveyStatus
	newEvent      domain.Event
	update        domain.Update
	newUpdates    int
	daysAway      int
}

func (s *snapshot) hasBusiness(ctx context.Context) (bool, error) {
	rctx, cancel := s.sel.readCtx(ctx)
	defer cancel()
	records, err := s.sel.businesses.ListUserBusinesses(rctx, s.userID, 1)
	if err != nil {
		return false, fmt.Errorf("компании пользователя: %w", err)
	}
	return len(records) > 0, nil
}

// surveyStatuses общий для правил 2 и 4, загружается один раз.
// Провайдер сам ограничивает каждое обращение по времени, так как может выполнить несколько чтений.
func (s *snapshot) surveyStatuses(ctx context.Context) ([]domain.SurveyStatus, error) {
	if !s.surveysLoaded {
		s.surveys, s.surveysErr = s.sel.surveys.SurveyStatuses(ctx, s.userID)
		if s.surveysErr != nil {
			s.surveysErr = fmt.Errorf("статус опросов: %w", s.surveysErr)
		}
		s.surveysLoaded = true
	}
	return s.surveys, s.surveysErr
}

func (s *snapshot) registrations(ctx context.Context) ([]domain.EventRegistration, error) {
	rctx, cancel := s.sel.readCtx(ctx)
	defer cancel()
	regs, err := s.sel.events.ListActiveRegistrations(rctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("регистрации на мероприятия: %w", err)
	}
	return regs, nil
}

func (s *snapshot) eventsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Event, error) {
	rctx, cancel := s.sel.readCtx(ctx)
	defer cancel()
	events, err := s.sel.events.ListEventsByIDs(rctx, ids, s.now)
	if err != nil {
		return nil, fmt.Errorf("мероприятия пользователя: %w", err)
	}
	return events, nil
}

func (s *snapshot) openEvents(ctx context.Context, since time.Time) ([]domain.Event, error) {
	rctx, cancel := s.sel.readCtx(ctx)
	defer cancel()
	events, err := s.sel.events.ListOpenEventsPublishedSince(rctx, since, s.now)
	if err != nil {
		return nil, fmt.Errorf("новые мероприятия: %w", err)
	}
	return events, nil
}

func (s *snapshot) compulsoryUpdates(ctx context.Context) ([]domain.Update, error) {
	rctx, cancel := s.sel.readCtx(ctx)
	defer cancel()
	updates, err := s.sel.updates.ListCompulsoryUpdates(rctx)
	if err != nil {
		return nil, fmt.Errorf("обязательные объявления: %w", err)
	}
	return updates, nil
}

func (s *snapshot) acknowledged(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	rctx, cancel := s.sel.readCtx(ctx)
	defer cancel()
	ids, err := s.sel.acks.ListAcknowledgedUpdateIDs(rctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("подтверждения объявлений: %w", err)
	}
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (s *snapshot) updatesSince(ctx context.Context, since time.Time) (int, error) {
	rctx, cancel := s.sel.readCtx(ctx)
	defer cancel()
	count, err := s.sel.updates.CountUpdatesSince(rctx, since)
	if err != nil {
		return 0, fmt.Errorf("новые объявления: %w", err)
	}
	return count, nil
}

// daysUntil возвращает ceil((t - now) / сутки).
func daysUntil(now, t time.Time) int {
	return int(math.Ceil(float64(t.Sub(now)) / float64(day)))
}
