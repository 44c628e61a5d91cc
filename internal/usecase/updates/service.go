package updates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"member-portal/internal/domain"
)

// Service управляет подтверждением объявлений.
type Service struct {
	updates domain.UpdateRepo
	acks    domain.AcknowledgmentRepo
	now     func() time.Time
}

// NewService создаёт сервис.
func NewService(updates domain.UpdateRepo, acks domain.AcknowledgmentRepo) *Service {
	return &Service{updates: updates, acks: acks, now: time.Now}
}

// Acknowledge фиксирует, что пользователь ознакомился с опубликованным объявлением.
// Повторный вызов не является ошибкой.
func (s *Service) Acknowledge(ctx context.Context, userID, updateID uuid.UUID) error {
	if _, err := s.updates.GetPublishedUpdate(ctx, updateID); err != nil {
		return fmt.Errorf("получение объявления: %w", err)
	}
	ack := domain.UpdateAcknowledgment{UpdateID: updateID, UserID: userID, AcknowledgedAt: s.now().UTC()}
	if err := s.acks.SaveAcknowledgment(ctx, ack); err != nil {
		return fmt.Errorf("сохранение подтверждения: %w", err)
	}
	return nil
}

// ListPendingCompulsory возвращает обязательные объявления, которые пользователь ещё не подтвердил.
func (s *Service) ListPendingCompulsory(ctx context.Context, userID uuid.UUID) ([]domain.Update, error) {
	compulsory, err := s.updates.ListCompulsoryUpdates(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение обязательных объявлений: %w", err)
	}
	if len(compulsory) == 0 {
		return nil, nil
	}
	ids, err := s.acks.ListAcknowledgedUpdateIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение подтверждений: %w", err)
	}
	done := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	pending := make([]domain.Update, 0, len(compulsory))
	for _, u := range compulsory {
		if _, ok := done[u.ID]; !ok {
			pending = append(pending, u)
		}
	}
	return pending, nil
}
