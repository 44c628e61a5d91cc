package featured

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"member-portal/internal/domain"
)

var errBoom = errors.New("boom")

// world — данные пользователя для тестов с подсчётом обращений к каждому источнику.
type world struct {
	mu sync.Mutex

	profile    domain.UserProfile
	profileErr error
	businesses []domain.BusinessRecord
	surveys    []domain.SurveyStatus
	surveysErr error
	regs       []domain.EventRegistration
	events     []domain.Event
	updates    []domain.Update
	acked      []uuid.UUID
	newUpdates int
	panicOn    string

	calls map[string]int
}

func (w *world) hit(ctx context.Context, name string) error {
	w.mu.Lock()
	if w.calls == nil {
		w.calls = map[string]int{}
	}
	w.calls[name]++
	w.mu.Unlock()
	if w.panicOn == name {
		panic("сбой источника " + name)
	}
	return ctx.Err()
}

func (w *world) count(name string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[name]
}

func (w *world) GetProfile(ctx context.Context, _ uuid.UUID) (domain.UserProfile, error) {
	if err := w.hit(ctx, "profile"); err != nil {
		return domain.UserProfile{}, err
	}
	return w.profile, w.profileErr
}

func (w *world) ListUserBusinesses(ctx context.Context, _ uuid.UUID, limit int) ([]domain.BusinessRecord, error) {
	if err := w.hit(ctx, "businesses"); err != nil {
		return nil, err
	}
	if limit > 0 && len(w.businesses) > limit {
		return w.businesses[:limit], nil
	}
	return w.businesses, nil
}

func (w *world) SurveyStatuses(ctx context.Context, _ uuid.UUID) ([]domain.SurveyStatus, error) {
	if err := w.hit(ctx, "surveys"); err != nil {
		return nil, err
	}
	return w.surveys, w.surveysErr
}

func (w *world) ListActiveRegistrations(ctx context.Context, _ uuid.UUID) ([]domain.EventRegistration, error) {
	if err := w.hit(ctx, "registrations"); err != nil {
		return nil, err
	}
	return w.regs, nil
}

func (w *world) ListEventsByIDs(ctx context.Context, ids []uuid.UUID, startsFrom time.Time) ([]domain.Event, error) {
	if err := w.hit(ctx, "events_by_ids"); err != nil {
		return nil, err
	}
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Event
	for _, ev := range w.events {
		if want[ev.ID] && !ev.StartDatetime.Before(startsFrom) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (w *world) ListOpenEventsPublishedSince(ctx context.Context, since, startsAfter time.Time) ([]domain.Event, error) {
	if err := w.hit(ctx, "open_events"); err != nil {
		return nil, err
	}
	var out []domain.Event
	for _, ev := range w.events {
		if ev.RegistrationOpen && ev.PublishedAt != nil && !ev.PublishedAt.Before(since) && ev.StartDatetime.After(startsAfter) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (w *world) ListCompulsoryUpdates(ctx context.Context) ([]domain.Update, error) {
	if err := w.hit(ctx, "compulsory"); err != nil {
		return nil, err
	}
	return w.updates, nil
}

func (w *world) CountUpdatesSince(ctx context.Context, _ time.Time) (int, error) {
	if err := w.hit(ctx, "updates_since"); err != nil {
		return 0, err
	}
	return w.newUpdates, nil
}

func (w *world) GetPublishedUpdate(ctx context.Context, id uuid.UUID) (domain.Update, error) {
	return domain.Update{}, domain.ErrNotFound
}

func (w *world) ListAcknowledgedUpdateIDs(ctx context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	if err := w.hit(ctx, "acks"); err != nil {
		return nil, err
	}
	return w.acked, nil
}

func (w *world) SaveAcknowledgment(context.Context, domain.UpdateAcknowledgment) error { return nil }

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestSelector(w *world) *Selector {
	return NewSelector(w, w, w, w, w, w, WithClock(func() time.Time { return testNow }))
}

func ptr(t time.Time) *time.Time { return &t }

// establishedProfile — полностью заполненный профиль давнего участника без давнего входа.
func establishedProfile() domain.UserProfile {
	return domain.UserProfile{
		ID:         uuid.New(),
		FirstName:  "Анна",
		LastName:   "Иванова",
		Phone:      "+1 555 0100",
		Title:      "CTO",
		Department: "Engineering",
		CreatedAt:  testNow.Add(-400 * day),
		LastLogin:  ptr(testNow.Add(-time.Hour)),
	}
}

func newProfile(filled int) domain.UserProfile {
	p := domain.UserProfile{ID: uuid.New(), CreatedAt: testNow.Add(-5 * day)}
	fields := []*string{&p.FirstName, &p.LastName, &p.Phone, &p.Title, &p.Department}
	for i := 0; i < filled && i < len(fields); i++ {
		*fields[i] = "x"
	}
	return p
}

func survey(title string, status domain.SurveyUserStatus, due, published *time.Time) domain.SurveyStatus {
	return domain.SurveyStatus{SurveyID: uuid.New(), Title: title, UserStatus: status, DueDate: due, PublishedAt: published}
}

func registeredEvent(w *world, title string, start time.Time) domain.Event {
	ev := domain.Event{ID: uuid.New(), Title: title, StartDatetime: start, PublishedAt: ptr(testNow.Add(-60 * day))}
	w.events = append(w.events, ev)
	w.regs = append(w.regs, domain.EventRegistration{EventID: ev.ID, AttendanceStatus: domain.AttendanceRegistered})
	return ev
}
