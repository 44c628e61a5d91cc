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

const defaultReadTimeout = 5 * time.Second

// Options управляет отдельными правилами при вычислении.
type Options struct {
	// SkipProfileCompletion отключает правило онбординга (например, на странице редактирования профиля).
	SkipProfileCompletion bool
}

// Evaluator выбирает карточку для пользователя.
type Evaluator interface {
	Evaluate(ctx context.Context, userID uuid.UUID, opts Options) domain.FeaturedContent
}

// Selector выбирает единственную карточку для дашборда по упорядоченному списку правил.
type Selector struct {
	profiles    domain.ProfileRepo
	businesses  domain.BusinessRepo
	surveys     domain.SurveyStatusProvider
	events      domain.EventRepo
	updates     domain.UpdateRepo
	acks        domain.AcknowledgmentRepo
	log         zerolog.Logger
	now         func() time.Time
	readTimeout time.Duration
	rules       []rule
}

var _ Evaluator = (*Selector)(nil)

// Option настраивает Selector.
type Option func(*Selector)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReadTimeout задаёт таймаут на одно чтение.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Selector) {
		if timeout > 0 {
			s.readTimeout = timeout
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Selector) {
		s.log = log
	}
}

// NewSelector создаёт селектор карточек.
func NewSelector(profiles domain.ProfileRepo, businesses domain.BusinessRepo, surveys domain.SurveyStatusProvider, events domain.EventRepo, updates domain.UpdateRepo, acks domain.AcknowledgmentRepo, opts ...Option) *Selector {
	s := &Selector{
		profiles:    profiles,
		businesses:  businesses,
		surveys:     surveys,
		events:      events,
		updates:     updates,
		acks:        acks,
		log:         zerolog.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
		readTimeout: defaultReadTimeout,
		rules:       defaultRules(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate вычисляет карточку. Функция тотальна: при любой ошибке возвращается карточка по умолчанию.
func (s *Selector) Evaluate(ctx context.Context, userID uuid.UUID, opts Options) (content domain.FeaturedContent) {
	start := time.Now()
	log := s.log.With().Str("user_id", userID.String()).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("featured: вычисление прервано, показываем карточку по умолчанию")
			metrics.FeaturedFallbacks.WithLabelValues("panic").Inc()
			content = DefaultContent()
		}
		metrics.ObserveFeatured(string(content.Type), start)
	}()

	snap := &snapshot{sel: s, userID: userID, now: s.now(), opts: opts}

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("featured: не удалось получить профиль")
		metrics.FeaturedFallbacks.WithLabelValues("profile").Inc()
		return DefaultContent()
	}
	snap.profile = profile

	for _, r := range s.rules {
		ok, err := r.match(ctx, snap)
		if err != nil {
			if ctx.Err() != nil {
				metrics.FeaturedFallbacks.WithLabelValues("canceled").Inc()
				return DefaultContent()
			}
			log.Warn().Err(err).Str("rule", string(r.kind)).Msg("featured: правило пропущено из-за ошибки чтения")
			continue
		}
		if ok {
			return r.build(snap)
		}
	}
	return DefaultContent()
}

func (s *Selector) loadProfile(ctx context.Context, userID uuid.UUID) (domain.UserProfile, error) {
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	profile, err := s.profiles.GetProfile(rctx, userID)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("получение профиля: %w", err)
	}
	return profile, nil
}

func (s *Selector) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.readTimeout)
}
