package featured

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"member-portal/internal/domain"
)

// blockingEvaluator зависает на вычислении для slowUser до отмены контекста.
// Карточка подписывается идентификатором пользователя.
type blockingEvaluator struct {
	slowUser uuid.UUID
	started  chan struct{}
	canceled chan struct{}
}

func (e *blockingEvaluator) Evaluate(ctx context.Context, userID uuid.UUID, _ Options) domain.FeaturedContent {
	if userID == e.slowUser {
		close(e.started)
		<-ctx.Done()
		close(e.canceled)
		return domain.FeaturedContent{Type: domain.FeaturedOnboarding, Title: userID.String()}
	}
	return domain.FeaturedContent{Type: domain.FeaturedNewEvent, Title: userID.String()}
}

func TestLoaderSupersededEvaluationIsDiscarded(t *testing.T) {
	userA := &domain.SessionUser{ID: uuid.New()}
	userB := &domain.SessionUser{ID: uuid.New()}
	ev := &blockingEvaluator{slowUser: userA.ID, started: make(chan struct{}), canceled: make(chan struct{})}
	loader := NewLoader(ev)

	firstErr := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), userA, Options{})
		firstErr <- err
	}()
	<-ev.started
	if _, loading := loader.State(); !loading {
		t.Fatalf("ожидали состояние загрузки")
	}

	second, err := loader.Load(context.Background(), userB, Options{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if second.Title != userB.ID.String() {
		t.Fatalf("ожидали карточку пользователя B, получили %q", second.Title)
	}

	select {
	case <-ev.canceled:
	case <-time.After(time.Second):
		t.Fatalf("первое вычисление должно быть отменено")
	}
	if err := <-firstErr; !errors.Is(err, ErrStale) {
		t.Fatalf("ожидали ErrStale, получили %v", err)
	}

	content, loading := loader.State()
	if loading || content == nil || content.Title != userB.ID.String() {
		t.Fatalf("состояние должно содержать только карточку пользователя B: %+v, loading=%v", content, loading)
	}
	if content.Type == domain.FeaturedOnboarding {
		t.Fatalf("карточка пользователя A не должна применяться")
	}
}

func TestLoaderNilUserResets(t *testing.T) {
	w := &world{profile: establishedProfile()}
	loader := NewLoader(newTestSelector(w))
	if _, err := loader.Load(context.Background(), &domain.SessionUser{ID: uuid.New()}, Options{}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if content, _ := loader.State(); content == nil || content.Type != domain.FeaturedDefault {
		t.Fatalf("ожидали применённую карточку")
	}

	if _, err := loader.Load(context.Background(), nil, Options{}); !errors.Is(err, ErrNoUser) {
		t.Fatalf("ожидали ErrNoUser, получили %v", err)
	}
	content, loading := loader.State()
	if content != nil || loading {
		t.Fatalf("ожидали пустое состояние без загрузки")
	}
}

func TestLoadersPerSession(t *testing.T) {
	registry := NewLoaders(newTestSelector(&world{profile: establishedProfile()}), time.Minute)
	a := registry.For("a")
	if registry.For("a") != a {
		t.Fatalf("ожидали тот же загрузчик для той же сессии")
	}
	if registry.For("b") == a {
		t.Fatalf("ожидали разные загрузчики для разных сессий")
	}
	registry.Drop("a")
	if registry.For("a") == a {
		t.Fatalf("после Drop ожидали новый загрузчик")
	}
}

func TestLoadersKeepRecentlyIssuedLoader(t *testing.T) {
	clock := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	registry := NewLoaders(newTestSelector(&world{profile: establishedProfile()}), time.Minute)
	registry.now = func() time.Time { return clock }

	issued := registry.For("active")
	for i := 1; i < pruneThreshold; i++ {
		registry.For(fmt.Sprintf("idle-%d", i))
	}

	clock = clock.Add(10 * time.Minute)
	if registry.For("active") != issued {
		t.Fatalf("ожидали тот же загрузчик")
	}
	registry.For("fresh")

	if registry.For("active") != issued {
		t.Fatalf("только что выданный загрузчик не должен удаляться")
	}
	registry.mu.Lock()
	size := len(registry.loaders)
	registry.mu.Unlock()
	if size != 2 {
		t.Fatalf("ожидали удаление простаивающих загрузчиков, осталось %d", size)
	}
}
