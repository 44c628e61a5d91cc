package featured

import (
	"context"
	"errors"
	"sync"
	"time"

	"member-portal/internal/domain"
)

var (
	// ErrStale возвращается, если вычисление было вытеснено более новым вызовом.
	ErrStale = errors.New("результат устарел")
	// ErrNoUser возвращается, если пользователь ещё не определён.
	ErrNoUser = errors.New("пользователь не определён")
)

// Loader хранит состояние карточки для одной сессии дашборда.
// Каждый вызов Load получает новое поколение, результаты старых поколений отбрасываются.
type Loader struct {
	evaluator Evaluator

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	content    *domain.FeaturedContent
	loading    bool
	lastUsed   time.Time
	now        func() time.Time
}

// NewLoader создаёт загрузчик поверх селектора.
func NewLoader(evaluator Evaluator) *Loader {
	return &Loader{evaluator: evaluator, lastUsed: time.Now(), now: time.Now}
}

// Load вычисляет карточку для пользователя. nil-пользователь сбрасывает состояние без ошибки вычисления.
func (l *Loader) Load(ctx context.Context, user *domain.SessionUser, opts Options) (domain.FeaturedContent, error) {
	l.mu.Lock()
	l.generation++
	gen := l.generation
	l.lastUsed = l.now()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.content = nil
	if user == nil {
		l.loading = false
		l.mu.Unlock()
		return domain.FeaturedContent{}, ErrNoUser
	}
	evalCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.loading = true
	l.mu.Unlock()

	result := l.evaluator.Evaluate(evalCtx, user.ID, opts)

	l.mu.Lock()
	defer l.mu.Unlock()
	cancel()
	if gen != l.generation {
		return domain.FeaturedContent{}, ErrStale
	}
	l.cancel = nil
	l.content = &result
	l.loading = false
	return result, nil
}

// Reset отменяет текущее вычисление, например при выходе пользователя.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.content = nil
	l.loading = false
}

// State возвращает применённую карточку и признак загрузки.
func (l *Loader) State() (*domain.FeaturedContent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.content == nil {
		return nil, l.loading
	}
	c := *l.content
	return &c, l.loading
}

func (l *Loader) idleSince() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastUsed
}

func (l *Loader) touch() {
	l.mu.Lock()
	l.lastUsed = l.now()
	l.mu.Unlock()
}

func (l *Loader) busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Loaders хранит загрузчики по ключу сессии.
type Loaders struct {
	evaluator Evaluator
	idleTTL   time.Duration

	now     func() time.Time

	mu      sync.Mutex
	loaders map[string]*Loader
}

const pruneThreshold = 1024

// NewLoaders создаёт реестр загрузчиков. Неиспользуемые дольше idleTTL удаляются.
func NewLoaders(evaluator Evaluator, idleTTL time.Duration) *Loaders {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Loaders{evaluator: evaluator, idleTTL: idleTTL, now: time.Now, loaders: make(map[string]*Loader)}
}

// For возвращает загрузчик для сессии, создавая его при необходимости.
func (r *Loaders) For(key string) *Loader {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loaders[key]; ok {
		// выданный загрузчик не должен быть удалён до вызова Load
		l.touch()
		return l
	}
	if len(r.loaders) >= pruneThreshold {
		r.pruneLocked(r.now())
	}
	l := NewLoader(r.evaluator)
	l.now = r.now
	l.lastUsed = r.now()
	r.loaders[key] = l
	return l
}

// Drop сбрасывает и удаляет загрузчик сессии.
func (r *Loaders) Drop(key string) {
	r.mu.Lock()
	l, ok := r.loaders[key]
	delete(r.loaders, key)
	r.mu.Unlock()
	if ok {
		l.Reset()
	}
}

func (r *Loaders) pruneLocked(now time.Time) {
	for key, l := range r.loaders {
		if !l.busy() && now.Sub(l.idleSince()) > r.idleTTL {
			delete(r.loaders, key)
		}
	}
}
