package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"member-portal/internal/domain"
	"member-portal/internal/infra/metrics"
	"member-portal/internal/usecase/templates"
)

var (
	// ErrInvalidMessage возвращается при некорректном обращении.
	ErrInvalidMessage = errors.New("некорректное обращение")
	// ErrTooManyRequests возвращается, если с этого адреса уже писали в текущем окне.
	ErrTooManyRequests = errors.New("слишком частые обращения")
)

const (
	// NotificationTemplate — ключ шаблона уведомления поддержки.
	NotificationTemplate = "contact_notification"
	// Пределы длины совпадают с тегами submission.
	maxMessageLength = 5000
	maxFieldLength   = 200
)

var validate = validator.New()

// submission — поля формы с правилами проверки.
type submission struct {
	Name    string `validate:"required,max=200"`
	Email   string `validate:"required,max=200,email"`
	Company string `validate:"max=200"`
	Subject string `validate:"max=200"`
	Message string `validate:"required,max=5000"`
}

const (
	fallbackSubject = "New contact message from {{name}}"
	fallbackBody    = "<p><b>{{name}}</b> ({{email}}, {{company}}) wrote:</p><p><b>{{subject}}</b></p><p>{{message}}</p>"
)

// Service принимает обращения из контактной формы.
type Service struct {
	messages  domain.ContactRepo
	templates domain.TemplateRepo
	cache     domain.Cache
	queue     domain.EmailQueue
	notifyTo  string
	window    time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewService создаёт сервис. cache может быть nil, тогда ограничение частоты отключено.
func NewService(messages domain.ContactRepo, tpls domain.TemplateRepo, cache domain.Cache, queue domain.EmailQueue, notifyTo string, window time.Duration, logger zerolog.Logger) *Service {
	if window <= 0 {
		window = time.Minute
	}
	return &Service{
		messages:  messages,
		templates: tpls,
		cache:     cache,
		queue:     queue,
		notifyTo:  strings.TrimSpace(notifyTo),
		window:    window,
		log:       logger.With().Str("component", "contact").Logger(),
		now:       time.Now,
	}
}

// Submit проверяет обращение, ограничивает частоту по email, сохраняет его и ставит уведомление в очередь.
func (s *Service) Submit(ctx context.Context, msg domain.ContactMessage) (domain.ContactMessage, error) {
	msg, err := normalize(msg)
	if err != nil {
		metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
		return domain.ContactMessage{}, err
	}

	var saved domain.ContactMessage
	submit := func() error {
		stored, err := s.messages.SaveContactMessage(ctx, msg)
		if err != nil {
			return fmt.Errorf("сохранение обращения: %w", err)
		}
		saved = stored
		return nil
	}

	if s.cache == nil {
		err = submit()
	} else {
		var executed bool
		executed, err = s.cache.Once(ctx, "contact:"+strings.ToLower(msg.Email), s.window, submit)
		if err == nil && !executed {
			metrics.ContactSubmissions.WithLabelValues("rate_limited").Inc()
			return domain.ContactMessage{}, ErrTooManyRequests
		}
	}
	if err != nil {
		metrics.ContactSubmissions.WithLabelValues("error").Inc()
		return domain.ContactMessage{}, err
	}
	metrics.ContactSubmissions.WithLabelValues("accepted").Inc()

	if err := s.notify(ctx, saved); err != nil {
		// обращение уже сохранено, уведомление не критично
		s.log.Error().Err(err).Str("message_id", saved.ID.String()).Msg("не удалось поставить уведомление в очередь")
	}
	return saved, nil
}

func (s *Service) notify(ctx context.Context, msg domain.ContactMessage) error {
	if s.queue == nil || s.notifyTo == "" {
		return nil
	}
	subject, body := fallbackSubject, fallbackBody
	if s.templates != nil {
		tpl, err := s.templates.GetTemplate(ctx, NotificationTemplate)
		switch {
		case err == nil:
			subject, body = tpl.Subject, tpl.Body
		case errors.Is(err, domain.ErrNotFound):
		default:
			s.log.Warn().Err(err).Msg("шаблон уведомления недоступен, используем встроенный")
		}
	}
	vars := map[string]string{
		"name":    msg.Name,
		"email":   msg.Email,
		"company": msg.Company,
		"subject": msg.Subject,
		"message": msg.Message,
	}
	job := domain.EmailJob{
		ID: uuid.NewString(),
		Email: domain.Email{
			To:      s.notifyTo,
			Subject: templates.Render(subject, vars),
			HTML:    templates.Render(body, templates.EscapeVars(vars)),
			ReplyTo: msg.Email,
		},
		RequestedAt: s.now().UTC(),
		Cause:       domain.EmailCauseContact,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка письма в очередь: %w", err)
	}
	return nil
}

func normalize(msg domain.ContactMessage) (domain.ContactMessage, error) {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Company = strings.TrimSpace(msg.Company)
	msg.Subject = strings.TrimSpace(msg.Subject)
	msg.Message = strings.TrimSpace(msg.Message)

	err := validate.Struct(submission{
		Name:    msg.Name,
		Email:   msg.Email,
		Company: msg.Company,
		Subject: msg.Subject,
		Message: msg.Message,
	})
	if err == nil {
		return msg, nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return msg, fmt.Errorf("%w: поле %s не прошло проверку %s", ErrInvalidMessage, strings.ToLower(fe.Field()), fe.Tag())
	}
	return msg, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
}
