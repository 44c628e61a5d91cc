package templates

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"member-portal/internal/domain"
)

// ErrTemplateNotFound возвращается, если шаблона с таким ключом нет.
var ErrTemplateNotFound = errors.New("шаблон не найден")

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Render подставляет значения в плейсхолдеры вида {{ key }}. Неизвестные плейсхолдеры остаются как есть.
func Render(body string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(body, "{{") {
		return body
	}
	return placeholder.ReplaceAllStringFunc(body, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}

// EscapeVars экранирует значения для подстановки в HTML.
func EscapeVars(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = html.EscapeString(v)
	}
	return out
}

// Rendered — готовое письмо.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Service загружает шаблоны из хранилища и рендерит их.
type Service struct {
	repo domain.TemplateRepo
}

// NewService создаёт сервис.
func NewService(repo domain.TemplateRepo) *Service {
	return &Service{repo: repo}
}

// Preview рендерит тему и тело шаблона. Значения экранируются для HTML-тела.
func (s *Service) Preview(ctx context.Context, key string, vars map[string]string) (Rendered, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Rendered{}, ErrTemplateNotFound
	}
	tpl, err := s.repo.GetTemplate(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return Rendered{}, ErrTemplateNotFound
	}
	if err != nil {
		return Rendered{}, fmt.Errorf("получение шаблона %s: %w", key, err)
	}
	return Rendered{
		Subject: Render(tpl.Subject, vars),
		Body:    Render(tpl.Body, EscapeVars(vars)),
	}, nil
}
