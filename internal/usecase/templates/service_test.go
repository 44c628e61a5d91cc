package templates

import (
	"context"
	"errors"
	"testing"

	"member-portal/internal/domain"
)

type stubTemplates struct {
	tpl domain.EmailTemplate
	err error
}

func (s stubTemplates) GetTemplate(context.Context, string) (domain.EmailTemplate, error) {
	return s.tpl, s.err
}

func TestRender(t *testing.T) {
	vars := map[string]string{"name": "Анна", "company": "Acme"}
	cases := map[string]string{
		"Привет, {{name}}!":            "Привет, Анна!",
		"{{ name }} из {{  company }}": "Анна из Acme",
		"{{ unknown }} остаётся":       "{{ unknown }} остаётся",
		"без плейсхолдеров":            "без плейсхолдеров",
		"{{name}}{{name}}":             "АннаАнна",
	}
	for input, expected := range cases {
		if got := Render(input, vars); got != expected {
			t.Fatalf("ожидали %q, получили %q", expected, got)
		}
	}
}

func TestPreviewEscapesBody(t *testing.T) {
	svc := NewService(stubTemplates{tpl: domain.EmailTemplate{Key: "k", Subject: "От {{name}}", Body: "<p>{{message}}</p>"}})
	out, err := svc.Preview(context.Background(), "k", map[string]string{"name": "A&B", "message": "<script>"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if out.Subject != "От A&B" {
		t.Fatalf("тема не должна экранироваться: %q", out.Subject)
	}
	if out.Body != "<p>&lt;script&gt;</p>" {
		t.Fatalf("ожидали экранированное тело, получили %q", out.Body)
	}
}

func TestPreviewMissingTemplate(t *testing.T) {
	svc := NewService(stubTemplates{err: domain.ErrNotFound})
	if _, err := svc.Preview(context.Background(), "missing", nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("ожидали ErrTemplateNotFound, получили %v", err)
	}
}
