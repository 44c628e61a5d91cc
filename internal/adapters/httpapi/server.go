package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"member-portal/internal/domain"
	httpinfra "member-portal/internal/infra/http"
	"member-portal/internal/usecase/contact"
	"member-portal/internal/usecase/featured"
	"member-portal/internal/usecase/templates"
)

const maxBodyBytes = 64 << 10

// UpdatesService — операции с обязательными объявлениями.
type UpdatesService interface {
	Acknowledge(ctx context.Context, userID, updateID uuid.UUID) error
	ListPendingCompulsory(ctx context.Context, userID uuid.UUID) ([]domain.Update, error)
}

// ContactService принимает обращения.
type ContactService interface {
	Submit(ctx context.Context, msg domain.ContactMessage) (domain.ContactMessage, error)
}

// TemplatePreviewer рендерит шаблоны писем.
type TemplatePreviewer interface {
	Preview(ctx context.Context, key string, vars map[string]string) (templates.Rendered, error)
}

type Server struct {
	verifier  *httpinfra.TokenVerifier
	loaders   *featured.Loaders
	updates   UpdatesService
	contact   ContactService
	templates TemplatePreviewer
	log       zerolog.Logger
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func WithUpdates(svc UpdatesService) Option {
	return func(s *Server) {
		s.updates = svc
	}
}

func WithContact(svc ContactService) Option {
	return func(s *Server) {
		s.contact = svc
	}
}

func WithTemplates(svc TemplatePreviewer) Option {
	return func(s *Server) {
		s.templates = svc
	}
}

type featuredResponse struct {
	Content *domain.FeaturedContent `json:"content"`
	Loading bool                    `json:"loading"`
}

type updateResponse struct {
	ID         uuid.UUID         `json:"id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	UpdateType domain.UpdateType `json:"update_type"`
	CreatedAt  string            `json:"created_at"`
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type contactResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type previewRequest struct {
	Variables map[string]string `json:"variables"`
}

// NewServer создаёт обработчики API портала.
func NewServer(verifier *httpinfra.TokenVerifier, loaders *featured.Loaders, opts ...Option) *Server {
	srv := &Server{verifier: verifier, loaders: loaders, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Register подключает маршруты к роутеру.
func (s *Server) Register(r chi.Router) {
	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.AuthMiddleware(s.verifier))

		protected.Get("/api/v1/featured", s.handleFeatured)
		protected.Delete("/api/v1/featured", s.handleResetFeatured)

		if s.updates != nil {
			protected.Get("/api/v1/updates/pending", s.handlePendingUpdates)
			protected.Post("/api/v1/updates/{id}/ack", s.handleAcknowledge)
		}
		if s.templates != nil {
			protected.Post("/api/v1/templates/{key}/preview", s.handlePreviewTemplate)
		}
	})

	if s.contact != nil {
		r.With(httpinfra.OptionalAuthMiddleware(s.verifier)).Post("/api/v1/contact", s.handleContact)
	}
}

func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	user, _ := httpinfra.UserFromContext(r.Context())
	opts := featured.Options{}
	if raw := r.URL.Query().Get("skip_profile_completion"); raw != "" {
		skip, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "skip_profile_completion must be a boolean")
			return
		}
		opts.SkipProfileCompletion = skip
	}

	loader := s.loaders.For(httpinfra.SessionFromContext(r.Context()))
	content, err := loader.Load(r.Context(), &user, opts)
	if err != nil {
		if errors.Is(err, featured.ErrStale) {
			writeError(w, http.StatusConflict, "stale", "superseded by a newer request")
			return
		}
		s.log.Error().Err(err).Str("user_id", user.ID.String()).Msg("featured: загрузка карточки")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load featured content")
		return
	}
	writeJSON(w, http.StatusOK, featuredResponse{Content: &content, Loading: false})
}

func (s *Server) handleResetFeatured(w http.ResponseWriter, r *http.Request) {
	s.loaders.Drop(httpinfra.SessionFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePendingUpdates(w http.ResponseWriter, r *http.Request) {
	user, _ := httpinfra.UserFromContext(r.Context())
	pending, err := s.updates.ListPendingCompulsory(r.Context(), user.ID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID.String()).Msg("updates: обязательные объявления")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load updates")
		return
	}
	out := make([]updateResponse, 0, len(pending))
	for _, u := range pending {
		out = append(out, updateResponse{
			ID:         u.ID,
			Title:      u.Title,
			Content:    u.Content,
			UpdateType: u.UpdateType,
			CreatedAt:  u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": out})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	user, _ := httpinfra.UserFromContext(r.Context())
	updateID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid update id")
		return
	}
	if err := s.updates.Acknowledge(r.Context(), user.ID, updateID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "update_not_found", "update not found")
			return
		}
		s.log.Error().Err(err).Str("update_id", updateID.String()).Msg("updates: подтверждение")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to acknowledge update")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	msg := domain.ContactMessage{Name: req.Name, Email: req.Email, Company: req.Company, Subject: req.Subject, Message: req.Message}
	if user, ok := httpinfra.UserFromContext(r.Context()); ok {
		id := user.ID
		msg.UserID = &id
		if msg.Email == "" {
			msg.Email = user.Email
		}
		if msg.Name == "" {
			msg.Name = user.Name
		}
		if msg.Company == "" {
			msg.Company = user.Company
		}
	}

	saved, err := s.contact.Submit(r.Context(), msg)
	if err != nil {
		switch {
		case errors.Is(err, contact.ErrInvalidMessage):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, contact.ErrTooManyRequests):
			writeError(w, http.StatusTooManyRequests, "too_many_requests", "please wait before sending another message")
		default:
			s.log.Error().Err(err).Msg("contact: приём обращения")
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to submit message")
		}
		return
	}
	writeJSON(w, http.StatusCreated, contactResponse{ID: saved.ID, Status: "received"})
}

func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	rendered, err := s.templates.Preview(r.Context(), chi.URLParam(r, "key"), req.Variables)
	if err != nil {
		if errors.Is(err, templates.ErrTemplateNotFound) {
			writeError(w, http.StatusNotFound, "template_not_found", "template not found")
			return
		}
		s.log.Error().Err(err).Msg("templates: предпросмотр")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to render template")
		return
	}
	writeJSON(w, http.StatusOK, rendered)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	httpinfra.WriteJSON(w, status, httpinfra.ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httpinfra.WriteJSON(w, status, v)
}
