package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"member-portal/internal/domain"
)

var (
	ErrMissingToken = errors.New("токен отсутствует")
	ErrInvalidToken = errors.New("токен недействителен")
)

// Claims — полезная нагрузка access-токена платформы.
type Claims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	SessionID    string         `json:"session_id"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

// TokenVerifier проверяет подпись HS256 и аудиторию токена.
type TokenVerifier struct {
	secret   []byte
	audience string
}

// NewTokenVerifier создаёт проверяющего.
func NewTokenVerifier(secret, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), audience: audience}
}

// Verify разбирает токен и возвращает пользователя и идентификатор сессии.
func (v *TokenVerifier) Verify(raw string) (domain.SessionUser, string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.SessionUser{}, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.SessionUser{}, "", fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	user := domain.SessionUser{
		ID:      id,
		Email:   claims.Email,
		Name:    metadataString(claims.UserMetadata, "full_name"),
		Company: metadataString(claims.UserMetadata, "company"),
	}
	session := claims.SessionID
	if session == "" {
		session = id.String()
	}
	return user, session, nil
}

func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// AuthMiddleware требует действительный Bearer-токен и кладёт пользователя в контекст.
func AuthMiddleware(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", ErrMissingToken)
				return
			}
			user, session, err := verifier.Verify(raw)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", ErrInvalidToken)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware кладёт пользователя в контекст, если токен передан и действителен.
func OptionalAuthMiddleware(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := bearerToken(r); raw != "" {
				if user, session, err := verifier.Verify(raw); err == nil {
					ctx := context.WithValue(r.Context(), userKey, user)
					r = r.WithContext(context.WithValue(ctx, sessionKey, session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext возвращает пользователя сессии, если он есть.
func UserFromContext(ctx context.Context) (domain.SessionUser, bool) {
	user, ok := ctx.Value(userKey).(domain.SessionUser)
	return user, ok
}

// SessionFromContext возвращает идентификатор сессии.
func SessionFromContext(ctx context.Context) string {
	session, _ := ctx.Value(sessionKey).(string)
	return session
}

// WithUser кладёт пользователя в контекст (используется в тестах обработчиков).
func WithUser(ctx context.Context, user domain.SessionUser, session string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, sessionKey, session)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
