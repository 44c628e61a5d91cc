package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return raw
}

func baseClaims(sub string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:        "user@example.com",
		UserMetadata: map[string]any{"full_name": " Ann Lee ", "company": "Acme"},
	}
}

func TestVerify(t *testing.T) {
	secret := []byte("secret")
	verifier := NewTokenVerifier("secret", "authenticated")
	id := uuid.New()

	user, session, err := verifier.Verify(sign(t, jwt.SigningMethodHS256, secret, baseClaims(id.String())))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if user.ID != id || user.Email != "user@example.com" || user.Name != "Ann Lee" || user.Company != "Acme" {
		t.Fatalf("неожиданный пользователь: %+v", user)
	}
	if session != id.String() {
		t.Fatalf("без session_id сессией считается пользователь, получили %s", session)
	}
}

func TestVerifyRejects(t *testing.T) {
	verifier := NewTokenVerifier("secret", "authenticated")
	id := uuid.New().String()

	expired := baseClaims(id)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := baseClaims(id)
	noExpiry.ExpiresAt = nil
	wrongAudience := baseClaims(id)
	wrongAudience.Audience = jwt.ClaimStrings{"anon"}

	cases := map[string]string{
		"чужой ключ":      sign(t, jwt.SigningMethodHS256, []byte("other"), baseClaims(id)),
		"истёк":           sign(t, jwt.SigningMethodHS256, []byte("secret"), expired),
		"без срока":       sign(t, jwt.SigningMethodHS256, []byte("secret"), noExpiry),
		"чужая аудитория": sign(t, jwt.SigningMethodHS256, []byte("secret"), wrongAudience),
		"другой алгоритм": sign(t, jwt.SigningMethodHS512, []byte("secret"), baseClaims(id)),
		"subject не uuid": sign(t, jwt.SigningMethodHS256, []byte("secret"), baseClaims("42")),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := verifier.Verify(raw); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("ожидали ErrInvalidToken, получили %v", err)
			}
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	verifier := NewTokenVerifier("secret", "authenticated")
	var seen bool
	h := OptionalAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, seen = UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen {
		t.Fatalf("без токена пользователя быть не должно")
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "bearer "+sign(t, jwt.SigningMethodHS256, []byte("secret"), baseClaims(uuid.NewString())))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !seen {
		t.Fatalf("ожидали пользователя в контексте")
	}
}
