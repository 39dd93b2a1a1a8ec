package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nigussolomon/nonceauth"
)

type userContextKey struct{}

// UserFromContext returns the user attached by Guard.
func UserFromContext(ctx context.Context) (*nonceauth.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*nonceauth.User)
	return user, ok && user != nil
}

// WithUser attaches user to ctx the way Guard does.
func WithUser(ctx context.Context, user *nonceauth.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// Guard rejects requests without a live access token. Tokens whose nonce no
// longer matches the stored hash are rejected with 401 just like forged or
// expired ones; store failures yield 500.
func Guard(engine *nonceauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				if errors.Is(err, nonceauth.ErrUnauthorized) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
