package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/felixgeelhaar/benjudge/internal/domain"
)

// UserCookieName carries the anonymous user ID.
const UserCookieName = "benjudge_user"

const userIDKey ContextKey = "user_id"

// UserID returns the user resolved by the identity middleware.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// withUser resolves the caller from the identity cookie. A missing cookie,
// or one naming an unknown user, provisions a new user and sets the cookie.
func (s *Server) withUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if c, err := r.Cookie(UserCookieName); err == nil && c.Value != "" {
			_, err := s.store.GetUser(ctx, c.Value)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userIDKey, c.Value)))
				return
			case !errors.Is(err, domain.ErrUserNotFound):
				s.jsonError(w, http.StatusInternalServerError, "Erro ao buscar usuário", err)
				return
			}
			s.logger.Info("identity cookie names unknown user, provisioning", "user_id", c.Value)
		}

		u, err := s.store.CreateUser(ctx)
		if err != nil {
			s.logger.Error("failed to create user", "correlation_id", GetCorrelationID(ctx), "error", err)
			s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"erro": "Falha ao criar usuário"})
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     UserCookieName,
			Value:    u.ID,
			Path:     "/",
			MaxAge:   365 * 24 * 60 * 60,
			HttpOnly: true,
			Secure:   s.secureCookie,
			SameSite: http.SameSiteLaxMode,
		})

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userIDKey, u.ID)))
	})
}
