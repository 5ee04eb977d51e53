package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/coachlink/internal/auth"
	"github.com/gosuda/coachlink/internal/domain"
)

// Auth requires an HS256 bearer token minted for userID. Browsers cannot set
// headers on websocket upgrades, so the access_token query parameter is
// accepted as well.
func Auth(jwtSecret, userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractBearer(r)
			if tok == "" {
				tok = r.URL.Query().Get("access_token")
			}
			if tok == "" {
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, tok)
			if err != nil {
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
				return
			}

			if claims.UserID != userID {
				log.Warn().Str("token_user", claims.UserID).Msg("auth: token issued for another user")
				http.Error(w, `{"title":"Forbidden","status":403,"detail":"token does not match the session user"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, claims.UserID)
	if claims.ChatKind != "" {
		ctx = context.WithValue(ctx, ContextKeyChatKind, domain.ChatKind(claims.ChatKind))
	}
	return ctx
}
