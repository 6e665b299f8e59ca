package httpauth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wisbric/kubefleet/internal/httpserver"
)

// Middleware returns an HTTP middleware that authenticates the caller via
// session JWT, OIDC JWT, or a development header and stores the resulting
// Identity in the request context.
//
// Authentication precedence:
//  1. Authorization: Bearer <jwt>  →  self-issued session JWT (HMAC) → OIDC
//  2. X-Dev-User: <role>           →  development-only fallback, no real auth
//
// If none succeed, the request is rejected with 401. The user/credential
// store that issues session JWTs is an external collaborator (spec's
// "user/tenant/API-key store" Non-goal); this middleware only resolves
// identity from whatever credential the request carries.
func Middleware(sessionMgr *SessionManager, oidcAuth *OIDCAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") || strings.HasPrefix(authHeader, "bearer ") {
				rawToken := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(authHeader, "Bearer "), "bearer "))

				if sessionMgr != nil {
					if claims, err := sessionMgr.ValidateToken(rawToken); err == nil {
						userID, _ := uuid.Parse(claims.UserID)
						identity = &Identity{
							Subject: claims.Subject,
							Email:   claims.Email,
							Role:    claims.Role,
							UserID:  userID,
							Method:  MethodSession,
						}
						logger.Debug("authenticated via session JWT", "sub", claims.Subject, "role", claims.Role)
					}
				}

				if identity == nil {
					if oidcAuth == nil {
						logger.Warn("JWT presented but OIDC is not configured")
						httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
						return
					}

					claims, err := oidcAuth.Authenticate(r.Context(), authHeader)
					if err != nil {
						logger.Warn("OIDC authentication failed", "error", err)
						httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
						return
					}

					identity = &Identity{
						Subject: claims.Subject,
						Email:   claims.Email,
						Role:    claims.Role,
						Method:  MethodOIDC,
					}
					logger.Debug("authenticated via OIDC", "sub", claims.Subject, "role", claims.Role)
				}
			}

			// Development-only fallback: no real authentication.
			if identity == nil {
				if role := r.Header.Get("X-Dev-User"); role != "" {
					if !IsValidRole(role) {
						role = RoleViewer
					}
					identity = &Identity{
						Subject: "dev:anonymous",
						Email:   "dev@localhost",
						Role:    role,
						Method:  MethodDev,
					}
					logger.Debug("dev-mode authentication", "role", role)
				}
			}

			if identity == nil {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that have no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
