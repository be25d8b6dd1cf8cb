package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/courierhq/courier/internal/identity"
	"github.com/courierhq/courier/internal/models"
)

type contextKey string

const AgentContextKey contextKey = "agent"

// AuthMiddleware resolves API keys to agents for authenticated endpoints.
type AuthMiddleware struct {
	agents *identity.Service
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(agents *identity.Service) *AuthMiddleware {
	return &AuthMiddleware{agents: agents}
}

// RequireAuth verifies the request's API key and stores the resolved agent
// in the request context. The key is carried in the X-API-Key header;
// Authorization: Bearer is accepted as an alias.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if apiKey == "" {
			jsonError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		agent, err := m.agents.ResolveByAPIKey(r.Context(), apiKey)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), AgentContextKey, agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetAgentFromContext retrieves the authenticated agent from the request context.
func GetAgentFromContext(ctx context.Context) *models.Agent {
	agent, ok := ctx.Value(AgentContextKey).(*models.Agent)
	if !ok {
		return nil
	}
	return agent
}
