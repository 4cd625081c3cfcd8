package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// ActorHeader carries the gateway-authenticated user ID on incoming
// admin requests.
const ActorHeader = "X-Gatewarden-User"

type actorContextKey struct{}

// ContextWithActor stores the acting user's ID in context.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext extracts the acting user's ID, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}

// ActorContext resolves the actor header into the request context so
// downstream layers (audit in particular) can attribute the mutation.
// Requests without a parseable actor pass through unattributed; guards
// decide whether that is acceptable.
func (m Middleware) ActorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := m.actorID(r); ok {
			r = r.WithContext(ContextWithActor(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware guards HTTP routes with permission checks against the
// decision engine itself.
type Middleware struct {
	Checker *Checker
	Logger  *slog.Logger
}

// RequireAny admits the request when the acting user holds at least one
// of the given permissions. An empty permission list admits everyone.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := normalizeKeys(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.actorID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, perm := range required {
				granted, err := m.Checker.CheckUserPermission(r.Context(), userID, perm)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz require any", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if granted {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll admits the request only when the acting user holds every
// given permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := normalizeKeys(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.actorID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, perm := range required {
				granted, err := m.Checker.CheckUserPermission(r.Context(), userID, perm)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz require all", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if !granted {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) actorID(r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(ActorHeader))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		if m.Logger != nil {
			m.Logger.Warn("authz parse actor id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func normalizeKeys(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
