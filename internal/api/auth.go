package api

import (
    "net/http"
    "strings"

    "mdvrp/internal/auth"
)

type Principal struct {
	Subject string
	Role    string // admin, user; empty when anonymous
}

// getPrincipal extracts the caller from the bearer token.
// In dev mode a request without a token falls back to the X-Role header,
// defaulting to admin.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return Principal{Subject: pr.Subject, Role: pr.Role}
        }
        return Principal{}
    }
    if s.Auth == nil || s.Auth.Mode == "dev" {
        role := r.Header.Get("X-Role")
        if role == "" {
            role = auth.RoleAdmin
        }
        return Principal{Subject: "dev", Role: strings.ToLower(role)}
    }
    return Principal{}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == auth.RoleAdmin }

func (s *Server) requireAdmin(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        p := s.getPrincipal(r)
        if p.Role == "" {
            w.Header().Set("WWW-Authenticate", `Bearer realm="mdvrp"`)
            writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required", r.URL.Path)
            return
        }
        if !p.IsAdmin() {
            writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}
