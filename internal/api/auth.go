package api

import (
	"net/http"
	"strings"

	"fleetops/internal/auth"
)

// getPrincipal resolves the caller. A bearer token is verified with the
// configured verifier. Without one, dev mode trusts X-Operator and X-Role
// (default role from config) and other modes treat the caller as a viewer.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return s.Auth.Verify(strings.TrimSpace(authz[7:]))
	}
	if s.Auth.Mode != "dev" {
		return auth.Principal{Operator: "anonymous", Role: auth.RoleViewer}, nil
	}
	op := r.Header.Get("X-Operator")
	if op == "" {
		op = "dev"
	}
	role := strings.ToLower(r.Header.Get("X-Role"))
	if role == "" {
		role = s.Cfg.Auth.DefaultRole
	}
	switch role {
	case auth.RoleAdmin, auth.RolePlanner:
	default:
		role = auth.RoleViewer
	}
	return auth.Principal{Operator: op, Role: role}, nil
}

// authorize writes 401/403 and returns false unless allow accepts the caller.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, allow func(auth.Principal) bool, need string) (auth.Principal, bool) {
	p, err := s.getPrincipal(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fleetops"`)
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return p, false
	}
	if !allow(p) {
		writeProblem(w, http.StatusForbidden, "Forbidden", need+" required", r.URL.Path)
		return p, false
	}
	return p, true
}

func (s *Server) requirePlanner(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	return s.authorize(w, r, auth.Principal.CanPlan, "planner or admin")
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	return s.authorize(w, r, auth.Principal.IsAdmin, "admin")
}
