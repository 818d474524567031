package server

import (
	"net/http"
)

// Handler returns the API routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Packages
	mux.Handle("POST /packages", s.requireAdmin(s.handleUpload))
	mux.Handle("POST /packages/upload", s.requireAdmin(s.handleUpload))
	mux.Handle("POST /packages/reindex", s.requireAdmin(s.handleReindex))
	mux.Handle("DELETE /packages/{name}", s.requireAdmin(s.handleDelete))
	mux.HandleFunc("GET /packages", s.handleList)
	mux.HandleFunc("GET /packages/list", s.handleList)
	mux.HandleFunc("GET /packages/search", s.handleSearch)

	// Users
	mux.Handle("POST /user/login", s.requireUser(s.handleLogin))
	if s.deps.Users != nil {
		mux.Handle("GET /user/users", s.requireAdmin(s.handleListUsers))
		mux.Handle("POST /user/register", s.requireAdmin(s.handleRegister))
		mux.Handle("PUT /user/change-role", s.requireAdmin(s.handleChangeRole))
		mux.Handle("PUT /user/change-password", s.requireAdmin(s.handleChangePassword))
		mux.Handle("DELETE /user/delete", s.requireAdmin(s.handleDeleteUser))
	}

	return requestID(logRequests(cors(s.cfg.CORSOrigins, recoverPanics(mux))))
}
