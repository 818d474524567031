package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/auth"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

const maxJSONBody = 1 << 20

// UserResponse describes a user without credentials.
type UserResponse struct {
	Username string    `json:"username"`
	Role     auth.Role `json:"role"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type changeRoleRequest struct {
	Username string `json:"username"`
	NewRole  string `json:"new_role"`
}

type changePasswordRequest struct {
	Username    string `json:"username"`
	NewPassword string `json:"new_password"`
}

type deleteUserRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, UserResponse{Username: p.Username, Role: p.Role})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.List()
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserResponse{Username: u.Username, Role: u.Role})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role := auth.DefaultRole
	if req.Role != "" {
		role = auth.Role(req.Role)
	}
	if err := s.deps.Users.Add(req.Username, req.Password, role); err != nil {
		writeUserError(w, r, err)
		return
	}
	requestLog(r.Context()).Info("Registered user", logger.Fields{"username": req.Username, "role": string(role)})
	writeJSON(w, http.StatusCreated, UserResponse{Username: req.Username, Role: role})
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Users.SetRole(req.Username, auth.Role(req.NewRole)); err != nil {
		writeUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Role for user '%s' changed to '%s'", req.Username, req.NewRole),
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Users.SetPassword(req.Username, req.NewPassword); err != nil {
		writeUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Password for user '%s' changed successfully", req.Username),
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Users.Remove(req.Username); err != nil {
		writeUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("User '%s' deleted successfully", req.Username),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errutils.ErrUserNotFound):
		writeDetail(w, http.StatusNotFound, "User not found")
	case errors.Is(err, errutils.ErrUserExists):
		writeDetail(w, http.StatusBadRequest, "Username already registered")
	case errors.Is(err, errutils.ErrInvalidRole):
		writeDetail(w, http.StatusBadRequest, "New role must be either 'admin' or 'user'")
	case errors.Is(err, errutils.ErrValidation):
		writeDetail(w, http.StatusBadRequest, err.Error())
	default:
		requestLog(r.Context()).Error("User store failed", logger.Fields{"error": err.Error()})
		writeDetail(w, http.StatusInternalServerError, "user store unavailable")
	}
}
