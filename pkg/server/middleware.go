package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/auth"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// RequestIDHeader carries the per-request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	loggerKey
	principalKey
)

type principal struct {
	Username string
	Role     auth.Role
}

// RequestIDFrom returns the ID assigned to the request carried by ctx.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestLog returns the logger bound to the request ID of ctx.
func requestLog(ctx context.Context) *logger.Entry {
	if l, ok := ctx.Value(loggerKey).(*logger.Entry); ok {
		return l
	}
	return logger.With(logger.Fields{"request_id": RequestIDFrom(ctx)})
}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey).(principal)
	return p, ok
}

// requestID keeps a client supplied ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = context.WithValue(ctx, loggerKey, logger.With(logger.Fields{"request_id": id}))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		requestLog(r.Context()).Debug("HTTP request", logger.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	})
}

// cors answers preflight requests and sets the CORS headers for allowed
// origins. "*" allows every origin.
func cors(origins []string, next http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		switch {
		case origin != "" && (allowAll || slices.Contains(origins, origin)):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		case origin == "" && allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, "+RequestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				requestLog(r.Context()).Error("Handler panicked", logger.Fields{"panic": v})
				writeDetail(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireUser authenticates the request with HTTP basic credentials.
func (s *Server) requireUser(h http.HandlerFunc) http.Handler {
	return s.authenticated(false, h)
}

// requireAdmin authenticates the request and demands the admin role.
func (s *Server) requireAdmin(h http.HandlerFunc) http.Handler {
	return s.authenticated(true, h)
}

func (s *Server) authenticated(admin bool, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, ok := auth.FromRequest(r)
		if !ok {
			unauthorized(w)
			return
		}
		role, err := s.deps.Auth.Authenticate(r.Context(), creds.Username, creds.Password)
		if err != nil {
			if errors.Is(err, errutils.ErrInvalidCredentials) {
				unauthorized(w)
				return
			}
			requestLog(r.Context()).Error("Authentication failed", logger.Fields{"error": err.Error()})
			writeDetail(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		if admin && !role.IsAdmin() {
			writeDetail(w, http.StatusForbidden, "Forbidden")
			return
		}
		requestLog(r.Context()).Debug("Authenticated request", logger.Fields{"user": creds.Username, "role": string(role)})
		ctx := context.WithValue(r.Context(), principalKey, principal{Username: creds.Username, Role: role})
		h(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="wheelhouse", charset="UTF-8"`)
	writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
}
