// Package auth verifies the credentials of API callers and maps them to a
// role. Uploads and deletes require the admin role.
//
//go:generate mockgen -destination=./mocks/auth.go . Authenticator
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// Role is the permission level of a user.
type Role string

// Roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// DefaultRole is assigned to new users unless another role is requested.
const DefaultRole = RoleUser

// Authenticator verifies a username/password pair and returns the user's
// role. Bad credentials yield errutils.ErrInvalidCredentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (Role, error)
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errutils.ErrInvalidRole, s)
	}
}

// IsAdmin reports whether r grants store mutations.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// FromRequest extracts Basic Authentication credentials from req.
func FromRequest(req *http.Request) (BasicAuth, bool) {
	user, pass, ok := req.BasicAuth()
	if !ok {
		return BasicAuth{}, false
	}
	return BasicAuth{Username: user, Password: pass}, true
}
