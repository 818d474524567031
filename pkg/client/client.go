// Package client talks to a running wheelhouse server over its HTTP API.
// Error responses are turned back into the tagged errors of errutils so
// callers can tell a refused upload from a failed store mutation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/auth"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/server"
)

// Client handles HTTP operations against a wheelhouse server.
type Client struct {
	baseURL   *url.URL
	client    *http.Client
	creds     *auth.BasicAuth
	userAgent string
}

// New creates a client for the server at baseURL. creds may be nil for
// the open listing endpoints.
func New(baseURL string, timeout time.Duration, creds *auth.BasicAuth) (*Client, error) {
	if baseURL == "" {
		return nil, errutils.ErrServerURLEmpty
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid server URL %q", errutils.ErrValidation, baseURL)
	}
	return &Client{
		baseURL:   u,
		client:    &http.Client{Timeout: timeout},
		creds:     creds,
		userAgent: "wheelhouse-client/1.0",
	}, nil
}

// Upload sends the artifact at artifactPath, stored as filename (its base
// name when empty), and returns the server's message.
func (c *Client) Upload(ctx context.Context, artifactPath, filename string) (string, error) {
	if filename == "" {
		filename = filepath.Base(artifactPath)
	}
	f, err := os.Open(artifactPath)
	if err != nil {
		return "", errutils.Wrapf(err, "failed to open artifact %s", artifactPath)
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(server.UploadField, filename)
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/packages", nil, pr)
	if err != nil {
		_ = pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out server.MessageResponse
	if err := c.do(req, "upload", &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Delete removes a package and returns the removed store entries.
func (c *Client) Delete(ctx context.Context, packageName string) (*server.DeleteResponse, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, "/packages/"+url.PathEscape(packageName), nil, nil)
	if err != nil {
		return nil, err
	}
	var out server.DeleteResponse
	if err := c.do(req, "delete", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reindex asks the server to rebuild the index.
func (c *Client) Reindex(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/packages/reindex", nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, "reindex", nil)
}

// List returns the simple index entries.
func (c *Client) List(ctx context.Context) ([]string, error) {
	return c.names(ctx, nil)
}

// Search returns the entries containing s, ignoring case.
func (c *Client) Search(ctx context.Context, s string) ([]string, error) {
	return c.names(ctx, url.Values{"search": {s}})
}

func (c *Client) names(ctx context.Context, query url.Values) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/packages", query, nil)
	if err != nil {
		return nil, err
	}
	out := []string{}
	if err := c.do(req, "list", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Login verifies the configured credentials and returns the user's role.
func (c *Client) Login(ctx context.Context) (auth.Role, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/user/login", nil, nil)
	if err != nil {
		return "", err
	}
	var out server.UserResponse
	if err := c.do(req, "login", &out); err != nil {
		return "", err
	}
	return out.Role, nil
}

// CheckHealth checks that the server answers.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, "health", nil)
}

func (c *Client) newRequest(ctx context.Context, method, p string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path, _ = url.JoinPath(c.baseURL.Path, p)
	u.RawPath = ""
	if query != nil {
		u.RawQuery = query.Encode()
	}
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.creds != nil {
		if err := c.creds.Apply(req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// do sends req and decodes a 2xx body into out, when non-nil.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return errutils.NewTransportError(op, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errutils.NewTransportError(op, "failed to read response", err)
	}
	logger.Debug("API response", logger.Fields{
		"op":         op,
		"status":     resp.StatusCode,
		"request_id": resp.Header.Get(server.RequestIDHeader),
	})

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: %v", errutils.ErrUnexpectedResponse, err)
		}
		return nil
	}
	return decodeError(op, resp.StatusCode, data)
}

// apiError is the union of the server's failure bodies.
type apiError struct {
	Detail              string   `json:"detail"`
	Kind                string   `json:"kind"`
	IndexStale          bool     `json:"index_stale"`
	Message             string   `json:"message"`
	MissingDependencies []string `json:"missing_dependencies"`
}

func decodeError(op string, status int, data []byte) error {
	var e apiError
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		e.Detail = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return errutils.ErrInvalidCredentials
	case status == http.StatusForbidden:
		return errutils.ErrForbidden
	case status == http.StatusNotFound && e.Detail == "User not found":
		return errutils.ErrUserNotFound
	case e.MissingDependencies != nil:
		return errutils.NewDependencyError(e.MissingDependencies)
	case e.IndexStale:
		return errutils.NewIndexRebuildError(op, e.Detail, nil)
	case e.Kind == string(errutils.KindTransport):
		return errutils.NewTransportError(op, e.Detail, nil)
	case e.Kind == string(errutils.KindInvalidArtifact) || e.Kind == string(errutils.KindMetadataUnreadable):
		return errutils.NewInvalidArtifactError(e.Detail, nil)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", errutils.ErrUnexpectedResponse, status, e.Detail)
	}
}
