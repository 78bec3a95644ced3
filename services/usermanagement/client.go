// Package usermanagement is the HTTP client for the external user-management
// service backing the approval workflow.
package usermanagement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/kudos-portal/models"
	"github.com/upb/kudos-portal/services"
	"github.com/upb/kudos-portal/session"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

// Config configures the user-management client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the user-management API, forwarding the caller's bearer token
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new user-management client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// GetPendingUsers lists users awaiting approval
func (c *Client) GetPendingUsers(ctx context.Context) ([]*models.Identity, error) {
	var users []*models.Identity
	if err := c.do(ctx, http.MethodGet, "/api/users/pending", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ApproveUser approves a pending user with their requested role
func (c *Client) ApproveUser(ctx context.Context, userID string) (*models.Identity, error) {
	return c.mutate(ctx, http.MethodPatch, userPath(userID, "approve"), nil)
}

// ApproveUserWithRole approves a pending user and assigns role
func (c *Client) ApproveUserWithRole(ctx context.Context, userID string, role models.Role) (*models.Identity, error) {
	return c.mutate(ctx, http.MethodPatch, userPath(userID, "approve-with-role"), map[string]models.Role{"role": role})
}

// RejectUser rejects a pending user
func (c *Client) RejectUser(ctx context.Context, userID string) (*models.Identity, error) {
	return c.mutate(ctx, http.MethodPatch, userPath(userID, "reject"), nil)
}

// UpdateUser applies a partial update
func (c *Client) UpdateUser(ctx context.Context, userID string, update models.UserUpdate) (*models.Identity, error) {
	return c.mutate(ctx, http.MethodPatch, userPath(userID, ""), update)
}

func userPath(userID, action string) string {
	p := "/api/users/" + url.PathEscape(userID)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) mutate(ctx context.Context, method, path string, body interface{}) (*models.Identity, error) {
	var user models.Identity
	if err := c.do(ctx, method, path, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do sends one request and decodes the envelope's data into out. HTTP statuses
// with a domain meaning come back as typed DomainErrors; everything else is a
// plain wrapped error for the caller to normalize.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := session.TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := chimiddleware.GetReqID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope models.Envelope[json.RawMessage]
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, envelope.Message)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if envelope.Status != models.EnvelopeStatusSuccess {
		return fmt.Errorf("user service responded %q: %s", envelope.Status, envelope.Message)
	}
	if out == nil || envelope.Data == nil {
		return nil
	}
	if err := json.Unmarshal(*envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}

	c.logger.Debug("user service call succeeded",
		zap.String("method", method),
		zap.String("path", path))
	return nil
}

// statusError maps a status to its sentinel. A backend message replaces the
// sentinel's text while keeping the sentinel in the error chain.
func statusError(status int, message string) error {
	var sentinel *services.DomainError
	switch status {
	case http.StatusNotFound:
		sentinel = services.ErrUserNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = services.ErrInvalidInput
	case http.StatusUnauthorized:
		sentinel = services.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = services.ErrForbidden
	case http.StatusConflict:
		sentinel = services.ErrAlreadyProcessed
	default:
		return fmt.Errorf("user service returned status %d: %s", status, message)
	}

	if message == "" || message == sentinel.Message {
		return sentinel
	}
	return services.NewDomainError(sentinel.Type, message, sentinel)
}
