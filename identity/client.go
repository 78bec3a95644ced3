// Package identity verifies session tokens against the external identity
// service. It is the only source of truth for who the caller is.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/kudos-portal/models"
	"go.uber.org/zap"
)

const (
	mePath = "/api/auth/me"

	// maxBodyBytes bounds how much of a verification response is read
	maxBodyBytes = 1 << 20
)

var (
	// ErrEmptyToken is returned when Verify is called without a token
	ErrEmptyToken = errors.New("empty token")

	// ErrTransport is returned when the identity service cannot be reached
	ErrTransport = errors.New("identity service unreachable")

	// ErrUnexpectedStatus is returned for non-2xx responses
	ErrUnexpectedStatus = errors.New("unexpected identity response status")

	// ErrUnsuccessful is returned when the envelope status is not success
	ErrUnsuccessful = errors.New("identity response not successful")

	// ErrMalformedPayload is returned when the body cannot be decoded or carries no usable identity
	ErrMalformedPayload = errors.New("malformed identity payload")
)

// Reason maps a verification error to a short label for logs and metrics
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrEmptyToken):
		return "empty_token"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrUnexpectedStatus):
		return "status"
	case errors.Is(err, ErrUnsuccessful):
		return "unsuccessful"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	default:
		return "unknown"
	}
}

// Config configures the identity client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the identity service's current-user endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new identity client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Verify asks the identity service who owns token. Every call goes to the
// network; responses are never cached. Cancelling ctx aborts the call.
func (c *Client) Verify(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+mePath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.logger.Debug("identity verification canceled", zap.Error(ctxErr))
			return nil, ctxErr
		}
		c.logger.Warn("identity service unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Info("identity verification rejected",
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Warn("failed to read identity response", zap.Error(err))
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	var envelope models.Envelope[models.Identity]
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.Warn("failed to decode identity response", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if envelope.Status != models.EnvelopeStatusSuccess {
		c.logger.Info("identity verification unsuccessful",
			zap.String("status", envelope.Status),
			zap.String("message", envelope.Message))
		return nil, fmt.Errorf("%w: status %q", ErrUnsuccessful, envelope.Status)
	}

	if envelope.Data == nil || envelope.Data.ID == "" {
		c.logger.Warn("identity response carried no user")
		return nil, fmt.Errorf("%w: missing user id", ErrMalformedPayload)
	}

	return envelope.Data, nil
}
