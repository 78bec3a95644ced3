package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/kudos-portal/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginClient exchanges credentials for a session token at the backend
type LoginClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLoginClient creates a login client for the backend at baseURL
func NewLoginClient(baseURL string, timeout time.Duration) *LoginClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &LoginClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Login posts the credentials and returns the issued token and user.
// Rejected credentials map to ErrInvalidCredentials; a 403 keeps the backend
// message (for example an account still awaiting approval). Blank credentials
// fail with ErrMissingLogin without contacting the backend.
func (c *LoginClient) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrMissingLogin
	}

	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, WrapInternal("encode login request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return nil, WrapInternal("create login request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ErrLoginUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, ErrLoginUnavailable.Wrap(err)
	}

	var envelope models.Envelope[models.LoginResult]
	decodeErr := json.Unmarshal(body, &envelope)

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusBadRequest:
		return nil, ErrInvalidCredentials
	case resp.StatusCode == http.StatusForbidden:
		msg := envelope.Message
		if msg == "" {
			msg = "Your account cannot sign in yet"
		}
		return nil, NewDomainError(ErrorTypeForbidden, msg, nil)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, ErrLoginUnavailable.Wrap(fmt.Errorf("login returned status %d", resp.StatusCode))
	}

	if decodeErr != nil {
		return nil, ErrLoginUnavailable.Wrap(fmt.Errorf("decode login response: %w", decodeErr))
	}
	if !envelope.Succeeded() || envelope.Data.Token == "" {
		return nil, ErrInvalidCredentials
	}

	return envelope.Data, nil
}
