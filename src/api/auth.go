// Package api holds the one HTTP call the telemetry channel depends on:
// exchanging login credentials for the bearer token that authenticates the
// WebSocket handshake.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/outletwatch/telemetry/src/credstore"
)

// AuthClient logs a user in against the backend API.
type AuthClient struct {
	base    string
	client  *fasthttp.Client
	timeout time.Duration
	logger  zerolog.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// NewAuthClient creates a client for the given API base URL.
func NewAuthClient(base string, logger zerolog.Logger) *AuthClient {
	return &AuthClient{
		base:    base,
		client:  &fasthttp.Client{},
		timeout: 10 * time.Second,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Login exchanges credentials for a bearer token.
func (a *AuthClient) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", err
	}

	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.base + "/auth/login")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := a.client.DoTimeout(req, resp, timeout); err != nil {
		return "", err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("api: login returned %d", resp.StatusCode())
	}

	var out loginResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("api: empty token in login response")
	}
	return out.Token, nil
}

// SeedToken logs in and writes the token under the given store key, making
// it available to the channel at open time.
func (a *AuthClient) SeedToken(ctx context.Context, store credstore.Store, key, email, password string) error {
	token, err := a.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, key, token); err != nil {
		return err
	}
	a.logger.Info().Str("key", key).Msg("bearer token seeded")
	return nil
}
