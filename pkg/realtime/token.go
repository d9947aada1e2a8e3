package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultModel is used when the token endpoint omits one.
	DefaultModel = "gpt-realtime-mini"

	// DefaultVoice is used when the token endpoint omits one.
	DefaultVoice = "cedar"

	// DefaultTimeLimit is used when the token endpoint omits one.
	DefaultTimeLimit = 30 * time.Second
)

// Token is a connection credential plus the session parameters the backend
// configures per deployment.
type Token struct {
	APIKey    string
	Model     string
	Voice     string
	TimeLimit time.Duration
}

// TokenSource issues realtime connection credentials. A failure here is
// fatal for session start.
type TokenSource interface {
	Token(ctx context.Context) (*Token, error)
}

// HTTPTokenSource fetches tokens from the application backend's
// token-issuing endpoint.
type HTTPTokenSource struct {
	// Endpoint is the full URL of the token endpoint.
	Endpoint string

	// Client defaults to a client with a 10 second timeout.
	Client *http.Client
}

type tokenResponse struct {
	APIKey           string `json:"apiKey"`
	Model            string `json:"model"`
	TimeLimitSeconds int    `json:"interviewTimeLimit"`
	Voice            string `json:"voice"`
	Error            string `json:"error"`
}

// Token requests a credential. Any transport error, non-2xx status, or
// missing api key is returned as an error.
func (s *HTTPTokenSource) Token(ctx context.Context) (*Token, error) {
	if strings.TrimSpace(s.Endpoint) == "" {
		return nil, fmt.Errorf("token endpoint must not be empty")
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if body.Error != "" {
			return nil, fmt.Errorf("token endpoint: %s", body.Error)
		}
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}
	if strings.TrimSpace(body.APIKey) == "" {
		return nil, fmt.Errorf("token response missing api key")
	}

	token := &Token{
		APIKey:    body.APIKey,
		Model:     strings.TrimSpace(body.Model),
		Voice:     strings.TrimSpace(body.Voice),
		TimeLimit: time.Duration(body.TimeLimitSeconds) * time.Second,
	}
	if token.Model == "" {
		token.Model = DefaultModel
	}
	if token.Voice == "" {
		token.Voice = DefaultVoice
	}
	if token.TimeLimit <= 0 {
		token.TimeLimit = DefaultTimeLimit
	}
	return token, nil
}

// StaticTokenSource returns a fixed token. Useful for development setups
// where the api key is supplied directly.
type StaticTokenSource struct {
	Value Token
}

func (s *StaticTokenSource) Token(ctx context.Context) (*Token, error) {
	if strings.TrimSpace(s.Value.APIKey) == "" {
		return nil, fmt.Errorf("static token missing api key")
	}
	token := s.Value
	if token.Model == "" {
		token.Model = DefaultModel
	}
	if token.Voice == "" {
		token.Voice = DefaultVoice
	}
	if token.TimeLimit <= 0 {
		token.TimeLimit = DefaultTimeLimit
	}
	return &token, nil
}
