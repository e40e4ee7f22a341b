package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/api/idtoken"
)

// TokenSource mints an authorization header value for the animator
// service. Cloud Run deployments use IDTokenSource; tests inject a fake.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// IDTokenSource mints Google-signed ID tokens for a target audience.
type IDTokenSource struct {
	Audience string
}

func (s IDTokenSource) Token(ctx context.Context) (string, error) {
	ts, err := idtoken.NewTokenSource(ctx, s.Audience)
	if err != nil {
		return "", fmt.Errorf("id token source: %w", err)
	}
	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("id token: %w", err)
	}
	return tok.AccessToken, nil
}

// RenderClient submits validated scripts to the animator service and
// returns the signed URL of the rendered GLB.
type RenderClient struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// NewRenderClient builds a client for the animator at baseURL. tokens may
// be nil for unauthenticated local animators.
func NewRenderClient(baseURL string, tokens TokenSource) *RenderClient {
	return &RenderClient{
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type renderRequest struct {
	Script   string `json:"script"`
	Prompt   string `json:"prompt,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

type renderResponse struct {
	SignedURL string `json:"signed_url"`
	Error     string `json:"error"`
}

// Render blocks until the animator finishes or the request times out.
func (c *RenderClient) Render(ctx context.Context, threadID, prompt, scriptText string) (string, error) {
	body, err := json.Marshal(renderRequest{Script: scriptText, Prompt: prompt, ThreadID: threadID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("render response: %w", err)
	}

	var rr renderResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return "", fmt.Errorf("render service returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	// The animator reports render failures in the body, sometimes on a
	// 200. An error field always wins, even next to a signed URL.
	if rr.Error != "" {
		return "", fmt.Errorf("render failed: %s", rr.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("render service returned %d", resp.StatusCode)
	}
	if rr.SignedURL == "" {
		return "", fmt.Errorf("render succeeded but no signed URL returned")
	}
	return rr.SignedURL, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
