package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opensource-finance/spiritx/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxRetries = 2

var errEmptyReply = errors.New("assistant returned no text")

// Gemini calls the Gemini generateContent REST endpoint.
type Gemini struct {
	client   *http.Client
	endpoint string
	model    string
	apiKey   string
	backOff  func() backoff.BackOff
}

// NewGemini creates a Gemini assistant from configuration.
func NewGemini(cfg domain.AssistantConfig) *Gemini {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gemini{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		backOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Reply sends message with the system prompt and returns the first candidate's text.
// Rate limiting and server errors are retried with exponential backoff.
func (g *Gemini) Reply(ctx context.Context, system, message string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: message}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", g.endpoint, g.model)

	var text string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return fmt.Errorf("assistant returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("assistant returned %d", resp.StatusCode))
		}

		var out geminiResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		text = firstText(out)
		if text == "" {
			return backoff.Permanent(errEmptyReply)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(g.backOff(), maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return text, nil
}

func firstText(r geminiResponse) string {
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				return t
			}
		}
	}
	return ""
}
