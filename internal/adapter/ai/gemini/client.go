// Package gemini implements the multimodal inference collaborator on top of
// the Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/miporis/compliance-evaluator/internal/config"
	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/observability"
	"github.com/miporis/compliance-evaluator/pkg/textx"
)

const maxBodySnippet = 512

// Client implements domain.Multimodal for one Gemini model.
type Client struct {
	cfg     config.Config
	model   string
	baseURL string
	hc      *http.Client
	up      *observability.Upstream
}

// New constructs a Gemini client for model.
func New(cfg config.Config, model string) *Client {
	base := strings.TrimRight(cfg.GeminiBaseURL, "/")
	return &Client{
		cfg:     cfg,
		model:   model,
		baseURL: base,
		hc: &http.Client{
			Timeout: 3 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "gemini " + r.Method + " generateContent"
				})),
		},
		up: observability.NewUpstream("gemini", base, 0),
	}
}

// Model returns the model this client calls.
func (c *Client) Model() string { return c.model }

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate sends the ordered parts as one user turn and returns the
// concatenated text of the first candidate. 429 and 5xx responses are
// retried with exponential backoff; other 4xx responses are not.
func (c *Client) Generate(ctx context.Context, parts []domain.Part) (string, error) {
	if c.cfg.GeminiAPIKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY missing", domain.ErrInvalidArgument)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no content parts", domain.ErrInvalidArgument)
	}
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: toParts(parts)}},
		GenerationConfig: generationConfig{Temperature: 0.2},
	})
	if err != nil {
		return "", fmt.Errorf("op=gemini.generate: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	lg := observability.LoggerFromContext(ctx)

	var out generateResponse
	var lastStatus int
	op := func() error {
		return c.up.Do(ctx, "generate", func(callCtx context.Context) error {
			req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("x-goog-api-key", c.cfg.GeminiAPIKey)
			resp, err := c.hc.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			lastStatus = resp.StatusCode
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				lg.Warn("ai provider rate limited", slog.String("provider", "gemini"), slog.String("model", c.model))
				return fmt.Errorf("generate status %d", resp.StatusCode)
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				lg.Warn("ai provider 4xx", slog.String("provider", "gemini"), slog.String("model", c.model),
					slog.Int("status", resp.StatusCode), slog.String("body", textx.Truncate(string(b), maxBodySnippet)))
				return backoff.Permanent(fmt.Errorf("generate status %d", resp.StatusCode))
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				lg.Error("ai provider non-2xx", slog.String("provider", "gemini"), slog.String("model", c.model),
					slog.Int("status", resp.StatusCode), slog.String("body", textx.Truncate(string(b), maxBodySnippet)))
				return fmt.Errorf("generate status %d", resp.StatusCode)
			}
			out = generateResponse{}
			if err := json.Unmarshal(b, &out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
			return nil
		})
	}

	maxElapsed, initial, maxInterval, mult := c.cfg.GetAIBackoffConfig()
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = mult
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return "", fmt.Errorf("op=gemini.generate: %w", classify(err, lastStatus))
	}

	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("op=gemini.generate: prompt blocked: %s", out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", errors.New("op=gemini.generate: empty candidates")
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("op=gemini.generate: empty text (finish reason %s)", out.Candidates[0].FinishReason)
	}
	return text, nil
}

func toParts(parts []domain.Part) []part {
	out := make([]part, 0, len(parts))
	for _, p := range parts {
		if len(p.Data) > 0 {
			out = append(out, part{InlineData: &inlineData{
				MIMEType: p.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			}})
			continue
		}
		out = append(out, part{Text: p.Text})
	}
	return out
}

func classify(err error, status int) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domain.ErrUpstreamRateLimit, err)
	default:
		return err
	}
}
