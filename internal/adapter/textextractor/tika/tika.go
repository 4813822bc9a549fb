// Package tika provides Apache Tika integration for raw document text.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/miporis/compliance-evaluator/internal/observability"
	"github.com/miporis/compliance-evaluator/pkg/textx"
)

const maxErrorSnippet = 512

// Client is a minimal Apache Tika HTTP client. It performs PUT /tika with
// Accept: text/plain to retrieve extracted text.
type Client struct {
	baseURL    string
	httpClient *http.Client
	up         *observability.Upstream
}

// New constructs a Tika client.
func New(baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:9998"
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		up: observability.NewUpstream("tika", baseURL, 60*time.Second),
	}
}

// ExtractText sends the document bytes to Tika and returns normalized text
// with paragraph breaks preserved.
func (c *Client) ExtractText(ctx context.Context, fileName string, data []byte) (string, error) {
	var result string
	err := c.up.Do(ctx, "extract", func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPut, c.baseURL+"/tika", bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/plain")
		if ct := contentTypeFromExt(filepath.Ext(fileName)); ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("tika status %d: %s", resp.StatusCode, textx.Truncate(string(b), maxErrorSnippet))
		}
		result = textx.NormalizeLines(string(b))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("op=tika.extract: %w", err)
	}
	return result, nil
}

// Ping checks that the Tika server answers GET /tika.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tika", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tika status %d", resp.StatusCode)
	}
	return nil
}

func contentTypeFromExt(ext string) string {
	switch ext = strings.ToLower(ext); ext {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	default:
		if ext != "" {
			return mime.TypeByExtension(ext)
		}
	}
	return ""
}
