package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/miporis/compliance-evaluator/internal/observability"
	"github.com/miporis/compliance-evaluator/pkg/textx"
)

// UnstructuredPartitioner partitions documents with the Unstructured
// general API and keeps table HTML.
type UnstructuredPartitioner struct {
	url    string
	apiKey string
	hc     *http.Client
	up     *observability.Upstream
}

// NewUnstructured constructs a partitioner for the API at url, e.g.
// https://api.unstructured.io/general/v0/general.
func NewUnstructured(url, apiKey string) *UnstructuredPartitioner {
	return &UnstructuredPartitioner{
		url:    url,
		apiKey: apiKey,
		hc: &http.Client{
			Timeout:   3 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		up: observability.NewUpstream("unstructured", url, 0),
	}
}

type unstructuredElement struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Metadata struct {
		PageNumber int    `json:"page_number"`
		TextAsHTML string `json:"text_as_html"`
	} `json:"metadata"`
}

// Partition implements Partitioner.
func (u *UnstructuredPartitioner) Partition(ctx context.Context, name string, data []byte) ([]Element, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	_ = mw.WriteField("strategy", "auto")
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var raw []unstructuredElement
	err = u.up.Do(ctx, "partition", func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, u.url, bytes.NewReader(body.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Accept", "application/json")
		if u.apiKey != "" {
			req.Header.Set("unstructured-api-key", u.apiKey)
		}
		resp, err := u.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unstructured status %d: %s", resp.StatusCode, textx.Truncate(string(b), 512))
		}
		return json.Unmarshal(b, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("op=unstructured.partition: %w", err)
	}

	out := make([]Element, 0, len(raw))
	for _, e := range raw {
		page := e.Metadata.PageNumber
		if page == 0 {
			page = 1
		}
		out = append(out, Element{Category: e.Type, Text: e.Text, HTML: e.Metadata.TextAsHTML, Page: page})
	}
	return out, nil
}

// Ping reports whether the API host answers at all.
func (u *UnstructuredPartitioner) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(u.url, "/general/v0/general")+"/healthcheck", nil)
	if err != nil {
		return err
	}
	resp, err := u.hc.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("unstructured status %d", resp.StatusCode)
	}
	return nil
}
