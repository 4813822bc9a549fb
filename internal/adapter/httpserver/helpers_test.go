package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	httpserver "github.com/miporis/compliance-evaluator/internal/adapter/httpserver"
	"github.com/miporis/compliance-evaluator/internal/config"
)

type fixture struct {
	eval    *mockEvaluator
	catalog *mockCatalog
	chat    *mockChatter
	srv     *httpserver.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{eval: &mockEvaluator{}, catalog: &mockCatalog{}, chat: &mockChatter{}}
	cfg := config.Config{MaxUploadMB: 1, MaxFiles: 3}
	f.srv = httpserver.NewServer(cfg, f.eval, f.catalog, f.chat)
	t.Cleanup(func() {
		f.eval.AssertExpectations(t)
		f.catalog.AssertExpectations(t)
		f.chat.AssertExpectations(t)
	})
	return f
}

type filePart struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

type envelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rw *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &env))
	return env
}

func decodeMap(t *testing.T, rw *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &m))
	return m
}

// withURLParams attaches chi route params to r.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
