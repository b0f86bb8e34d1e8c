package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/assistant"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/translate"
)

type fakeRunner struct {
	err   error
	noRun bool
}

func (f fakeRunner) Run(ctx context.Context, cfg pipeline.StageConfig) (*pipeline.PipelineRun, error) {
	if f.noRun {
		return nil, f.err
	}
	return &pipeline.PipelineRun{RunID: "run-1", Status: pipeline.RunSucceeded, Results: []pipeline.StageResult{}}, f.err
}

type fakeAsker struct{ err error }

func (f fakeAsker) Ask(ctx context.Context, q string) (*assistant.Answer, error) {
	if strings.TrimSpace(q) == "" {
		return nil, assistant.ErrEmptyQuestion
	}
	if f.err != nil {
		return nil, f.err
	}
	return &assistant.Answer{
		Action: translate.ActionQuery,
		Reply:  "Top phones",
		SQL:    "SELECT 1",
		Data:   []map[string]string{{"brand": "Apple", "model": "iPhone 14", "profit": "100"}},
	}, nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(ctx context.Context, q string) translate.Response {
	return translate.Response{Action: translate.ActionChat, Reply: "hi"}
}

func newTestRouter(t *testing.T, runner fakeRunner, asker fakeAsker, token string) (http.Handler, runlog.Store) {
	t.Helper()
	store, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	runs := runlog.NewObjectStore(store, "meta", "logs/")

	h := NewRouter(observability.NopLogger(), Services{
		Runner:     runner,
		Stages:     func() pipeline.StageConfig { return pipeline.StageConfig{} },
		Asker:      asker,
		Translator: fakeTranslator{},
		Runs:       runs,
	}, RouterConfig{RequestTimeout: 5 * time.Second, AuthToken: token, AllowedOrigins: []string{"*"}})
	return h, runs
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	h, _ := newTestRouter(t, fakeRunner{}, fakeAsker{}, "")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready", "", nil).Code)
}

func TestInvoke(t *testing.T) {
	tests := []struct {
		name     string
		runner   fakeRunner
		asker    fakeAsker
		body     string
		wantCode int
		wantKey  string
	}{
		{"etl", fakeRunner{}, fakeAsker{}, `{"action":"etl"}`, http.StatusOK, "result"},
		{"etl interrupted still returns run", fakeRunner{err: context.Canceled}, fakeAsker{}, `{"action":"etl"}`, http.StatusOK, "result"},
		{"etl without run", fakeRunner{noRun: true, err: errors.New("boom")}, fakeAsker{}, `{"action":"etl"}`, http.StatusInternalServerError, "error"},
		{"query", fakeRunner{}, fakeAsker{}, `{"action":"query","user_message":"top phones"}`, http.StatusOK, "data"},
		{"query internal error", fakeRunner{}, fakeAsker{err: errors.New("boom")}, `{"action":"query","user_message":"x"}`, http.StatusInternalServerError, "error"},
		{"query without message", fakeRunner{}, fakeAsker{}, `{"action":"query"}`, http.StatusBadRequest, "reply"},
		{"unknown action", fakeRunner{}, fakeAsker{}, `{"action":"drop"}`, http.StatusBadRequest, "reply"},
		{"bad body", fakeRunner{}, fakeAsker{}, `{`, http.StatusBadRequest, "reply"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestRouter(t, tt.runner, tt.asker, "")
			rec := do(t, h, http.MethodPost, "/invoke", tt.body, nil)
			assert.Equal(t, tt.wantCode, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body, tt.wantKey)
		})
	}
}

func TestQueryRoute(t *testing.T) {
	h, _ := newTestRouter(t, fakeRunner{}, fakeAsker{}, "")

	rec := do(t, h, http.MethodPost, "/api/query", `{"user_message":"top phones"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Reply string              `json:"reply"`
		Data  []map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Top phones", body.Reply)
	assert.Len(t, body.Data, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/query", `{"user_message":" "}`, nil).Code)
}

func TestRunRoutes(t *testing.T) {
	ctx := context.Background()
	h, runs := newTestRouter(t, fakeRunner{}, fakeAsker{}, "")
	require.NoError(t, runs.SaveRun(ctx, runlog.Run{RunID: "run-7", Status: "failed", StartedAt: time.Now().UTC()}))

	rec := do(t, h, http.MethodGet, "/api/runs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-7")

	rec = do(t, h, http.MethodGet, "/api/runs/run-7", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":[]`)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/runs/missing", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/runs?limit=x", "", nil).Code)
}

func TestAuthToken(t *testing.T) {
	h, _ := newTestRouter(t, fakeRunner{}, fakeAsker{}, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/etl", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/etl", "", map[string]string{"Authorization": "Bearer wrong"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/etl", "", map[string]string{"Authorization": "Bearer secret"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "", nil).Code)
}

func TestConnectMount(t *testing.T) {
	h, _ := newTestRouter(t, fakeRunner{}, fakeAsker{}, "")
	rec := do(t, h, http.MethodPost, "/lakehouse.v1.LakehouseService/Translate", `{"question":"hello"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"reply":"hi"`)
}
