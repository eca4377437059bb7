package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/pdvd-enricher/config"
	"github.com/ortelius/pdvd-enricher/internal/services"
	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	st := store.NewMemoryStore()
	repo := model.NewRepository(7, "acme/api")
	require.NoError(t, st.SaveRepository(context.Background(), repo, nil, nil))

	app, err := NewFiberApp(services.Build(config.Default(), st, nil, services.Options{}, nil))
	require.NoError(t, err)
	return app
}

func TestHealth(t *testing.T) {
	resp, err := newApp(t).Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy"}`, string(body))
}

func TestGraphQLRoute(t *testing.T) {
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/graphql",
		strings.NewReader(`{"query": "{ repositories { full_name } }"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := newApp(t).Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Data struct {
			Repositories []map[string]string `json:"repositories"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []map[string]string{{"full_name": "acme/api"}}, out.Data.Repositories)
}

func TestSyncRoutesNeedGitHub(t *testing.T) {
	resp, err := newApp(t).Test(httptest.NewRequest(fiber.MethodPost, "/api/v1/sync/alerts", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTriageStatsRoute(t *testing.T) {
	resp, err := newApp(t).Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/triage/stats", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
