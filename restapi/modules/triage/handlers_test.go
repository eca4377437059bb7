package triage

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/triage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// newApp serves a real engine over a store holding one orphan informational finding with a
// low exploit score, which the default rules dismiss.
func newApp(t *testing.T) (*fiber.App, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	f := model.NewFinding("f1", "missing-test", "uid-f1")
	f.Severity = model.SeverityInfo
	f.Active = true
	low := 0.01
	f.EPSSScore = &low
	require.NoError(t, st.SaveProjection(context.Background(), f, ""))

	engine := triage.NewEngine(st, nil, nil, nil)
	app := fiber.New()
	app.Post("/apply", PostApply(engine))
	app.Get("/stats", GetStats(engine))
	return app, st
}

func TestApplyDryRun(t *testing.T) {
	app, st := newApp(t)

	status, body := do(t, app, fiber.MethodPost, "/apply", `{"dry_run": true}`)
	assert.Equal(t, fiber.StatusOK, status)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["dismissed"])
	assert.Equal(t, true, stats["dry_run"])

	f, _, err := st.GetFinding(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionPending, f.AutoTriageDecision)
}

func TestApplyThenStats(t *testing.T) {
	app, _ := newApp(t)

	status, _ := do(t, app, fiber.MethodPost, "/apply", "")
	require.Equal(t, fiber.StatusOK, status)

	status, body := do(t, app, fiber.MethodGet, "/stats", "")
	assert.Equal(t, fiber.StatusOK, status)
	stats := body["statistics"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total"])
	dismissed := stats["by_decision"].(map[string]interface{})["DISMISS"].(map[string]interface{})
	assert.Equal(t, float64(100), dismissed["percentage"])
}

func TestApplyBadBody(t *testing.T) {
	app, _ := newApp(t)
	status, _ := do(t, app, fiber.MethodPost, "/apply", `{"finding_ids": "f1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
