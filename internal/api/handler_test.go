package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/trade-enricher/internal/enrich"
	"github.com/Checker-Finance/trade-enricher/internal/registry"
	"github.com/Checker-Finance/trade-enricher/pkg/model"
)

// --- Test Helpers ---

type stubStore struct {
	mu   sync.Mutex
	runs map[string]model.RunSummary
	ops  []model.ProductOpEvent
}

func (s *stubStore) SaveRunSummary(ctx context.Context, summary model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = map[string]model.RunSummary{}
	}
	s.runs[summary.RunID] = summary
	return nil
}

func (s *stubStore) GetRunSummary(ctx context.Context, runID string) (*model.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary, ok := s.runs[runID]; ok {
		return &summary, nil
	}
	return nil, nil
}

func (s *stubStore) RecordProductOp(ctx context.Context, op model.ProductOpEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
	return nil
}

func (s *stubStore) savedRuns() map[string]model.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.RunSummary, len(s.runs))
	for k, v := range s.runs {
		out[k] = v
	}
	return out
}

func newTestApp(st RunStore) (*fiber.App, *registry.Registry) {
	reg := registry.New(zap.NewNop())
	pipeline := enrich.NewPipeline(reg, zap.NewNop(), 0)
	app := fiber.New()
	h := &Handler{
		Logger:   zap.NewNop(),
		Registry: reg,
		Pipeline: pipeline,
		Store:    st,
	}
	RegisterRoutes(app, h)
	return app, reg
}

func postCSV(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// --- Product endpoints ---

func TestInitProducts_Success(t *testing.T) {
	app, reg := newTestApp(nil)

	resp := postCSV(t, app, "/api/v1/product/init", "productId,productName\n1,Widget\n2,Gadget\n")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result InitResult
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 2, result.Entries)
	assert.Equal(t, 2, reg.Size())
}

func TestInitProducts_BadPayload(t *testing.T) {
	app, reg := newTestApp(nil)
	reg.Replace([]model.ProductRow{{ID: "1", Name: "Kept"}})

	resp := postCSV(t, app, "/api/v1/product/init", "productId,productName\n1,Widget\nbroken\n")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, CodeCSVProcessing, errResp.Code)

	// Previous mapping stays authoritative
	name, ok := reg.Lookup("1")
	assert.True(t, ok)
	assert.Equal(t, "Kept", name)
}

func TestUpdateProducts_Counts(t *testing.T) {
	app, reg := newTestApp(nil)
	reg.Replace([]model.ProductRow{{ID: "1", Name: "Widget"}})

	resp := postCSV(t, app, "/api/v1/product/update", "productId,productName\n1,Widget v2\n3,Sprocket\n")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result UpdateResult
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Updated)

	name, _ := reg.Lookup("1")
	assert.Equal(t, "Widget v2", name)
}

func TestUpdateProducts_BadPayloadLeavesRegistryUntouched(t *testing.T) {
	app, reg := newTestApp(nil)

	resp := postCSV(t, app, "/api/v1/product/update", "productId,productName\n9,New\noops\n")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	_, ok := reg.Lookup("9")
	assert.False(t, ok)
}

func TestProductOps_Audited(t *testing.T) {
	st := &stubStore{}
	app, _ := newTestApp(st)

	postCSV(t, app, "/api/v1/product/init", "productId,productName\n1,Widget\n")
	postCSV(t, app, "/api/v1/product/update", "productId,productName\n2,Gadget\n")

	require.Len(t, st.ops, 2)
	assert.Equal(t, "replace", st.ops[0].Operation)
	assert.Equal(t, 1, st.ops[0].Accepted)
	assert.Equal(t, "upsert", st.ops[1].Operation)
	assert.Equal(t, 1, st.ops[1].Added)
}

// --- Enrich endpoint ---

func TestEnrich_EndToEnd(t *testing.T) {
	app, reg := newTestApp(nil)
	reg.Replace([]model.ProductRow{{ID: "1", Name: "Widget"}})

	trades := "date,productId,currency,price\n" +
		"20230101,1,USD,10.50\n" +
		"20230230,1,USD,5.00\n"

	resp := postCSV(t, app, "/api/v1/enrich", trades)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "date,productName,currency,price\n20230101,Widget,USD,10.5\n", string(body))
}

func TestEnrich_UnmappedID(t *testing.T) {
	app, _ := newTestApp(nil)

	trades := "date,productId,currency,price\n20230101,99,USD,3.00\n"

	resp := postCSV(t, app, "/api/v1/enrich", trades)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "date,productName,currency,price\n20230101,Missing Product Name,USD,3\n", string(body))
}

func TestEnrich_BadHeader(t *testing.T) {
	app, _ := newTestApp(nil)

	resp := postCSV(t, app, "/api/v1/enrich", "when,productId,currency,price\n20230101,1,USD,1.00\n")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, CodeCSVProcessing, errResp.Code)
}

func TestEnrich_RunSummarySaved(t *testing.T) {
	st := &stubStore{}
	app, reg := newTestApp(st)
	reg.Replace([]model.ProductRow{{ID: "1", Name: "Widget"}})

	resp := postCSV(t, app, "/api/v1/enrich", "date,productId,currency,price\n20230101,1,USD,2.00\n")
	_, _ = io.ReadAll(resp.Body)

	// finishRun happens on the enrich goroutine after the stream closes
	require.Eventually(t, func() bool { return len(st.savedRuns()) == 1 }, time.Second, 10*time.Millisecond)

	for _, summary := range st.savedRuns() {
		assert.Equal(t, int64(1), summary.RowsEmitted)
		assert.False(t, summary.Failed)
		assert.Positive(t, summary.Duration)
	}
}

// --- Runs endpoint ---

func TestGetRun_NoStore(t *testing.T) {
	app, _ := newTestApp(nil)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/runs/abc", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetRun_Found(t *testing.T) {
	st := &stubStore{runs: map[string]model.RunSummary{
		"run-1": {RunID: "run-1", RowsIn: 10, RowsEmitted: 9, RowsDropped: 1},
	}}
	app, _ := newTestApp(st)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var summary model.RunSummary
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, int64(9), summary.RowsEmitted)
}

func TestGetRun_NotFound(t *testing.T) {
	st := &stubStore{}
	app, _ := newTestApp(st)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/runs/unknown", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(nil)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
