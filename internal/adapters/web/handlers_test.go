package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
	"fieldstock/internal/logging"
	"fieldstock/internal/metrics"
	"fieldstock/internal/store/memory"
)

const testSecret = "test-secret"

type testServer struct {
	t     *testing.T
	srv   *httptest.Server
	token string
	logs  *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := logging.New("info", "text", logs)
	reg := prometheus.NewRegistry()
	prom := metrics.NewPrometheus(reg, "fieldstock")

	svc := app.NewAppService(app.NewServices(memory.New(), core.DefaultAlertThresholds(), core.Options{Logger: logger, Metrics: prom}))
	h := NewHandler(Config{
		Service:        svc,
		Logger:         logger,
		HTTPMetrics:    prom,
		Gatherer:       reg,
		AllowedOrigins: []string{"https://ops.example.com"},
		JWTSecret:      testSecret,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	token, err := SignToken(testSecret, "wh.rocha", "warehouse", time.Hour)
	require.NoError(t, err)
	return &testServer{t: t, srv: srv, token: token, logs: logs}
}

// do sends a JSON request with the test token and decodes the response into out.
func (s *testServer) do(method, path string, body any, out any) *http.Response {
	s.t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	require.NoError(s.t, err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (s *testServer) seed() {
	s.t.Helper()
	resp := s.do(http.MethodPost, "/api/locations", map[string]any{"code": "CD-01", "name": "Central Depot", "type": "CENTRAL"}, nil)
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	resp = s.do(http.MethodPost, "/api/locations", map[string]any{"code": "OBRA-7", "name": "Site 7", "type": "FIELD"}, nil)
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	resp = s.do(http.MethodPost, "/api/products", map[string]any{"code": "CIM-50", "name": "Cement 50kg", "unit": "SC"}, nil)
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	resp = s.do(http.MethodPost, "/api/stock/receive", map[string]any{"location": "CD-01", "product": "CIM-50", "quantity": "100"}, nil)
	require.Equal(s.t, http.StatusOK, resp.StatusCode)
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.srv.URL + "/api/stock")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := SignToken("other-secret", "mallory", "", time.Hour)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodGet, s.srv.URL+"/api/stock", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	var actor Actor
	s.do(http.MethodGet, "/api/auth/me", nil, &actor)
	assert.Equal(t, Actor{ID: "wh.rocha", Role: "warehouse"}, actor)
}

func TestMaterialRequestFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	var mr core.MaterialRequest
	resp := s.do(http.MethodPost, "/api/requests", map[string]any{
		"contract_id":     "CT-9",
		"source_location": "CD-01",
		"items":           []map[string]any{{"product": "CIM-50", "quantity": "30"}},
	}, &mr)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, strings.HasPrefix(mr.Code, "RM-"), mr.Code)
	assert.Equal(t, "wh.rocha", mr.RequesterID)

	resp = s.do(http.MethodPost, "/api/requests/"+mr.Code+"/submit", nil, &mr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(http.MethodPost, "/api/requests/"+mr.Code+"/approve", nil, &mr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, core.RequestApproved, mr.Status)

	var stock app.StockResult
	s.do(http.MethodGet, "/api/stock?location=CD-01&product=CIM-50", nil, &stock)
	require.Len(t, stock.Lines, 1)
	assert.Equal(t, "30", stock.Lines[0].Reserved.String())

	// A second submit is an invalid transition.
	var apiErr errorResponse
	resp = s.do(http.MethodPost, "/api/requests/"+mr.Code+"/submit", nil, &apiErr)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)

	var list app.RequestListResult
	s.do(http.MethodGet, "/api/requests?status=APPROVED&location=CD-01", nil, &list)
	assert.Equal(t, 1, list.Total)

	// Only 24 of the 30 approved bags were found on the shelf.
	resp = s.do(http.MethodPost, "/api/requests/"+mr.Code+"/separate", map[string]any{
		"items": []map[string]any{{"item_id": mr.Items[0].ID, "separated_quantity": "24"}},
	}, &mr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, core.RequestSeparating, mr.Status)
	assert.Equal(t, "24", mr.Items[0].SeparatedQuantity.String())

	resp = s.do(http.MethodPost, "/api/requests/"+mr.Code+"/deliver", map[string]any{"receiver_name": "J. Pereira"}, &mr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s.do(http.MethodGet, "/api/stock?location=CD-01&product=CIM-50", nil, &stock)
	assert.Equal(t, "76", stock.Lines[0].Quantity.String())
	assert.Equal(t, "0", stock.Lines[0].Reserved.String())
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	var apiErr errorResponse
	resp := s.do(http.MethodGet, "/api/requests/RM-2026-0404", nil, &apiErr)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)

	resp = s.do(http.MethodPost, "/api/stock/adjust", map[string]any{"location": "CD-01", "product": "CIM-50", "quantity": "-5"}, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "MISSING_REASON", apiErr.Code)

	resp = s.do(http.MethodPost, "/api/locations", map[string]any{"code": "CD-01", "name": "Dup", "type": "CENTRAL"}, &apiErr)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", apiErr.Code)

	resp = s.do(http.MethodPost, "/api/products", map[string]any{"code": "X", "name": "Y", "colour": "red"}, &apiErr)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", apiErr.Code)
}

func TestTransferAndCountOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	var tr core.StockTransfer
	resp := s.do(http.MethodPost, "/api/transfers", map[string]any{
		"source_location":      "CD-01",
		"destination_location": "OBRA-7",
		"items":                []map[string]any{{"product": "CIM-50", "quantity": "10", "unit_price": "32.5"}},
	}, &tr)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	for _, action := range []string{"submit", "approve", "dispatch", "receive"} {
		resp = s.do(http.MethodPost, "/api/transfers/"+tr.Code+"/"+action, nil, &tr)
		require.Equal(t, http.StatusOK, resp.StatusCode, action)
	}
	assert.Equal(t, core.TransferDelivered, tr.Status)

	var c core.InventoryCount
	resp = s.do(http.MethodPost, "/api/counts", map[string]any{"location": "OBRA-7"}, &c)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var items app.CountItemsResult
	s.do(http.MethodGet, "/api/counts/"+c.Code+"/items?status=pending", nil, &items)
	require.Len(t, items.Items, 1)

	resp = s.do(http.MethodPut, "/api/count-items/"+items.Items[0].ID, map[string]any{"counted_quantity": "9", "notes": "one bag torn"}, &c)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(http.MethodPost, "/api/counts/"+c.Code+"/complete", nil, &c)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, core.CountCompleted, c.Status)

	var stock app.StockResult
	s.do(http.MethodGet, "/api/stock?location=OBRA-7", nil, &stock)
	require.Len(t, stock.Lines, 1)
	assert.Equal(t, "9", stock.Lines[0].Quantity.String())
}

func TestSchemasAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.srv.URL + "/api/schemas/stock-entry")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var schema struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required             []string `json:"required"`
		AdditionalProperties any      `json:"additionalProperties"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&schema))
	assert.Equal(t, "string", schema.Properties["quantity"].Type)
	assert.NotContains(t, schema.Properties, "ActorID")
	assert.ElementsMatch(t, []string{"location", "product", "quantity"}, schema.Required)
	assert.Equal(t, false, schema.AdditionalProperties)

	resp2, err := http.Get(s.srv.URL + "/api/schemas/nope")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	s.do(http.MethodGet, "/api/locations", nil, nil)
	resp3, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp3.Body.Close()
	body, err := io.ReadAll(resp3.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `route="/api/locations"`), "metrics should label requests by route pattern")
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, s.srv.URL+"/api/stock", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://ops.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodOptions, s.srv.URL+"/api/stock", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}
