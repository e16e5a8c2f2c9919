package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
	"fieldstock/internal/metrics"
)

// Config carries the collaborators and settings of the HTTP adapter.
type Config struct {
	Service        app.ApplicationService
	Logger         core.Logger
	HTTPMetrics    metrics.HTTPObserver // optional
	Gatherer       prometheus.Gatherer  // optional; /metrics is served when set
	AllowedOrigins []string
	JWTSecret      string
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	logger    core.Logger
	jwtSecret string
	schemas   *schemaRegistry
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(cfg Config) http.Handler {
	observer := cfg.HTTPMetrics
	if observer == nil {
		observer = metrics.NewNop()
	}
	h := &Handler{
		svc:       cfg.Service,
		logger:    cfg.Logger,
		jwtSecret: cfg.JWTSecret,
		schemas:   newSchemaRegistry(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(cfg.Logger, observer))
	r.Use(Recoverer(cfg.Logger))
	r.Use(CORS(cfg.AllowedOrigins))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	r.Get("/api/schemas", h.listSchemas)
	r.Get("/api/schemas/{name}", h.getSchema)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// ── Protected API routes (return 401 JSON if no valid token) ─────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireActor)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Get("/api/auth/me", h.me)

		// Catalog
		r.Get("/api/locations", h.apiListLocations)
		r.Post("/api/locations", h.apiCreateLocation)
		r.Post("/api/locations/{ref}/deactivate", h.apiDeactivateLocation)
		r.Get("/api/products", h.apiListProducts)
		r.Post("/api/products", h.apiCreateProduct)

		// Stock ledger
		r.Get("/api/stock", h.apiGetStock)
		r.Get("/api/movements", h.apiListMovements)
		r.Post("/api/stock/receive", h.apiReceiveStock)
		r.Post("/api/stock/adjust", h.apiAdjustStock)
		r.Put("/api/stock/limits", h.apiSetStockLimits)

		// Low-stock alerts
		r.Get("/api/alerts", h.apiComputeAlerts)
		r.Post("/api/alerts/transfer", h.apiDraftTransferFromAlert)

		// Material requests
		r.Get("/api/requests", h.apiListRequests)
		r.Post("/api/requests", h.apiCreateRequest)
		r.Get("/api/requests/{ref}", h.apiGetRequest)
		r.Post("/api/requests/{ref}/items", h.apiAddRequestItem)
		r.Delete("/api/requests/{ref}/items/{itemID}", h.apiRemoveRequestItem)
		r.Post("/api/requests/{ref}/submit", h.apiSubmitRequest)
		r.Post("/api/requests/{ref}/approve", h.apiApproveRequest)
		r.Post("/api/requests/{ref}/reject", h.apiRejectRequest)
		r.Post("/api/requests/{ref}/separate", h.apiStartSeparation)
		r.Post("/api/requests/{ref}/deliver", h.apiDeliverRequest)
		r.Post("/api/requests/{ref}/cancel", h.apiCancelRequest)

		// Stock transfers
		r.Get("/api/transfers", h.apiListTransfers)
		r.Post("/api/transfers", h.apiCreateTransfer)
		r.Get("/api/transfers/{ref}", h.apiGetTransfer)
		r.Post("/api/transfers/{ref}/items", h.apiAddTransferItem)
		r.Delete("/api/transfers/{ref}/items/{itemID}", h.apiRemoveTransferItem)
		r.Post("/api/transfers/{ref}/submit", h.apiSubmitTransfer)
		r.Post("/api/transfers/{ref}/approve", h.apiApproveTransfer)
		r.Post("/api/transfers/{ref}/reject", h.apiRejectTransfer)
		r.Post("/api/transfers/{ref}/dispatch", h.apiDispatchTransfer)
		r.Post("/api/transfers/{ref}/receive", h.apiReceiveTransfer)
		r.Post("/api/transfers/{ref}/cancel", h.apiCancelTransfer)

		// Inventory counts
		r.Get("/api/counts", h.apiListCounts)
		r.Post("/api/counts", h.apiStartCount)
		r.Get("/api/counts/{ref}", h.apiGetCount)
		r.Get("/api/counts/{ref}/items", h.apiCountItems)
		r.Get("/api/counts/{ref}/progress", h.apiCountProgress)
		r.Post("/api/counts/{ref}/complete", h.apiCompleteCount)
		r.Post("/api/counts/{ref}/cancel", h.apiCancelCount)
		r.Put("/api/count-items/{itemID}", h.apiRegisterCount)

		// Audit
		r.Get("/api/audit/{entity}/{ref}", h.apiAuditTrail)
	})

	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

// refParam extracts the {ref} URL parameter.
func refParam(r *http.Request) string {
	return chi.URLParam(r, "ref")
}

// queryInt parses an optional integer query parameter. Zero means absent.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
