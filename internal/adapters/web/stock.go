package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
)

// ── Catalog ───────────────────────────────────────────────────────────────────

// apiListLocations handles GET /api/locations?all=true.
func (h *Handler) apiListLocations(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListLocations(r.Context(), r.URL.Query().Get("all") == "true")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateLocation handles POST /api/locations.
func (h *Handler) apiCreateLocation(w http.ResponseWriter, r *http.Request) {
	var req app.CreateLocationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ActorID = actorID(r)
	loc, err := h.svc.CreateLocation(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, loc)
}

// apiDeactivateLocation handles POST /api/locations/{ref}/deactivate.
func (h *Handler) apiDeactivateLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.svc.DeactivateLocation(r.Context(), refParam(r), actorID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, loc)
}

// apiListProducts handles GET /api/products.
func (h *Handler) apiListProducts(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListProducts(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateProduct handles POST /api/products.
func (h *Handler) apiCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req app.CreateProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ActorID = actorID(r)
	p, err := h.svc.CreateProduct(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, p)
}

// ── Stock ledger ──────────────────────────────────────────────────────────────

// apiGetStock handles GET /api/stock?location=&product=.
func (h *Handler) apiGetStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.GetStock(r.Context(), q.Get("location"), q.Get("product"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiListMovements handles GET /api/movements?location=&product=&ref_id=&limit=.
func (h *Handler) apiListMovements(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	result, err := h.svc.ListMovements(r.Context(), app.MovementQuery{
		LocationRef: q.Get("location"),
		ProductRef:  q.Get("product"),
		RefID:       q.Get("ref_id"),
		Limit:       limit,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiReceiveStock handles POST /api/stock/receive.
func (h *Handler) apiReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ActorID = actorID(r)
	b, err := h.svc.ReceiveStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, b)
}

// apiAdjustStock handles POST /api/stock/adjust.
func (h *Handler) apiAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ActorID = actorID(r)
	b, err := h.svc.AdjustStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, b)
}

// apiSetStockLimits handles PUT /api/stock/limits.
func (h *Handler) apiSetStockLimits(w http.ResponseWriter, r *http.Request) {
	var req app.SetLimitsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.SetStockLimits(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, b)
}

// ── Alerts ────────────────────────────────────────────────────────────────────

// apiComputeAlerts handles GET /api/alerts?location=&category=&criticality=.
func (h *Handler) apiComputeAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.svc.ComputeAlerts(r.Context(), core.AlertFilter{
		LocationID:  q.Get("location"),
		Category:    q.Get("category"),
		Criticality: core.Criticality(q.Get("criticality")),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// AlertTransferBody is the body of POST /api/alerts/transfer.
type AlertTransferBody struct {
	LocationRef string `json:"location" jsonschema:"required"`
	ProductRef  string `json:"product" jsonschema:"required"`
}

// apiDraftTransferFromAlert handles POST /api/alerts/transfer.
func (h *Handler) apiDraftTransferFromAlert(w http.ResponseWriter, r *http.Request) {
	var body AlertTransferBody
	if !decodeJSON(w, r, &body) {
		return
	}
	t, err := h.svc.DraftTransferFromAlert(r.Context(), body.LocationRef, body.ProductRef, actorID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, t)
}

// ── Audit ─────────────────────────────────────────────────────────────────────

// apiAuditTrail handles GET /api/audit/{entity}/{ref}.
func (h *Handler) apiAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.AuditTrail(r.Context(), chi.URLParam(r, "entity"), refParam(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, struct {
		Entries []core.AuditEntry `json:"entries"`
	}{Entries: entries})
}
