package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
)

// RegisterCountBody is the body of PUT /api/count-items/{itemID}.
// Registering an item again overwrites the previous figure.
type RegisterCountBody struct {
	CountedQuantity decimal.Decimal `json:"counted_quantity" jsonschema:"required"`
	Notes           string          `json:"notes,omitempty"`
}

// apiListCounts handles GET /api/counts?location=&status=.
func (h *Handler) apiListCounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.ListCounts(r.Context(), core.CountFilter{
		LocationID: q.Get("location"),
		Status:     core.CountStatus(q.Get("status")),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiStartCount handles POST /api/counts.
func (h *Handler) apiStartCount(w http.ResponseWriter, r *http.Request) {
	var req app.StartCountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.StartedBy = actorID(r)
	c, err := h.svc.StartCount(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, c)
}

// apiGetCount handles GET /api/counts/{ref}.
func (h *Handler) apiGetCount(w http.ResponseWriter, r *http.Request) {
	h.respondCount(w, r)(h.svc.GetCount(r.Context(), refParam(r)))
}

// apiCountItems handles GET /api/counts/{ref}/items?status=pending|counted|divergent&q=.
func (h *Handler) apiCountItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.CountItems(r.Context(), refParam(r), core.CountItemFilter{
		Status: core.CountItemStatus(q.Get("status")),
		Search: q.Get("q"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCountProgress handles GET /api/counts/{ref}/progress.
func (h *Handler) apiCountProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.CountProgress(r.Context(), refParam(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, p)
}

// apiRegisterCount handles PUT /api/count-items/{itemID}.
func (h *Handler) apiRegisterCount(w http.ResponseWriter, r *http.Request) {
	var body RegisterCountBody
	if !decodeJSON(w, r, &body) {
		return
	}
	h.respondCount(w, r)(h.svc.RegisterCount(r.Context(), chi.URLParam(r, "itemID"), actorID(r), body.CountedQuantity, body.Notes))
}

// apiCompleteCount handles POST /api/counts/{ref}/complete.
func (h *Handler) apiCompleteCount(w http.ResponseWriter, r *http.Request) {
	h.respondCount(w, r)(h.svc.CompleteCount(r.Context(), refParam(r), actorID(r)))
}

// apiCancelCount handles POST /api/counts/{ref}/cancel.
func (h *Handler) apiCancelCount(w http.ResponseWriter, r *http.Request) {
	var body ReasonBody
	if !decodeJSON(w, r, &body) {
		return
	}
	h.respondCount(w, r)(h.svc.CancelCount(r.Context(), refParam(r), actorID(r), body.Reason))
}

func (h *Handler) respondCount(w http.ResponseWriter, r *http.Request) func(*core.InventoryCount, error) {
	return func(c *core.InventoryCount, err error) {
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, c)
	}
}
