package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
)

// ReasonBody carries the mandatory reason of reject and cancel actions.
type ReasonBody struct {
	Reason string `json:"reason" jsonschema:"required,minLength=1"`
}

// ApproveRequestBody is the body of POST /api/requests/{ref}/approve.
// An empty items list approves every line in full.
type ApproveRequestBody struct {
	Items []ApprovalLine `json:"items,omitempty"`
}

// ApprovalLine sets the approved quantity of one request item.
type ApprovalLine struct {
	ItemID           string          `json:"item_id" jsonschema:"required"`
	ApprovedQuantity decimal.Decimal `json:"approved_quantity" jsonschema:"required"`
}

// SeparateRequestBody is the optional body of POST /api/requests/{ref}/separate.
// Items not listed are separated in full.
type SeparateRequestBody struct {
	Items []SeparationLine `json:"items,omitempty"`
}

// SeparationLine records the picked quantity of one request item.
type SeparationLine struct {
	ItemID            string          `json:"item_id" jsonschema:"required"`
	SeparatedQuantity decimal.Decimal `json:"separated_quantity" jsonschema:"required"`
}

// DeliverBody is the body of POST /api/requests/{ref}/deliver.
type DeliverBody struct {
	ReceiverName string `json:"receiver_name" jsonschema:"required,minLength=1"`
}

// apiListRequests handles GET /api/requests.
// Query: status, priority, contract, work_front, requester, location, q, page, page_size.
func (h *Handler) apiListRequests(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	result, err := h.svc.ListRequests(r.Context(), core.RequestFilter{
		Status:           core.RequestStatus(q.Get("status")),
		Priority:         core.Priority(q.Get("priority")),
		ContractID:       q.Get("contract"),
		WorkFrontID:      q.Get("work_front"),
		RequesterID:      q.Get("requester"),
		SourceLocationID: q.Get("location"),
		Search:           q.Get("q"),
		Page:             page,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateRequest handles POST /api/requests.
func (h *Handler) apiCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req app.CreateMaterialRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.RequesterID = actorID(r)
	mr, err := h.svc.CreateMaterialRequest(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, mr)
}

// apiGetRequest handles GET /api/requests/{ref}.
func (h *Handler) apiGetRequest(w http.ResponseWriter, r *http.Request) {
	h.respondRequest(w, r)(h.svc.GetRequest(r.Context(), refParam(r)))
}

// apiAddRequestItem handles POST /api/requests/{ref}/items.
func (h *Handler) apiAddRequestItem(w http.ResponseWriter, r *http.Request) {
	var line app.RequestLine
	if !decodeJSON(w, r, &line) {
		return
	}
	h.respondRequest(w, r)(h.svc.AddRequestItem(r.Context(), refParam(r), actorID(r), line))
}

// apiRemoveRequestItem handles DELETE /api/requests/{ref}/items/{itemID}.
func (h *Handler) apiRemoveRequestItem(w http.ResponseWriter, r *http.Request) {
	h.respondRequest(w, r)(h.svc.RemoveRequestItem(r.Context(), refParam(r), actorID(r), chi.URLParam(r, "itemID")))
}

// apiSubmitRequest handles POST /api/requests/{ref}/submit.
func (h *Handler) apiSubmitRequest(w http.ResponseWriter, r *http.Request) {
	h.respondRequest(w, r)(h.svc.SubmitRequest(r.Context(), refParam(r), actorID(r)))
}

// apiApproveRequest handles POST /api/requests/{ref}/approve.
func (h *Handler) apiApproveRequest(w http.ResponseWriter, r *http.Request) {
	var body ApproveRequestBody
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	approvals := make([]core.ItemApproval, 0, len(body.Items))
	for _, it := range body.Items {
		approvals = append(approvals, core.ItemApproval{ItemID: it.ItemID, ApprovedQuantity: it.ApprovedQuantity})
	}
	h.respondRequest(w, r)(h.svc.ApproveRequest(r.Context(), refParam(r), actorID(r), approvals))
}

// apiRejectRequest handles POST /api/requests/{ref}/reject.
func (h *Handler) apiRejectRequest(w http.ResponseWriter, r *http.Request) {
	var body ReasonBody
	if !decodeJSON(w, r, &body) {
		return
	}
	h.respondRequest(w, r)(h.svc.RejectRequest(r.Context(), refParam(r), actorID(r), body.Reason))
}

// apiStartSeparation handles POST /api/requests/{ref}/separate.
func (h *Handler) apiStartSeparation(w http.ResponseWriter, r *http.Request) {
	var body SeparateRequestBody
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	separations := make([]core.ItemSeparation, 0, len(body.Items))
	for _, it := range body.Items {
		separations = append(separations, core.ItemSeparation{ItemID: it.ItemID, SeparatedQuantity: it.SeparatedQuantity})
	}
	h.respondRequest(w, r)(h.svc.StartSeparation(r.Context(), refParam(r), actorID(r), separations))
}

// apiDeliverRequest handles POST /api/requests/{ref}/deliver.
func (h *Handler) apiDeliverRequest(w http.ResponseWriter, r *http.Request) {
	var body DeliverBody
	if !decodeJSON(w, r, &body) {
		return
	}
	h.respondRequest(w, r)(h.svc.DeliverRequest(r.Context(), refParam(r), actorID(r), body.ReceiverName))
}

// apiCancelRequest handles POST /api/requests/{ref}/cancel.
func (h *Handler) apiCancelRequest(w http.ResponseWriter, r *http.Request) {
	var body ReasonBody
	if !decodeJSON(w, r, &body) {
		return
	}
	h.respondRequest(w, r)(h.svc.CancelRequest(r.Context(), refParam(r), actorID(r), body.Reason))
}

// respondRequest writes the outcome of a material request operation.
func (h *Handler) respondRequest(w http.ResponseWriter, r *http.Request) func(*core.MaterialRequest, error) {
	return func(mr *core.MaterialRequest, err error) {
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, mr)
	}
}

// pageFromQuery reads page and page_size.
func pageFromQuery(r *http.Request) (core.Page, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return core.Page{}, err
	}
	size, err := queryInt(r, "page_size")
	if err != nil {
		return core.Page{}, err
	}
	return core.Page{Page: page, PageSize: size}, nil
}
