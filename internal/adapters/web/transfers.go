package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
)

// DispatchBody is the body of POST /api/transfers/{ref}/dispatch.
type DispatchBody struct {
	VehiclePlate string `json:"vehicle_plate,omitempty"`
	DriverName   string `json:"driver_name,omitempty"`
}

// ReceiveBody is the body of POST /api/transfers/{ref}/receive. Lines only
// need to list items whose received quantity differs from the shipped one.
type ReceiveBody struct {
	Signature string        `json:"signature,omitempty"`
	Lines     []ReceiptBody `json:"lines,omitempty"`
}

// ReceiptBody overrides the received quantity of one transfer item.
type ReceiptBody struct {
	ItemID           string          `json:"item_id" jsonschema:"required"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity" jsonschema:"required"`
	Reason           string          `json:"reason,omitempty" jsonschema_description:"Required when the received quantity differs from the shipped one"`
}

// apiListTransfers handles GET /api/transfers.
// Query: status, source, destination, q, page, page_size.
func (h *Handler) apiListTransfers(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	result, err := h.svc.ListTransfers(r.Context(), core.TransferFilter{
		Status:                core.TransferStatus(q.Get("status")),
		SourceLocationID:      q.Get("source"),
		DestinationLocationID: q.Get("destination"),
		Search:                q.Get("q"),
		Page:                  page,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateTransfer handles POST /api/transfers.
func (h *Handler) apiCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req app.CreateTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.RequesterID = actorID(r)
	t, err := h.svc.CreateTransfer(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, t)
}

// apiGetTransfer handles GET /api/transfers/{ref}.
func (h *Handler) apiGetTransfer(w http.ResponseWriter, r *http.Request) {
	h.respondTransfer(w, r)(h.svc.GetTransfer(r.Context(), refParam(r)))
}

// apiAddTransferItem handles POST /api/transfers/{ref}/items.
func (h *Handler) apiAddTransferItem(w http.ResponseWriter, r *http.Request) {
	var line app.TransferLine
	if !decodeJSON(w, r, &line) {
		return
	}
	h.respondTransfer(w, r)(h.svc.AddTransferItem(r.Context(), refParam(r), actorID(r), line))
}

// apiRemoveTransferItem handles DELETE /api/transfers/{ref}/items/{itemID}.
func (h *Handler) apiRemoveTransferItem(w http.ResponseWriter, r *http.Request) {
	h.respondTransfer(w, r)(h.svc.RemoveTransferItem(r.Context(), refParam(r), actorID(r), chi.URLParam(r, "itemID")))
}

// apiSubmitTransfer handles POST /api/transfers/{ref}/submit.
func (h *Handler) apiSubmitTransfer(w http.ResponseWriter, r *http.Request) {
	h.respondTransfer(w, r)(h.svc.SubmitTransfer(r.Context(), refParam(r), actorID(r)))
}

// apiApproveTransfer handles POST /api/transfers/{ref}/approve.
func (h *Handler) apiApproveTransfer(w http.ResponseWriter, r *http.Request) {
	h.respondTransfer(w, r)(h.svc.ApproveTransfer(r.Context(), refParam(r), actorID(r)))
}

// apiRejectTransfer handles POST /api/transfers/{ref}/reject.
func (h *Handler) apiRejectTransfer(w http.ResponseWriter, r *http.Request) {
	var body ReasonBody
	if !decodeJSON(w, r, &body) {
		return
	}
	h.respondTransfer(w, r)(h.svc.RejectTransfer(r.Context(), refParam(r), actorID(r), body.Reason))
}

// apiDispatchTransfer handles POST /api/transfers/{ref}/dispatch.
func (h *Handler) apiDispatchTransfer(w http.ResponseWriter, r *http.Request) {
	var body DispatchBody
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	h.respondTransfer(w, r)(h.svc.DispatchTransfer(r.Context(), refParam(r), actorID(r), body.VehiclePlate, body.DriverName))
}

// apiReceiveTransfer handles POST /api/transfers/{ref}/receive.
func (h *Handler) apiReceiveTransfer(w http.ResponseWriter, r *http.Request) {
	var body ReceiveBody
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	lines := make([]core.ReceiptLine, 0, len(body.Lines))
	for _, l := range body.Lines {
		lines = append(lines, core.ReceiptLine{ItemID: l.ItemID, ReceivedQuantity: l.ReceivedQuantity, Reason: l.Reason})
	}
	h.respondTransfer(w, r)(h.svc.ReceiveTransfer(r.Context(), refParam(r), actorID(r), body.Signature, lines))
}

// apiCancelTransfer handles POST /api/transfers/{ref}/cancel.
func (h *Handler) apiCancelTransfer(w http.ResponseWriter, r *http.Request) {
	var body ReasonBody
	if !decodeJSON(w, r, &body) {
		return
	}
	h.respondTransfer(w, r)(h.svc.CancelTransfer(r.Context(), refParam(r), actorID(r), body.Reason))
}

func (h *Handler) respondTransfer(w http.ResponseWriter, r *http.Request) func(*core.StockTransfer, error) {
	return func(t *core.StockTransfer, err error) {
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, t)
	}
}
