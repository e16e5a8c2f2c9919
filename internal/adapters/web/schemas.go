package web

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// schemaRegistry holds the JSON Schemas of every request body, reflected once.
type schemaRegistry struct {
	byName map[string]*jsonschema.Schema
}

func newSchemaRegistry() *schemaRegistry {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType {
				return &jsonschema.Schema{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`}
			}
			return nil
		},
	}
	bodies := map[string]any{
		"create-location":  app.CreateLocationRequest{},
		"create-product":   app.CreateProductRequest{},
		"stock-entry":      app.StockEntryRequest{},
		"stock-limits":     app.SetLimitsRequest{},
		"create-request":   app.CreateMaterialRequestRequest{},
		"request-line":     app.RequestLine{},
		"approve-request":  ApproveRequestBody{},
		"separate-request": SeparateRequestBody{},
		"deliver-request":  DeliverBody{},
		"create-transfer":  app.CreateTransferRequest{},
		"transfer-line":    app.TransferLine{},
		"dispatch":         DispatchBody{},
		"receive-transfer": ReceiveBody{},
		"start-count":      app.StartCountRequest{},
		"register-count":   RegisterCountBody{},
		"reason":           ReasonBody{},
		"alert-transfer":   AlertTransferBody{},
	}
	reg := &schemaRegistry{byName: make(map[string]*jsonschema.Schema, len(bodies))}
	for name, v := range bodies {
		reg.byName[name] = reflector.Reflect(v)
	}
	return reg
}

func (s *schemaRegistry) names() []string {
	out := make([]string, 0, len(s.byName))
	for n := range s.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// listSchemas handles GET /api/schemas.
func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Schemas []string `json:"schemas"`
	}{Schemas: h.schemas.names()})
}

// getSchema handles GET /api/schemas/{name}.
func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	s, ok := h.schemas.byName[chi.URLParam(r, "name")]
	if !ok {
		writeError(w, r, "unknown schema", "NOT_FOUND", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	_ = json.NewEncoder(w).Encode(s)
}
