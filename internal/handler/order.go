package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/jx"
)

// ListOrders returns every stored order.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

// CreateOrder prices, stores and reserves a new order for the caller.
//
// When reserving the cars fails after the order is stored, the response is
// 500 and carries no order id. The order remains and is listed by ListOrders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	token, fields := h.readOrder(r, req.fields(), &req)
	if len(fields) > 0 {
		writeError(w, r, &requestError{fields: fields})
		return
	}

	o, err := h.orders.Create(r.Context(), token, req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusCreated, e.Bytes())
}

// GetOrder returns an order of the caller with its cars expanded.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	token, fields := readToken(r)
	if len(fields) > 0 {
		writeError(w, r, &requestError{fields: fields})
		return
	}

	o, err := h.orders.GetWithCars(r.Context(), token, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrderWithCars(&e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// UpdateOrder applies a partial update to an order of the caller.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	token, fields := h.readOrder(r, req.fields(), &req)
	if len(fields) > 0 {
		writeError(w, r, &requestError{fields: fields})
		return
	}

	o, err := h.orders.Update(r.Context(), token, r.PathValue("id"), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// DeleteOrder removes an order of the caller.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	token, fields := readToken(r)
	if len(fields) > 0 {
		writeError(w, r, &requestError{fields: fields})
		return
	}

	if err := h.orders.Delete(r.Context(), token, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readOrder collects the token and a decoded, validated body into dst.
// Every problem found is returned so the client sees them at once.
func (h *Handler) readOrder(r *http.Request, f orderFields, dst any) (string, []fieldError) {
	token, fields := readToken(r)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		fields = append(fields, fieldError{Type: "json_invalid", Loc: []string{"body"}, Msg: "JSON decode error"})
		return token, fields
	}

	decodeErrs := decodeOrderBody(data, f)
	fields = append(fields, decodeErrs...)
	if len(decodeErrs) == 1 && len(decodeErrs[0].Loc) == 1 {
		// The body as a whole is unusable.
		return token, fields
	}

	if err := h.validate.Struct(dst); err != nil {
		for _, fe := range validationFields(err) {
			if len(fe.Loc) < 2 || !reported(decodeErrs, fe.Loc[1]) {
				fields = append(fields, fe)
			}
		}
	}
	return token, fields
}

// reported reports whether field already failed to decode.
func reported(errs []fieldError, field string) bool {
	for _, e := range errs {
		if len(e.Loc) > 1 && e.Loc[1] == field {
			return true
		}
	}
	return false
}

func readToken(r *http.Request) (string, []fieldError) {
	token := strings.TrimSpace(r.Header.Get(TokenHeader))
	if token == "" {
		return "", []fieldError{{Type: "missing", Loc: []string{"header", TokenHeader}, Msg: "Field required"}}
	}
	return token, nil
}
