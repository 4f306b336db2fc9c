package handler

import (
	"net/http"
	"reflect"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/car-rental-orders/internal/domain/car"
	"github.com/xenking/car-rental-orders/internal/domain/identity"
	"github.com/xenking/car-rental-orders/internal/domain/order"
)

// fieldError is a single item of a 422 response.
type fieldError struct {
	Type string
	Loc  []string
	Msg  string
}

// requestError carries every field error found in a request.
type requestError struct {
	fields []fieldError
}

func (e *requestError) Error() string {
	msgs := make([]string, len(e.fields))
	for i, f := range e.fields {
		msgs[i] = strings.Join(f.Loc, ".") + ": " + f.Msg
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationFields converts validator errors into response items.
func validationFields(err error) []fieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Type: "value_error", Loc: []string{"body"}, Msg: err.Error()}}
	}

	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		item := fieldError{Loc: []string{"body", fe.Field()}}
		switch fe.Tag() {
		case "required":
			item.Type, item.Msg = "missing", "Field required"
		case "min":
			if fe.Kind() == reflect.Slice {
				item.Type = "too_short"
				item.Msg = "List should have at least " + fe.Param() + " item after validation, not 0"
			} else {
				item.Type = "greater_than_equal"
				item.Msg = "Input should be greater than or equal to " + fe.Param()
			}
		case "max":
			item.Type = "less_than_equal"
			item.Msg = "Input should be less than or equal to " + fe.Param()
		case "oneof":
			opts := strings.Fields(fe.Param())
			for i := range opts {
				opts[i] = "'" + opts[i] + "'"
			}
			item.Type = "enum"
			item.Msg = "Input should be " + strings.Join(opts, " or ")
		default:
			item.Type = "value_error"
			item.Msg = "Value error, failed on " + fe.Tag()
		}
		out = append(out, item)
	}
	return out
}

// sortFields orders items by location: header first, then body fields in
// declaration order.
func sortFields(items []fieldError) {
	rank := func(f fieldError) int {
		if len(f.Loc) == 0 || f.Loc[0] != "body" {
			return -1
		}
		if len(f.Loc) == 1 {
			return 0
		}
		return slices.Index(bodyFields, f.Loc[1]) + 1
	}
	slices.SortStableFunc(items, func(a, b fieldError) int {
		return rank(a) - rank(b)
	})
}

// writeError maps err to a response. It is the only place where domain
// errors turn into status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr *requestError
		valErr *order.ValidationError
	)
	switch {
	case errors.As(err, &reqErr):
		writeFieldErrors(w, reqErr.fields)
	case errors.As(err, &valErr):
		writeFieldErrors(w, []fieldError{{
			Type: "value_error",
			Loc:  []string{"body"},
			Msg:  "Value error, " + valErr.Message,
		}})
	case errors.Is(err, order.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, order.ErrNotOwner):
		writeDetail(w, http.StatusForbidden, "User is not owner of order")
	case errors.Is(err, car.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "One or more cars not found")
	case errors.Is(err, identity.ErrUserNotFound):
		writeDetail(w, http.StatusNotFound, "User not found")
	case errors.Is(err, identity.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func writeFieldErrors(w http.ResponseWriter, items []fieldError) {
	sortFields(items)

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("detail")
	e.ArrStart()
	for _, item := range items {
		e.ObjStart()
		e.FieldStart("type")
		e.Str(item.Type)
		e.FieldStart("loc")
		e.ArrStart()
		for _, l := range item.Loc {
			e.Str(l)
		}
		e.ArrEnd()
		e.FieldStart("msg")
		e.Str(item.Msg)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()

	writeJSON(w, http.StatusUnprocessableEntity, e.Bytes())
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("detail")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
