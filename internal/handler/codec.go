package handler

import (
	"bytes"
	"slices"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/car-rental-orders/internal/domain/car"
	"github.com/xenking/car-rental-orders/internal/domain/order"
)

// Naive timestamps carry no offset and are read in the local zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

const responseTimeLayout = "2006-01-02T15:04:05.999999"

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid timestamp %q", s)
}

// formatTimestamp renders t as a naive local timestamp.
func formatTimestamp(t time.Time) string {
	return t.In(time.Local).Format(responseTimeLayout)
}

// Body field order, used to sort validation errors the way fields are
// declared.
var bodyFields = []string{
	"rental_date_start",
	"rental_date_end",
	"prepayment",
	"status",
	"order_cars",
}

type createOrderRequest struct {
	RentalDateStart *time.Time `json:"rental_date_start" validate:"required"`
	RentalDateEnd   *time.Time `json:"rental_date_end"   validate:"required"`
	Prepayment      *int       `json:"prepayment"        validate:"required,min=0,max=10000"`
	Status          *string    `json:"status"            validate:"required,oneof=reservation paid"`
	OrderCars       []int64    `json:"order_cars"        validate:"required,min=1"`
}

func (r createOrderRequest) toDomain() order.CreateRequest {
	return order.CreateRequest{
		RentalDateStart: *r.RentalDateStart,
		RentalDateEnd:   *r.RentalDateEnd,
		Prepayment:      *r.Prepayment,
		Status:          order.Status(*r.Status),
		OrderCars:       r.OrderCars,
	}
}

type updateOrderRequest struct {
	RentalDateStart *time.Time `json:"rental_date_start"`
	RentalDateEnd   *time.Time `json:"rental_date_end"`
	Prepayment      *int       `json:"prepayment"        validate:"omitnil,min=0,max=10000"`
	Status          *string    `json:"status"            validate:"omitnil,oneof=reservation paid"`
	OrderCars       []int64    `json:"order_cars"        validate:"omitnil,min=1"`
}

func (r updateOrderRequest) toDomain() order.Patch {
	p := order.Patch{
		RentalDateStart: r.RentalDateStart,
		RentalDateEnd:   r.RentalDateEnd,
		Prepayment:      r.Prepayment,
		OrderCars:       r.OrderCars,
	}
	if r.Status != nil {
		s := order.Status(*r.Status)
		p.Status = &s
	}
	return p
}

// orderFields points the shared body fields at either request type.
type orderFields struct {
	start, end **time.Time
	prepayment **int
	status     **string
	cars       *[]int64
}

func (r *createOrderRequest) fields() orderFields {
	return orderFields{&r.RentalDateStart, &r.RentalDateEnd, &r.Prepayment, &r.Status, &r.OrderCars}
}

func (r *updateOrderRequest) fields() orderFields {
	return orderFields{&r.RentalDateStart, &r.RentalDateEnd, &r.Prepayment, &r.Status, &r.OrderCars}
}

// decodeOrderBody fills f from a JSON object. Unknown keys are ignored and
// null is the same as an absent key. Type mismatches are reported per field
// and decoding continues with the next key.
func decodeOrderBody(data []byte, f orderFields) []fieldError {
	if len(bytes.TrimSpace(data)) == 0 {
		return []fieldError{{Type: "missing", Loc: []string{"body"}, Msg: "Field required"}}
	}

	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return []fieldError{{
			Type: "model_attributes_type",
			Loc:  []string{"body"},
			Msg:  "Input should be a valid dictionary or object to extract fields from",
		}}
	}

	var errs []fieldError
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		if raw.Type() == jx.Null {
			return nil
		}

		name := string(key)
		loc := []string{"body", name}
		switch name {
		case "rental_date_start":
			*f.start, err = decodeTimestamp(raw)
		case "rental_date_end":
			*f.end, err = decodeTimestamp(raw)
		case "prepayment":
			var v int
			if v, err = jx.DecodeBytes(raw).Int(); err == nil {
				*f.prepayment = &v
			} else {
				errs = append(errs, fieldError{Type: "int_parsing", Loc: loc, Msg: "Input should be a valid integer"})
			}
			return nil
		case "status":
			var v string
			if v, err = jx.DecodeBytes(raw).Str(); err == nil {
				*f.status = &v
			} else {
				errs = append(errs, fieldError{Type: "string_type", Loc: loc, Msg: "Input should be a valid string"})
			}
			return nil
		case "order_cars":
			var fe *fieldError
			*f.cars, fe = decodeCarIDs(raw, loc)
			if fe != nil {
				errs = append(errs, *fe)
			}
			return nil
		default:
			return nil
		}
		if err != nil {
			errs = append(errs, fieldError{Type: "datetime_parsing", Loc: loc, Msg: "Input should be a valid datetime"})
		}
		return nil
	})
	if err != nil {
		return []fieldError{{Type: "json_invalid", Loc: []string{"body"}, Msg: "JSON decode error"}}
	}
	return errs
}

func decodeTimestamp(raw jx.Raw) (*time.Time, error) {
	s, err := jx.DecodeBytes(raw).Str()
	if err != nil {
		return nil, err
	}
	t, err := parseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// decodeCarIDs returns a non-nil slice for any JSON array, so an empty list
// stays distinguishable from an absent one.
func decodeCarIDs(raw jx.Raw, loc []string) ([]int64, *fieldError) {
	if raw.Type() != jx.Array {
		return nil, &fieldError{Type: "list_type", Loc: loc, Msg: "Input should be a valid list"}
	}

	ids := []int64{}
	var bad *fieldError
	err := jx.DecodeBytes(raw).Arr(func(d *jx.Decoder) error {
		id, err := d.Int64()
		if err != nil && bad == nil {
			bad = &fieldError{
				Type: "int_parsing",
				Loc:  append(slices.Clone(loc), strconv.Itoa(len(ids))),
				Msg:  "Input should be a valid integer",
			}
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if bad != nil {
		return nil, bad
	}
	if err != nil {
		return nil, &fieldError{Type: "list_type", Loc: loc, Msg: "Input should be a valid list"}
	}
	return ids, nil
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	encodeOrderFields(e, o)
	e.FieldStart("order_cars")
	e.ArrStart()
	for _, id := range o.OrderCars {
		e.Int64(id)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeOrderWithCars(e *jx.Encoder, o *order.WithCars) {
	e.ObjStart()
	encodeOrderFields(e, &o.Order)
	e.FieldStart("order_cars")
	e.ArrStart()
	for i := range o.Cars {
		encodeCar(e, &o.Cars[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("rental_date_start")
	e.Str(formatTimestamp(o.RentalDateStart))
	e.FieldStart("rental_date_end")
	e.Str(formatTimestamp(o.RentalDateEnd))
	e.FieldStart("rental_time")
	e.Int(o.RentalTime)
	e.FieldStart("total_cost")
	e.Float64(o.TotalCost.InexactFloat64())
	e.FieldStart("prepayment")
	e.Int(o.Prepayment)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("customer_id")
	e.Str(o.CustomerID)
}

func encodeCar(e *jx.Encoder, c *car.Car) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("car_description")
	e.Str(c.Description)
	e.FieldStart("car_number")
	e.Str(c.Number)
	e.FieldStart("transmission")
	e.Str(c.Transmission)
	e.FieldStart("engine")
	e.Str(c.Engine)
	e.FieldStart("year")
	e.Int(c.Year)
	e.FieldStart("status")
	e.Str(string(c.Status))
	e.FieldStart("image")
	e.Str(c.Image)
	e.FieldStart("rental_cost")
	e.Float64(c.RentalCost.InexactFloat64())
	e.FieldStart("car_station_id")
	e.Int64(c.CarStationID)
	e.ObjEnd()
}
