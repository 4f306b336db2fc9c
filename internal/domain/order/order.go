package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/car-rental-orders/internal/domain/car"
)

var (
	// ErrNotFound is returned when no order exists for the requested id.
	ErrNotFound = errors.New("order not found")
	// ErrNotOwner is returned when an existing order belongs to another user.
	ErrNotOwner = errors.New("user is not owner of order")
)

// Status is the payment state of an order.
type Status string

const (
	StatusReservation Status = "reservation"
	StatusPaid        Status = "paid"
)

// Order is a rental reservation of one or more cars over a date range.
// RentalTime and TotalCost are derived and always written together with
// the fields they depend on.
type Order struct {
	ID              string
	RentalDateStart time.Time
	RentalDateEnd   time.Time
	RentalTime      int
	TotalCost       decimal.Decimal
	Prepayment      int
	Status          Status
	CustomerID      string
	OrderCars       []int64
}

// WithCars is an order whose car ids were expanded through the car service.
type WithCars struct {
	Order
	Cars []car.Car
}

// CreateRequest holds the client-controlled fields of a new order.
type CreateRequest struct {
	RentalDateStart time.Time
	RentalDateEnd   time.Time
	Prepayment      int
	Status          Status
	OrderCars       []int64
}

// Patch is a partial update. Nil fields are absent and left untouched.
type Patch struct {
	RentalDateStart *time.Time
	RentalDateEnd   *time.Time
	Prepayment      *int
	Status          *Status
	OrderCars       []int64
}

// HasDates reports whether the patch touches the rental period.
func (p Patch) HasDates() bool {
	return p.RentalDateStart != nil || p.RentalDateEnd != nil
}

// Fields is the set of columns written by a single partial update.
type Fields struct {
	RentalDateStart *time.Time
	RentalDateEnd   *time.Time
	RentalTime      *int
	TotalCost       *decimal.Decimal
	Prepayment      *int
	Status          *Status
	OrderCars       []int64
}

// IsEmpty reports whether no field is set.
func (f Fields) IsEmpty() bool {
	return f.RentalDateStart == nil &&
		f.RentalDateEnd == nil &&
		f.RentalTime == nil &&
		f.TotalCost == nil &&
		f.Prepayment == nil &&
		f.Status == nil &&
		f.OrderCars == nil
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// List returns every order in insertion order.
	List(ctx context.Context) ([]Order, error)
	// Update applies f to a single order and returns it re-read from storage.
	Update(ctx context.Context, id string, f Fields) (*Order, error)
	Delete(ctx context.Context, id string) error
}
