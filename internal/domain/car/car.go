// Package car holds the read-only projection of cars owned by the car
// service, and the port used to reach it.
package car

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the car service response does not hold
	// exactly the requested cars.
	ErrNotFound = errors.New("one or more cars not found")
	// ErrUnavailable is returned when the car service fails, times out or
	// answers with an unexpected status.
	ErrUnavailable = errors.New("car service unavailable")
)

// Status enumerates car states as reported by the car service.
type Status string

const (
	StatusActive    Status = "active"
	StatusBroken    Status = "broken"
	StatusRepairing Status = "repairing"
	StatusBusy      Status = "busy"
)

// Car is a snapshot of a car record fetched per request. It is never cached.
type Car struct {
	ID           int64
	Description  string
	Number       string
	Transmission string
	Engine       string
	Year         int
	Status       Status
	Image        string
	RentalCost   decimal.Decimal
	CarStationID int64
}

// Catalog reads and patches cars in the car service.
type Catalog interface {
	// FetchCars returns cars matching ids. An empty status means no filter.
	// The result may be missing ids; coverage is the caller's concern.
	FetchCars(ctx context.Context, ids []int64, status Status) ([]Car, error)
	// SetCarsStatus patches the status of every car in ids.
	SetCarsStatus(ctx context.Context, ids []int64, status Status) ([]Car, error)
}

// Mismatch compares the ids requested from the car service with the cars
// it returned. missing holds requested ids absent from got, extra holds
// returned ids that were never requested. Both are empty only when the id
// sets are equal.
func Mismatch(want []int64, got []Car) (missing, extra []int64) {
	requested := make(map[int64]struct{}, len(want))
	for _, id := range want {
		requested[id] = struct{}{}
	}
	returned := make(map[int64]struct{}, len(got))
	for _, c := range got {
		if _, ok := returned[c.ID]; ok {
			continue
		}
		returned[c.ID] = struct{}{}
		if _, ok := requested[c.ID]; !ok {
			extra = append(extra, c.ID)
		}
	}
	for _, id := range want {
		if _, ok := returned[id]; !ok {
			missing = append(missing, id)
			returned[id] = struct{}{}
		}
	}
	return missing, extra
}
