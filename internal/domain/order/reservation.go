package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/car-rental-orders/internal/domain/car"
)

// Reserver applies the car-side effect of placing an order. Implementations
// must be idempotent: reserving the same cars twice for one order is a no-op.
//
// The order is persisted before Reserve runs and nothing is rolled back
// when it fails.
type Reserver interface {
	Reserve(ctx context.Context, orderID string, carIDs []int64) error
}

var _ Reserver = (*CarReserver)(nil)

// CarReserver reserves cars by switching them to the busy status.
type CarReserver struct {
	cars car.Catalog
}

// NewCarReserver creates a CarReserver backed by the car service.
func NewCarReserver(cars car.Catalog) *CarReserver {
	return &CarReserver{cars: cars}
}

// Reserve marks every car of the order as busy.
func (r *CarReserver) Reserve(ctx context.Context, orderID string, carIDs []int64) error {
	if _, err := r.cars.SetCarsStatus(ctx, uniqueIDs(carIDs), car.StatusBusy); err != nil {
		return errors.Wrapf(err, "reserve cars for order %s", orderID)
	}
	return nil
}

// uniqueIDs returns ids without duplicates, preserving first occurrence.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
