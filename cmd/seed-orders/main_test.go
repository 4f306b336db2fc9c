package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/car-rental-orders/internal/domain/order"
)

type mockOrderRepo struct {
	order.Repository

	stored  map[string]*order.Order
	created []string
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.stored[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.stored[o.ID] = o
	m.created = append(m.created, o.ID)
	return nil
}

func TestReadOrders(t *testing.T) {
	orders, err := readOrders(filepath.Join("..", "..", "db", "seed", "orders.json"))
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "6f1c2a9e-3b7d-4e52-9c0a-1d2e3f4a5b6c", orders[0].ID)
	assert.Equal(t, 3, orders[0].RentalTime)
	assert.Equal(t, "75", orders[0].TotalCost.String())

	assert.NotEmpty(t, orders[1].ID)
	assert.Equal(t, 2, orders[1].RentalTime)
	assert.Equal(t, order.StatusPaid, orders[1].Status)
	assert.Equal(t, []int64{2, 2, 3}, orders[1].OrderCars)
}

func TestReadOrdersRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "status", wantErr: "unknown status", body: `[{"customer_id": "1", "order_cars": [1], "status": "done",
			"total_cost": "10", "rental_date_start": "2030-01-01T00:00:00Z", "rental_date_end": "2030-01-02T00:00:00Z"}]`},
		{name: "no cars", wantErr: "order_cars", body: `[{"customer_id": "1", "order_cars": [], "total_cost": "10",
			"rental_date_start": "2030-01-01T00:00:00Z", "rental_date_end": "2030-01-02T00:00:00Z"}]`},
		{name: "reversed dates", wantErr: "rental_date_start", body: `[{"customer_id": "1", "order_cars": [1],
			"total_cost": "10", "rental_date_start": "2030-01-02T00:00:00Z", "rental_date_end": "2030-01-01T00:00:00Z"}]`},
		{name: "no total", wantErr: "total_cost is required", body: `[{"customer_id": "1", "order_cars": [1],
			"rental_date_start": "2030-01-01T00:00:00Z", "rental_date_end": "2030-01-02T00:00:00Z"}]`},
		{name: "null total", wantErr: "total_cost is required", body: `[{"customer_id": "1", "order_cars": [1],
			"total_cost": null, "rental_date_start": "2030-01-01T00:00:00Z", "rental_date_end": "2030-01-02T00:00:00Z"}]`},
		{name: "negative total", wantErr: "total_cost must not be negative", body: `[{"customer_id": "1",
			"order_cars": [1], "total_cost": "-1",
			"rental_date_start": "2030-01-01T00:00:00Z", "rental_date_end": "2030-01-02T00:00:00Z"}]`},
		{name: "not json", wantErr: "parse orders JSON", body: `orders`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "orders.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := readOrders(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadOrdersRoundsTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"customer_id": "1", "order_cars": [1], "total_cost": 10.125,
		"rental_date_start": "2030-01-01T00:00:00Z", "rental_date_end": "2030-01-02T00:00:00Z"}]`), 0o600))

	orders, err := readOrders(path)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "10.13", orders[0].TotalCost.String())
}

func TestSeedOrdersSkipsExisting(t *testing.T) {
	existing := &order.Order{ID: "a"}
	repo := &mockOrderRepo{stored: map[string]*order.Order{"a": existing}}

	err := seedOrders(context.Background(), repo, []order.Order{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, repo.created)
	assert.Same(t, existing, repo.stored["a"])
}
