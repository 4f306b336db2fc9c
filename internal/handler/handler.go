// Package handler exposes the order service over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/xenking/car-rental-orders/internal/domain/order"
)

// TokenHeader carries the bearer token of the calling user.
const TokenHeader = "auth-token"

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// OrderService is the set of order operations served over HTTP.
type OrderService interface {
	List(ctx context.Context) ([]order.Order, error)
	Create(ctx context.Context, token string, req order.CreateRequest) (*order.Order, error)
	GetWithCars(ctx context.Context, token, id string) (*order.WithCars, error)
	Update(ctx context.Context, token, id string, p order.Patch) (*order.Order, error)
	Delete(ctx context.Context, token, id string) error
}

var _ OrderService = (*order.Service)(nil)

// Handler serves the /orders resource.
type Handler struct {
	orders   OrderService
	validate *validator.Validate
}

// NewHandler creates a Handler delegating to orders.
func NewHandler(orders OrderService) *Handler {
	return &Handler{
		orders:   orders,
		validate: newValidate(),
	}
}

// Register adds the order routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /orders/{$}", h.ListOrders)
	mux.HandleFunc("POST /orders/{$}", h.CreateOrder)
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("PATCH /orders/{id}", h.UpdateOrder)
	mux.HandleFunc("DELETE /orders/{id}", h.DeleteOrder)
	mux.Handle("/orders", http.RedirectHandler("/orders/", http.StatusTemporaryRedirect))
}
