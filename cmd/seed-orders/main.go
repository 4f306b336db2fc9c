package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/car-rental-orders/internal/domain/order"
	"github.com/xenking/car-rental-orders/internal/storage/postgres"
)

type orderJSON struct {
	ID              string              `json:"id"`
	RentalDateStart time.Time           `json:"rental_date_start"`
	RentalDateEnd   time.Time           `json:"rental_date_end"`
	TotalCost       decimal.NullDecimal `json:"total_cost"`
	Prepayment      int                 `json:"prepayment"`
	Status          string              `json:"status"`
	CustomerID      string              `json:"customer_id"`
	OrderCars       []int64             `json:"order_cars"`
}

func main() {
	var (
		databaseURL string
		ordersFile  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&ordersFile, "file", "db/seed/orders.json", "path to orders JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, ordersFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, ordersFile string) error {
	orders, err := readOrders(ordersFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seedOrders(ctx, postgres.NewOrderRepository(pool), orders)
}

func readOrders(path string) ([]order.Order, error) {
	slog.Info("reading orders file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read orders file")
	}

	var raw []orderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse orders JSON")
	}

	orders := make([]order.Order, 0, len(raw))
	for i, r := range raw {
		o, err := r.toOrder()
		if err != nil {
			return nil, errors.Wrapf(err, "order #%d", i)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// toOrder fills the derived fields the fixture may omit. The car service is
// not consulted, so total_cost is taken from the fixture as is and must be
// present.
func (r orderJSON) toOrder() (order.Order, error) {
	status := order.Status(r.Status)
	switch status {
	case order.StatusReservation, order.StatusPaid:
	case "":
		status = order.StatusReservation
	default:
		return order.Order{}, errors.Errorf("unknown status %q", r.Status)
	}
	if r.CustomerID == "" {
		return order.Order{}, errors.New("customer_id is required")
	}
	if len(r.OrderCars) == 0 {
		return order.Order{}, errors.New("order_cars must not be empty")
	}
	if !r.RentalDateStart.Before(r.RentalDateEnd) {
		return order.Order{}, errors.New("rental_date_start must precede rental_date_end")
	}
	if !r.TotalCost.Valid {
		return order.Order{}, errors.New("total_cost is required")
	}
	if r.TotalCost.Decimal.IsNegative() {
		return order.Order{}, errors.New("total_cost must not be negative")
	}

	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	return order.Order{
		ID:              id,
		RentalDateStart: r.RentalDateStart,
		RentalDateEnd:   r.RentalDateEnd,
		RentalTime:      order.RentalDays(r.RentalDateStart, r.RentalDateEnd),
		TotalCost:       r.TotalCost.Decimal.Round(order.CostScale),
		Prepayment:      r.Prepayment,
		Status:          status,
		CustomerID:      r.CustomerID,
		OrderCars:       r.OrderCars,
	}, nil
}

func seedOrders(ctx context.Context, repo order.Repository, orders []order.Order) error {
	slog.Info("inserting orders", slog.Int("count", len(orders)))

	for i := range orders {
		o := &orders[i]
		_, err := repo.Get(ctx, o.ID)
		switch {
		case err == nil:
			slog.Info("order exists, skipping", slog.String("id", o.ID))
			continue
		case !errors.Is(err, order.ErrNotFound):
			return errors.Wrapf(err, "lookup order %s", o.ID)
		}

		if err := repo.Create(ctx, o); err != nil {
			return errors.Wrapf(err, "insert order %s", o.ID)
		}

		slog.Info("inserted order",
			slog.String("id", o.ID),
			slog.String("customer_id", o.CustomerID),
			slog.String("total_cost", o.TotalCost.String()),
		)
	}

	return nil
}
