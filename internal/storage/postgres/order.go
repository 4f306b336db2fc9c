package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/car-rental-orders/internal/domain/order"
)

const ordersTable = "orders"

var orderColumns = []string{
	"id",
	"rental_date_start",
	"rental_date_end",
	"rental_time",
	"total_cost",
	"prepayment",
	"status",
	"customer_id",
	"order_cars",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create inserts a new order row.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	query, args, err := r.sb.Insert(ordersTable).
		Columns(orderColumns...).
		Values(
			o.ID,
			o.RentalDateStart,
			o.RentalDateEnd,
			o.RentalTime,
			o.TotalCost,
			o.Prepayment,
			string(o.Status),
			o.CustomerID,
			o.OrderCars,
		).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build insert")
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// Get returns a single order. Returns order.ErrNotFound when no row matches.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	query, args, err := r.sb.Select(orderColumns...).
		From(ordersTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// List returns every order in insertion order.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	query, args, err := r.sb.Select(orderColumns...).
		From(ordersTable).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Update writes every set field of f in one statement and returns the row
// as stored afterwards.
func (r *OrderRepository) Update(ctx context.Context, id string, f order.Fields) (*order.Order, error) {
	if f.IsEmpty() {
		return r.Get(ctx, id)
	}

	set := map[string]any{"updated_at": sq.Expr("now()")}
	if f.RentalDateStart != nil {
		set["rental_date_start"] = *f.RentalDateStart
	}
	if f.RentalDateEnd != nil {
		set["rental_date_end"] = *f.RentalDateEnd
	}
	if f.RentalTime != nil {
		set["rental_time"] = *f.RentalTime
	}
	if f.TotalCost != nil {
		set["total_cost"] = *f.TotalCost
	}
	if f.Prepayment != nil {
		set["prepayment"] = *f.Prepayment
	}
	if f.Status != nil {
		set["status"] = string(*f.Status)
	}
	if f.OrderCars != nil {
		set["order_cars"] = f.OrderCars
	}

	query, args, err := r.sb.Update(ordersTable).
		SetMap(set).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build update")
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "update order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrNotFound
	}

	return r.Get(ctx, id)
}

// Delete removes an order. Returns order.ErrNotFound when no row matches.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	query, args, err := r.sb.Delete(ordersTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build delete")
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.RentalDateStart, &o.RentalDateEnd, &o.RentalTime,
		&o.TotalCost, &o.Prepayment, &status, &o.CustomerID, &o.OrderCars,
	)
	o.Status = order.Status(status)
	return o, err
}
