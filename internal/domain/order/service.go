package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/car-rental-orders/internal/domain/car"
	"github.com/xenking/car-rental-orders/internal/domain/identity"
)

const instrumentationName = "github.com/xenking/car-rental-orders/internal/domain/order"

// Option configures a Service.
type Option func(*options)

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	reservations   Reserver
	now            func() time.Time
}

// WithTracerProvider sets the tracer provider used for workflow spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithReserver replaces the default car-status reservation.
func WithReserver(r Reserver) Option {
	return func(o *options) { o.reservations = r }
}

// WithClock sets the clock used by rental period validation.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Service implements the order lifecycle across the order store, the car
// service and the identity service.
//
// There is no cross-service transaction. Every upstream failure aborts the
// operation as is: nothing is retried and nothing is compensated.
type Service struct {
	orders       Repository
	cars         car.Catalog
	users        identity.Resolver
	reservations Reserver
	validator    *Validator

	tracer  trace.Tracer
	created metric.Int64Counter
}

// NewService creates an order Service with the required dependencies.
func NewService(
	orders Repository,
	cars car.Catalog,
	users identity.Resolver,
	opts ...Option,
) (*Service, error) {
	o := options{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.reservations == nil {
		o.reservations = NewCarReserver(cars)
	}

	created, err := o.meterProvider.Meter(instrumentationName).Int64Counter("orders.created",
		metric.WithDescription("Total of all created orders"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}

	return &Service{
		orders:       orders,
		cars:         cars,
		users:        users,
		reservations: o.reservations,
		validator:    &Validator{now: o.now},
		tracer:       o.tracerProvider.Tracer(instrumentationName),
		created:      created,
	}, nil
}

// List returns every order regardless of owner.
func (s *Service) List(ctx context.Context) (_ []Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.List")
	defer endSpan(span, &rerr)

	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Create validates the rental period, prices the requested cars, persists
// the order and reserves its cars.
//
// The reservation runs after the order is stored. When it fails the error is
// returned, but the order stays persisted without reserved cars. Its id is
// logged at error level and the order is only discoverable through List.
func (s *Service) Create(ctx context.Context, token string, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer endSpan(span, &rerr)

	if err := s.validator.Period(req.RentalDateStart, req.RentalDateEnd); err != nil {
		return nil, err
	}

	user, err := s.users.Resolve(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "resolve user")
	}

	days := RentalDays(req.RentalDateStart, req.RentalDateEnd)
	total, err := s.price(ctx, req.OrderCars, car.StatusActive, days)
	if err != nil {
		return nil, errors.Wrap(err, "price cars")
	}

	o := &Order{
		ID:              uuid.New().String(),
		RentalDateStart: req.RentalDateStart,
		RentalDateEnd:   req.RentalDateEnd,
		RentalTime:      days,
		TotalCost:       total,
		Prepayment:      req.Prepayment,
		Status:          req.Status,
		CustomerID:      user.ID,
		OrderCars:       req.OrderCars,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(o.Status))))
	span.SetAttributes(attribute.String("order.id", o.ID))

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	if err := s.reservations.Reserve(ctx, o.ID, o.OrderCars); err != nil {
		lg.Error("Order persisted without car reservation", zap.Error(err))
		return nil, err
	}

	lg.Info("Order created",
		zap.String("customer_id", o.CustomerID),
		zap.Int("rental_time", o.RentalTime),
		zap.Stringer("total_cost", o.TotalCost),
	)
	return o, nil
}

// GetWithCars returns an owned order with its cars expanded.
func (s *Service) GetWithCars(ctx context.Context, token, id string) (_ *WithCars, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.GetWithCars", trace.WithAttributes(attribute.String("order.id", id)))
	defer endSpan(span, &rerr)

	o, err := s.owned(ctx, token, id)
	if err != nil {
		return nil, err
	}

	ids := uniqueIDs(o.OrderCars)
	cars, err := s.cars.FetchCars(ctx, ids, "")
	if err != nil {
		return nil, errors.Wrap(err, "fetch order cars")
	}
	if err := checkCoverage(ids, cars); err != nil {
		return nil, err
	}

	return &WithCars{Order: *o, Cars: cars}, nil
}

// Update applies a partial update to an owned order. When the rental period
// changes, rental time and total cost are recomputed from fresh car prices
// and written in the same update.
func (s *Service) Update(ctx context.Context, token, id string, p Patch) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Update", trace.WithAttributes(attribute.String("order.id", id)))
	defer endSpan(span, &rerr)

	if err := s.validator.Patch(p); err != nil {
		return nil, err
	}

	existing, err := s.owned(ctx, token, id)
	if err != nil {
		return nil, err
	}

	f := Fields{
		RentalDateStart: p.RentalDateStart,
		RentalDateEnd:   p.RentalDateEnd,
		Prepayment:      p.Prepayment,
		Status:          p.Status,
		OrderCars:       p.OrderCars,
	}

	if p.HasDates() {
		start, end := existing.RentalDateStart, existing.RentalDateEnd
		if p.RentalDateStart != nil {
			start = *p.RentalDateStart
		}
		if p.RentalDateEnd != nil {
			end = *p.RentalDateEnd
		}
		if p.RentalDateStart == nil || p.RentalDateEnd == nil {
			if err := s.validator.Period(start, end); err != nil {
				return nil, err
			}
		}

		ids := existing.OrderCars
		if p.OrderCars != nil {
			ids = p.OrderCars
		}
		days := RentalDays(start, end)
		total, err := s.price(ctx, ids, "", days)
		if err != nil {
			return nil, errors.Wrap(err, "price cars")
		}
		f.RentalTime = &days
		f.TotalCost = &total
	}

	updated, err := s.orders.Update(ctx, id, f)
	if err != nil {
		return nil, errors.Wrap(err, "update order")
	}

	zctx.From(ctx).Info("Order updated", zap.String("order_id", id))
	return updated, nil
}

// Delete removes an owned order. Reserved cars are not released.
func (s *Service) Delete(ctx context.Context, token, id string) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer endSpan(span, &rerr)

	if _, err := s.owned(ctx, token, id); err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete order")
	}

	zctx.From(ctx).Info("Order deleted", zap.String("order_id", id))
	return nil
}

// owned resolves the caller and loads the order. Existence is checked before
// ownership, so a missing order is never reported as foreign.
func (s *Service) owned(ctx context.Context, token, id string) (*Order, error) {
	user, err := s.users.Resolve(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "resolve user")
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.CustomerID != user.ID {
		return nil, ErrNotOwner
	}
	return o, nil
}

// price fetches the cars in one call and returns their total for days.
// Every listed id contributes its car's cost, duplicates included.
func (s *Service) price(ctx context.Context, ids []int64, status car.Status, days int) (decimal.Decimal, error) {
	unique := uniqueIDs(ids)
	cars, err := s.cars.FetchCars(ctx, unique, status)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "fetch cars")
	}
	if err := checkCoverage(unique, cars); err != nil {
		return decimal.Zero, err
	}

	costs := make(map[int64]decimal.Decimal, len(cars))
	for _, c := range cars {
		costs[c.ID] = c.RentalCost
	}
	unit := make([]decimal.Decimal, len(ids))
	for i, id := range ids {
		unit[i] = costs[id]
	}
	return TotalCost(unit, days), nil
}

// checkCoverage requires the returned cars to be exactly the requested ones.
func checkCoverage(ids []int64, cars []car.Car) error {
	missing, extra := car.Mismatch(ids, cars)
	if len(missing) > 0 || len(extra) > 0 {
		return errors.Wrapf(car.ErrNotFound, "cars missing %v, unexpected %v", missing, extra)
	}
	return nil
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, "")
	}
	span.End()
}
