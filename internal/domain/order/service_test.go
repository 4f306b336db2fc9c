package order

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/car-rental-orders/internal/domain/car"
	"github.com/xenking/car-rental-orders/internal/domain/identity"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byID    map[string]*Order
	ids     []string
	updates []Fields
	err     error
}

func newOrderRepo(orders ...Order) *mockOrderRepo {
	m := &mockOrderRepo{byID: make(map[string]*Order)}
	for i := range orders {
		o := orders[i]
		m.byID[o.ID] = &o
		m.ids = append(m.ids, o.ID)
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.err != nil {
		return m.err
	}
	stored := *o
	m.byID[o.ID] = &stored
	m.ids = append(m.ids, o.ID)
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]Order, error) {
	out := make([]Order, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, *m.byID[id])
	}
	return out, nil
}

func (m *mockOrderRepo) Update(_ context.Context, id string, f Fields) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.updates = append(m.updates, f)
	if f.RentalDateStart != nil {
		o.RentalDateStart = *f.RentalDateStart
	}
	if f.RentalDateEnd != nil {
		o.RentalDateEnd = *f.RentalDateEnd
	}
	if f.RentalTime != nil {
		o.RentalTime = *f.RentalTime
	}
	if f.TotalCost != nil {
		o.TotalCost = *f.TotalCost
	}
	if f.Prepayment != nil {
		o.Prepayment = *f.Prepayment
	}
	if f.Status != nil {
		o.Status = *f.Status
	}
	if f.OrderCars != nil {
		o.OrderCars = f.OrderCars
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	m.ids = slices.DeleteFunc(m.ids, func(s string) bool { return s == id })
	return nil
}

type mockCatalog struct {
	byID     map[int64]car.Car
	fetched  [][]int64
	statuses []car.Status
	patched  [][]int64
	extra    []car.Car // returned by every fetch whatever was asked
	fetchErr error
	patchErr error
}

func newCatalog(cars ...car.Car) *mockCatalog {
	byID := make(map[int64]car.Car, len(cars))
	for _, c := range cars {
		byID[c.ID] = c
	}
	return &mockCatalog{byID: byID}
}

func (m *mockCatalog) FetchCars(_ context.Context, ids []int64, status car.Status) ([]car.Car, error) {
	m.fetched = append(m.fetched, ids)
	m.statuses = append(m.statuses, status)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []car.Car
	for _, id := range ids {
		c, ok := m.byID[id]
		if !ok || (status != "" && c.Status != status) {
			continue
		}
		out = append(out, c)
	}
	return append(out, m.extra...), nil
}

func (m *mockCatalog) SetCarsStatus(_ context.Context, ids []int64, status car.Status) ([]car.Car, error) {
	m.patched = append(m.patched, ids)
	if m.patchErr != nil {
		return nil, m.patchErr
	}
	out := make([]car.Car, 0, len(ids))
	for _, id := range ids {
		c := m.byID[id]
		c.Status = status
		m.byID[id] = c
		out = append(out, c)
	}
	return out, nil
}

type mockResolver struct {
	users map[string]*identity.User
	calls int
	err   error
}

func (m *mockResolver) Resolve(_ context.Context, token string) (*identity.User, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[token]
	if !ok {
		return nil, identity.ErrInvalidCredentials
	}
	return u, nil
}

// --- Helpers ---

var testNow = time.Date(2030, time.March, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func daysFromNow(d int) time.Time {
	return testNow.Add(time.Duration(d) * day)
}

func newTestCar(id int64, cost string) car.Car {
	return car.Car{
		ID:           id,
		Description:  gofakeit.Sentence(4),
		Number:       gofakeit.LetterN(6),
		Transmission: "automatic",
		Engine:       "petrol",
		Year:         gofakeit.IntRange(2010, 2029),
		Status:       car.StatusActive,
		RentalCost:   decimal.RequireFromString(cost),
		CarStationID: 1,
	}
}

func newTestUser() *identity.User {
	return &identity.User{
		ID:        gofakeit.UUID(),
		UserName:  gofakeit.Username(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Phone:     gofakeit.Phone(),
		Role:      identity.RoleCustomer,
	}
}

type fixture struct {
	svc    *Service
	orders *mockOrderRepo
	cars   *mockCatalog
	users  *mockResolver
	alice  *identity.User
	bob    *identity.User
}

func newFixture(t *testing.T, orders *mockOrderRepo, cars *mockCatalog) *fixture {
	t.Helper()

	alice, bob := newTestUser(), newTestUser()
	users := &mockResolver{users: map[string]*identity.User{
		"alice-token": alice,
		"bob-token":   bob,
	}}
	svc, err := NewService(orders, cars, users, WithClock(fixedClock))
	require.NoError(t, err)

	return &fixture{svc: svc, orders: orders, cars: cars, users: users, alice: alice, bob: bob}
}

func storedOrder(id, customerID string, cars ...int64) Order {
	return Order{
		ID:              id,
		RentalDateStart: daysFromNow(1),
		RentalDateEnd:   daysFromNow(4),
		RentalTime:      3,
		TotalCost:       decimal.NewFromInt(75),
		Status:          StatusReservation,
		CustomerID:      customerID,
		OrderCars:       cars,
	}
}

// --- Tests ---

func TestCreate_PricesAndReserves(t *testing.T) {
	f := newFixture(t, newOrderRepo(), newCatalog(newTestCar(1, "25")))

	o, err := f.svc.Create(context.Background(), "alice-token", CreateRequest{
		RentalDateStart: daysFromNow(1),
		RentalDateEnd:   daysFromNow(4),
		Status:          StatusReservation,
		OrderCars:       []int64{1},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, 3, o.RentalTime)
	assert.True(t, decimal.NewFromInt(75).Equal(o.TotalCost), "got %s", o.TotalCost)
	assert.Equal(t, f.alice.ID, o.CustomerID)

	stored, err := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalCost.String(), stored.TotalCost.String())

	assert.Equal(t, []car.Status{car.StatusActive}, f.cars.statuses)
	assert.Equal(t, [][]int64{{1}}, f.cars.patched)
	assert.Equal(t, car.StatusBusy, f.cars.byID[1].Status)
}

func TestCreate_DuplicateCarsPricedAsMultiset(t *testing.T) {
	f := newFixture(t, newOrderRepo(), newCatalog(newTestCar(1, "10.50"), newTestCar(2, "20")))

	o, err := f.svc.Create(context.Background(), "alice-token", CreateRequest{
		RentalDateStart: daysFromNow(1),
		RentalDateEnd:   daysFromNow(3),
		OrderCars:       []int64{1, 1, 2},
	})
	require.NoError(t, err)

	// (10.50 + 10.50 + 20) * 2
	assert.Equal(t, "82", o.TotalCost.String())
	assert.Equal(t, []int64{1, 1, 2}, o.OrderCars)
	assert.Equal(t, [][]int64{{1, 2}}, f.cars.fetched)
	assert.Equal(t, [][]int64{{1, 2}}, f.cars.patched)
}

func TestCreate_ValidatesBeforeResolvingUser(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		msg        string
	}{
		{"start after end", daysFromNow(5), daysFromNow(2), MsgStartAfterEnd},
		{"start equals end", daysFromNow(2), daysFromNow(2), MsgStartAfterEnd},
		{"start in past", daysFromNow(-1), daysFromNow(2), MsgStartInPast},
		{"too long", daysFromNow(1), daysFromNow(32), MsgPeriodOutOfRange},
		{"under a day", daysFromNow(1), daysFromNow(1).Add(23 * time.Hour), MsgPeriodOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, newOrderRepo(), newCatalog(newTestCar(1, "25")))

			_, err := f.svc.Create(context.Background(), "unknown-token", CreateRequest{
				RentalDateStart: tt.start,
				RentalDateEnd:   tt.end,
				OrderCars:       []int64{1},
			})

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.msg, vErr.Message)
			assert.Zero(t, f.users.calls)
			assert.Empty(t, f.cars.fetched)
		})
	}
}

func TestCreate_IdentityErrorsPropagate(t *testing.T) {
	for _, want := range []error{identity.ErrInvalidCredentials, identity.ErrUserNotFound, identity.ErrUnavailable} {
		f := newFixture(t, newOrderRepo(), newCatalog(newTestCar(1, "25")))
		f.users.err = want

		_, err := f.svc.Create(context.Background(), "alice-token", CreateRequest{
			RentalDateStart: daysFromNow(1),
			RentalDateEnd:   daysFromNow(2),
			OrderCars:       []int64{1},
		})
		require.ErrorIs(t, err, want)
		assert.Empty(t, f.orders.ids)
	}
}

func TestCreate_InactiveCarNotFound(t *testing.T) {
	broken := newTestCar(2, "30")
	broken.Status = car.StatusBroken
	f := newFixture(t, newOrderRepo(), newCatalog(newTestCar(1, "25"), broken))

	_, err := f.svc.Create(context.Background(), "alice-token", CreateRequest{
		RentalDateStart: daysFromNow(1),
		RentalDateEnd:   daysFromNow(2),
		OrderCars:       []int64{1, 2},
	})
	require.ErrorIs(t, err, car.ErrNotFound)
	assert.Empty(t, f.orders.ids)
	assert.Empty(t, f.cars.patched)
}

func TestCreate_CarServiceUnavailable(t *testing.T) {
	cars := newCatalog(newTestCar(1, "25"))
	cars.fetchErr = car.ErrUnavailable
	f := newFixture(t, newOrderRepo(), cars)

	_, err := f.svc.Create(context.Background(), "alice-token", CreateRequest{
		RentalDateStart: daysFromNow(1),
		RentalDateEnd:   daysFromNow(2),
		OrderCars:       []int64{1},
	})
	require.ErrorIs(t, err, car.ErrUnavailable)
	assert.Empty(t, f.orders.ids)
}

func TestCreate_ReservationFailureKeepsOrder(t *testing.T) {
	cars := newCatalog(newTestCar(1, "25"))
	cars.patchErr = car.ErrUnavailable
	f := newFixture(t, newOrderRepo(), cars)

	core, logs := observer.New(zapcore.ErrorLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	_, err := f.svc.Create(ctx, "alice-token", CreateRequest{
		RentalDateStart: daysFromNow(1),
		RentalDateEnd:   daysFromNow(2),
		OrderCars:       []int64{1},
	})
	require.ErrorIs(t, err, car.ErrUnavailable)
	require.Len(t, f.orders.ids, 1)

	entries := logs.FilterMessage("Order persisted without car reservation").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, f.orders.ids[0], entries[0].ContextMap()["order_id"])
}

func TestCreate_UnrequestedCarNotFound(t *testing.T) {
	cars := newCatalog(newTestCar(1, "25"))
	cars.extra = []car.Car{newTestCar(99, "1000")}
	f := newFixture(t, newOrderRepo(), cars)

	_, err := f.svc.Create(context.Background(), "alice-token", CreateRequest{
		RentalDateStart: daysFromNow(1),
		RentalDateEnd:   daysFromNow(2),
		OrderCars:       []int64{1},
	})
	require.ErrorIs(t, err, car.ErrNotFound)
	assert.Empty(t, f.orders.ids)
	assert.Empty(t, f.cars.patched)
}

func TestCreate_RepositoryError(t *testing.T) {
	orders := newOrderRepo()
	orders.err = errors.New("connection reset")
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25")))

	_, err := f.svc.Create(context.Background(), "alice-token", CreateRequest{
		RentalDateStart: daysFromNow(1),
		RentalDateEnd:   daysFromNow(2),
		OrderCars:       []int64{1},
	})
	require.Error(t, err)
	assert.Empty(t, f.cars.patched)
}

func TestList_ReturnsEveryOwner(t *testing.T) {
	orders := newOrderRepo(storedOrder("a", "u1", 1), storedOrder("b", "u2", 2))
	f := newFixture(t, orders, newCatalog())

	got, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestGetWithCars(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25"), newTestCar(2, "40")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1, 2, 1))))

	got, err := f.svc.GetWithCars(context.Background(), "alice-token", "o1")
	require.NoError(t, err)

	assert.Equal(t, "o1", got.ID)
	require.Len(t, got.Cars, 2)
	assert.Equal(t, [][]int64{{1, 2}}, f.cars.fetched)
	assert.Equal(t, []car.Status{""}, f.cars.statuses)
}

func TestGetWithCars_NotFoundBeforeNotOwner(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1))))

	_, err := f.svc.GetWithCars(context.Background(), "bob-token", "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetWithCars(context.Background(), "bob-token", "o1")
	require.ErrorIs(t, err, ErrNotOwner)
	assert.Empty(t, f.cars.fetched)
}

func TestGetWithCars_CarGone(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1, 9))))

	_, err := f.svc.GetWithCars(context.Background(), "alice-token", "o1")
	require.ErrorIs(t, err, car.ErrNotFound)
}

func TestGetWithCars_UnrequestedCar(t *testing.T) {
	orders := newOrderRepo()
	cars := newCatalog(newTestCar(1, "25"))
	cars.extra = []car.Car{newTestCar(99, "40")}
	f := newFixture(t, orders, cars)
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1))))

	_, err := f.svc.GetWithCars(context.Background(), "alice-token", "o1")
	require.ErrorIs(t, err, car.ErrNotFound)
}

func TestUpdate_CarsWithoutDatesRejectedBeforeOwnership(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1))))

	_, err := f.svc.Update(context.Background(), "bob-token", "o1", Patch{OrderCars: []int64{1}})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, MsgCarsRequireDates, vErr.Message)
	assert.Equal(t, "order_cars", vErr.Field)
	assert.Zero(t, f.users.calls)
}

func TestUpdate_RecomputesDerivedFields(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1))))

	start, end := daysFromNow(2), daysFromNow(8)
	got, err := f.svc.Update(context.Background(), "alice-token", "o1", Patch{
		RentalDateStart: &start,
		RentalDateEnd:   &end,
	})
	require.NoError(t, err)

	assert.Equal(t, 6, got.RentalTime)
	assert.Equal(t, "150", got.TotalCost.String())
	assert.True(t, start.Equal(got.RentalDateStart))
	assert.Equal(t, []car.Status{""}, f.cars.statuses)

	require.Len(t, orders.updates, 1)
	require.NotNil(t, orders.updates[0].RentalTime)
	require.NotNil(t, orders.updates[0].TotalCost)
}

func TestUpdate_NewCarsRepriced(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25"), newTestCar(2, "10")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1))))

	start, end := daysFromNow(1), daysFromNow(3)
	got, err := f.svc.Update(context.Background(), "alice-token", "o1", Patch{
		RentalDateStart: &start,
		RentalDateEnd:   &end,
		OrderCars:       []int64{2, 2},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 2}, got.OrderCars)
	assert.Equal(t, "40", got.TotalCost.String())
	assert.Equal(t, [][]int64{{2}}, f.cars.fetched)
}

func TestUpdate_SingleDateMergedWithStored(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1))))

	end := daysFromNow(6)
	got, err := f.svc.Update(context.Background(), "alice-token", "o1", Patch{RentalDateEnd: &end})
	require.NoError(t, err)
	assert.Equal(t, 5, got.RentalTime)
	assert.Equal(t, "125", got.TotalCost.String())

	// stored start is daysFromNow(1); an end before it breaks ordering.
	end = testNow
	_, err = f.svc.Update(context.Background(), "alice-token", "o1", Patch{RentalDateEnd: &end})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, MsgStartAfterEnd, vErr.Message)
}

func TestUpdate_ScalarFieldsOnly(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1))))

	prepayment, status := 30, StatusPaid
	got, err := f.svc.Update(context.Background(), "alice-token", "o1", Patch{
		Prepayment: &prepayment,
		Status:     &status,
	})
	require.NoError(t, err)

	assert.Equal(t, 30, got.Prepayment)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, 3, got.RentalTime)
	assert.Empty(t, f.cars.fetched)
	require.Len(t, orders.updates, 1)
	assert.Nil(t, orders.updates[0].TotalCost)
}

func TestUpdate_NotOwner(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1))))

	prepayment := 10
	_, err := f.svc.Update(context.Background(), "bob-token", "o1", Patch{Prepayment: &prepayment})
	require.ErrorIs(t, err, ErrNotOwner)
	assert.Empty(t, orders.updates)
}

func TestDelete(t *testing.T) {
	orders := newOrderRepo()
	f := newFixture(t, orders, newCatalog(newTestCar(1, "25")))
	require.NoError(t, orders.Create(context.Background(), ptr(storedOrder("o1", f.alice.ID, 1))))

	require.ErrorIs(t, f.svc.Delete(context.Background(), "bob-token", "o1"), ErrNotOwner)
	require.NoError(t, f.svc.Delete(context.Background(), "alice-token", "o1"))
	require.ErrorIs(t, f.svc.Delete(context.Background(), "alice-token", "o1"), ErrNotFound)

	// Cars stay reserved after deletion.
	assert.Empty(t, f.cars.patched)
}

func ptr[T any](v T) *T { return &v }
