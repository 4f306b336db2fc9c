package order

import (
	"fmt"
	"time"
)

// Messages of the rental period rules, in evaluation order.
const (
	MsgCarsRequireDates = "When you specify list cars you should specify and rental date"
	MsgStartAfterEnd    = "Rental date start can not be higher than Rental date end"
	MsgStartInPast      = "Rental date start can not be less than today"
	MsgPeriodOutOfRange = "Rent period must be between 1 and 30 days"
)

const (
	minRentalDays = 1
	maxRentalDays = 30
)

// ValidationError reports a violated business rule on client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator checks rental period rules. The first violated rule wins.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Period validates a complete rental period.
func (v *Validator) Period(start, end time.Time) error {
	if !start.Before(end) {
		return &ValidationError{Message: MsgStartAfterEnd}
	}
	// Offsets are dropped on both sides, so a client-supplied zone never
	// shifts the comparison.
	if wallClock(start).Before(wallClock(v.now())) {
		return &ValidationError{Field: "rental_date_start", Message: MsgStartInPast}
	}
	if days := RentalDays(start, end); days < minRentalDays || days > maxRentalDays {
		return &ValidationError{Message: MsgPeriodOutOfRange}
	}
	return nil
}

// Patch validates the dates carried by a partial update on their own.
// A patch with a single date is validated later, once merged with the
// stored order.
func (v *Validator) Patch(p Patch) error {
	if p.OrderCars != nil && (p.RentalDateStart == nil || p.RentalDateEnd == nil) {
		return &ValidationError{Field: "order_cars", Message: MsgCarsRequireDates}
	}
	if p.RentalDateStart == nil || p.RentalDateEnd == nil {
		return nil
	}
	return v.Period(*p.RentalDateStart, *p.RentalDateEnd)
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
