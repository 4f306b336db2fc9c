package identity

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrUserNotFound is returned when the token belongs to no known user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when the token is rejected.
	ErrInvalidCredentials = errors.New("could not validate credentials")
	// ErrUnavailable is returned on any other identity service failure.
	ErrUnavailable = errors.New("identity service unavailable")
)

// Role of an authenticated user.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleCustomer Role = "customer"
)

// User is the identity resolved from a bearer token.
type User struct {
	ID        string
	UserName  string
	FirstName string
	LastName  string
	Phone     string
	Passport  string
	Role      Role
}

// Resolver resolves an opaque bearer token to a user.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*User, error)
}
