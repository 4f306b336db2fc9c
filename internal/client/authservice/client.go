// Package authservice resolves bearer tokens through the auth service.
package authservice

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/car-rental-orders/internal/client"
	"github.com/xenking/car-rental-orders/internal/domain/identity"
)

const introspectPath = "is-user-logged-in"

var _ identity.Resolver = (*Client)(nil)

// Client implements identity.Resolver. Every call is a network round trip;
// nothing is cached.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a Client for the auth service rooted at baseURL,
// e.g. http://auth:8000/api/v1/auth/.
func New(baseURL string, opts client.Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse auth service url")
	}
	return &Client{
		endpoint: base.JoinPath(introspectPath).String(),
		http:     client.NewHTTPClient(opts),
	}, nil
}

// Resolve returns the user owning token.
func (c *Client) Resolve(ctx context.Context, token string) (*identity.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(identity.ErrUnavailable, "introspect: %s", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		client.Drain(resp)
		return nil, identity.ErrUserNotFound
	case http.StatusUnauthorized:
		client.Drain(resp)
		return nil, identity.ErrInvalidCredentials
	default:
		client.Drain(resp)
		return nil, errors.Wrapf(identity.ErrUnavailable, "introspect: status %d", resp.StatusCode)
	}

	data, err := client.ReadBody(resp)
	if err != nil {
		return nil, errors.Wrapf(identity.ErrUnavailable, "%s", err)
	}
	u, err := DecodeUser(data)
	if err != nil {
		return nil, errors.Wrapf(identity.ErrUnavailable, "decode user: %s", err)
	}
	return u, nil
}

// DecodeUser decodes the introspection payload. The id may arrive as a
// string or a number.
func DecodeUser(data []byte) (*identity.User, error) {
	var u identity.User
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}

		var err error
		switch string(key) {
		case "id":
			if d.Next() == jx.Number {
				var n jx.Num
				n, err = d.Num()
				u.ID = n.String()
			} else {
				u.ID, err = d.Str()
			}
		case "user_name":
			u.UserName, err = d.Str()
		case "first_name":
			u.FirstName, err = d.Str()
		case "last_name":
			u.LastName, err = d.Str()
		case "phone":
			u.Phone, err = d.Str()
		case "passport":
			u.Passport, err = d.Str()
		case "role":
			var s string
			s, err = d.Str()
			u.Role = identity.Role(s)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, errors.New("user id is empty")
	}
	return &u, nil
}
