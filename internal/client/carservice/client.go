// Package carservice is the HTTP client of the car service.
package carservice

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/car-rental-orders/internal/client"
	"github.com/xenking/car-rental-orders/internal/domain/car"
)

const statusPath = "car-status/"

var _ car.Catalog = (*Client)(nil)

// Client reads and patches cars through the car service REST API.
// Calls are never retried.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for the car collection rooted at baseURL,
// e.g. http://cars:8000/api/v1/cars/.
func New(baseURL string, opts client.Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse car service url")
	}
	return &Client{
		base: base,
		http: client.NewHTTPClient(opts),
	}, nil
}

// FetchCars issues one GET for all ids. Missing ids are not an error here.
func (c *Client) FetchCars(ctx context.Context, ids []int64, status car.Status) ([]car.Car, error) {
	u := *c.base
	q := idsQuery(ids)
	if status != "" {
		q.Set("status", string(status))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	return c.do(req)
}

// SetCarsStatus issues one bulk PATCH. A 404 means one of the cars is gone.
func (c *Client) SetCarsStatus(ctx context.Context, ids []int64, status car.Status) ([]car.Car, error) {
	u := c.base.JoinPath(statusPath)
	u.RawQuery = idsQuery(ids).Encode()

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(string(status))
	e.ObjEnd()

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u.String(), bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]car.Car, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(car.ErrUnavailable, "%s %s: %s", req.Method, req.URL.Path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && req.Method == http.MethodPatch:
		client.Drain(resp)
		return nil, car.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		client.Drain(resp)
		return nil, errors.Wrapf(car.ErrUnavailable, "%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	data, err := client.ReadBody(resp)
	if err != nil {
		return nil, errors.Wrapf(car.ErrUnavailable, "%s", err)
	}
	cars, err := DecodeCars(data)
	if err != nil {
		return nil, errors.Wrapf(car.ErrUnavailable, "decode cars: %s", err)
	}
	return cars, nil
}

func idsQuery(ids []int64) url.Values {
	q := make(url.Values, 2)
	for _, id := range ids {
		q.Add("car_ids", strconv.FormatInt(id, 10))
	}
	return q
}

// DecodeCars decodes a JSON array of car records.
func DecodeCars(data []byte) ([]car.Car, error) {
	cars := []car.Car{}
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var c car.Car
		if err := decodeCar(d, &c); err != nil {
			return err
		}
		cars = append(cars, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cars, nil
}

func decodeCar(d *jx.Decoder, c *car.Car) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}

		var err error
		switch string(key) {
		case "id":
			c.ID, err = d.Int64()
		case "car_description":
			c.Description, err = d.Str()
		case "car_number":
			c.Number, err = d.Str()
		case "transmission":
			c.Transmission, err = d.Str()
		case "engine":
			c.Engine, err = d.Str()
		case "year":
			c.Year, err = d.Int()
		case "status":
			var s string
			s, err = d.Str()
			c.Status = car.Status(s)
		case "image":
			c.Image, err = d.Str()
		case "rental_cost":
			c.RentalCost, err = decodeDecimal(d)
		case "car_station_id":
			c.CarStationID, err = d.Int64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}
