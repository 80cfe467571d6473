package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	jsonapi "gitlab.com/distributed_lab/json-api-connector"
	"gitlab.com/distributed_lab/json-api-connector/cerrors"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
	"golang.org/x/time/rate"
)

var (
	ErrNotFound    = errors.New("order not found")
	ErrRateLimited = errors.New("order book rate limit exceeded")
)

// Client reads orders from the 1inch order book.
type Client struct {
	connector *jsonapi.Connector
	chainID   int64
	limiter   *rate.Limiter
}

func NewClient(connector *jsonapi.Connector, chainID int64, limiter *rate.Limiter) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		connector: connector,
		chainID:   chainID,
		limiter:   limiter,
	}
}

func (c *Client) orderPath(orderHash common.Hash) string {
	return fmt.Sprintf("/orderbook/v4.0/%d/order/%s", c.chainID, orderHash.Hex())
}

// Order returns the order book record for the hash, ErrNotFound when the book has none.
func (c *Client) Order(ctx context.Context, orderHash common.Hash) (*Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to wait for rate limiter")
	}

	u, err := url.Parse(c.orderPath(orderHash))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse url")
	}

	var order Order
	err = c.get(u, &order)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get order from registry", logan.F{
			"order_hash": orderHash.Hex(),
		})
	}
	if order.IsEmpty() {
		return nil, ErrNotFound
	}

	return &order, nil
}

// get reads the record through the connector, which panics on 429 instead of
// returning an error.
func (c *Client) get(u *url.URL, dst interface{}) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = errors.From(ErrRateLimited, logan.F{"recovered": fmt.Sprint(rvr)})
		}
	}()
	return c.connector.Get(u, dst)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if c, ok := err.(cerrors.Error); ok {
		return c.Status() == http.StatusNotFound
	}
	return err.Error() == "not found"
}
