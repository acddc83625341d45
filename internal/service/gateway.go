package service

import (
	"context"
	"errors"
)

// ErrDeclined is returned when the payment gateway refuses a charge.
var ErrDeclined = errors.New("payment declined")

// Gateway charges an amount against the downstream payment provider.
type Gateway interface {
	Charge(ctx context.Context, amount float64) error
}

// LocalGateway accepts every charge up to Limit.
type LocalGateway struct {
	Limit float64
}

func NewLocalGateway() *LocalGateway {
	return &LocalGateway{Limit: 10000}
}

func (g *LocalGateway) Charge(ctx context.Context, amount float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount > g.Limit {
		return ErrDeclined
	}
	return nil
}
