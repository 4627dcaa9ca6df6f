// Package payment decides whether a checkout amount is authorized. The
// gateway is an interface so the simulated implementation can be swapped for
// a real provider client without touching the checkout coordinator.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/glowmart/checkout/internal/config"
	"github.com/glowmart/checkout/internal/models"
)

var (
	// ErrDeclined is a user-facing decline: the customer should check the
	// payment details and retry.
	ErrDeclined = errors.New("payment declined, check details")
	// ErrNetwork is a transient gateway failure, distinct from a decline but
	// aborting the checkout identically.
	ErrNetwork = errors.New("payment service unavailable")
)

type Authorization struct {
	Reference    string
	AuthorizedAt time.Time
}

type Authorizer interface {
	Authorize(ctx context.Context, details models.PaymentDetails, amountCents int64) (Authorization, error)
}

// SimulatedGateway stands in for a real payment provider. Cash on delivery
// authorizes immediately; every other method pays a fixed latency and then
// draws an outcome: network failure, decline, or success.
type SimulatedGateway struct {
	latency        time.Duration
	declineRate    float64
	networkErrRate float64

	roll func() float64
	now  func() time.Time
}

func NewSimulatedGateway(cfg config.PaymentConfig) *SimulatedGateway {
	return &SimulatedGateway{
		latency:        cfg.Latency,
		declineRate:    cfg.DeclineRate,
		networkErrRate: cfg.NetworkErrRate,
		roll:           rand.Float64,
		now:            time.Now,
	}
}

func (g *SimulatedGateway) Authorize(ctx context.Context, details models.PaymentDetails, amountCents int64) (Authorization, error) {
	if amountCents <= 0 {
		return Authorization{}, fmt.Errorf("%w: non-positive amount", ErrDeclined)
	}

	method := details.Method
	if !method.Enabled {
		return Authorization{}, fmt.Errorf("%w: payment method %s unavailable", ErrDeclined, method.Type)
	}

	if method.Type == models.PaymentCashOnDelivery {
		return Authorization{
			Reference:    "COD-" + uuid.NewString(),
			AuthorizedAt: g.now(),
		}, nil
	}

	if method.RequiresCardDetails {
		if err := checkCard(details, g.now()); err != nil {
			return Authorization{}, err
		}
	}

	// Simulated provider round trip. A cancelled or timed-out context is a
	// network-class failure, never a success.
	select {
	case <-time.After(g.latency):
	case <-ctx.Done():
		return Authorization{}, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
	}

	r := g.roll()
	switch {
	case r < g.networkErrRate:
		return Authorization{}, ErrNetwork
	case r < g.networkErrRate+g.declineRate:
		return Authorization{}, ErrDeclined
	}

	return Authorization{
		Reference:    "PAY-" + uuid.NewString(),
		AuthorizedAt: g.now(),
	}, nil
}

func checkCard(details models.PaymentDetails, now time.Time) error {
	if details.CardNumber == "" || details.CardHolder == "" || details.CVV == "" {
		return fmt.Errorf("%w: incomplete card details", ErrDeclined)
	}
	if details.ExpiryYear < now.Year() ||
		(details.ExpiryYear == now.Year() && details.ExpiryMonth < int(now.Month())) {
		return fmt.Errorf("%w: card expired", ErrDeclined)
	}
	return nil
}
