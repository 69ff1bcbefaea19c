// Package fees computes the service fee, delivery fee and tax applied
// to an order or tab subtotal. Fee settings live in the settings table
// and are cached in-process behind an explicit TTL.
package fees

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/enum"
)

// Defaults used when a settings row is missing or unparseable.
var (
	defaultServiceFeePercent     = decimal.NewFromInt(5)
	defaultTaxPercent            = decimal.RequireFromString("7.5")
	defaultDeliveryFee           = decimal.NewFromInt(500)
	defaultFreeDeliveryThreshold = decimal.NewFromInt(10000)
)

// SettingsStore defines the DB methods the calculator needs.
// Satisfied by *database.Queries.
type SettingsStore interface {
	ListSettings(ctx context.Context) ([]database.Setting, error)
}

type settings struct {
	serviceFeePercent     decimal.Decimal
	taxPercent            decimal.Decimal
	taxEnabled            bool
	deliveryFee           decimal.Decimal
	freeDeliveryThreshold decimal.Decimal
}

// Totals is the fee breakdown for a given subtotal.
type Totals struct {
	ServiceFee  decimal.Decimal
	DeliveryFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// Calculator caches fee settings for ttl; the cache is owned by the
// struct, not package state, so each deployment wires exactly one.
type Calculator struct {
	store SettingsStore
	ttl   time.Duration

	mu      sync.Mutex
	cached  settings
	expires time.Time
}

func NewCalculator(store SettingsStore, ttl time.Duration) *Calculator {
	return &Calculator{store: store, ttl: ttl}
}

// OrderTotals computes the fee breakdown for a subtotal. Delivery fee
// applies to delivery orders only and is waived above the free-delivery
// threshold; dine-in and pickup always carry a zero delivery fee.
func (c *Calculator) OrderTotals(ctx context.Context, subtotal decimal.Decimal, orderType string) (Totals, error) {
	s, err := c.settings(ctx)
	if err != nil {
		return Totals{}, fmt.Errorf("load fee settings: %w", err)
	}

	hundred := decimal.NewFromInt(100)
	serviceFee := subtotal.Mul(s.serviceFeePercent).Div(hundred).Round(2)

	tax := decimal.Zero
	if s.taxEnabled {
		tax = subtotal.Mul(s.taxPercent).Div(hundred).Round(2)
	}

	deliveryFee := decimal.Zero
	if orderType == enum.OrderTypeDelivery && subtotal.LessThan(s.freeDeliveryThreshold) {
		deliveryFee = s.deliveryFee
	}

	return Totals{
		ServiceFee:  serviceFee,
		DeliveryFee: deliveryFee,
		Tax:         tax,
		Total:       subtotal.Add(serviceFee).Add(tax).Add(deliveryFee),
	}, nil
}

func (c *Calculator) settings(ctx context.Context) (settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.expires) {
		return c.cached, nil
	}

	rows, err := c.store.ListSettings(ctx)
	if err != nil {
		// Serve the stale snapshot if we have one; the calculator must
		// not take order creation down with a transient settings read.
		if !c.expires.IsZero() {
			return c.cached, nil
		}
		return settings{}, err
	}

	s := settings{
		serviceFeePercent:     defaultServiceFeePercent,
		taxPercent:            defaultTaxPercent,
		taxEnabled:            true,
		deliveryFee:           defaultDeliveryFee,
		freeDeliveryThreshold: defaultFreeDeliveryThreshold,
	}
	for _, row := range rows {
		switch row.Key {
		case "service_fee_percent":
			if v, err := decimal.NewFromString(row.Value); err == nil {
				s.serviceFeePercent = v
			}
		case "tax_percent":
			if v, err := decimal.NewFromString(row.Value); err == nil {
				s.taxPercent = v
			}
		case "tax_enabled":
			s.taxEnabled = row.Value == "true"
		case "delivery_fee":
			if v, err := decimal.NewFromString(row.Value); err == nil {
				s.deliveryFee = v
			}
		case "free_delivery_threshold":
			if v, err := decimal.NewFromString(row.Value); err == nil {
				s.freeDeliveryThreshold = v
			}
		}
	}

	c.cached = s
	c.expires = time.Now().Add(c.ttl)
	return s, nil
}
