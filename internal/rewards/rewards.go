// Package rewards surfaces the discount offers a tab or order subtotal
// qualifies for. Offers are suggestions only; applying one goes through
// the tab service so the discount invariant stays enforced in one place.
package rewards

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tabletab/api/internal/database"
)

// Store defines the DB methods rewards need. Satisfied by *database.Queries.
type Store interface {
	ListActiveRewards(ctx context.Context) ([]database.Reward, error)
}

type Offer struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// EligibleOffers returns the active rewards whose minimum subtotal is
// met, ordered cheapest threshold first.
func (s *Service) EligibleOffers(ctx context.Context, subtotal decimal.Decimal) ([]Offer, error) {
	rows, err := s.store.ListActiveRewards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rewards: %w", err)
	}

	offers := []Offer{}
	for _, r := range rows {
		minSubtotal := decimal.NewFromBigInt(r.MinSubtotal.Int, r.MinSubtotal.Exp)
		if subtotal.LessThan(minSubtotal) {
			continue
		}
		offers = append(offers, Offer{
			ID:             r.ID,
			Name:           r.Name,
			DiscountAmount: decimal.NewFromBigInt(r.DiscountAmount.Int, r.DiscountAmount.Exp),
		})
	}
	return offers, nil
}
