package rewards

import (
	"context"
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tabletab/api/internal/database"
)

type mockStore struct {
	rewards []database.Reward
	err     error
}

func (m *mockStore) ListActiveRewards(ctx context.Context) ([]database.Reward, error) {
	return m.rewards, m.err
}

func numeric(v int64) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(v), Exp: 0, Valid: true}
}

func TestEligibleOffers_FiltersByMinSubtotal(t *testing.T) {
	store := &mockStore{rewards: []database.Reward{
		{ID: uuid.New(), Name: "Lunch Deal", MinSubtotal: numeric(2000), DiscountAmount: numeric(200), Active: true},
		{ID: uuid.New(), Name: "Big Table", MinSubtotal: numeric(8000), DiscountAmount: numeric(1000), Active: true},
	}}
	svc := NewService(store)

	offers, err := svc.EligibleOffers(context.Background(), decimal.NewFromInt(3500))
	if err != nil {
		t.Fatalf("eligible offers: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}
	if offers[0].Name != "Lunch Deal" {
		t.Errorf("offer = %q, want Lunch Deal", offers[0].Name)
	}
	if !offers[0].DiscountAmount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("discount = %s, want 200", offers[0].DiscountAmount)
	}
}

func TestEligibleOffers_NoneEligible(t *testing.T) {
	store := &mockStore{rewards: []database.Reward{
		{ID: uuid.New(), Name: "Big Table", MinSubtotal: numeric(8000), DiscountAmount: numeric(1000), Active: true},
	}}
	svc := NewService(store)

	offers, err := svc.EligibleOffers(context.Background(), decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("eligible offers: %v", err)
	}
	if len(offers) != 0 {
		t.Errorf("got %d offers, want 0", len(offers))
	}
}
