package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

func (q *Queries) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := q.db.Query(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func (q *Queries) ListActiveRewards(ctx context.Context) ([]Reward, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, min_subtotal, discount_amount, active
		FROM rewards WHERE active = true
		ORDER BY min_subtotal ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rewards []Reward
	for rows.Next() {
		var r Reward
		if err := rows.Scan(&r.ID, &r.Name, &r.MinSubtotal, &r.DiscountAmount, &r.Active); err != nil {
			return nil, err
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

type CreateRewardParams struct {
	Name           string
	MinSubtotal    pgtype.Numeric
	DiscountAmount pgtype.Numeric
}

func (q *Queries) CreateReward(ctx context.Context, arg CreateRewardParams) (Reward, error) {
	var r Reward
	err := q.db.QueryRow(ctx, `
		INSERT INTO rewards (name, min_subtotal, discount_amount)
		VALUES ($1, $2, $3)
		RETURNING id, name, min_subtotal, discount_amount, active`,
		arg.Name, arg.MinSubtotal, arg.DiscountAmount,
	).Scan(&r.ID, &r.Name, &r.MinSubtotal, &r.DiscountAmount, &r.Active)
	return r, err
}
