package database

import (
	"context"

	"github.com/google/uuid"
)

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, `
		SELECT id, full_name, email, hashed_password, role, created_at
		FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.HashedPassword, &u.Role, &u.CreatedAt)
	return u, err
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, `
		SELECT id, full_name, email, hashed_password, role, created_at
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.HashedPassword, &u.Role, &u.CreatedAt)
	return u, err
}

type CreateUserParams struct {
	FullName       string
	Email          string
	HashedPassword string
	Role           string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, `
		INSERT INTO users (full_name, email, hashed_password, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, full_name, email, hashed_password, role, created_at`,
		arg.FullName, arg.Email, arg.HashedPassword, arg.Role,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.HashedPassword, &u.Role, &u.CreatedAt)
	return u, err
}
