package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

type UpsertUser struct {
	AuthUID     string
	Email       string
	DisplayName string
}

// EnsureUser upserts a user row for the authenticated identity and
// returns the internal user id.
func (r *Repo) EnsureUser(ctx context.Context, in UpsertUser) (string, error) {
	if in.AuthUID == "" {
		return "", fmt.Errorf("auth uid required")
	}

	const q = `
insert into users (auth_uid, email, display_name)
values ($1, nullif($2, ''), nullif($3, ''))
on conflict (auth_uid) do update
set email = coalesce(excluded.email, users.email),
    display_name = coalesce(excluded.display_name, users.display_name),
    updated_at = now()
returning id::text;
`
	var id string
	if err := r.db.QueryRow(ctx, q, in.AuthUID, in.Email, in.DisplayName).Scan(&id); err != nil {
		return "", fmt.Errorf("ensure user: %w", err)
	}
	return id, nil
}

type User struct {
	ID          string `json:"id"`
	AuthUID     string `json:"auth_uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

func (r *Repo) Get(ctx context.Context, id string) (*User, error) {
	const q = `
select id::text, auth_uid, coalesce(email, ''), coalesce(display_name, '')
from users
where id = $1::uuid;
`
	var u User
	if err := r.db.QueryRow(ctx, q, id).Scan(&u.ID, &u.AuthUID, &u.Email, &u.DisplayName); err != nil {
		return nil, err
	}
	return &u, nil
}
