package datasources

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("data source not found")

type DataSource struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

func (r *Repo) List(ctx context.Context) ([]DataSource, error) {
	const q = `
select id, name, type, created_at, updated_at
from data_sources
order by name;
`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DataSource, 0, 8)
	for rows.Next() {
		var ds DataSource
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.Type, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id int64) (*DataSource, error) {
	const q = `select id, name, type, created_at, updated_at from data_sources where id = $1;`

	var ds DataSource
	err := r.db.QueryRow(ctx, q, id).Scan(&ds.ID, &ds.Name, &ds.Type, &ds.CreatedAt, &ds.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}
