package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/querypad/querypad-backend/internal/queries/domain"
)

type VisualizationRepo struct {
	db *pgxpool.Pool
}

func NewVisualizationRepo(db *pgxpool.Pool) *VisualizationRepo {
	return &VisualizationRepo{db: db}
}

const visualizationColumns = `
id, query_id, type, name, coalesce(description, ''),
coalesce(options, '{}'::jsonb), created_at, updated_at`

func scanVisualization(row pgx.Row) (*domain.Visualization, error) {
	var v domain.Visualization
	var options []byte
	err := row.Scan(&v.ID, &v.QueryID, &v.Type, &v.Name, &v.Description, &options, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &v.Options); err != nil {
			return nil, fmt.Errorf("decode visualization options: %w", err)
		}
	}
	return &v, nil
}

func (r *VisualizationRepo) Create(ctx context.Context, queryID int64, visType, name, description string, options map[string]interface{}) (*domain.Visualization, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := insertVisualizationReturning(ctx, tx, queryID, visType, name, description, options)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (r *VisualizationRepo) Get(ctx context.Context, id int64) (*domain.Visualization, error) {
	const q = `select ` + visualizationColumns + ` from visualizations where id = $1;`

	v, err := scanVisualization(r.db.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrVisualizationNotFound
	}
	return v, err
}

func (r *VisualizationRepo) ListForQuery(ctx context.Context, queryID int64) ([]domain.Visualization, error) {
	const q = `
select ` + visualizationColumns + `
from visualizations
where query_id = $1
order by id;
`
	rows, err := r.db.Query(ctx, q, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Visualization, 0, 4)
	for rows.Next() {
		v, err := scanVisualization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *VisualizationRepo) Delete(ctx context.Context, id int64) error {
	const q = `delete from visualizations where id = $1;`

	ct, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrVisualizationNotFound
	}
	return nil
}

func insertVisualization(ctx context.Context, tx pgx.Tx, queryID int64, visType, name, description string, options map[string]interface{}) error {
	_, err := insertVisualizationReturning(ctx, tx, queryID, visType, name, description, options)
	return err
}

func insertVisualizationReturning(ctx context.Context, tx pgx.Tx, queryID int64, visType, name, description string, options map[string]interface{}) (*domain.Visualization, error) {
	payload, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encode visualization options: %w", err)
	}

	const q = `
insert into visualizations (query_id, type, name, description, options)
values ($1, $2, $3, nullif($4, ''), $5)
returning ` + visualizationColumns + `;
`
	v, err := scanVisualization(tx.QueryRow(ctx, q, queryID, visType, name, description, payload))
	if err != nil {
		return nil, fmt.Errorf("insert visualization: %w", err)
	}
	return v, nil
}
