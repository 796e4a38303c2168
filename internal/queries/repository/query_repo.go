package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/querypad/querypad-backend/internal/queries/domain"
)

type QueryRepo struct {
	db *pgxpool.Pool
}

func NewQueryRepo(db *pgxpool.Pool) *QueryRepo {
	return &QueryRepo{db: db}
}

const queryColumns = `
id, version, name, coalesce(description, ''), query, query_hash, api_key,
user_id, coalesce(last_modified_by_id, ''), is_archived, is_draft,
coalesce(schedule, ''), coalesce(options, '{}'::jsonb),
coalesce(data_source_id, 0), coalesce(latest_query_result_id, 0),
created_at, updated_at`

func scanQuery(row pgx.Row) (*domain.Query, error) {
	var q domain.Query
	var options []byte
	err := row.Scan(
		&q.ID, &q.Version, &q.Name, &q.Description, &q.Query, &q.QueryHash,
		&q.APIKey, &q.UserID, &q.LastModifiedByID, &q.IsArchived, &q.IsDraft,
		&q.Schedule, &options, &q.DataSourceID, &q.LatestQueryResultID,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("decode query options: %w", err)
		}
	}
	return &q, nil
}

type CreateQuery struct {
	UserID       string
	Name         string
	Description  string
	Query        string
	DataSourceID int64
	IsDraft      bool
}

// Create inserts a new query at version 1 together with its default
// TABLE visualization.
func (r *QueryRepo) Create(ctx context.Context, in CreateQuery) (*domain.Query, error) {
	if in.Name == "" {
		in.Name = "New Query"
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
insert into queries (version, name, description, query, query_hash, api_key,
                     user_id, last_modified_by_id, is_draft, data_source_id)
values (1, $1, nullif($2, ''), $3, $4, $5, $6, $6, $7, nullif($8, 0))
returning ` + queryColumns + `;
`
	created, err := scanQuery(tx.QueryRow(ctx, q,
		in.Name, in.Description, in.Query,
		domain.HashQuery(in.Query),
		domain.GenerateAPIKey(in.Query, in.UserID, in.Name),
		in.UserID, in.IsDraft, in.DataSourceID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert query: %w", err)
	}

	if err := insertVisualization(ctx, tx, created.ID, domain.VisualizationTypeTable, "Table", "", map[string]interface{}{}); err != nil {
		return nil, fmt.Errorf("default visualization: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (r *QueryRepo) Get(ctx context.Context, id int64) (*domain.Query, error) {
	const q = `select ` + queryColumns + ` from queries where id = $1;`

	res, err := scanQuery(r.db.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQueryNotFound
	}
	return res, err
}

type SaveQuery struct {
	ID          int64
	Version     int // version the caller last read
	UserID      string
	Name        string
	Description string
	Query       string
	Options     map[string]interface{}
}

// Save applies an optimistic-concurrency update: the stored version must
// still equal the version the caller last read, otherwise the row was
// modified concurrently and domain.ErrVersionConflict is returned. On
// success the version is bumped and a change row is recorded.
func (r *QueryRepo) Save(ctx context.Context, in SaveQuery) (*domain.Query, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const sel = `select ` + queryColumns + ` from queries where id = $1 for update;`
	old, err := scanQuery(tx.QueryRow(ctx, sel, in.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQueryNotFound
	}
	if err != nil {
		return nil, err
	}

	if old.Version != in.Version {
		return nil, domain.ErrVersionConflict
	}

	options, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}

	const upd = `
update queries
set version = version + 1,
    name = $2,
    description = nullif($3, ''),
    query = $4,
    query_hash = $5,
    options = $6,
    last_modified_by_id = $7,
    updated_at = now()
where id = $1
returning ` + queryColumns + `;
`
	saved, err := scanQuery(tx.QueryRow(ctx, upd,
		in.ID, in.Name, in.Description, in.Query,
		domain.HashQuery(in.Query), options, in.UserID,
	))
	if err != nil {
		return nil, fmt.Errorf("update query: %w", err)
	}

	changes := diffQueries(old, saved)
	if err := recordChange(ctx, tx, "queries", saved.ID, saved.Version, in.UserID, changes); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// Fork copies a query into a new one owned by forkingUserID. The copy
// starts at version 1 with a fresh api key, keeps the source's text,
// description, data source and latest result pointer, and inherits the
// source's non-TABLE visualizations plus a fresh default TABLE one.
func (r *QueryRepo) Fork(ctx context.Context, id int64, forkingUserID string) (*domain.Query, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const sel = `select ` + queryColumns + ` from queries where id = $1;`
	src, err := scanQuery(tx.QueryRow(ctx, sel, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQueryNotFound
	}
	if err != nil {
		return nil, err
	}

	name := domain.ForkName(src.ID, src.Name)

	const ins = `
insert into queries (version, name, description, query, query_hash, api_key,
                     user_id, last_modified_by_id, is_draft,
                     data_source_id, latest_query_result_id)
values (1, $1, nullif($2, ''), $3, $4, $5, $6, $6, true, nullif($7, 0), nullif($8, 0))
returning ` + queryColumns + `;
`
	forked, err := scanQuery(tx.QueryRow(ctx, ins,
		name, src.Description, src.Query, src.QueryHash,
		domain.GenerateAPIKey(src.Query, forkingUserID, name),
		forkingUserID, src.DataSourceID, src.LatestQueryResultID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert fork: %w", err)
	}

	if err := insertVisualization(ctx, tx, forked.ID, domain.VisualizationTypeTable, "Table", "", map[string]interface{}{}); err != nil {
		return nil, fmt.Errorf("default visualization: %w", err)
	}

	const copyVis = `
insert into visualizations (query_id, type, name, description, options)
select $2, type, name, description, options
from visualizations
where query_id = $1 and type <> $3;
`
	if _, err := tx.Exec(ctx, copyVis, src.ID, forked.ID, domain.VisualizationTypeTable); err != nil {
		return nil, fmt.Errorf("copy visualizations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return forked, nil
}

// Archive soft-deletes a query and clears its schedule so the sweeper
// stops refreshing it.
func (r *QueryRepo) Archive(ctx context.Context, id int64, userID string) error {
	const q = `
update queries
set is_archived = true, schedule = null, updated_at = now()
where id = $1 and not is_archived;
`
	ct, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrQueryNotFound
	}
	return nil
}

func (r *QueryRepo) UpdateSchedule(ctx context.Context, id int64, schedule string) error {
	const q = `
update queries
set schedule = nullif($2, ''), updated_at = now()
where id = $1 and not is_archived;
`
	ct, err := r.db.Exec(ctx, q, id, schedule)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrQueryNotFound
	}
	return nil
}

func (r *QueryRepo) UpdateLatestResult(ctx context.Context, id, resultID int64) error {
	const q = `update queries set latest_query_result_id = $2 where id = $1;`
	_, err := r.db.Exec(ctx, q, id, resultID)
	return err
}

func (r *QueryRepo) List(ctx context.Context, userID string, drafts bool) ([]domain.Query, error) {
	const q = `
select ` + queryColumns + `
from queries
where not is_archived and (not is_draft or (is_draft and user_id = $1 and $2))
order by created_at desc;
`
	return r.collect(ctx, q, userID, drafts)
}

func (r *QueryRepo) Search(ctx context.Context, term string) ([]domain.Query, error) {
	const q = `
select ` + queryColumns + `
from queries
where not is_archived and (name ilike '%' || $1 || '%' or description ilike '%' || $1 || '%')
order by updated_at desc
limit 50;
`
	return r.collect(ctx, q, term)
}

func (r *QueryRepo) Recent(ctx context.Context, userID string, limit int) ([]domain.Query, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
select ` + queryColumns + `
from queries
where not is_archived and (user_id = $1 or last_modified_by_id = $1)
order by updated_at desc
limit $2;
`
	return r.collect(ctx, q, userID, limit)
}

// ScheduledQuery pairs a scheduled query with the time its latest result
// was retrieved, for the outdated-query sweep.
type ScheduledQuery struct {
	Query       domain.Query
	RetrievedAt time.Time
}

func (r *QueryRepo) Scheduled(ctx context.Context) ([]ScheduledQuery, error) {
	q := `
select ` + qualifiedQueryColumns("q") + `, r.retrieved_at
from queries q
join query_results r on q.latest_query_result_id = r.id
where q.schedule is not null and not q.is_archived;
`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ScheduledQuery, 0, 16)
	for rows.Next() {
		var sq ScheduledQuery
		var options []byte
		qr := &sq.Query
		err := rows.Scan(
			&qr.ID, &qr.Version, &qr.Name, &qr.Description, &qr.Query, &qr.QueryHash,
			&qr.APIKey, &qr.UserID, &qr.LastModifiedByID, &qr.IsArchived, &qr.IsDraft,
			&qr.Schedule, &options, &qr.DataSourceID, &qr.LatestQueryResultID,
			&qr.CreatedAt, &qr.UpdatedAt, &sq.RetrievedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &qr.Options); err != nil {
				return nil, fmt.Errorf("decode query options: %w", err)
			}
		}
		out = append(out, sq)
	}
	return out, rows.Err()
}

func (r *QueryRepo) collect(ctx context.Context, q string, args ...interface{}) ([]domain.Query, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Query, 0, 16)
	for rows.Next() {
		item, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func qualifiedQueryColumns(alias string) string {
	return fmt.Sprintf(`
%[1]s.id, %[1]s.version, %[1]s.name, coalesce(%[1]s.description, ''), %[1]s.query,
%[1]s.query_hash, %[1]s.api_key, %[1]s.user_id, coalesce(%[1]s.last_modified_by_id, ''),
%[1]s.is_archived, %[1]s.is_draft, coalesce(%[1]s.schedule, ''),
coalesce(%[1]s.options, '{}'::jsonb), coalesce(%[1]s.data_source_id, 0),
coalesce(%[1]s.latest_query_result_id, 0), %[1]s.created_at, %[1]s.updated_at`, alias)
}

func diffQueries(old, updated *domain.Query) map[string]domain.FieldChange {
	changes := make(map[string]domain.FieldChange)
	if old.Name != updated.Name {
		changes["name"] = domain.FieldChange{Previous: old.Name, Current: updated.Name}
	}
	if old.Description != updated.Description {
		changes["description"] = domain.FieldChange{Previous: old.Description, Current: updated.Description}
	}
	if old.Query != updated.Query {
		changes["query"] = domain.FieldChange{Previous: old.Query, Current: updated.Query}
	}
	if old.Schedule != updated.Schedule {
		changes["schedule"] = domain.FieldChange{Previous: old.Schedule, Current: updated.Schedule}
	}
	return changes
}

func recordChange(ctx context.Context, tx pgx.Tx, objectType string, objectID int64, version int, userID string, changes map[string]domain.FieldChange) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}

	const q = `
insert into changes (object_type, object_id, object_version, user_id, change)
values ($1, $2, $3, $4, $5);
`
	if _, err := tx.Exec(ctx, q, objectType, objectID, version, userID, payload); err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}

// Changes returns the audit trail for a query, newest first.
func (r *QueryRepo) Changes(ctx context.Context, queryID int64) ([]domain.Change, error) {
	const q = `
select id, object_type, object_id, object_version, user_id, change, created_at
from changes
where object_type = 'queries' and object_id = $1
order by created_at desc;
`
	rows, err := r.db.Query(ctx, q, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Change, 0, 8)
	for rows.Next() {
		var c domain.Change
		var payload []byte
		if err := rows.Scan(&c.ID, &c.ObjectType, &c.ObjectID, &c.ObjectVersion, &c.UserID, &payload, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &c.Change); err != nil {
			return nil, fmt.Errorf("decode change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
