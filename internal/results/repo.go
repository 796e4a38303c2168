package results

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/querypad/querypad-backend/internal/queries/domain"
)

// Repo persists results in Postgres; the cache rides in front of reads.
// A nil cache is valid and simply means every read hits Postgres.
type Repo struct {
	db    *pgxpool.Pool
	cache *Cache
}

func NewRepo(db *pgxpool.Pool, cache *Cache) *Repo {
	return &Repo{db: db, cache: cache}
}

// Store inserts a freshly retrieved result and refreshes the cache.
func (r *Repo) Store(ctx context.Context, in QueryResult) (*QueryResult, error) {
	if in.QueryHash == "" {
		in.QueryHash = domain.HashQuery(in.Query)
	}
	if in.RetrievedAt.IsZero() {
		in.RetrievedAt = time.Now().UTC()
	}

	const q = `
insert into query_results (query_hash, query, data, runtime, data_source_id, retrieved_at)
values ($1, $2, $3, $4, nullif($5, 0), $6)
returning id;
`
	err := r.db.QueryRow(ctx, q,
		in.QueryHash, in.Query, []byte(in.Data), in.Runtime, in.DataSourceID, in.RetrievedAt,
	).Scan(&in.ID)
	if err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, &in); err != nil {
			// Cache failures must not lose the stored result.
			log.Printf("results: cache set failed: %v", err)
		}
	}

	log.Printf("results: stored result for query (%s); id=%d", in.QueryHash, in.ID)
	return &in, nil
}

// GetLatest returns the newest result for the query text on the data
// source, if one exists within maxAge. maxAge < 0 accepts any age.
func (r *Repo) GetLatest(ctx context.Context, dataSourceID int64, queryText string, maxAge time.Duration) (*QueryResult, error) {
	queryHash := domain.HashQuery(queryText)

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, dataSourceID, queryHash, maxAge)
		if err != nil {
			log.Printf("results: cache get failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	const base = `
select id, query_hash, query, data, runtime, coalesce(data_source_id, 0), retrieved_at
from query_results
where query_hash = $1 and coalesce(data_source_id, 0) = $2
`
	var row pgx.Row
	if maxAge < 0 {
		row = r.db.QueryRow(ctx, base+`order by retrieved_at desc limit 1;`, queryHash, dataSourceID)
	} else {
		row = r.db.QueryRow(ctx, base+`and retrieved_at >= $3 order by retrieved_at desc limit 1;`,
			queryHash, dataSourceID, time.Now().UTC().Add(-maxAge))
	}

	var res QueryResult
	err := row.Scan(&res.ID, &res.QueryHash, &res.Query, &res.Data, &res.Runtime, &res.DataSourceID, &res.RetrievedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest result: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, &res); err != nil {
			log.Printf("results: cache set failed: %v", err)
		}
	}
	return &res, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (*QueryResult, error) {
	const q = `
select id, query_hash, query, data, runtime, coalesce(data_source_id, 0), retrieved_at
from query_results
where id = $1;
`
	var res QueryResult
	err := r.db.QueryRow(ctx, q, id).Scan(&res.ID, &res.QueryHash, &res.Query, &res.Data, &res.Runtime, &res.DataSourceID, &res.RetrievedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("result %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// PurgeUnused deletes results older than the threshold that no query
// points at anymore. Run by the worker.
func (r *Repo) PurgeUnused(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `
delete from query_results qr
where qr.retrieved_at < $1
  and not exists (
    select 1 from queries q where q.latest_query_result_id = qr.id
  );
`
	ct, err := r.db.Exec(ctx, q, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge results: %w", err)
	}
	return ct.RowsAffected(), nil
}
