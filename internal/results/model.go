// Package results stores query results in Postgres with a Redis
// latest-by-hash cache in front, and exports result payloads to S3.
package results

import (
	"encoding/json"
	"time"
)

type QueryResult struct {
	ID           int64           `json:"id"`
	QueryHash    string          `json:"query_hash"`
	Query        string          `json:"query"`
	Data         json.RawMessage `json:"data"`
	Runtime      float64         `json:"runtime"`
	DataSourceID int64           `json:"data_source_id"`
	RetrievedAt  time.Time       `json:"retrieved_at"`
}
