package domain

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Query is a persisted query definition. Version increments on every
// tracked save and backs the optimistic concurrency check.
type Query struct {
	ID                  int64                  `json:"id"`
	Version             int                    `json:"version"`
	Name                string                 `json:"name"`
	Description         string                 `json:"description,omitempty"`
	Query               string                 `json:"query"`
	QueryHash           string                 `json:"query_hash"`
	APIKey              string                 `json:"api_key,omitempty"`
	UserID              string                 `json:"user_id"`
	LastModifiedByID    string                 `json:"last_modified_by_id,omitempty"`
	IsArchived          bool                   `json:"is_archived"`
	IsDraft             bool                   `json:"is_draft"`
	Schedule            string                 `json:"schedule,omitempty"`
	Options             map[string]interface{} `json:"options,omitempty"`
	DataSourceID        int64                  `json:"data_source_id,omitempty"`
	LatestQueryResultID int64                  `json:"latest_query_result_id,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// CanonicalLocation is the stable navigable path for a persisted query.
func (q *Query) CanonicalLocation() string {
	return fmt.Sprintf("/queries/%d", q.ID)
}

// SavedQuery is the immutable outcome of a successful save or fork.
type SavedQuery struct {
	ID      int64
	Query   string
	Version int
}

func (s SavedQuery) CanonicalLocation() string {
	return fmt.Sprintf("/queries/%d", s.ID)
}

// Visualization belongs to a query. Every new query gets a default
// TABLE visualization.
type Visualization struct {
	ID          int64                  `json:"id"`
	QueryID     int64                  `json:"query_id"`
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Options     map[string]interface{} `json:"options"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

const VisualizationTypeTable = "TABLE"

// Change is an audit row written alongside every tracked save.
type Change struct {
	ID            int64                  `json:"id"`
	ObjectType    string                 `json:"object_type"`
	ObjectID      int64                  `json:"object_id"`
	ObjectVersion int                    `json:"object_version"`
	UserID        string                 `json:"user_id"`
	Change        map[string]FieldChange `json:"change"`
	CreatedAt     time.Time              `json:"created_at"`
}

type FieldChange struct {
	Previous interface{} `json:"previous"`
	Current  interface{} `json:"current"`
}

// HashQuery normalizes the query text and returns its md5 hex digest.
// Used to match cached results against query text.
func HashQuery(text string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(strings.ToLower(text))))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey derives a per-query api key from the query contents
// and its owner. sha1 keeps the key a stable 40-char hex string.
func GenerateAPIKey(queryText, userID, name string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d%s%s%s", time.Now().UnixNano(), queryText, userID, name)))
	return hex.EncodeToString(sum[:])
}

// ForkName is the display name given to a forked query.
func ForkName(id int64, name string) string {
	return fmt.Sprintf("Copy of (#%d) %s", id, name)
}
