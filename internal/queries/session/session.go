package session

import (
	"context"
	"sync"

	"github.com/querypad/querypad-backend/internal/queries/domain"
)

// Draft is the snapshot of session state handed to the save collaborator.
type Draft struct {
	QueryID int64
	Text    string
	Version int
	IsNew   bool
}

// SaveOptions carries the user-facing messages attached to a save.
type SaveOptions struct {
	SuccessMessage string
	ErrorMessage   string
}

// Saver persists a draft. It may return (nil, nil) when there is nothing
// to persist; callers must treat that as a no-op.
type Saver interface {
	SaveQuery(ctx context.Context, draft Draft, opts SaveOptions) (*domain.SavedQuery, error)
}

// Forker copies the query the draft was opened from into a new query
// owned by the forking user.
type Forker interface {
	ForkQuery(ctx context.Context, queryID int64) (*domain.SavedQuery, error)
}

// Outcome reports what the caller should do after a successful save or
// fork. Location is only set when a redirect is expected.
type Outcome struct {
	Saved            *domain.SavedQuery
	Location         string
	Redirect         bool
	PreserveFragment bool
}

// State is a read-only view of the session for the HTTP layer.
type State struct {
	QueryID       int64  `json:"query_id"`
	CurrentText   string `json:"current_text"`
	PersistedText string `json:"persisted_text"`
	Version       int    `json:"version"`
	IsNew         bool   `json:"is_new"`
	IsDirty       bool   `json:"is_dirty"`
}

// Session holds the in-memory text of a query being edited together with
// the last-persisted baseline. Edits may interleave with in-flight saves;
// the dirty flag is always recomputed against the text live at the time a
// result is applied, never against a snapshot taken when the save started.
type Session struct {
	mu sync.Mutex

	queryID       int64
	persistedText string
	currentText   string
	version       int
	isNew         bool
	closed        bool

	saver  Saver
	forker Forker
}

// NewFromQuery opens a session over an existing persisted query.
func NewFromQuery(q *domain.Query, saver Saver, forker Forker) *Session {
	return &Session{
		queryID:       q.ID,
		persistedText: q.Query,
		currentText:   q.Query,
		version:       q.Version,
		saver:         saver,
		forker:        forker,
	}
}

// NewBlank opens a session for a query that has never been saved.
func NewBlank(saver Saver, forker Forker) *Session {
	return &Session{isNew: true, saver: saver, forker: forker}
}

// Edit replaces the working text. Last write wins.
func (s *Session) Edit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.currentText = text
}

// IsDirty reports whether the working text differs from the baseline.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentText != s.persistedText
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		QueryID:       s.queryID,
		CurrentText:   s.currentText,
		PersistedText: s.persistedText,
		Version:       s.version,
		IsNew:         s.isNew,
		IsDirty:       s.currentText != s.persistedText,
	}
}

// Save hands the current draft to the collaborator and reconciles the
// result. The collaborator call runs outside the lock so edits can land
// while the save is in flight.
//
// Returns (nil, nil) when the collaborator declined to persist anything.
// On error the session is left untouched so in-progress edits survive a
// failed save; domain.ErrVersionConflict is passed through unwrapped for
// the 409 path.
func (s *Session) Save(ctx context.Context, opts SaveOptions) (*Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	draft := Draft{
		QueryID: s.queryID,
		Text:    s.currentText,
		Version: s.version,
		IsNew:   s.isNew,
	}
	s.mu.Unlock()

	saved, err := s.saver.SaveQuery(ctx, draft, opts)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Session torn down while the save was in flight. The result
		// must be safely ignorable.
		return nil, nil
	}

	wasNew := s.isNew
	s.queryID = saved.ID
	s.persistedText = saved.Query
	s.version = saved.Version
	s.isNew = false

	out := &Outcome{Saved: saved}
	if wasNew {
		out.Location = saved.CanonicalLocation()
		out.Redirect = true
		out.PreserveFragment = true
	}
	return out, nil
}

// Fork copies the underlying query and rebases the session onto the new
// copy: only the dirty-comparison baseline moves, the working text stays
// as the user left it. No redirect is implied; Duplicate layers that on.
func (s *Session) Fork(ctx context.Context) (*Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	queryID := s.queryID
	s.mu.Unlock()

	forked, err := s.forker.ForkQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil
	}

	s.queryID = forked.ID
	s.persistedText = forked.Query
	s.version = forked.Version
	s.isNew = false

	return &Outcome{Saved: forked}, nil
}

// Duplicate is fork followed by navigation to the new copy, with any
// view fragment cleared rather than preserved.
func (s *Session) Duplicate(ctx context.Context) (*Outcome, error) {
	out, err := s.Fork(ctx)
	if err != nil || out == nil {
		return out, err
	}
	out.Location = out.Saved.CanonicalLocation()
	out.Redirect = true
	out.PreserveFragment = false
	return out, nil
}

// Close tears the session down. Results of in-flight saves or forks that
// resolve afterwards are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
