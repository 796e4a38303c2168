package service

import (
	"context"
	"fmt"
	"log"

	"github.com/querypad/querypad-backend/internal/auth"
	"github.com/querypad/querypad-backend/internal/events"
	"github.com/querypad/querypad-backend/internal/queries/domain"
	"github.com/querypad/querypad-backend/internal/queries/repository"
	"github.com/querypad/querypad-backend/internal/queries/session"
)

// QueryStore is the persistence surface the service needs; satisfied by
// repository.QueryRepo.
type QueryStore interface {
	Create(ctx context.Context, in repository.CreateQuery) (*domain.Query, error)
	Get(ctx context.Context, id int64) (*domain.Query, error)
	Save(ctx context.Context, in repository.SaveQuery) (*domain.Query, error)
	Fork(ctx context.Context, id int64, forkingUserID string) (*domain.Query, error)
	Archive(ctx context.Context, id int64, userID string) error
	UpdateSchedule(ctx context.Context, id int64, schedule string) error
	List(ctx context.Context, userID string, drafts bool) ([]domain.Query, error)
	Search(ctx context.Context, term string) ([]domain.Query, error)
	Recent(ctx context.Context, userID string, limit int) ([]domain.Query, error)
	Changes(ctx context.Context, queryID int64) ([]domain.Change, error)
}

// VisualizationStore is satisfied by repository.VisualizationRepo.
type VisualizationStore interface {
	Get(ctx context.Context, id int64) (*domain.Visualization, error)
	ListForQuery(ctx context.Context, queryID int64) ([]domain.Visualization, error)
	Create(ctx context.Context, queryID int64, visType, name, description string, options map[string]interface{}) (*domain.Visualization, error)
	Delete(ctx context.Context, id int64) error
}

type QueryService struct {
	queries        QueryStore
	visualizations VisualizationStore
	events         events.Recorder
}

func NewQueryService(queries QueryStore, visualizations VisualizationStore, recorder events.Recorder) *QueryService {
	return &QueryService{
		queries:        queries,
		visualizations: visualizations,
		events:         recorder,
	}
}

// SaveQuery implements session.Saver. A new draft is inserted; an
// existing one goes through the optimistic version check. When the text
// matches what is already persisted there is nothing to do and (nil, nil)
// is returned so the session treats the save as a no-op.
func (s *QueryService) SaveQuery(ctx context.Context, draft session.Draft, _ session.SaveOptions) (*domain.SavedQuery, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return nil, fmt.Errorf("no user in context")
	}

	if draft.IsNew {
		created, err := s.queries.Create(ctx, repository.CreateQuery{
			UserID:  userID,
			Query:   draft.Text,
			IsDraft: true,
		})
		if err != nil {
			return nil, err
		}
		s.record(ctx, userID, "create", "query", created.ID, nil)
		return &domain.SavedQuery{ID: created.ID, Query: created.Query, Version: created.Version}, nil
	}

	current, err := s.queries.Get(ctx, draft.QueryID)
	if err != nil {
		return nil, err
	}
	if current.Query == draft.Text {
		return nil, nil
	}

	saved, err := s.queries.Save(ctx, repository.SaveQuery{
		ID:          draft.QueryID,
		Version:     draft.Version,
		UserID:      userID,
		Name:        current.Name,
		Description: current.Description,
		Query:       draft.Text,
		Options:     current.Options,
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, userID, "save", "query", saved.ID, map[string]interface{}{"version": saved.Version})
	return &domain.SavedQuery{ID: saved.ID, Query: saved.Query, Version: saved.Version}, nil
}

// ForkQuery implements session.Forker.
func (s *QueryService) ForkQuery(ctx context.Context, queryID int64) (*domain.SavedQuery, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return nil, fmt.Errorf("no user in context")
	}

	forked, err := s.queries.Fork(ctx, queryID, userID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, userID, "fork", "query", forked.ID, map[string]interface{}{"source_id": queryID})
	return &domain.SavedQuery{ID: forked.ID, Query: forked.Query, Version: forked.Version}, nil
}

func (s *QueryService) Create(ctx context.Context, in repository.CreateQuery) (*domain.Query, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return nil, fmt.Errorf("no user in context")
	}
	in.UserID = userID

	created, err := s.queries.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.record(ctx, userID, "create", "query", created.ID, nil)
	return created, nil
}

func (s *QueryService) Get(ctx context.Context, id int64) (*domain.Query, error) {
	return s.queries.Get(ctx, id)
}

// Update is the direct REST save path: name, description, options and
// text all at once, still guarded by the optimistic version check.
func (s *QueryService) Update(ctx context.Context, in repository.SaveQuery) (*domain.Query, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return nil, fmt.Errorf("no user in context")
	}
	in.UserID = userID

	saved, err := s.queries.Save(ctx, in)
	if err != nil {
		return nil, err
	}
	s.record(ctx, userID, "save", "query", saved.ID, map[string]interface{}{"version": saved.Version})
	return saved, nil
}

func (s *QueryService) Archive(ctx context.Context, id int64) error {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return fmt.Errorf("no user in context")
	}

	if err := s.queries.Archive(ctx, id, userID); err != nil {
		return err
	}
	s.record(ctx, userID, "archive", "query", id, nil)
	return nil
}

func (s *QueryService) UpdateSchedule(ctx context.Context, id int64, schedule string) error {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return fmt.Errorf("no user in context")
	}

	if err := s.queries.UpdateSchedule(ctx, id, schedule); err != nil {
		return err
	}
	s.record(ctx, userID, "update_schedule", "query", id, map[string]interface{}{"schedule": schedule})
	return nil
}

func (s *QueryService) List(ctx context.Context, drafts bool) ([]domain.Query, error) {
	return s.queries.List(ctx, auth.UserIDFromContext(ctx), drafts)
}

func (s *QueryService) Search(ctx context.Context, term string) ([]domain.Query, error) {
	return s.queries.Search(ctx, term)
}

func (s *QueryService) Recent(ctx context.Context, limit int) ([]domain.Query, error) {
	return s.queries.Recent(ctx, auth.UserIDFromContext(ctx), limit)
}

func (s *QueryService) Changes(ctx context.Context, queryID int64) ([]domain.Change, error) {
	return s.queries.Changes(ctx, queryID)
}

func (s *QueryService) Visualizations(ctx context.Context, queryID int64) ([]domain.Visualization, error) {
	return s.visualizations.ListForQuery(ctx, queryID)
}

func (s *QueryService) CreateVisualization(ctx context.Context, queryID int64, visType, name, description string, options map[string]interface{}) (*domain.Visualization, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return nil, fmt.Errorf("no user in context")
	}

	// The query must exist and be visible before hanging a viz off it.
	if _, err := s.queries.Get(ctx, queryID); err != nil {
		return nil, err
	}

	v, err := s.visualizations.Create(ctx, queryID, visType, name, description, options)
	if err != nil {
		return nil, err
	}
	s.record(ctx, userID, "create", "visualization", v.ID, map[string]interface{}{"query_id": queryID})
	return v, nil
}

// DeleteVisualization removes a visualization by id. The client resets
// its active tab and fragment on its side; the API only deletes.
func (s *QueryService) DeleteVisualization(ctx context.Context, id int64) error {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return fmt.Errorf("no user in context")
	}

	v, err := s.visualizations.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.visualizations.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, userID, "delete", "visualization", id, map[string]interface{}{"query_id": v.QueryID})
	return nil
}

// record is fire-and-forget: event loss never fails a user action.
func (s *QueryService) record(ctx context.Context, userID, action, objectType string, objectID int64, props map[string]interface{}) {
	if s.events == nil {
		return
	}
	e := events.New(userID, action, objectType, fmt.Sprintf("%d", objectID))
	e.AdditionalProperties = props
	if err := s.events.Record(ctx, e); err != nil {
		log.Printf("record event %s: %v", action, err)
	}
}
