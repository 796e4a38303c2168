package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querypad/querypad-backend/internal/auth"
	"github.com/querypad/querypad-backend/internal/events"
	"github.com/querypad/querypad-backend/internal/queries/domain"
	"github.com/querypad/querypad-backend/internal/queries/repository"
	"github.com/querypad/querypad-backend/internal/queries/session"
)

type fakeQueryStore struct {
	queries map[int64]*domain.Query
	nextID  int64

	saveErr error
	gotSave repository.SaveQuery
}

func newFakeQueryStore() *fakeQueryStore {
	return &fakeQueryStore{queries: make(map[int64]*domain.Query), nextID: 1}
}

func (f *fakeQueryStore) Create(_ context.Context, in repository.CreateQuery) (*domain.Query, error) {
	q := &domain.Query{
		ID:      f.nextID,
		Version: 1,
		Name:    in.Name,
		Query:   in.Query,
		UserID:  in.UserID,
		IsDraft: in.IsDraft,
	}
	if q.Name == "" {
		q.Name = "New Query"
	}
	f.nextID++
	f.queries[q.ID] = q
	return q, nil
}

func (f *fakeQueryStore) Get(_ context.Context, id int64) (*domain.Query, error) {
	q, ok := f.queries[id]
	if !ok {
		return nil, domain.ErrQueryNotFound
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQueryStore) Save(_ context.Context, in repository.SaveQuery) (*domain.Query, error) {
	f.gotSave = in
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	q, ok := f.queries[in.ID]
	if !ok {
		return nil, domain.ErrQueryNotFound
	}
	if q.Version != in.Version {
		return nil, domain.ErrVersionConflict
	}
	q.Version++
	q.Query = in.Query
	q.Name = in.Name
	cp := *q
	return &cp, nil
}

func (f *fakeQueryStore) Fork(_ context.Context, id int64, forkingUserID string) (*domain.Query, error) {
	src, ok := f.queries[id]
	if !ok {
		return nil, domain.ErrQueryNotFound
	}
	forked := &domain.Query{
		ID:      f.nextID,
		Version: 1,
		Name:    domain.ForkName(src.ID, src.Name),
		Query:   src.Query,
		UserID:  forkingUserID,
		IsDraft: true,
	}
	f.nextID++
	f.queries[forked.ID] = forked
	return forked, nil
}

func (f *fakeQueryStore) Archive(_ context.Context, id int64, _ string) error {
	q, ok := f.queries[id]
	if !ok {
		return domain.ErrQueryNotFound
	}
	q.IsArchived = true
	q.Schedule = ""
	return nil
}

func (f *fakeQueryStore) UpdateSchedule(_ context.Context, id int64, schedule string) error {
	q, ok := f.queries[id]
	if !ok {
		return domain.ErrQueryNotFound
	}
	q.Schedule = schedule
	return nil
}

func (f *fakeQueryStore) List(context.Context, string, bool) ([]domain.Query, error) {
	return nil, nil
}
func (f *fakeQueryStore) Search(context.Context, string) ([]domain.Query, error) { return nil, nil }
func (f *fakeQueryStore) Recent(context.Context, string, int) ([]domain.Query, error) {
	return nil, nil
}
func (f *fakeQueryStore) Changes(context.Context, int64) ([]domain.Change, error) { return nil, nil }

type fakeVisStore struct {
	visualizations map[int64]*domain.Visualization
}

func (f *fakeVisStore) Get(_ context.Context, id int64) (*domain.Visualization, error) {
	v, ok := f.visualizations[id]
	if !ok {
		return nil, domain.ErrVisualizationNotFound
	}
	return v, nil
}

func (f *fakeVisStore) ListForQuery(context.Context, int64) ([]domain.Visualization, error) {
	return nil, nil
}

func (f *fakeVisStore) Create(_ context.Context, queryID int64, visType, name, description string, options map[string]interface{}) (*domain.Visualization, error) {
	v := &domain.Visualization{ID: int64(len(f.visualizations) + 1), QueryID: queryID, Type: visType, Name: name, Options: options}
	f.visualizations[v.ID] = v
	return v, nil
}

func (f *fakeVisStore) Delete(_ context.Context, id int64) error {
	if _, ok := f.visualizations[id]; !ok {
		return domain.ErrVisualizationNotFound
	}
	delete(f.visualizations, id)
	return nil
}

type captureRecorder struct {
	recorded []events.Event
}

func (c *captureRecorder) Record(_ context.Context, e events.Event) error {
	c.recorded = append(c.recorded, e)
	return nil
}

func userCtx(id string) context.Context {
	return auth.NewContext(context.Background(), id)
}

func setupService() (*QueryService, *fakeQueryStore, *fakeVisStore, *captureRecorder) {
	store := newFakeQueryStore()
	vis := &fakeVisStore{visualizations: make(map[int64]*domain.Visualization)}
	rec := &captureRecorder{}
	return NewQueryService(store, vis, rec), store, vis, rec
}

func TestSaveQuery_NewDraft(t *testing.T) {
	svc, store, _, rec := setupService()

	saved, err := svc.SaveQuery(userCtx("user-1"), session.Draft{IsNew: true, Text: "SELECT 1"}, session.SaveOptions{})
	require.NoError(t, err)
	require.NotNil(t, saved)

	assert.Equal(t, "SELECT 1", saved.Query)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, "user-1", store.queries[saved.ID].UserID)

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "create", rec.recorded[0].Action)
}

func TestSaveQuery_Existing(t *testing.T) {
	svc, store, _, rec := setupService()
	q, _ := store.Create(context.Background(), repository.CreateQuery{UserID: "user-1", Query: "SELECT 1", Name: "q"})

	saved, err := svc.SaveQuery(userCtx("user-2"), session.Draft{QueryID: q.ID, Version: 1, Text: "SELECT 2"}, session.SaveOptions{})
	require.NoError(t, err)
	require.NotNil(t, saved)

	assert.Equal(t, 2, saved.Version)
	assert.Equal(t, "SELECT 2", saved.Query)
	assert.Equal(t, "user-2", store.gotSave.UserID, "identity comes from the context, not ambient state")

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "save", rec.recorded[0].Action)
}

func TestSaveQuery_UnchangedTextDeclines(t *testing.T) {
	svc, store, _, rec := setupService()
	q, _ := store.Create(context.Background(), repository.CreateQuery{UserID: "user-1", Query: "SELECT 1", Name: "q"})

	saved, err := svc.SaveQuery(userCtx("user-1"), session.Draft{QueryID: q.ID, Version: 1, Text: "SELECT 1"}, session.SaveOptions{})
	require.NoError(t, err)
	assert.Nil(t, saved, "nothing to persist must return no result")
	assert.Empty(t, rec.recorded)
}

func TestSaveQuery_StaleVersionConflicts(t *testing.T) {
	svc, store, _, _ := setupService()
	q, _ := store.Create(context.Background(), repository.CreateQuery{UserID: "user-1", Query: "SELECT 1", Name: "q"})

	// Another writer advanced the version.
	store.queries[q.ID].Version = 3

	_, err := svc.SaveQuery(userCtx("user-1"), session.Draft{QueryID: q.ID, Version: 1, Text: "SELECT 2"}, session.SaveOptions{})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestSaveQuery_NoUser(t *testing.T) {
	svc, _, _, _ := setupService()

	_, err := svc.SaveQuery(context.Background(), session.Draft{IsNew: true, Text: "SELECT 1"}, session.SaveOptions{})
	assert.Error(t, err)
}

func TestForkQuery(t *testing.T) {
	svc, store, _, rec := setupService()
	q, _ := store.Create(context.Background(), repository.CreateQuery{UserID: "user-1", Query: "SELECT 1", Name: "metrics"})

	forked, err := svc.ForkQuery(userCtx("user-2"), q.ID)
	require.NoError(t, err)

	assert.NotEqual(t, q.ID, forked.ID)
	assert.Equal(t, "SELECT 1", forked.Query)
	assert.Equal(t, "user-2", store.queries[forked.ID].UserID)
	assert.Equal(t, "Copy of (#1) metrics", store.queries[forked.ID].Name)

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "fork", rec.recorded[0].Action)
	assert.EqualValues(t, q.ID, rec.recorded[0].AdditionalProperties["source_id"])
}

func TestDeleteVisualization(t *testing.T) {
	svc, _, vis, rec := setupService()
	vis.visualizations[5] = &domain.Visualization{ID: 5, QueryID: 1, Type: "CHART"}

	require.NoError(t, svc.DeleteVisualization(userCtx("user-1"), 5))
	assert.Empty(t, vis.visualizations)

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "delete", rec.recorded[0].Action)
	assert.Equal(t, "visualization", rec.recorded[0].ObjectType)

	err := svc.DeleteVisualization(userCtx("user-1"), 5)
	assert.ErrorIs(t, err, domain.ErrVisualizationNotFound)
}

func TestArchive(t *testing.T) {
	svc, store, _, _ := setupService()
	q, _ := store.Create(context.Background(), repository.CreateQuery{UserID: "user-1", Query: "SELECT 1", Name: "q"})
	store.queries[q.ID].Schedule = "300"

	require.NoError(t, svc.Archive(userCtx("user-1"), q.ID))
	assert.True(t, store.queries[q.ID].IsArchived)
	assert.Empty(t, store.queries[q.ID].Schedule, "archiving clears the schedule")
}
