package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querypad/querypad-backend/internal/queries/domain"
	"github.com/querypad/querypad-backend/internal/queries/repository"
	"github.com/querypad/querypad-backend/internal/queries/session"
)

type fakeService struct {
	queries map[int64]*domain.Query
	nextID  int64

	updateErr error
	saveErr   error
}

func newFakeService() *fakeService {
	return &fakeService{queries: make(map[int64]*domain.Query), nextID: 1}
}

func (f *fakeService) put(q *domain.Query) *domain.Query {
	if q.ID == 0 {
		q.ID = f.nextID
		f.nextID++
	}
	f.queries[q.ID] = q
	return q
}

func (f *fakeService) SaveQuery(_ context.Context, draft session.Draft, _ session.SaveOptions) (*domain.SavedQuery, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if draft.IsNew {
		q := f.put(&domain.Query{Version: 1, Query: draft.Text})
		return &domain.SavedQuery{ID: q.ID, Query: q.Query, Version: 1}, nil
	}
	q, ok := f.queries[draft.QueryID]
	if !ok {
		return nil, domain.ErrQueryNotFound
	}
	if q.Query == draft.Text {
		return nil, nil
	}
	if q.Version != draft.Version {
		return nil, domain.ErrVersionConflict
	}
	q.Version++
	q.Query = draft.Text
	return &domain.SavedQuery{ID: q.ID, Query: q.Query, Version: q.Version}, nil
}

func (f *fakeService) ForkQuery(_ context.Context, queryID int64) (*domain.SavedQuery, error) {
	src, ok := f.queries[queryID]
	if !ok {
		return nil, domain.ErrQueryNotFound
	}
	forked := f.put(&domain.Query{Version: 1, Query: src.Query, Name: domain.ForkName(src.ID, src.Name)})
	return &domain.SavedQuery{ID: forked.ID, Query: forked.Query, Version: 1}, nil
}

func (f *fakeService) Create(_ context.Context, in repository.CreateQuery) (*domain.Query, error) {
	return f.put(&domain.Query{Version: 1, Name: in.Name, Query: in.Query, IsDraft: in.IsDraft}), nil
}

func (f *fakeService) Get(_ context.Context, id int64) (*domain.Query, error) {
	q, ok := f.queries[id]
	if !ok {
		return nil, domain.ErrQueryNotFound
	}
	return q, nil
}

func (f *fakeService) Update(_ context.Context, in repository.SaveQuery) (*domain.Query, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
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
	return q, nil
}

func (f *fakeService) Archive(_ context.Context, id int64) error {
	q, ok := f.queries[id]
	if !ok {
		return domain.ErrQueryNotFound
	}
	q.IsArchived = true
	return nil
}

func (f *fakeService) UpdateSchedule(_ context.Context, id int64, spec string) error {
	q, ok := f.queries[id]
	if !ok {
		return domain.ErrQueryNotFound
	}
	q.Schedule = spec
	return nil
}

func (f *fakeService) List(context.Context, bool) ([]domain.Query, error)    { return nil, nil }
func (f *fakeService) Search(context.Context, string) ([]domain.Query, error) { return nil, nil }
func (f *fakeService) Recent(context.Context, int) ([]domain.Query, error)    { return nil, nil }
func (f *fakeService) Changes(context.Context, int64) ([]domain.Change, error) {
	return nil, nil
}
func (f *fakeService) Visualizations(context.Context, int64) ([]domain.Visualization, error) {
	return nil, nil
}
func (f *fakeService) CreateVisualization(_ context.Context, queryID int64, visType, name, description string, options map[string]interface{}) (*domain.Visualization, error) {
	return &domain.Visualization{ID: 1, QueryID: queryID, Type: visType, Name: name}, nil
}

func (f *fakeService) DeleteVisualization(_ context.Context, id int64) error {
	if id != 5 {
		return domain.ErrVisualizationNotFound
	}
	return nil
}

func setupRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Register(r.Group("/api/v1"), svc, session.NewManager())
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestUpdate_Conflict(t *testing.T) {
	svc := newFakeService()
	svc.put(&domain.Query{ID: 7, Version: 3, Query: "SELECT 1", Name: "q"})
	r := setupRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/queries/7", updateReq{Query: "SELECT 2", Version: 1, Name: "q"})

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, ConflictWarning, body["warning"])
	assert.Equal(t, true, body["persistent"], "conflict warning must not auto-expire")
}

func TestUpdate_Success(t *testing.T) {
	svc := newFakeService()
	svc.put(&domain.Query{ID: 7, Version: 1, Query: "SELECT 1", Name: "q"})
	r := setupRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/queries/7", updateReq{Query: "SELECT 2", Version: 1, Name: "q"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.queries[7].Version)
}

func TestGet_NotFound(t *testing.T) {
	r := setupRouter(newFakeService())

	w := doJSON(t, r, http.MethodGet, "/api/v1/queries/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidID(t *testing.T) {
	r := setupRouter(newFakeService())

	w := doJSON(t, r, http.MethodGet, "/api/v1/queries/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteVisualization(t *testing.T) {
	r := setupRouter(newFakeService())

	w := doJSON(t, r, http.MethodDelete, "/api/v1/visualizations/5", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/v1/visualizations/6", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateSchedule_Validation(t *testing.T) {
	svc := newFakeService()
	svc.put(&domain.Query{ID: 7, Version: 1})
	r := setupRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/queries/7/schedule", scheduleReq{Schedule: "nonsense"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/queries/7/schedule", scheduleReq{Schedule: "300"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "300", svc.queries[7].Schedule)
}

func TestSessionFlow_NewDraftSaveRedirects(t *testing.T) {
	svc := newFakeService()
	r := setupRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	sid := decode(t, w)["session_id"].(string)

	w = doJSON(t, r, http.MethodPatch, "/api/v1/sessions/"+sid, editReq{Text: "SELECT 2"})
	require.Equal(t, http.StatusOK, w.Code)
	state := decode(t, w)["state"].(map[string]interface{})
	assert.Equal(t, true, state["is_dirty"])

	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sid+"/save", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["saved"])
	assert.Equal(t, "/queries/1", body["location"])
	assert.Equal(t, true, body["preserve_fragment"], "new-query redirect keeps the fragment")

	state = body["state"].(map[string]interface{})
	assert.Equal(t, false, state["is_dirty"])
}

func TestSessionFlow_SaveConflict(t *testing.T) {
	svc := newFakeService()
	svc.put(&domain.Query{ID: 7, Version: 5, Query: "SELECT 1", Name: "q"})
	r := setupRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/queries/7/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	sid := decode(t, w)["session_id"].(string)

	// Another writer bumps the version behind the session's back.
	svc.queries[7].Version = 6

	w = doJSON(t, r, http.MethodPatch, "/api/v1/sessions/"+sid, editReq{Text: "SELECT 2"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sid+"/save", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ConflictWarning, decode(t, w)["warning"])

	// Draft state survived the failed save.
	w = doJSON(t, r, http.MethodGet, "/api/v1/sessions/"+sid, nil)
	state := decode(t, w)["state"].(map[string]interface{})
	assert.Equal(t, "SELECT 2", state["current_text"])
	assert.Equal(t, true, state["is_dirty"])
}

func TestSessionFlow_DuplicateClearsFragment(t *testing.T) {
	svc := newFakeService()
	svc.put(&domain.Query{ID: 7, Version: 1, Query: "SELECT 1", Name: "metrics"})
	r := setupRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/queries/7/sessions", nil)
	sid := decode(t, w)["session_id"].(string)

	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sid+"/duplicate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["preserve_fragment"], "duplicate clears the view fragment")
	assert.Equal(t, "/queries/2", body["location"])
}

func TestSessionFlow_CloseThenUse(t *testing.T) {
	svc := newFakeService()
	svc.put(&domain.Query{ID: 7, Version: 1, Query: "SELECT 1"})
	r := setupRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/queries/7/sessions", nil)
	sid := decode(t, w)["session_id"].(string)

	w = doJSON(t, r, http.MethodDelete, "/api/v1/sessions/"+sid, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sid+"/save", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
