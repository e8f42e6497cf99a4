package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sessionHandler "recipe-importer/internal/api/handlers/session"
	"recipe-importer/internal/core/importer"
	"recipe-importer/internal/core/recipe"
	"recipe-importer/internal/core/suggest"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"
	"recipe-importer/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBackend struct {
	mu      sync.Mutex
	catalog []recipe.ManagedIngredient
	reject  string
}

func (f *fakeBackend) Suggest(_ context.Context, query string) ([]recipe.ManagedIngredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recipe.ManagedIngredient
	for _, ing := range f.catalog {
		if strings.Contains(strings.ToLower(ing.Name), strings.ToLower(query)) {
			out = append(out, ing)
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateManaged(_ context.Context, name string) (recipe.ManagedIngredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != "" {
		return recipe.ManagedIngredient{}, common.ErrCreationFailed.WithMessage(f.reject)
	}
	ing := recipe.ManagedIngredient{ID: int64(200 + len(f.catalog)), Name: name}
	f.catalog = append(f.catalog, ing)
	return ing, nil
}

func (f *fakeBackend) ScrapeMetadata(context.Context, string) (recipe.Metadata, error) {
	title := "Kanelbullar"
	servings := 12
	return recipe.Metadata{Title: &title, Servings: &servings}, nil
}

func (f *fakeBackend) ScrapeIngredients(context.Context, string) ([]recipe.ParsedIngredient, error) {
	return []recipe.ParsedIngredient{
		{OriginalName: "smör", QuantitySource: "150", Unit: "g", ManagedMatch: &recipe.ManagedMatch{ID: 2, Name: "Smör"}},
		{OriginalName: "kanel", QuantitySource: "1 ½", Unit: "msk"},
	}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, backend *fakeBackend, pinger *fakePinger) (*gin.Engine, *session.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.App.Debug = true
	cfg.Suggest.Debounce = time.Millisecond
	cfg.Suggest.BlurGrace = time.Millisecond
	cfg.RateLimit.Enabled = false

	factory, err := session.NewFactory(cfg, backend)
	require.NoError(t, err)
	sessions := session.NewManager(factory, nil, time.Hour, 0)
	t.Cleanup(func() { sessions.Close() })

	if pinger != nil {
		return SetupRouter(cfg, sessions, pinger), sessions
	}
	return SetupRouter(cfg, sessions, nil), sessions
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createSession(t *testing.T, r http.Handler, body interface{}) session.Snapshot {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[session.Snapshot](t, w)
}

func TestHealthEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, nil)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sessions"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = doJSON(t, r, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessFailsWhenRedisIsDown(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, &fakePinger{err: assert.AnError})

	w := doJSON(t, r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not_ready")
}

func TestSessionLifecycle(t *testing.T) {
	r, sessions := newTestRouter(t, &fakeBackend{catalog: []recipe.ManagedIngredient{{ID: 1, Name: "Ägg"}}}, nil)

	snap := createSession(t, r, map[string]interface{}{
		"rows":    []map[string]interface{}{{"persisted_id": 7, "name": "ägg", "quantity": "2", "unit": "st"}},
		"details": map[string]interface{}{"title": "Omelett", "servings": 1},
	})
	assert.Equal(t, 1, snap.Formset.InitialCount)
	assert.Equal(t, int64(1), snap.Formset.Rows[0].ManagedID)
	assert.Equal(t, 1, sessions.Len())
	base := "/api/v1/sessions/" + snap.ID

	w := doJSON(t, r, http.MethodPost, base+"/rows", map[string]string{"name": "Mjölk", "quantity": "1 dl"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	added := decode[sessionHandler.RowResponse](t, w).Row
	assert.Equal(t, 1, added.Index)
	assert.True(t, added.IsNew())

	quantity := "½"
	w = doJSON(t, r, http.MethodPatch, base+"/rows/"+added.Key, map[string]*string{"quantity": &quantity})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	patched := decode[sessionHandler.RowResponse](t, w).Row
	require.NotNil(t, patched.QuantityValue)
	assert.InDelta(t, 0.5, *patched.QuantityValue, 1e-9)

	w = doJSON(t, r, http.MethodGet, base+"/form-data", nil)
	require.Equal(t, http.StatusOK, w.Code)
	form := decode[sessionHandler.FormDataResponse](t, w)
	assert.Equal(t, "2", form.Fields["ingredient_set-TOTAL_FORMS"])
	assert.Equal(t, "1", form.Fields["ingredient_set-INITIAL_FORMS"])
	assert.Equal(t, "7", form.Fields["ingredient_set-0-id"])
	assert.Equal(t, "½", form.Fields["ingredient_set-1-quantity"])

	w = doJSON(t, r, http.MethodGet, base+"/rows/html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="ingredient_set-1-quantity"`)
	assert.NotContains(t, w.Body.String(), "__prefix__")

	// 刪除既有列只標記刪除
	persisted := snap.Formset.Rows[0].Key
	w = doJSON(t, r, http.MethodDelete, base+"/rows/"+persisted, nil)
	require.Equal(t, http.StatusOK, w.Code)
	removed := decode[sessionHandler.RemoveRowResponse](t, w)
	assert.True(t, removed.Removed)
	assert.Equal(t, 2, removed.DeclaredCount)

	w = doJSON(t, r, http.MethodDelete, base+"/rows/does-not-exist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[sessionHandler.RemoveRowResponse](t, w).Removed)

	w = doJSON(t, r, http.MethodGet, base+"/rows/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.ErrCodeRowNotFound, decode[common.ErrorResponse](t, w).Code)

	w = doJSON(t, r, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.ErrCodeSessionNotFound, decode[common.ErrorResponse](t, w).Code)
}

func TestCreateSessionRejectsBadRows(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, nil)

	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"rows": []map[string]interface{}{{"name": "missing id"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.ErrCodeInvalidRequest, decode[common.ErrorResponse](t, w).Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]interface{}{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestionEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{catalog: []recipe.ManagedIngredient{{ID: 4, Name: "Tomat"}, {ID: 5, Name: "Tomatpuré"}}}, nil)
	snap := createSession(t, r, nil)
	base := "/api/v1/sessions/" + snap.ID

	w := doJSON(t, r, http.MethodPost, base+"/rows", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	key := decode[sessionHandler.RowResponse](t, w).Row.Key

	w = doJSON(t, r, http.MethodPost, base+"/rows/"+key+"/input", map[string]string{"text": "toma"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, suggest.PhasePending, decode[sessionHandler.RowResponse](t, w).Suggestions.Phase)

	require.Eventually(t, func() bool {
		w := doJSON(t, r, http.MethodGet, base+"/rows/"+key+"/suggestions", nil)
		return decode[suggest.View](t, w).Phase == suggest.PhaseDisplayed
	}, time.Second, 5*time.Millisecond)

	w = doJSON(t, r, http.MethodPost, base+"/rows/"+key+"/keys", map[string]string{"key": suggest.KeyArrowDown})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[sessionHandler.RowResponse](t, w).Suggestions.Highlight)

	w = doJSON(t, r, http.MethodPost, base+"/rows/"+key+"/keys", map[string]string{"key": "Tab"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, base+"/rows/"+key+"/select", map[string]int{"index": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, base+"/rows/"+key+"/keys", map[string]string{"key": suggest.KeyEnter})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[sessionHandler.RowResponse](t, w)
	assert.Equal(t, int64(4), resp.Row.ManagedID)
	assert.Equal(t, "Tomat", resp.Row.DisplayName)
	assert.Equal(t, suggest.PhaseIdle, resp.Suggestions.Phase)

	w = doJSON(t, r, http.MethodPost, base+"/rows/"+key+"/select", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateManagedEndpoint(t *testing.T) {
	backend := &fakeBackend{}
	r, _ := newTestRouter(t, backend, nil)
	snap := createSession(t, r, nil)
	base := "/api/v1/sessions/" + snap.ID

	w := doJSON(t, r, http.MethodPost, base+"/rows", map[string]string{"name": "Kardemumma"})
	key := decode[sessionHandler.RowResponse](t, w).Row.Key

	w = doJSON(t, r, http.MethodPost, base+"/rows/"+key+"/managed", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[sessionHandler.ManagedResponse](t, w)
	assert.Equal(t, int64(200), resp.Row.ManagedID)
	assert.Equal(t, "Created 'Kardemumma' successfully!", resp.Row.Status.Message)

	backend.reject = "Ingredient already exists"
	w = doJSON(t, r, http.MethodPost, base+"/rows", map[string]string{"name": "Vaniljsocker"})
	key = decode[sessionHandler.RowResponse](t, w).Row.Key

	w = doJSON(t, r, http.MethodPost, base+"/rows/"+key+"/managed", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	resp = decode[sessionHandler.ManagedResponse](t, w)
	assert.Zero(t, resp.Row.ManagedID)
	assert.Equal(t, "Error: Ingredient already exists", resp.Row.Status.Message)
	require.NotNil(t, resp.Error)
	assert.Equal(t, common.ErrCodeCreationFailed, resp.Error.Code)

	w = doJSON(t, r, http.MethodPost, base+"/rows/missing/managed", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, nil)
	snap := createSession(t, r, nil)
	base := "/api/v1/sessions/" + snap.ID

	w := doJSON(t, r, http.MethodPost, base+"/import", map[string]string{"url": "https://www.example.com/x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Please enter a valid recipe URL from ICA or Koket.", decode[common.ErrorResponse](t, w).Message)

	// 同內容的重複送出在去重窗口內被擋下
	w = doJSON(t, r, http.MethodPost, base+"/import", map[string]string{"url": "https://www.example.com/x"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = doJSON(t, r, http.MethodPost, base+"/import", map[string]string{"url": "https://www.ica.se/recept/kanelbullar-1234/"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[sessionHandler.ImportResponse](t, w)
	assert.Equal(t, importer.OutcomeSuccess, resp.Result.Outcome)
	assert.Equal(t, "Kanelbullar", resp.Session.Details.Title)
	assert.Equal(t, 12, resp.Session.Details.Servings)
	require.Len(t, resp.Session.Formset.Rows, 2)
	assert.Equal(t, int64(2), resp.Session.Formset.Rows[0].ManagedID)
	assert.Equal(t, "Recipe imported successfully!", resp.Session.Banner.Message)

	w = doJSON(t, r, http.MethodPost, base+"/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := decode[session.Snapshot](t, w)
	assert.Empty(t, cleared.Formset.Rows)
	assert.Empty(t, cleared.Details.Title)
}

func TestUnknownRoute(t *testing.T) {
	r, _ := newTestRouter(t, &fakeBackend{}, nil)
	w := doJSON(t, r, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.ErrCodeNotFound, decode[common.ErrorResponse](t, w).Code)
}
