package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/digitaltwin/internal/chat"
	"github.com/fyrsmithlabs/digitaltwin/internal/classification"
	"github.com/fyrsmithlabs/digitaltwin/internal/composer"
	"github.com/fyrsmithlabs/digitaltwin/internal/items"
	"github.com/fyrsmithlabs/digitaltwin/internal/logging"
	"github.com/fyrsmithlabs/digitaltwin/internal/store"
	"github.com/fyrsmithlabs/digitaltwin/internal/users"
	"github.com/fyrsmithlabs/digitaltwin/pkg/auth"
	v1 "github.com/fyrsmithlabs/digitaltwin/pkg/api/v1"
)

const anaReply = `{"items": [
  {"title": "Exam", "category": "task", "subcategory": "obligation", "life_area": "career",
   "deadline": "2026-10-23T09:00:00", "priority": 9, "description": null},
  {"title": "Learn guitar", "category": "idea", "subcategory": null, "life_area": "hobbies",
   "deadline": null, "priority": 3}
]}`

type harness struct {
	t      *testing.T
	srv    *Server
	store  *store.Store
	logs   *logging.TestLogger
	reply  string
	genErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, "file:"+filepath.Join(t.TempDir(), "api.db"), store.Options{})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })

	h := &harness{t: t, store: s, logs: logging.NewTestLogger(), reply: anaReply}

	gen := classification.GeneratorFunc(func(context.Context, string) (string, error) {
		return h.reply, h.genErr
	})
	engine := classification.NewEngine(gen, classification.WithLogger(h.logs.Logger))

	tokens, err := auth.NewIssuer("test-secret-key-0123456789", time.Hour)
	require.NoError(t, err)

	srv, err := NewServer(Deps{
		Users:    users.NewService(s),
		Items:    items.NewService(s),
		Chat:     chat.NewService(s, engine, h.logs.Logger),
		Tokens:   tokens,
		Health:   s,
		Gatherer: prometheus.NewRegistry(),
	}, h.logs.Logger, &Config{Version: "test"})
	require.NoError(t, err)
	h.srv = srv
	return h
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) register(email, name string) (string, *store.User) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": email, "password": "hunter22", "name": name,
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[TokenResponse](h.t, rec)
	return resp.AccessToken, resp.User
}

func (h *harness) createItem(token string, body map[string]any) *store.Item {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/items", token, body)
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*store.Item](h.t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, rec).Error
}

func TestServer_InfoAndHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[InfoResponse](t, rec)
	assert.Equal(t, ServiceName, info.Message)
	assert.Equal(t, "test", info.Version)

	rec = h.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)

	require.NoError(t, h.store.Close())
	rec = h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestIDAndLogging(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/health", "", nil)

	requestID := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, requestID)
	h.logs.AssertLogged(t, zapcore.InfoLevel, "http request")
	h.logs.AssertField(t, "http request", "request.id", requestID)
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "Ana@Example.com", "password": "hunter22", "name": "Ana",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	created := decode[TokenResponse](t, rec)
	assert.Equal(t, "bearer", created.TokenType)
	assert.NotEmpty(t, created.AccessToken)
	assert.Equal(t, "ana@example.com", created.User.Email)

	rec = h.do(http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "ana@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	loggedIn := decode[TokenResponse](t, rec)
	assert.Equal(t, created.User.ID, loggedIn.User.ID)

	rec = h.do(http.MethodGet, "/api/users/me", loggedIn.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_Failures(t *testing.T) {
	h := newHarness(t)
	h.register("ana@example.com", "Ana")

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"wrong password", "/api/auth/login", map[string]any{"email": "ana@example.com", "password": "nope-nope"}, http.StatusUnauthorized, "incorrect email or password"},
		{"unknown email", "/api/auth/login", map[string]any{"email": "bo@example.com", "password": "hunter22"}, http.StatusUnauthorized, "incorrect email or password"},
		{"duplicate email", "/api/auth/register", map[string]any{"email": "ANA@example.com", "password": "hunter22"}, http.StatusConflict, "email already registered"},
		{"short password", "/api/auth/register", map[string]any{"email": "cy@example.com", "password": "abc"}, http.StatusBadRequest, "password must be at least 6 characters"},
		{"malformed body", "/api/auth/register", `{"email":`, http.StatusBadRequest, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, errorBody(t, rec))
		})
	}
}

func TestAuth_ProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")

	for _, tok := range []string{"", "not-a-jwt"} {
		rec := h.do(http.MethodGet, "/api/items", tok, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "token %q", tok)
	}

	rec := h.do(http.MethodDelete, "/api/users/me", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "could not validate credentials", errorBody(t, rec))
}

func TestChat_ClassifiesComposesAndPersists(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")

	msg := "Exam on Friday, also thinking about learning guitar"
	rec := h.do(http.MethodPost, "/api/chat", token, ChatRequest{Message: msg})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[chat.Response](t, rec)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, composer.Compose(msg, resp.Items, "Ana"), resp.Message)

	rec = h.do(http.MethodGet, "/api/items", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[[]*store.Item](t, rec)
	require.Len(t, stored, 2)
	assert.Equal(t, "Exam", stored[0].Title)
	assert.Equal(t, store.StatusPending, stored[0].Status)
	require.NotNil(t, stored[0].Deadline)
	assert.Equal(t, time.Date(2026, 10, 23, 9, 0, 0, 0, time.UTC), stored[0].Deadline.UTC())

	rec = h.do(http.MethodGet, "/api/chat/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]*store.Conversation](t, rec)
	require.Len(t, history, 1)
	require.Len(t, history[0].Messages, 2)
	assert.Equal(t, "user", history[0].Messages[0].Role)
	assert.Equal(t, msg, history[0].Messages[0].Content)
	assert.Equal(t, resp.Message, history[0].Messages[1].Content)
}

func TestChat_GeneratorFailureDegrades(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")
	h.genErr = errors.New("upstream unavailable")

	rec := h.do(http.MethodPost, "/api/chat", token, ChatRequest{Message: "hmm"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[chat.Response](t, rec)
	assert.Empty(t, resp.Items)
	assert.Equal(t, composer.NoItemsReply, resp.Message)
	h.logs.AssertLogged(t, zapcore.WarnLevel, "classification failed")
}

func TestChat_Validation(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")

	rec := h.do(http.MethodPost, "/api/chat", token, ChatRequest{Message: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message is required", errorBody(t, rec))

	for _, limit := range []string{"0", "-3", "ten"} {
		rec = h.do(http.MethodGet, "/api/chat/history?limit="+limit, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
	}
}

func TestChat_HistoryLimit(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")
	h.reply = `{"items": []}`

	for i := 0; i < 3; i++ {
		rec := h.do(http.MethodPost, "/api/chat", token, ChatRequest{Message: fmt.Sprintf("note %d", i)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := h.do(http.MethodGet, "/api/chat/history?limit=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]*store.Conversation](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, "note 2", history[0].Messages[0].Content)
}

func TestItems_CreateGetRoundTrip(t *testing.T) {
	h := newHarness(t)
	token, user := h.register("ana@example.com", "Ana")

	created := h.createItem(token, map[string]any{
		"title":       "Renew passport",
		"description": "before the trip",
		"category":    "task",
		"subcategory": "obligation",
		"life_area":   "personal",
		"deadline":    "2026-11-01",
		"priority":    7,
	})
	assert.Equal(t, user.ID, created.UserID)
	assert.Equal(t, store.StatusPending, created.Status)

	rec := h.do(http.MethodGet, fmt.Sprintf("/api/items/%d", created.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[*store.Item](t, rec)

	assert.Equal(t, "Renew passport", got.Title)
	assert.Equal(t, "before the trip", *got.Description)
	assert.Equal(t, "task", got.Category)
	assert.Equal(t, "obligation", *got.Subcategory)
	assert.Equal(t, "personal", *got.LifeArea)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), got.Deadline.UTC())
	assert.Equal(t, 7, *got.Priority)

	rec = h.do(http.MethodPost, "/api/items", token, map[string]any{"title": "No category"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "category is required", errorBody(t, rec))
}

func TestItems_ListFilters(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")
	other, _ := h.register("bo@example.com", "Bo")

	h.createItem(token, map[string]any{"title": "a", "category": "task", "life_area": "career", "priority": 3})
	h.createItem(token, map[string]any{"title": "b", "category": "task", "life_area": "health", "priority": 8})
	h.createItem(token, map[string]any{"title": "c", "category": "idea", "life_area": "career"})
	h.createItem(other, map[string]any{"title": "d", "category": "task", "life_area": "career"})

	titles := func(query string) []string {
		rec := h.do(http.MethodGet, "/api/items"+query, token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var out []string
		for _, it := range decode[[]*store.Item](t, rec) {
			out = append(out, it.Title)
		}
		return out
	}

	assert.Equal(t, []string{"b", "a", "c"}, titles(""))
	assert.Equal(t, []string{"b", "a"}, titles("?category=task"))
	assert.Equal(t, []string{"a"}, titles("?category=task&life_area=career"))
	assert.Empty(t, titles("?status=done"))
}

func TestItems_UpdateAppliesOnlyPresentFields(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")
	it := h.createItem(token, map[string]any{
		"title": "Draft", "category": "task", "description": "old", "priority": 4,
	})
	path := fmt.Sprintf("/api/items/%d", it.ID)

	rec := h.do(http.MethodPut, path, token, `{"title": "Final", "description": null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[*store.Item](t, rec)
	assert.Equal(t, "Final", got.Title)
	assert.Nil(t, got.Description)
	require.NotNil(t, got.Priority)
	assert.Equal(t, 4, *got.Priority)

	rec = h.do(http.MethodPut, path, token, `{"status": "someday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItems_StatusPatch(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")
	it := h.createItem(token, map[string]any{"title": "Run", "category": "task"})
	path := fmt.Sprintf("/api/items/%d/status", it.ID)

	for _, status := range []string{"in_progress", "done", "archived", "pending"} {
		rec := h.do(http.MethodPatch, path, token, StatusRequest{Status: status})
		require.Equal(t, http.StatusOK, rec.Code, status)

		rec = h.do(http.MethodGet, fmt.Sprintf("/api/items/%d", it.ID), token, nil)
		assert.Equal(t, status, decode[*store.Item](t, rec).Status)
	}

	for _, status := range []string{"", "DONE", "finished"} {
		rec := h.do(http.MethodPatch, path, token, StatusRequest{Status: status})
		assert.Equal(t, http.StatusBadRequest, rec.Code, status)
		assert.Equal(t, "Invalid status. Must be: pending, in_progress, done, or archived", errorBody(t, rec))
	}
}

func TestItems_OwnershipIsNotFound(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.register("ana@example.com", "Ana")
	intruder, _ := h.register("bo@example.com", "Bo")
	it := h.createItem(owner, map[string]any{"title": "Secret plan", "category": "idea"})
	path := fmt.Sprintf("/api/items/%d", it.ID)

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, path, nil},
		{http.MethodPut, path, map[string]any{"title": "mine now"}},
		{http.MethodPatch, path + "/status", StatusRequest{Status: "done"}},
		{http.MethodDelete, path, nil},
	}
	for _, r := range requests {
		rec := h.do(r.method, r.path, intruder, r.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, r.method)
		assert.Equal(t, "Item not found", errorBody(t, rec))
		assert.NotContains(t, rec.Body.String(), "Secret plan")
	}

	rec := h.do(http.MethodGet, path, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[*store.Item](t, rec)
	assert.Equal(t, "Secret plan", got.Title)
	assert.Equal(t, store.StatusPending, got.Status)
}

func TestItems_DeleteAndBadIDs(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")
	it := h.createItem(token, map[string]any{"title": "Tmp", "category": "thought"})
	path := fmt.Sprintf("/api/items/%d", it.ID)

	rec := h.do(http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = h.do(http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, id := range []string{"abc", "0", "-1", "1.5"} {
		rec = h.do(http.MethodGet, "/api/items/"+id, token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
	}
}

func TestUsers_ProfileUpdateFeedsClassifier(t *testing.T) {
	h := newHarness(t)
	token, _ := h.register("ana@example.com", "Ana")

	var prompts []string
	gen := classification.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return `{"items": []}`, nil
	})
	h.srv.chat = chat.NewService(h.store, classification.NewEngine(gen), h.logs.Logger)

	rec := h.do(http.MethodPut, "/api/users/me", token, map[string]any{
		"occupation": "engineer",
		"goals":      map[string]string{"career": "ship v2"},
		"life_areas": []string{"career", "hobbies"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	u := decode[*store.User](t, rec)
	assert.Equal(t, "Ana", *u.Name)
	assert.Equal(t, "engineer", *u.Occupation)
	assert.Equal(t, []string{"career", "hobbies"}, u.LifeAreas)

	rec = h.do(http.MethodPost, "/api/chat", token, ChatRequest{Message: "ship it"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Career: ship v2")
	assert.True(t, strings.Contains(prompts[0], `"ship it"`))
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"unauthorized", v1.Unauthorized("nope"), http.StatusUnauthorized, "nope"},
		{"invalid", fmt.Errorf("ctx: %w", v1.Invalid("bad title")), http.StatusBadRequest, "bad title"},
		{"not found", v1.NotFound("gone"), http.StatusNotFound, "gone"},
		{"conflict", v1.Conflict("taken"), http.StatusConflict, "taken"},
		{"bare kind", fmt.Errorf("lookup: %w", v1.ErrNotFound), http.StatusNotFound, "not found"},
		{"echo 404", echo.ErrNotFound, http.StatusNotFound, "Not Found"},
		{"echo 500", echo.NewHTTPError(http.StatusInternalServerError, "stack trace here"), http.StatusInternalServerError, internalErrorMsg},
		{"unknown", errors.New("pq: relation missing"), http.StatusInternalServerError, internalErrorMsg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := errorStatus(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Deps{}, logging.NewNop(), nil)
	assert.Error(t, err)
}
