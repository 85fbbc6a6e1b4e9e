package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/muhamad-mamoun/full-stack-todo-list-app/internal/auth"
	dom "github.com/muhamad-mamoun/full-stack-todo-list-app/internal/domain"
	"github.com/muhamad-mamoun/full-stack-todo-list-app/internal/dto"
	"github.com/muhamad-mamoun/full-stack-todo-list-app/internal/repo"
	"github.com/muhamad-mamoun/full-stack-todo-list-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory repos mirroring the Postgres semantics so the full HTTP surface
// can be exercised without a database.

type memUserRepo struct {
	nextID int64
	byName map[string]dom.User
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (dom.User, error) {
	u, ok := r.byName[username]
	if !ok {
		return dom.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (dom.User, error) {
	for _, u := range r.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return dom.User{}, pgx.ErrNoRows
}

func (r *memUserRepo) Create(_ context.Context, username, email, passwordHash string) (dom.User, error) {
	if _, exists := r.byName[username]; exists {
		return dom.User{}, &pgconn.PgError{Code: "23505"}
	}
	r.nextID++
	u := dom.User{ID: r.nextID, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	r.byName[username] = u
	return u, nil
}

type memTaskRepo struct {
	nextID int64
	tasks  map[int64]dom.Task
}

func (r *memTaskRepo) live(userID, id int64) (dom.Task, bool) {
	t, ok := r.tasks[id]
	if !ok || t.UserID != userID || t.DeletedAt != nil {
		return dom.Task{}, false
	}
	return t, true
}

func (r *memTaskRepo) Create(_ context.Context, t dom.Task) (dom.Task, error) {
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Unix(1700000000, 0).Add(time.Duration(r.nextID) * time.Second)
	t.UpdatedAt = t.CreatedAt
	r.tasks[t.ID] = t
	return t, nil
}

func (r *memTaskRepo) GetByID(_ context.Context, userID, id int64) (dom.Task, error) {
	t, ok := r.live(userID, id)
	if !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	return t, nil
}

func (r *memTaskRepo) List(_ context.Context, userID int64) ([]dom.Task, error) {
	var list []dom.Task
	for _, t := range r.tasks {
		if t.UserID == userID && t.DeletedAt == nil {
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *memTaskRepo) Update(_ context.Context, userID, id int64, patch repo.TaskPatch) (dom.Task, error) {
	t, ok := r.live(userID, id)
	if !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	r.tasks[id] = t
	return t, nil
}

func (r *memTaskRepo) SoftDelete(_ context.Context, userID, id int64) error {
	t, ok := r.live(userID, id)
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	t.DeletedAt = &now
	r.tasks[id] = t
	return nil
}

func (r *memTaskRepo) ToggleCompleted(_ context.Context, userID, id int64) (dom.Task, error) {
	t, ok := r.live(userID, id)
	if !ok {
		return dom.Task{}, pgx.ErrNoRows
	}
	t.Completed = !t.Completed
	r.tasks[id] = t
	return t, nil
}

// newAPIRouter assembles the API surface the way internal/app does, with
// in-memory repos and no cache.
func newAPIRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	tokens := auth.NewTokens("test-secret", time.Hour)
	userSvc := service.NewUserService(&memUserRepo{byName: make(map[string]dom.User)})
	authHandler := NewAuthHandler(tokens, userSvc)

	api := r.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("", auth.RequireAuth(tokens))
	protected.POST("/auth/logout", authHandler.Logout)
	protected.GET("/auth/profile", authHandler.Profile)

	taskSvc := service.NewTaskService(&memTaskRepo{tasks: make(map[int64]dom.Task)}, nil)
	taskHandler := NewTaskHandler(taskSvc)
	protected.POST("/tasks", taskHandler.Create)
	protected.GET("/tasks", taskHandler.List)
	protected.GET("/tasks/:id", taskHandler.GetByID)
	protected.PUT("/tasks/:id", taskHandler.Update)
	protected.DELETE("/tasks/:id", taskHandler.Delete)
	protected.PATCH("/tasks/:id/toggle", taskHandler.Toggle)

	return r
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func register(t *testing.T, r *gin.Engine, username, password string) dto.AuthResponse {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	return decode[dto.AuthResponse](t, w)
}

func TestAuthFlow(t *testing.T) {
	r := newAPIRouter()

	reg := register(t, r, "alice", "secret1")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "alice", reg.User.Username)

	// Correct credentials.
	w := do(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[dto.AuthResponse](t, w)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, reg.User.ID, login.User.ID)

	// Wrong password.
	w = do(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice", "password": "wrongpass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Duplicate username.
	w = do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{"username": "alice", "password": "another6"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Short fields rejected by binding.
	w = do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{"username": "al", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{"username": "carol", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthResponsesNeverCarryHash(t *testing.T) {
	r := newAPIRouter()

	w := do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "hash")

	token := decode[dto.AuthResponse](t, w).Token
	w = do(t, r, http.MethodGet, "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestProfileAndLogout(t *testing.T) {
	r := newAPIRouter()
	reg := register(t, r, "alice", "secret1")

	w := do(t, r, http.MethodGet, "/api/auth/profile", reg.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[dto.UserResponse](t, w)
	assert.Equal(t, reg.User.ID, profile.ID)
	assert.Equal(t, "alice", profile.Username)

	w = do(t, r, http.MethodGet, "/api/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/api/auth/logout", reg.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Stateless tokens: still valid after logout until expiry.
	w = do(t, r, http.MethodGet, "/api/auth/profile", reg.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTaskCRUDScenario(t *testing.T) {
	r := newAPIRouter()
	alice := register(t, r, "alice", "secret1")
	bob := register(t, r, "bob", "secret2")

	// Alice creates a task with defaults.
	w := do(t, r, http.MethodPost, "/api/tasks", alice.Token, gin.H{"title": "Buy milk"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[dto.TaskResponse](t, w)
	assert.Equal(t, "Buy milk", created.Title)
	assert.Equal(t, "medium", created.Priority)
	assert.False(t, created.Completed)

	// Alice sees it; Bob sees an empty list.
	w = do(t, r, http.MethodGet, "/api/tasks", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[dto.ListTasksResponse](t, w).Items, 1)

	w = do(t, r, http.MethodGet, "/api/tasks", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[dto.ListTasksResponse](t, w).Items)

	id := strconv.FormatInt(created.ID, 10)

	// Alice can fetch the task by id.
	w = do(t, r, http.MethodGet, "/api/tasks/"+id, alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Buy milk", decode[dto.TaskResponse](t, w).Title)

	// Bob cannot touch Alice's task; existence is not leaked.
	w = do(t, r, http.MethodGet, "/api/tasks/"+id, bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodPut, "/api/tasks/"+id, bob.Token, gin.H{"title": "stolen"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodPatch, "/api/tasks/"+id+"/toggle", bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodDelete, "/api/tasks/"+id, bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Alice updates it.
	w = do(t, r, http.MethodPut, "/api/tasks/"+id, alice.Token, gin.H{"priority": "high"})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[dto.TaskResponse](t, w)
	assert.Equal(t, "high", updated.Priority)
	assert.Equal(t, "Buy milk", updated.Title)

	// Empty update body is a validation error.
	w = do(t, r, http.MethodPut, "/api/tasks/"+id, alice.Token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Toggle twice returns to the original state.
	w = do(t, r, http.MethodPatch, "/api/tasks/"+id+"/toggle", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.TaskResponse](t, w).Completed)
	w = do(t, r, http.MethodPatch, "/api/tasks/"+id+"/toggle", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[dto.TaskResponse](t, w).Completed)

	// Delete, then delete again: 200 then 404.
	w = do(t, r, http.MethodDelete, "/api/tasks/"+id, alice.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodDelete, "/api/tasks/"+id, alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Deleted tasks are gone from single-task reads too.
	w = do(t, r, http.MethodGet, "/api/tasks/"+id, alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskValidationOverHTTP(t *testing.T) {
	r := newAPIRouter()
	alice := register(t, r, "alice", "secret1")

	// Missing title.
	w := do(t, r, http.MethodPost, "/api/tasks", alice.Token, gin.H{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 255 accepted, 256 rejected.
	w = do(t, r, http.MethodPost, "/api/tasks", alice.Token, gin.H{"title": strings.Repeat("a", 255)})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = do(t, r, http.MethodPost, "/api/tasks", alice.Token, gin.H{"title": strings.Repeat("a", 256)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bad priority.
	w = do(t, r, http.MethodPost, "/api/tasks", alice.Token, gin.H{"title": "x", "priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bad id.
	w = do(t, r, http.MethodDelete, "/api/tasks/abc", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No token at all.
	w = do(t, r, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
