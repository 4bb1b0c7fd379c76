package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"open-mediaserver/internal/app"
	"open-mediaserver/internal/model"
	"open-mediaserver/internal/pkg/sessionkey"
	"open-mediaserver/internal/repository"
	"open-mediaserver/internal/transport/http/middleware"
)

type stubSessionCache struct {
	mu      sync.Mutex
	entries map[string]uint
}

func (s *stubSessionCache) Get(_ context.Context, key string) (uint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[key]
	return id, ok, nil
}

func (s *stubSessionCache) Set(_ context.Context, key string, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = userID
	return nil
}

func (s *stubSessionCache) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

type stubPurgePublisher struct{}

func (stubPurgePublisher) Publish(context.Context, model.MediaPurge) error { return nil }

// vanishingUserRepo answers the username lookup but loses the record on the
// id re-fetch.
type vanishingUserRepo struct{}

func (vanishingUserRepo) Create(context.Context, *model.User) error { return nil }

func (vanishingUserRepo) GetByUsername(context.Context, string) (*model.User, error) {
	return &model.User{ID: 7, Username: "alice"}, nil
}

func (vanishingUserRepo) GetByID(context.Context, uint) (*model.User, error) { return nil, nil }

func (vanishingUserRepo) GetBySessionKey(context.Context, string) (*model.User, error) {
	return nil, nil
}

func (vanishingUserRepo) SetSessionKeyIfAbsent(context.Context, uint, string) (bool, error) {
	return false, nil
}

func (vanishingUserRepo) DeleteWithUploads(context.Context, uint, []string) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *repository.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	accountService := app.NewAccountService(store, store, &stubSessionCache{entries: make(map[string]uint)}, stubPurgePublisher{})
	accountHandler := NewAccountHandler(accountService, true, 5*time.Second)

	router := gin.New()
	account := router.Group("/api/account")
	account.POST("/register/", accountHandler.Register)
	account.POST("/login/", accountHandler.Login)
	account.POST("/delete/", accountHandler.Delete)
	account.GET("/status/", middleware.AuthSession(accountService), accountHandler.Status)
	account.GET("/uploads/", middleware.AuthSession(accountService), accountHandler.Uploads)
	return router, store
}

func doJSON(router *gin.Engine, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func sessionCookie(t *testing.T, resp *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range resp.Result().Cookies() {
		if cookie.Name == sessionkey.CookieName {
			return cookie
		}
	}
	return nil
}

func TestRegisterEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doJSON(router, http.MethodPost, "/api/account/register/", gin.H{
		"username": "alice",
		"password": "p@ss1",
	})
	assert.Equal(t, http.StatusOK, resp.Code)

	cookie := sessionCookie(t, resp)
	require.NotNil(t, cookie, "registration must set the session cookie")
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestRegisterEndpoint_UsernameTaken(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doJSON(router, http.MethodPost, "/api/account/register/", gin.H{"username": "alice", "password": "p@ss1"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(router, http.MethodPost, "/api/account/register/", gin.H{"username": "alice", "password": "other"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRegisterEndpoint_Validation(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing username", gin.H{"password": "p@ss1"}},
		{"missing password", gin.H{"username": "alice"}},
		{"empty body", gin.H{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(router, http.MethodPost, "/api/account/register/", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestLoginEndpoint_ReissuesStoredKeyWithoutCookie(t *testing.T) {
	router, _ := newTestRouter(t)

	registered := doJSON(router, http.MethodPost, "/api/account/register/", gin.H{"username": "alice", "password": "p@ss1"})
	require.Equal(t, http.StatusOK, registered.Code)
	issued := sessionCookie(t, registered)
	require.NotNil(t, issued)

	resp := doJSON(router, http.MethodPost, "/api/account/login/", gin.H{"username": "alice", "password": "p@ss1"})
	assert.Equal(t, http.StatusOK, resp.Code)

	reissued := sessionCookie(t, resp)
	require.NotNil(t, reissued, "a request without a live cookie gets the stored key reissued")
	assert.Equal(t, issued.Value, reissued.Value)
}

func TestLoginEndpoint_NoCookieWhenRequestCarriesOne(t *testing.T) {
	router, _ := newTestRouter(t)

	registered := doJSON(router, http.MethodPost, "/api/account/register/", gin.H{"username": "alice", "password": "p@ss1"})
	issued := sessionCookie(t, registered)
	require.NotNil(t, issued)

	resp := doJSON(router, http.MethodPost, "/api/account/login/",
		gin.H{"username": "alice", "password": "p@ss1"},
		&http.Cookie{Name: sessionkey.CookieName, Value: issued.Value})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, sessionCookie(t, resp))
}

func TestLoginEndpoint_WrongPassword(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(router, http.MethodPost, "/api/account/register/", gin.H{"username": "alice", "password": "p@ss1"})

	resp := doJSON(router, http.MethodPost, "/api/account/login/", gin.H{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Nil(t, sessionCookie(t, resp))
}

func TestLoginEndpoint_UnknownUser(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doJSON(router, http.MethodPost, "/api/account/login/", gin.H{"username": "nobody", "password": "p@ss1"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	doJSON(router, http.MethodPost, "/api/account/register/", gin.H{"username": "alice", "password": "p@ss1"})
	user, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, store.CreateMedia(ctx, &model.Media{ID: "m1", UserID: user.ID, Name: "m1", BlobPath: "img/m1.png"}))

	resp := doJSON(router, http.MethodPost, "/api/account/delete/", gin.H{
		"username":    "alice",
		"password":    "p@ss1",
		"deleteMedia": true,
	})
	assert.Equal(t, http.StatusOK, resp.Code)

	gone, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, gone)

	media, err := store.GetMediaByID(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, media)
}

func TestDeleteEndpoint_WrongPasswordIsGenericValidationError(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(router, http.MethodPost, "/api/account/register/", gin.H{"username": "alice", "password": "p@ss1"})

	resp := doJSON(router, http.MethodPost, "/api/account/delete/", gin.H{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeleteEndpoint_RecordVanishedIsInternalError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	accountService := app.NewAccountService(
		vanishingUserRepo{},
		repository.NewMemoryStore(),
		&stubSessionCache{entries: make(map[string]uint)},
		stubPurgePublisher{},
	)
	accountHandler := NewAccountHandler(accountService, true, 5*time.Second)

	router := gin.New()
	router.POST("/api/account/delete/", accountHandler.Delete)

	resp := doJSON(router, http.MethodPost, "/api/account/delete/", gin.H{
		"username": "alice",
		"password": "p@ss1",
	})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestDeleteEndpoint_UnknownUser(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doJSON(router, http.MethodPost, "/api/account/delete/", gin.H{"username": "nobody", "password": "p@ss1"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStatusEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	registered := doJSON(router, http.MethodPost, "/api/account/register/", gin.H{"username": "alice", "password": "p@ss1"})
	issued := sessionCookie(t, registered)
	require.NotNil(t, issued)

	resp := doJSON(router, http.MethodGet, "/api/account/status/", nil,
		&http.Cookie{Name: sessionkey.CookieName, Value: issued.Value})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"username":"alice"`)
}

func TestUploadsEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	registered := doJSON(router, http.MethodPost, "/api/account/register/", gin.H{"username": "alice", "password": "p@ss1"})
	issued := sessionCookie(t, registered)
	require.NotNil(t, issued)

	user, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, store.CreateMedia(ctx, &model.Media{UserID: user.ID, Name: "cat", Extension: "png", BlobPath: "img/cat.png"}))

	resp := doJSON(router, http.MethodGet, "/api/account/uploads/", nil,
		&http.Cookie{Name: sessionkey.CookieName, Value: issued.Value})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"name":"cat"`)
}

func TestStatusEndpoint_Unauthorized(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doJSON(router, http.MethodGet, "/api/account/status/", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doJSON(router, http.MethodGet, "/api/account/status/", nil,
		&http.Cookie{Name: sessionkey.CookieName, Value: "bogus"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
