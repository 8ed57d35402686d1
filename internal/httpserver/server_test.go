package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pawboard/pawboard/internal/hash"
	"github.com/pawboard/pawboard/internal/middleware"
	"github.com/pawboard/pawboard/internal/models"
	"github.com/pawboard/pawboard/internal/repo"
	"github.com/pawboard/pawboard/internal/service"
	"github.com/pawboard/pawboard/internal/tokenstore"
	"github.com/pawboard/pawboard/internal/ws"
	"github.com/pawboard/pawboard/pkg/logging"
)

type testEnv struct {
	e        *echo.Echo
	repo     repo.GormRepo
	tokenSvc *service.TokenService
	registry *ws.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repo.AutoMigrate(db))

	r := repo.New(db)
	tokenSvc := &service.TokenService{
		Repo:       r,
		Store:      tokenstore.NewMemoryStore(),
		Secret:     []byte("test-access-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}

	registry := ws.NewRegistry(logging.New("error"))
	t.Cleanup(registry.Shutdown)
	messageSvc := &service.MessageService{Repo: r, Sink: registry}

	e := echo.New()
	Register(e, &Deps{
		AuthHandler: &AuthHTTP{Svc: tokenSvc},
		ChatHandler: &ChatHTTP{Repo: r, Messages: messageSvc},
		WSHandler:   ws.NewHandler(registry, tokenSvc, messageSvc),
		AuthMW:      middleware.NewAuth(tokenSvc, r),
	})

	return &testEnv{e: e, repo: r, tokenSvc: tokenSvc, registry: registry}
}

func (env *testEnv) createUser(t *testing.T, email string, blocked bool) *models.User {
	t.Helper()

	pwHash, err := hash.HashPassword("password")
	require.NoError(t, err)
	user := models.User{Email: email, PasswordHash: pwHash, Role: models.RoleUser, Blocked: blocked}
	require.NoError(t, env.repo.CreateUser(context.Background(), &user))
	return &user
}

func (env *testEnv) accessToken(t *testing.T, user *models.User) string {
	t.Helper()

	pair, err := env.tokenSvc.IssuePair(context.Background(), user)
	require.NoError(t, err)
	return pair.AccessToken
}

type requestOpts struct {
	token   string
	cookies []*http.Cookie
}

func (env *testEnv) do(t *testing.T, method, path string, body any, opts requestOpts) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if opts.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+opts.token)
	}
	for _, cookie := range opts.cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refreshToken" && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatal("no refresh cookie in response")
	return nil
}
