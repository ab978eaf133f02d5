package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/chirino/portal-service/internal/config"
	routeauth "github.com/chirino/portal-service/internal/plugin/route/auth"
	_ "github.com/chirino/portal-service/internal/plugin/store/gormstore"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/security"
	"github.com/chirino/portal-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	loginURLs []string
}

func (m *captureMailer) SendMagicLink(_ context.Context, _, loginURL, _ string) error {
	m.loginURLs = append(m.loginURLs, loginURL)
	return nil
}

func newAuthRouter(t *testing.T) (*gin.Engine, *captureMailer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.SQLitePath = ":memory:"
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	_, err = store.ReconcileLabels(ctx, []registrystore.RemoteClientLabel{
		{Code: "ACME", Name: "ACME", MissiveLabelID: "ext-1"},
	})
	require.NoError(t, err)
	_, err = store.AddAllowedClient(ctx, "jane@acme.test", "Jane", "ACME")
	require.NoError(t, err)

	mailer := &captureMailer{}
	authSvc := service.NewAuthService(store, mailer, "https://portal.example", 15*time.Minute)
	sessions := security.NewSessionManager("test-secret", time.Hour)

	router := gin.New()
	routeauth.MountRoutes(router, authSvc, store, sessions)
	return router, mailer
}

func sessionCookie(res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == security.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestLoginVerifyRoundTrip(t *testing.T) {
	router, mailer := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"jane@acme.test"}`))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mailer.loginURLs, 1)

	u, err := url.Parse(mailer.loginURLs[0])
	require.NoError(t, err)
	assert.Equal(t, "/auth/verify", u.Path)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/auth/verify?token="+u.Query().Get("token"), nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	cookie := sessionCookie(w.Result())
	require.NotNil(t, cookie, "a successful verify sets the session cookie")
	assert.NotEmpty(t, cookie.Value)

	var resp struct {
		Email      string `json:"email"`
		ClientCode string `json:"clientCode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "jane@acme.test", resp.Email)
	assert.Equal(t, "ACME", resp.ClientCode)

	// A session cookie authenticates /auth/me.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginUnknownEmailLooksIdentical(t *testing.T) {
	router, mailer := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"nobody@example.test"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mailer.loginURLs)
}

func TestVerifyRejectsBadToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/verify?token=deadbeef", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, sessionCookie(w.Result()))
}

func TestLogoutClearsCookie(t *testing.T) {
	router, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(w.Result())
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
}
