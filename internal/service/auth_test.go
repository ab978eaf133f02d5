package service_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	sent []sentMail
}

type sentMail struct {
	email    string
	loginURL string
	expiry   string
}

func (m *recordingMailer) SendMagicLink(_ context.Context, email, loginURL, expiry string) error {
	m.sent = append(m.sent, sentMail{email: email, loginURL: loginURL, expiry: expiry})
	return nil
}

func extractToken(t *testing.T, loginURL string) string {
	t.Helper()
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestRequestLoginMailsAllowedClient(t *testing.T) {
	store, ctx := newTestStore(t)
	seedLabel(t, store, ctx, "ACME", "ext-1")
	_, err := store.AddAllowedClient(ctx, "jane@acme.test", "Jane", "ACME")
	require.NoError(t, err)

	mailer := &recordingMailer{}
	auth := service.NewAuthService(store, mailer, "https://portal.example/", 15*time.Minute)

	require.NoError(t, auth.RequestLogin(ctx, "  Jane@ACME.test "))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "jane@acme.test", mailer.sent[0].email)
	assert.True(t, strings.HasPrefix(mailer.sent[0].loginURL, "https://portal.example/auth/verify?token="))
	assert.Equal(t, "15 minutes", mailer.sent[0].expiry)
}

func TestRequestLoginUnknownEmailIsSilent(t *testing.T) {
	store, ctx := newTestStore(t)

	mailer := &recordingMailer{}
	auth := service.NewAuthService(store, mailer, "https://portal.example", 15*time.Minute)

	// Success without mail: the caller must not learn whether the
	// address is on the allowed list.
	require.NoError(t, auth.RequestLogin(ctx, "nobody@example.test"))
	assert.Empty(t, mailer.sent)
}

func TestRequestLoginRejectsInvalidEmail(t *testing.T) {
	store, ctx := newTestStore(t)
	auth := service.NewAuthService(store, &recordingMailer{}, "https://portal.example", 15*time.Minute)

	var validationErr *registrystore.ValidationError
	require.ErrorAs(t, auth.RequestLogin(ctx, "not-an-email"), &validationErr)
	require.ErrorAs(t, auth.RequestLogin(ctx, "   "), &validationErr)
}

func TestVerifyTokenIsSingleUse(t *testing.T) {
	store, ctx := newTestStore(t)
	seedLabel(t, store, ctx, "ACME", "ext-1")
	_, err := store.AddAllowedClient(ctx, "jane@acme.test", "Jane", "ACME")
	require.NoError(t, err)

	mailer := &recordingMailer{}
	auth := service.NewAuthService(store, mailer, "https://portal.example", 15*time.Minute)
	require.NoError(t, auth.RequestLogin(ctx, "jane@acme.test"))

	token := extractToken(t, mailer.sent[0].loginURL)

	email, err := auth.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.test", email)

	// The raw token never hits the database, so a second redemption of
	// the same link finds nothing.
	_, err = auth.VerifyToken(ctx, token)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	store, ctx := newTestStore(t)
	auth := service.NewAuthService(store, &recordingMailer{}, "https://portal.example", 15*time.Minute)

	var notFound *registrystore.NotFoundError
	_, err := auth.VerifyToken(ctx, "")
	require.ErrorAs(t, err, &notFound)
	_, err = auth.VerifyToken(ctx, "deadbeef")
	require.ErrorAs(t, err, &notFound)
}
