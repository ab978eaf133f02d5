package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
)

// AuthService implements the magic-link login flow: a random token goes
// out by mail, only its SHA-256 hash is stored, and the hash expires
// and is single-use.
type AuthService struct {
	store       registrystore.PortalStore
	mailer      Mailer
	appURL      string
	tokenExpiry time.Duration
}

// NewAuthService wires the login flow.
func NewAuthService(store registrystore.PortalStore, mailer Mailer, appURL string, tokenExpiry time.Duration) *AuthService {
	return &AuthService{
		store:       store,
		mailer:      mailer,
		appURL:      strings.TrimRight(appURL, "/"),
		tokenExpiry: tokenExpiry,
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RequestLogin creates and mails a magic link when the email is on the
// allowed list. It reports success either way so callers cannot probe
// which addresses exist.
func (s *AuthService) RequestLogin(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return &registrystore.ValidationError{Field: "email", Message: "a valid email address is required"}
	}

	allowed, err := s.store.IsClientAllowed(ctx, email)
	if err != nil {
		return err
	}
	if !allowed {
		log.Info("Login attempt for unknown email, skipping mail", "email", email)
		return nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("auth: token generation: %w", err)
	}
	token := hex.EncodeToString(buf)

	expiresAt := time.Now().Add(s.tokenExpiry)
	if err := s.store.CreateMagicToken(ctx, email, hashToken(token), expiresAt); err != nil {
		return err
	}

	loginURL := s.appURL + "/auth/verify?token=" + token
	expiry := fmt.Sprintf("%d minutes", int(s.tokenExpiry.Minutes()))
	if err := s.mailer.SendMagicLink(ctx, email, loginURL, expiry); err != nil {
		// Still present success to the caller: a mail failure must not
		// become an enumeration oracle.
		log.Error("Failed to send magic link", "email", email, "err", err)
	}
	return nil
}

// VerifyToken redeems a magic-link token and returns the email it was
// issued for. Unknown, expired, and already-used tokens all fail the
// same way.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", &registrystore.NotFoundError{Resource: "magic token", ID: "(empty)"}
	}
	return s.store.ConsumeMagicToken(ctx, hashToken(token), time.Now())
}
