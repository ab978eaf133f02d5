package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// SessionCookieName is the cookie carrying the signed session token.
	SessionCookieName = "portal_session"

	// ContextKeyEmail is the gin context key for the authenticated
	// client email.
	ContextKeyEmail = "clientEmail"
)

// SessionManager issues and verifies HMAC-signed session tokens. A token
// is self-contained: the client email and expiry are signed with the
// session secret, so no server-side session table is needed.
type SessionManager struct {
	secret []byte
	maxAge time.Duration
}

// NewSessionManager builds a SessionManager from the shared secret.
func NewSessionManager(secret string, maxAge time.Duration) *SessionManager {
	return &SessionManager{secret: []byte(secret), maxAge: maxAge}
}

// MaxAge returns the configured session lifetime.
func (m *SessionManager) MaxAge() time.Duration { return m.maxAge }

func (m *SessionManager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue creates a session token for the given email, valid for MaxAge
// from now.
func (m *SessionManager) Issue(email string, now time.Time) string {
	exp := now.Add(m.maxAge).Unix()
	payload := base64.RawURLEncoding.EncodeToString([]byte(email)) + "." + strconv.FormatInt(exp, 10)
	return payload + "." + m.sign(payload)
}

// Verify checks the signature and expiry of a token and returns the
// embedded email. An empty string means the token is invalid or expired.
func (m *SessionManager) Verify(token string, now time.Time) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ""
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(m.sign(payload)), []byte(parts[2])) {
		return ""
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || now.Unix() >= exp {
		return ""
	}
	email, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ""
	}
	return string(email)
}

// SetSessionCookie issues a session for email and attaches it to the
// response.
func (m *SessionManager) SetSessionCookie(c *gin.Context, email string) {
	token := m.Issue(email, time.Now())
	c.SetCookie(SessionCookieName, token, int(m.maxAge.Seconds()), "/", "", false, true)
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(c *gin.Context) {
	c.SetCookie(SessionCookieName, "", -1, "/", "", false, true)
}

// SessionMiddleware authenticates requests by session cookie and stores
// the client email in the gin context.
func SessionMiddleware(m *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookieName)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}
		email := m.Verify(token, time.Now())
		if email == "" {
			ClearSessionCookie(c)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}
		c.Set(ContextKeyEmail, email)
		c.Next()
	}
}

// GetSessionEmail returns the authenticated client email for a request.
func GetSessionEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

// RequireAdminToken authorizes admin routes by a static bearer token.
func RequireAdminToken(token string) gin.HandlerFunc {
	expected := "Bearer " + token
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		got := c.GetHeader("Authorization")
		if subtleCompare(got, expected) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func subtleCompare(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
