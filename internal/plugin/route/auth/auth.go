package auth

import (
	"errors"
	"net/http"

	registryroute "github.com/chirino/portal-service/internal/registry/route"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/security"
	"github.com/chirino/portal-service/internal/service"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 100,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts the magic-link login routes. Called after store
// initialization so the auth service is available.
func MountRoutes(r *gin.Engine, auth *service.AuthService, store registrystore.PortalStore, sessions *security.SessionManager) {
	g := r.Group("/auth")

	g.POST("/login", func(c *gin.Context) {
		requestLogin(c, auth)
	})
	g.GET("/verify", func(c *gin.Context) {
		verifyToken(c, auth, store, sessions)
	})
	g.POST("/logout", func(c *gin.Context) {
		security.ClearSessionCookie(c)
		c.JSON(http.StatusOK, gin.H{"status": "logged out"})
	})
	g.GET("/me", security.SessionMiddleware(sessions), func(c *gin.Context) {
		currentClient(c, store)
	})
}

func requestLogin(c *gin.Context, auth *service.AuthService) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := auth.RequestLogin(c.Request.Context(), req.Email); err != nil {
		var validation *registrystore.ValidationError
		if errors.As(err, &validation) {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	// Identical response whether or not the address is on the allowed
	// list, so login cannot be used to enumerate clients.
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func verifyToken(c *gin.Context, auth *service.AuthService, store registrystore.PortalStore, sessions *security.SessionManager) {
	email, err := auth.VerifyToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "invalid_token", "error": "this login link is invalid or has expired"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	sessions.SetSessionCookie(c, email)

	code, err := store.GetClientCode(c.Request.Context(), email)
	if err != nil {
		// The email was allowed when the link was issued; losing the
		// label between then and now still yields a session, the thread
		// routes will reject it.
		c.JSON(http.StatusOK, gin.H{"email": email})
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "clientCode": code})
}

func currentClient(c *gin.Context, store registrystore.PortalStore) {
	email := security.GetSessionEmail(c)
	label, err := store.GetClientLabel(c.Request.Context(), email)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "client access has been revoked"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "clientCode": label.Code, "clientName": label.Name})
}
