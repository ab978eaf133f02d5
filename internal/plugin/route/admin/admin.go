package admin

import (
	"errors"
	"net/http"

	registryroute "github.com/chirino/portal-service/internal/registry/route"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/service"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 300,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts the operator API. auth is the admin bearer-token
// middleware; every route here is invisible without it.
func MountRoutes(r *gin.Engine, store registrystore.PortalStore, sync *service.SyncService, threads *service.ThreadService, auth gin.HandlerFunc) {
	g := r.Group("/v1/admin", auth)

	g.POST("/labels/sync", func(c *gin.Context) {
		runLabelSync(c, sync)
	})
	g.GET("/labels", func(c *gin.Context) {
		listLabels(c, store)
	})
	g.POST("/cache/flush", func(c *gin.Context) {
		flushCache(c, threads)
	})
	g.POST("/clients", func(c *gin.Context) {
		addClient(c, store)
	})
	g.DELETE("/clients/:email", func(c *gin.Context) {
		removeClient(c, store)
	})
}

func runLabelSync(c *gin.Context, sync *service.SyncService) {
	stats, err := sync.Sync(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func listLabels(c *gin.Context, store registrystore.PortalStore) {
	// Deactivated rows included: the operator view is the audit view.
	labels, err := store.ListAllLabels(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": labels})
}

func flushCache(c *gin.Context, threads *service.ThreadService) {
	if err := threads.FlushCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "flushed"})
}

func addClient(c *gin.Context, store registrystore.PortalStore) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Code  string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := store.AddAllowedClient(c.Request.Context(), req.Email, req.Name, req.Code)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func removeClient(c *gin.Context, store registrystore.PortalStore) {
	if err := store.RemoveAllowedClient(c.Request.Context(), c.Param("email")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var unknown *registrystore.UnknownClientError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &unknown):
		c.JSON(http.StatusBadRequest, gin.H{"code": "unknown_client", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
