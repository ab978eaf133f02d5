package threads

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/chirino/portal-service/internal/model"
	registryroute "github.com/chirino/portal-service/internal/registry/route"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/chirino/portal-service/internal/security"
	"github.com/chirino/portal-service/internal/service"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 200,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts the client-facing thread routes. Every route
// resolves the session email to a client code first; a revoked email or
// deactivated label fails before any Missive call.
func MountRoutes(r *gin.Engine, svc *service.ThreadService, store registrystore.PortalStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/threads", func(c *gin.Context) {
		listThreads(c, svc, store)
	})
	g.GET("/threads/:threadId", func(c *gin.Context) {
		getThread(c, svc, store)
	})
	g.GET("/threads/:threadId/messages", func(c *gin.Context) {
		getThreadMessages(c, svc, store)
	})
}

func clientCode(c *gin.Context, store registrystore.PortalStore) (string, bool) {
	code, err := store.GetClientCode(c.Request.Context(), security.GetSessionEmail(c))
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "client access has been revoked"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return "", false
	}
	return code, true
}

func listThreads(c *gin.Context, svc *service.ThreadService, store registrystore.PortalStore) {
	code, ok := clientCode(c, store)
	if !ok {
		return
	}

	threads, err := svc.ListThreads(c.Request.Context(), code)
	if err != nil {
		handleError(c, err)
		return
	}

	switch c.Query("filter") {
	case "open":
		threads = filterThreads(threads, func(t model.ThreadSummary) bool { return !t.Closed })
	case "closed":
		threads = filterThreads(threads, func(t model.ThreadSummary) bool { return t.Closed })
	}
	if search := strings.ToLower(strings.TrimSpace(c.Query("search"))); search != "" {
		threads = filterThreads(threads, func(t model.ThreadSummary) bool {
			return strings.Contains(strings.ToLower(t.Subject), search)
		})
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastActivityAt > threads[j].LastActivityAt
	})

	c.JSON(http.StatusOK, gin.H{"data": threads})
}

func getThread(c *gin.Context, svc *service.ThreadService, store registrystore.PortalStore) {
	code, ok := clientCode(c, store)
	if !ok {
		return
	}
	threadID, ok := ownedThreadID(c, svc, code)
	if !ok {
		return
	}

	thread, err := svc.GetThread(c.Request.Context(), threadID)
	if err != nil {
		handleError(c, err)
		return
	}
	if thread == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "thread not found"})
		return
	}
	c.JSON(http.StatusOK, thread)
}

func getThreadMessages(c *gin.Context, svc *service.ThreadService, store registrystore.PortalStore) {
	code, ok := clientCode(c, store)
	if !ok {
		return
	}
	threadID, ok := ownedThreadID(c, svc, code)
	if !ok {
		return
	}

	messages, err := svc.GetThreadMessages(c.Request.Context(), threadID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

// ownedThreadID returns the thread id from the path after checking it
// belongs to the client's label. A thread outside the client's list is
// reported as not found, not forbidden, so ids cannot be probed.
func ownedThreadID(c *gin.Context, svc *service.ThreadService, code string) (string, bool) {
	threadID := c.Param("threadId")
	threads, err := svc.ListThreads(c.Request.Context(), code)
	if err != nil {
		handleError(c, err)
		return "", false
	}
	for _, t := range threads {
		if t.ID == threadID {
			return threadID, true
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "thread not found"})
	return "", false
}

func filterThreads(threads []model.ThreadSummary, keep func(model.ThreadSummary) bool) []model.ThreadSummary {
	out := threads[:0]
	for _, t := range threads {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func handleError(c *gin.Context, err error) {
	var unknown *registrystore.UnknownClientError
	var notFound *registrystore.NotFoundError

	switch {
	case errors.As(err, &unknown):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream messaging service unavailable"})
	}
}
