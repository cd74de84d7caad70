package enrichment

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travelog-backend/internal/shared/server/respond"
)

// Handler exposes the coordinator over HTTP.
type Handler struct {
	Coord *Coordinator
}

// NewHandler constructs a Handler.
func NewHandler(coord *Coordinator) *Handler {
	return &Handler{Coord: coord}
}

// RegisterRoutes attaches enrichment routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/enrichment/runs", h.trigger)
	rg.GET("/enrichment/status", h.status)
}

func (h *Handler) trigger(c *gin.Context) {
	c.Set("trigger", KindBatch)
	h.Coord.TriggerBatchRun()
	respond.JSON(c, http.StatusAccepted, gin.H{
		"status": "scheduled",
		"state":  h.Coord.Status().State,
	})
}

func (h *Handler) status(c *gin.Context) {
	respond.OK(c, h.Coord.Status())
}
