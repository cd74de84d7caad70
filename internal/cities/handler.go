package cities

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"travelog-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches city routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/cities", h.create)
	rg.GET("/cities/:id", h.get)
	rg.POST("/cities/:id/enrich", h.enrich)
}

type createRequest struct {
	Name          string `json:"name"`
	NameEn        string `json:"nameEn"`
	Country       string `json:"country"`
	ExternalDocID string `json:"externalDocId"`
}

type cityResponse struct {
	ID                 string    `json:"id"`
	ExternalDocID      *string   `json:"externalDocId"`
	Name               string    `json:"name"`
	NameEn             string    `json:"nameEn,omitempty"`
	Country            string    `json:"country,omitempty"`
	ImageURL           *string   `json:"imageUrl"`
	LocalImageFilename *string   `json:"localImageFilename"`
	NeedsEnrichment    bool      `json:"needsEnrichment"`
	LastUpdated        time.Time `json:"lastUpdated"`
	CreatedAt          time.Time `json:"createdAt"`
}

func toResponse(c City) cityResponse {
	return cityResponse{
		ID:                 c.ID,
		ExternalDocID:      c.ExternalDocID,
		Name:               c.Name,
		NameEn:             c.NameEn,
		Country:            c.Country,
		ImageURL:           c.ImageURL,
		LocalImageFilename: c.LocalImageFilename,
		NeedsEnrichment:    c.NeedsEnrichment(),
		LastUpdated:        c.LastUpdated,
		CreatedAt:          c.CreatedAt,
	}
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	city, err := h.Svc.Create(c.Request.Context(), CreateInput{
		Name:          req.Name,
		NameEn:        req.NameEn,
		Country:       req.Country,
		ExternalDocID: req.ExternalDocID,
	})
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to create city", nil)
		return
	}
	c.Set("cityId", city.ID)
	respond.JSON(c, http.StatusCreated, toResponse(city))
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set("cityId", id)
	city, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "city not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to load city", nil)
		return
	}
	respond.OK(c, toResponse(city))
}

func (h *Handler) enrich(c *gin.Context) {
	id := c.Param("id")
	c.Set("cityId", id)
	if err := h.Svc.RequestEnrichment(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "city not found", nil)
			return
		}
		respond.Error(c, http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"cityId": id, "status": "scheduled"})
}
