package materialize

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"travelog-backend/internal/shared/server/respond"
	"travelog-backend/internal/shared/storage/object"
	"travelog-backend/internal/shared/util"
)

const sniffLen = 512

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"heic": "image/heic",
}

// Handler serves materialized city images.
type Handler struct {
	Store object.ObjectStore
}

// NewHandler constructs a Handler.
func NewHandler(store object.ObjectStore) *Handler {
	return &Handler{Store: store}
}

// RegisterRoutes attaches image routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/city-images/:filename", h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	raw := c.Param("filename")
	name, err := util.SanitizeFileName(raw)
	if err != nil || name != raw {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file name", nil)
		return
	}

	reader, err := h.Store.Open(c.Request.Context(), ObjectKey(name))
	if err != nil {
		switch {
		case errors.Is(err, object.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "image not found", nil)
		case errors.Is(err, object.ErrInvalidKey):
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file name", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load image", nil)
		}
		return
	}
	defer reader.Close()

	br := bufio.NewReaderSize(reader, sniffLen)
	head, _ := br.Peek(sniffLen)
	c.Header("Content-Type", contentType(name, head))
	c.Header("Cache-Control", "public, max-age=86400")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, br)
}

// contentType prefers the sniffed type of the stored bytes over the filename extension.
func contentType(name string, head []byte) string {
	if ct := http.DetectContentType(head); strings.HasPrefix(ct, "image/") {
		return ct
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
