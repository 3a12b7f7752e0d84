package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimbusdrive/file-service/internal/blob"
	"github.com/nimbusdrive/file-service/internal/events"
	"github.com/nimbusdrive/file-service/internal/metadata"
	"github.com/nimbusdrive/file-service/internal/upload"
)

// Handler bundles the collaborators the HTTP layer needs.
type Handler struct {
	intake *upload.Intake
	meta   metadata.Store
	blobs  blob.Store
	events events.Publisher
	logger *slog.Logger
}

func New(intake *upload.Intake, meta metadata.Store, blobs blob.Store, ev events.Publisher, logger *slog.Logger) *Handler {
	if ev == nil {
		ev = events.Noop{}
	}
	return &Handler{
		intake: intake,
		meta:   meta,
		blobs:  blobs,
		events: ev,
		logger: logger.With(slog.String("component", "api")),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusForError maps pipeline errors onto HTTP status codes. Validation
// classes get their own codes so clients can distinguish "too big" from
// "wrong type" from "over quota".
func statusForError(err error) int {
	switch {
	case errors.Is(err, upload.ErrInsufficientStorage):
		return http.StatusInsufficientStorage
	case errors.Is(err, upload.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, upload.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, upload.ErrAllUploadsFailed):
		return http.StatusBadRequest
	case errors.Is(err, upload.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, metadata.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}
