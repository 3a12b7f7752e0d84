package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimbusdrive/file-service/internal/api/middleware"
	"github.com/nimbusdrive/file-service/internal/blob"
	"github.com/nimbusdrive/file-service/internal/events"
	"github.com/nimbusdrive/file-service/internal/models"
)

func (h *Handler) ListFiles(c *gin.Context) {
	ownerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var folderID *string
	if v := c.Query("folder_id"); v != "" {
		folderID = &v
	}

	files, err := h.meta.ListFiles(c.Request.Context(), ownerID, folderID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *Handler) GetFile(c *gin.Context) {
	ownerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	rec, err := h.meta.FindFile(c.Request.Context(), c.Param("id"), ownerID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DownloadFile streams the object from the blob store. Only present records
// are downloadable, and the stored byte count is checked against the record
// before a single byte goes to the client.
func (h *Handler) DownloadFile(c *gin.Context) {
	ownerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	ctx := c.Request.Context()
	rec, err := h.meta.FindFile(ctx, c.Param("id"), ownerID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	switch rec.Status {
	case models.StatusProcessing:
		c.JSON(http.StatusConflict, gin.H{"error": "file is still being processed"})
		return
	case models.StatusFailed:
		c.JSON(http.StatusGone, gin.H{"error": "file upload failed"})
		return
	}

	obj, info, err := h.blobs.Get(ctx, rec.StoragePath)
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			h.logger.Error("present record has no blob",
				slog.String("file_id", rec.ID),
				slog.String("storage_path", rec.StoragePath))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stored object is missing"})
			return
		}
		abortWithError(c, err)
		return
	}
	defer obj.Close()

	if info.Size != rec.Size {
		h.logger.Error("stored object size disagrees with record",
			slog.String("file_id", rec.ID),
			slog.Int64("record_size", rec.Size),
			slog.Int64("blob_size", info.Size))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "file integrity check failed"})
		return
	}

	if err := h.meta.TouchFileAccess(ctx, rec.ID); err != nil {
		h.logger.Warn("failed to record file access",
			slog.String("file_id", rec.ID), slog.Any("error", err))
	}

	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", rec.Name),
	}
	c.DataFromReader(http.StatusOK, rec.Size, rec.MimeType, obj, extraHeaders)
}

// DeleteFile releases the blob object, drops the record, and returns the
// bytes to the owner's quota. Blob deletion is idempotent, so a retried
// delete converges.
func (h *Handler) DeleteFile(c *gin.Context) {
	ownerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	ctx := c.Request.Context()
	rec, err := h.meta.FindFile(ctx, c.Param("id"), ownerID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := h.blobs.Delete(ctx, rec.StoragePath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete stored object"})
		return
	}

	if err := h.meta.DeleteFile(ctx, rec.ID, ownerID); err != nil {
		abortWithError(c, err)
		return
	}

	// Only finalized uploads were ever counted against the quota.
	if rec.Status == models.StatusPresent {
		if err := h.meta.ReleaseStorageUsed(ctx, ownerID, rec.Size); err != nil {
			h.logger.Error("failed to release quota after delete",
				slog.String("file_id", rec.ID), slog.Any("error", err))
		}
	}

	if err := h.events.Publish(ctx, events.SubjectFileDeleted, gin.H{
		"action":   "deleted",
		"file_id":  rec.ID,
		"owner_id": ownerID,
	}); err != nil {
		h.logger.Warn("failed to publish deleted event",
			slog.String("file_id", rec.ID), slog.Any("error", err))
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "file deleted successfully",
		"file_id": rec.ID,
	})
}
