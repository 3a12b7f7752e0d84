package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nimbusdrive/file-service/internal/api/middleware"
	"github.com/nimbusdrive/file-service/internal/models"
	"github.com/nimbusdrive/file-service/internal/upload"
)

// uploadForm carries the optional metadata fields alongside the file parts.
type uploadForm struct {
	FolderID   string `form:"folder_id"`
	Visibility string `form:"visibility"`
	Tags       string `form:"tags"`
}

func (f uploadForm) options() upload.Options {
	opts := upload.Options{
		Visibility: models.Visibility(f.Visibility),
	}
	if f.FolderID != "" {
		id := f.FolderID
		opts.FolderID = &id
	}
	if f.Tags != "" {
		for _, t := range strings.Split(f.Tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				opts.Tags = append(opts.Tags, t)
			}
		}
	}
	return opts
}

// UploadSingle accepts one file (multipart field "file") and responds as soon
// as the upload job is durably queued; the returned record is still in
// processing.
func (h *Handler) UploadSingle(c *gin.Context) {
	ownerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form: " + err.Error()})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}

	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer src.Close()

	rec, err := h.intake.Accept(c.Request.Context(), ownerID, src,
		fh.Filename, fh.Header.Get("Content-Type"), fh.Size, form.options())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// UploadMultiple accepts a batch (multipart field "files", with "file" as a
// fallback). Quota is admitted once for the aggregate size; one bad file does
// not abort the rest.
func (h *Handler) UploadMultiple(c *gin.Context) {
	ownerID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form: " + err.Error()})
		return
	}

	mf, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse multipart form: " + err.Error()})
		return
	}

	headers := mf.File["files"]
	if len(headers) == 0 {
		headers = mf.File["file"]
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	incoming := make([]upload.IncomingFile, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		incoming = append(incoming, upload.IncomingFile{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	records, failures, err := h.intake.AcceptAll(c.Request.Context(), ownerID, incoming, form.options())
	if err != nil {
		if len(failures) > 0 {
			c.JSON(statusForError(err), gin.H{
				"error":  err.Error(),
				"errors": failureMessages(failures),
			})
			return
		}
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"files":  records,
		"errors": failureMessages(failures),
	})
}

func failureMessages(failures []upload.FileError) []gin.H {
	out := make([]gin.H, 0, len(failures))
	for _, f := range failures {
		out = append(out, gin.H{"name": f.Name, "error": f.Err.Error()})
	}
	return out
}
