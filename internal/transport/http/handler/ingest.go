package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"swissknife-chat/internal/app"
	"swissknife-chat/internal/pkg/extract"
	"swissknife-chat/internal/transport/http/response"
)

type IngestHandler struct {
	ingestService *app.IngestService
	maxBytes      int64
}

func NewIngestHandler(ingestService *app.IngestService, maxBytes int64) *IngestHandler {
	return &IngestHandler{ingestService: ingestService, maxBytes: maxBytes}
}

// Upload accepts a multipart form with "file" and runs it through the
// ingestion pipeline for the authenticated user.
func (h *IngestHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxBytes > 0 && fileHeader.Size > h.maxBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	result, err := h.ingestService.IngestDocument(c.Request.Context(), userID, extract.File{
		Data:        data,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Name:        fileHeader.Filename,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrUnsupportedFile):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrEmptyDocument):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrDocumentTooLarge):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed")
		}
		return
	}

	response.OK(c, result)
}
