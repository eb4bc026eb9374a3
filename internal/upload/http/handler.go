package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/response"
	"github.com/nekogravitycat/meeting-booking-backend/internal/upload"
)

const formField = "file"

type Handler struct {
	service  upload.Service
	maxBytes int64
}

// NewHandler creates the upload handler. maxBytes caps the request body.
func NewHandler(service upload.Service, maxBytes int64) *Handler {
	return &Handler{service: service, maxBytes: maxBytes}
}

// Upload stores a resume or payment screenshot and returns its path.
func (h *Handler) Upload(c *gin.Context) {
	kind, err := upload.ParseKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.maxBytes > 0 {
		// Leave room for the multipart envelope around the file.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+64<<10)
	}
	fileHeader, err := c.FormFile(formField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, upload.ErrFileTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Error: formField + " is required"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Error: "failed to read uploaded file"})
		return
	}
	defer src.Close()

	f, err := h.service.Save(c.Request.Context(), kind, src, fileHeader.Size)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewUploadResponse(f))
}

// Serve returns a stored upload to the operator.
func (h *Handler) Serve(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	data, contentType, err := h.service.Open(c.Request.Context(), path)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "inline")
	c.Data(http.StatusOK, contentType, data)
}
