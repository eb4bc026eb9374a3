package http

import "github.com/nekogravitycat/meeting-booking-backend/internal/upload"

type UploadResponse struct {
	Path        string `json:"path"`
	Kind        string `json:"kind"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func NewUploadResponse(f *upload.File) UploadResponse {
	return UploadResponse{
		Path:        f.Path,
		Kind:        string(f.Kind),
		ContentType: f.ContentType,
		Size:        f.Size,
	}
}
