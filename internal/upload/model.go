package upload

import (
	"net/http"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

var (
	ErrInvalidKind     = apperror.New(http.StatusNotFound, "unknown upload kind")
	ErrEmptyFile       = apperror.New(http.StatusBadRequest, "file is empty")
	ErrFileTooLarge    = apperror.New(http.StatusRequestEntityTooLarge, "file is too large")
	ErrUnsupportedType = apperror.New(http.StatusUnsupportedMediaType, "file type is not allowed")
	ErrStorage         = apperror.New(http.StatusInternalServerError, "file could not be stored")
	ErrNotFound        = apperror.New(http.StatusNotFound, "file not found")
)

// Kind is the purpose of an uploaded file. It is also the top-level
// directory the file is stored under.
type Kind string

const (
	KindResume  Kind = "resume"
	KindPayment Kind = "payment"
)

// ParseKind validates a kind taken from the request path.
func ParseKind(v string) (Kind, error) {
	switch Kind(v) {
	case KindResume, KindPayment:
		return Kind(v), nil
	}
	return "", ErrInvalidKind
}

var allowedTypes = map[Kind][]string{
	KindResume: {
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	},
	KindPayment: {"image/jpeg", "image/png", "image/gif"},
}

// Payment screenshots are re-encoded to fit inside this box.
const (
	maxImageWidth  = 1600
	maxImageHeight = 1600
)

// File describes a stored upload. Path is the value clients put in
// resume_file_path or payment_screenshot_path.
type File struct {
	Path        string
	Kind        Kind
	ContentType string
	Size        int64
}
