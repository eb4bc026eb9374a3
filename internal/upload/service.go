package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/storage"
)

type Service interface {
	// Save validates and stores content. size is the declared length and is
	// checked again against the bytes actually read.
	Save(ctx context.Context, kind Kind, content io.Reader, size int64) (*File, error)
	Open(ctx context.Context, path string) ([]byte, string, error)
}

type service struct {
	storage  storage.Storage
	imgProc  *storage.ImageProcessor
	maxBytes int64
	log      *zap.Logger
}

func NewService(store storage.Storage, maxBytes int64, log *zap.Logger) Service {
	return &service{
		storage:  store,
		imgProc:  storage.NewImageProcessor(),
		maxBytes: maxBytes,
		log:      log,
	}
}

func (s *service) Save(ctx context.Context, kind Kind, content io.Reader, size int64) (*File, error) {
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	// Read at most one byte past the limit to detect oversized bodies whose
	// declared size was wrong.
	limit := s.maxBytes
	if limit <= 0 {
		limit = 1 << 30
	}
	data, err := io.ReadAll(io.LimitReader(content, limit+1))
	if err != nil {
		return nil, apperror.WrapSentinel(ErrStorage, fmt.Errorf("read upload: %w", err))
	}
	if int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	mime := mimetype.Detect(data)
	if !isAllowed(kind, mime) {
		s.log.Info("rejected upload", zap.String("kind", string(kind)), zap.String("detected", mime.String()))
		return nil, ErrUnsupportedType
	}

	contentType := mime.String()
	ext := mime.Extension()
	body := io.Reader(bytes.NewReader(data))
	if kind == KindPayment {
		buf, err := s.imgProc.FitJPEG(bytes.NewReader(data), maxImageWidth, maxImageHeight)
		if err != nil {
			return nil, apperror.Wrap(err, ErrUnsupportedType.Code, ErrUnsupportedType.Message)
		}
		contentType, ext = "image/jpeg", ".jpg"
		data = buf.Bytes()
		body = buf
	}

	// Sharding path: <kind>/ab/UUID.ext
	id := uuid.NewString()
	path := fmt.Sprintf("%s/%s/%s%s", kind, id[:2], id, ext)
	if err := s.storage.Save(ctx, path, body); err != nil {
		return nil, apperror.WrapSentinel(ErrStorage, err)
	}

	s.log.Info("stored upload",
		zap.String("path", path),
		zap.String("content_type", contentType),
		zap.Int("size", len(data)),
	)
	return &File{Path: path, Kind: kind, ContentType: contentType, Size: int64(len(data))}, nil
}

// Open returns a stored upload and its detected content type.
func (s *service) Open(ctx context.Context, path string) ([]byte, string, error) {
	rc, err := s.storage.Get(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidPath) {
			return nil, "", ErrNotFound
		}
		return nil, "", apperror.WrapSentinel(ErrStorage, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", apperror.WrapSentinel(ErrStorage, err)
	}
	return data, mimetype.Detect(data).String(), nil
}

func isAllowed(kind Kind, mime *mimetype.MIME) bool {
	for _, t := range allowedTypes[kind] {
		if mime.Is(t) {
			return true
		}
	}
	return false
}
