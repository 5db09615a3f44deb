package attendance

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendance/internal/keys"
)

// PhotoUploader stores photo bytes under an object key.
type PhotoUploader interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

var errNotDataURL = errors.New("not a data URL")

// dataURL is a decoded "data:<mime>;base64,<payload>" value.
type dataURL struct {
	ContentType string
	Data        []byte
}

func parseDataURL(s string) (dataURL, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return dataURL{}, errNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return dataURL{}, fmt.Errorf("data URL without payload")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return dataURL{}, fmt.Errorf("data URL is not base64 encoded")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return dataURL{}, fmt.Errorf("decode photo: %w", err)
	}
	if len(data) == 0 {
		return dataURL{}, fmt.Errorf("empty photo")
	}
	return dataURL{ContentType: contentType, Data: data}, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

// storePhoto returns the reference to persist for photo. Data URLs are
// uploaded when an uploader is configured; anything else is kept verbatim.
func (s *Service) storePhoto(ctx context.Context, employeeRef string, day time.Time, photo string) (ref string, uploaded bool, err error) {
	photo = strings.TrimSpace(photo)
	if photo == "" {
		return "", false, nil
	}
	if s.photos == nil {
		return photo, false, nil
	}
	du, err := parseDataURL(photo)
	if errors.Is(err, errNotDataURL) {
		return photo, false, nil
	}
	if err != nil {
		return "", false, err
	}
	key := keys.Photo(employeeRef, day, uuid.New(), extensionFor(du.ContentType))
	if err := s.photos.Put(ctx, key, du.ContentType, du.Data); err != nil {
		return "", false, err
	}
	return key, true, nil
}

// discardPhoto removes an object uploaded for a check-in that was not stored.
func (s *Service) discardPhoto(ctx context.Context, d *draft) {
	if !d.photoUploaded {
		return
	}
	if err := s.photos.Delete(context.WithoutCancel(ctx), d.photoRef); err != nil {
		s.logger.Warn("failed to remove orphaned photo", "key", d.photoRef, "error", err)
	}
}
