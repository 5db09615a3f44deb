package keys

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// sanitizeKey replaces spaces and slashes with hyphens and lowercases the string.
func sanitizeKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "-", "/", "-", "\\", "-").Replace(s)
	return strings.ToLower(s)
}

// Photo returns the object key for an attendance photo:
// attendance/<employee>/<YYYY-MM-DD>/<uuid>.<ext>
func Photo(employeeRef string, day time.Time, id uuid.UUID, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("attendance/%s/%s/%s.%s",
		sanitizeKey(employeeRef),
		day.Format("2006-01-02"),
		id,
		ext,
	)
}

// IsPhoto reports whether key has the attendance photo prefix.
func IsPhoto(key string) bool {
	return strings.HasPrefix(key, "attendance/") && !strings.Contains(key, "..")
}
