// Package storage holds raw uploaded bytes behind a small key/value interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("storage: object not found")

type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w\s\-.]`)

// SanitizeFilename drops any directory part and replaces characters outside
// word, space, dash and dot with underscores.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "file"
	}
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// ObjectKey builds {user_id}/{YYYYmmdd_HHMMSS}_{uuid8}_{filename}.
func ObjectKey(userID uuid.UUID, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%s_%s_%s",
		userID.String(),
		now.UTC().Format("20060102_150405"),
		uuid.NewString()[:8],
		SanitizeFilename(filename),
	)
}
