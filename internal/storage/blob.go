package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BlobStore saves and deletes raw uploaded content by generated name.
type BlobStore interface {
	// Save stores data under a name generated from originalName and returns that name.
	Save(ctx context.Context, originalName string, data []byte) (string, error)
	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// Path returns the location of the named blob.
	Path(name string) string
}

// DiskBlobStore keeps blobs as files in one directory.
type DiskBlobStore struct {
	dir string
	now func() time.Time
}

// NewDiskBlobStore creates dir if needed and returns a store rooted at it.
func NewDiskBlobStore(dir string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &DiskBlobStore{dir: dir, now: time.Now}, nil
}

// Dir returns the root directory.
func (b *DiskBlobStore) Dir() string {
	return b.dir
}

// Save writes data to a temp file, syncs it, and renames it into place so a
// returned name always refers to complete content.
func (b *DiskBlobStore) Save(ctx context.Context, originalName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := GenerateBlobName(b.now(), uuid.New(), originalName)
	tmp, err := os.CreateTemp(b.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmpName, b.Path(name)); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return name, nil
}

// Delete removes the named blob.
func (b *DiskBlobStore) Delete(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	if err := os.Remove(b.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}

// Path returns the file path of the named blob. Directory components in name are ignored.
func (b *DiskBlobStore) Path(name string) string {
	return filepath.Join(b.dir, filepath.Base(name))
}

// GenerateBlobName returns "{YYYYmmdd_HHMMSS}_{uuid hex}_{sanitized name}".
func GenerateBlobName(now time.Time, id uuid.UUID, originalName string) string {
	return fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), strings.ReplaceAll(id.String(), "-", ""), SanitizeFilename(originalName))
}

// SanitizeFilename keeps ASCII letters, digits, '.', '_' and '-'.
// A name with nothing left becomes "document".
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range filepath.Base(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "document"
	}
	return b.String()
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed). Missing and empty paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
