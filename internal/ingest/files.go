package ingest

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kbase/internal/models"
)

// IngestFile reads a regular file and ingests it under its base name.
func (o *Orchestrator) IngestFile(ctx context.Context, path string, userID *string) (*models.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return o.Ingest(ctx, &Request{
		Content:     content,
		DisplayName: filepath.Base(path),
		MediaHint:   MediaTypeOf(path),
		UserID:      userID,
	})
}

// MediaTypeOf guesses a media type from the file extension, without parameters.
func MediaTypeOf(path string) string {
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	base, _, _ := strings.Cut(mt, ";")
	return base
}

// CollectFiles expands paths into regular files. Directories are walked
// recursively; files found while walking must have an extension in
// allowedExts when it is non-empty. Explicitly named files are always kept.
func CollectFiles(paths []string, allowedExts []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, absPath)
			continue
		}
		err = filepath.WalkDir(absPath, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != absPath && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if len(allowedExts) > 0 && !ExtensionAllowed(filepath.Ext(path), allowedExts) {
				return nil
			}
			// Resolve symlinks so only regular files are collected
			finfo, statErr := os.Stat(path)
			if statErr != nil || !finfo.Mode().IsRegular() {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the leading dot.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
