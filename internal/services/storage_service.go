package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/photosync/syncagent/internal/models"
)

// MirrorStorage writes photos into a Year/Month tree under a base path
type MirrorStorage struct {
	basePath          string
	allowedExtensions map[string]bool
	maxFileSizeBytes  int64
}

// NewMirrorStorage creates the base directory if needed
func NewMirrorStorage(basePath string, allowedExtensions []string, maxFileSizeMB int64) (*MirrorStorage, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("mirror path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}

	if len(allowedExtensions) == 0 {
		allowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif"}
	}
	extSet := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		extSet[strings.ToLower(ext)] = true
	}

	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 50
	}

	return &MirrorStorage{
		basePath:          absPath,
		allowedExtensions: extSet,
		maxFileSizeBytes:  maxFileSizeMB * 1024 * 1024,
	}, nil
}

// BasePath returns the absolute mirror root
func (s *MirrorStorage) BasePath() string {
	return s.basePath
}

// Store saves a file and returns its slash-separated path relative to the
// mirror root. Name collisions get a numeric suffix.
func (s *MirrorStorage) Store(reader io.Reader, originalFilename string, dateTaken time.Time, fileSize int64) (string, error) {
	if fileSize > s.maxFileSizeBytes {
		return "", models.ErrFileTooLarge
	}

	filename := models.SanitizeFilename(originalFilename)
	if !s.allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return "", models.ErrInvalidExtension
	}

	relativeFolder := filepath.Join(dateTaken.Format("2006"), dateTaken.Format("01"))
	absoluteFolder := filepath.Join(s.basePath, relativeFolder)
	if err := os.MkdirAll(absoluteFolder, 0755); err != nil {
		return "", err
	}

	relativePath := filepath.Join(relativeFolder, uniqueFilename(filename, absoluteFolder))
	absolutePath, err := s.FullPath(relativePath)
	if err != nil {
		return "", err
	}

	file, err := os.OpenFile(absolutePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(absolutePath)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(absolutePath)
		return "", err
	}

	return filepath.ToSlash(relativePath), nil
}

// FullPath resolves a stored path, rejecting anything outside the root
func (s *MirrorStorage) FullPath(storedPath string) (string, error) {
	if strings.TrimSpace(storedPath) == "" {
		return "", fmt.Errorf("stored path cannot be empty")
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(storedPath)))
	if err != nil {
		return "", err
	}

	if absPath != s.basePath && !strings.HasPrefix(absPath, s.basePath+string(os.PathSeparator)) {
		return "", models.ErrPathTraversal
	}
	return absPath, nil
}

// Exists checks if a file exists at the given stored path
func (s *MirrorStorage) Exists(storedPath string) bool {
	fullPath, err := s.FullPath(storedPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// uniqueFilename appends _001, _002 ... until the name is free in folder
func uniqueFilename(filename, folder string) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	candidate := filename

	for counter := 1; ; counter++ {
		if _, err := os.Stat(filepath.Join(folder, candidate)); os.IsNotExist(err) {
			return candidate
		}
		if counter > 9999 {
			return fmt.Sprintf("%s_%d%s", stem, time.Now().UnixNano(), ext)
		}
		candidate = fmt.Sprintf("%s_%03d%s", stem, counter, ext)
	}
}
