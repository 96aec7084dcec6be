package services

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"
)

var sha256Hex = regexp.MustCompile(`^[a-f0-9]{64}$`)

// HashService computes the content hashes that key the mirror manifest
type HashService struct{}

// NewHashService creates a new HashService
func NewHashService() *HashService {
	return &HashService{}
}

// ComputeHash returns the lowercase hex SHA-256 of r and the number of bytes read
func (s *HashService) ComputeHash(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ComputeFileHash hashes the photo file at path
func (s *HashService) ComputeFileHash(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return s.ComputeHash(f)
}

// NormalizeHash lowercases a hash and strips an optional "sha256:" prefix
func (s *HashService) NormalizeHash(hash string) string {
	normalized := strings.ToLower(strings.TrimSpace(hash))
	return strings.TrimPrefix(normalized, "sha256:")
}

// IsValidHash reports whether hash normalizes to 64 hex characters
func (s *HashService) IsValidHash(hash string) bool {
	return sha256Hex.MatchString(s.NormalizeHash(hash))
}
