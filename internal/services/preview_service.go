package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
)

// PreviewDir is the mirror subdirectory holding previews
const PreviewDir = ".previews"

// PreviewService writes downscaled JPEG previews of mirrored photos under
// <mirror>/.previews/, keeping the Year/Month layout of the originals.
type PreviewService struct {
	basePath string
	maxDim   int
	quality  int
}

// NewPreviewService creates a PreviewService rooted at the mirror base path
func NewPreviewService(basePath string, maxDim int) *PreviewService {
	if maxDim <= 0 {
		maxDim = 500
	}
	return &PreviewService{basePath: basePath, maxDim: maxDim, quality: 85}
}

// Generate reads the original at srcPath and writes a preview for the
// mirrored file at storedPath. It returns the preview path relative to the
// mirror root.
func (s *PreviewService) Generate(srcPath, storedPath string) (string, error) {
	if !IsPreviewable(storedPath) {
		return "", fmt.Errorf("unsupported format: %s", storedPath)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	img, err := decodeImage(data, storedPath)
	if err != nil {
		return "", err
	}
	img = applyOrientation(img, readOrientation(data))

	w, h := fitWithin(img.Bounds().Dx(), img.Bounds().Dy(), s.maxDim)
	resized := imaging.Resize(img, w, h, imaging.Lanczos)

	rel := filepath.Join(PreviewDir, strings.TrimSuffix(filepath.FromSlash(storedPath), filepath.Ext(storedPath))+".jpg")
	full := filepath.Join(s.basePath, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create preview directory: %w", err)
	}

	out, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create preview file: %w", err)
	}
	if err := jpeg.Encode(out, resized, &jpeg.Options{Quality: s.quality}); err != nil {
		out.Close()
		os.Remove(full)
		return "", fmt.Errorf("failed to encode preview: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(full)
		return "", err
	}

	return filepath.ToSlash(rel), nil
}

func decodeImage(data []byte, name string) (image.Image, error) {
	if IsHEIC(name) {
		img, err := goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode HEIC image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// fitWithin scales w x h so the longer side is at most maxDim
func fitWithin(w, h, maxDim int) (int, int) {
	switch {
	case w >= h && w > maxDim:
		return maxDim, max(1, h*maxDim/w)
	case h > w && h > maxDim:
		return max(1, w*maxDim/h), maxDim
	default:
		return w, h
	}
}

// readOrientation returns the EXIF orientation tag, or 1 when absent
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// applyOrientation corrects image orientation based on EXIF data
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		// Transpose
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		// Transverse
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// IsPreviewable checks if a preview can be generated for the file extension
func IsPreviewable(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif", ".heic", ".heif":
		return true
	}
	return false
}

// IsHEIC checks if the file is HEIC/HEIF format
func IsHEIC(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".heic" || ext == ".heif"
}
