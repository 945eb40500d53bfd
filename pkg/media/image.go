// Package media reads and writes still images and video containers.
package media

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/L0G1H/deepfakery/pkg/recognition"
	"github.com/disintegration/imaging"

	// Registers WebP with image.Decode, which imaging.Open uses.
	_ "golang.org/x/image/webp"
)

// ErrUnreadable is returned when a file is missing or cannot be decoded.
var ErrUnreadable = errors.New("unreadable media file")

// ReadImage decodes a still image, honouring its EXIF orientation. JPEG, PNG,
// GIF, BMP, TIFF and WebP are supported.
func ReadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %s: empty image", ErrUnreadable, path)
	}
	return img, nil
}

// WriteImage encodes img to path; the format follows the file extension.
func WriteImage(img image.Image, path string) error {
	if err := imaging.Save(img, path, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// IsSupportedImage reports whether WriteImage can encode to path.
func IsSupportedImage(path string) bool {
	_, err := imaging.FormatFromFilename(path)
	return err == nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// SaveDebug writes an annotated copy of img into dir as name.png.
func SaveDebug(dir, name string, img image.Image, faces []recognition.Face) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create debug directory: %w", err)
	}
	return WriteImage(Annotate(img, faces), filepath.Join(dir, name+".png"))
}
