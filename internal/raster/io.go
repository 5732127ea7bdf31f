package raster

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/verte-zerg/lifelapse/internal/model"
)

const jpegQuality = 95

// Open decodes the image at path.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// DecodeShape reads only the image header at path and returns its size.
func DecodeShape(path string) (model.Shape, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.Shape{}, err
	}
	defer func() {
		_ = file.Close()
	}()
	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return model.Shape{}, fmt.Errorf("failed to decode header of %s: %w", path, err)
	}
	return model.Shape{Height: cfg.Height, Width: cfg.Width}, nil
}

// Resize scales img to shape with a linear filter. Images already at the
// requested shape are returned unchanged.
func Resize(img image.Image, shape model.Shape) image.Image {
	if ShapeOf(img) == shape {
		return img
	}
	return imaging.Resize(img, shape.Width, shape.Height, imaging.Linear)
}

// Load decodes path and converts it to a raster, resizing to target when
// target is set.
func Load(path string, target model.Shape) (*Raster, error) {
	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	if !target.IsZero() {
		img = Resize(img, target)
	}
	return FromImage(img), nil
}

// Save encodes img to path. The format follows the file extension. The image
// is written to a temporary file in the same directory and renamed into place.
func Save(path string, img image.Image) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("unsupported output format for %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp image: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if err := imaging.Encode(tmpFile, img, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
