// Package imagecodec is the decode/resize/encode capability the worker
// depends on, implemented on disintegration/imaging.
package imagecodec

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"

	"thumbnailer/internal/models"
)

type Codec struct {
	// Quality is the JPEG quality, 1-100.
	Quality int
}

func New(quality int) *Codec {
	return &Codec{Quality: quality}
}

// Decode reads and decodes the image at path, honouring EXIF orientation.
// The format is taken from the file extension so thumbnails are encoded the
// same way as the original.
func (c *Codec) Decode(path string) (image.Image, imaging.Format, error) {
	const op = "imagecodec.Decode"

	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w: %v", op, models.ErrDecode, err)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w: %v", op, models.ErrDecode, err)
	}
	return img, format, nil
}

// Resize scales img to width, deriving the height from the aspect ratio:
// height = max(1, round(srcH * width / srcW)).
func (c *Codec) Resize(img image.Image, width int) image.Image {
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// Save encodes img in format and writes it to path. A failed write leaves
// whatever was written in place.
func (c *Codec) Save(img image.Image, path string, format imaging.Format) error {
	const op = "imagecodec.Save"

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrEncode, err)
	}
	if err := imaging.Encode(f, img, format, imaging.JPEGQuality(c.Quality)); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w: %v", op, models.ErrEncode, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrEncode, err)
	}
	return nil
}

// Dimensions reads the width and height of the image stored at path
// without decoding its pixels.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("imagecodec.Dimensions: %w: %v", models.ErrDecode, err)
	}
	return cfg.Width, cfg.Height, nil
}
