// Package encode turns decoded RGB rasters into compressed image files.
package encode

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/chai2010/webp"
)

// Output format names accepted in config and run requests.
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// Encoder writes an image as a compressed bitstream.
// quality is 1-100 and maps directly onto the codec's quality scale.
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality int) error

	// Ext returns the output filename extension, with leading dot.
	Ext() string
}

// ForFormat returns the encoder for a format name.
func ForFormat(format string) (Encoder, error) {
	switch format {
	case FormatJPEG:
		return jpegEncoder{}, nil
	case FormatWebP:
		return webpEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %q", format)
	}
}

// IsValidFormat reports whether the format name is supported.
func IsValidFormat(format string) bool {
	_, err := ForFormat(format)
	return err == nil
}

// Formats returns the supported format names.
func Formats() []string {
	return []string{FormatJPEG, FormatWebP}
}

type jpegEncoder struct{}

func (jpegEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

func (jpegEncoder) Ext() string { return ".jpg" }

type webpEncoder struct{}

func (webpEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
}

func (webpEncoder) Ext() string { return ".webp" }
