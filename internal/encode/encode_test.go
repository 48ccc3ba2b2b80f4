package encode_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/chai2010/webp"

	"github.com/gwlsn/rawray/internal/encode"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	return img
}

func TestForFormat(t *testing.T) {
	for _, format := range encode.Formats() {
		enc, err := encode.ForFormat(format)
		if err != nil {
			t.Errorf("ForFormat(%q): %v", format, err)
		}
		if enc.Ext() == "" {
			t.Errorf("%s encoder has no extension", format)
		}
	}

	if _, err := encode.ForFormat("tiff"); err == nil {
		t.Error("unknown format should error")
	}
	if encode.IsValidFormat("tiff") || !encode.IsValidFormat("jpeg") {
		t.Error("IsValidFormat disagrees with ForFormat")
	}
}

func TestJPEGRoundTrip(t *testing.T) {
	enc, err := encode.ForFormat(encode.FormatJPEG)
	if err != nil {
		t.Fatal(err)
	}
	if enc.Ext() != ".jpg" {
		t.Errorf("unexpected extension: %s", enc.Ext())
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, testImage(), 90); err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	if decoded.Bounds() != image.Rect(0, 0, 8, 8) {
		t.Errorf("dimensions changed: %v", decoded.Bounds())
	}
}

func TestWebPRoundTrip(t *testing.T) {
	enc, err := encode.ForFormat(encode.FormatWebP)
	if err != nil {
		t.Fatal(err)
	}
	if enc.Ext() != ".webp" {
		t.Errorf("unexpected extension: %s", enc.Ext())
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, testImage(), 80); err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := webp.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not valid WebP: %v", err)
	}
	if decoded.Bounds() != image.Rect(0, 0, 8, 8) {
		t.Errorf("dimensions changed: %v", decoded.Bounds())
	}
}

func TestQualityAffectsSize(t *testing.T) {
	enc, err := encode.ForFormat(encode.FormatJPEG)
	if err != nil {
		t.Fatal(err)
	}

	img := testImage()
	var low, high bytes.Buffer
	if err := enc.Encode(&low, img, 10); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(&high, img, 100); err != nil {
		t.Fatal(err)
	}

	if low.Len() >= high.Len() {
		t.Errorf("quality 10 output (%d bytes) should be smaller than quality 100 (%d bytes)",
			low.Len(), high.Len())
	}
}
