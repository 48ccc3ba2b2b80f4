package raw_test

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gwlsn/rawray/internal/raw"
)

// writeFakeDcraw installs a shell script standing in for the dcraw binary.
func writeFakeDcraw(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dcraw")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecoderParsesOutput(t *testing.T) {
	// 2x1 PPM: a red pixel and a green pixel.
	dcraw := writeFakeDcraw(t, `printf 'P6\n2 1\n255\n'
printf '\377\000\000\000\377\000'
`)

	dec := raw.NewDecoder(dcraw)
	img, err := dec.Decode(context.Background(), "/photos/IMG_0042.ORF")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if img.Bounds() != image.Rect(0, 0, 2, 1) {
		t.Errorf("unexpected bounds: %v", img.Bounds())
	}
	r, _, _, _ := img.At(0, 0).RGBA()
	if r>>8 != 0xff {
		t.Errorf("first pixel should be red, got r=%d", r>>8)
	}
}

func TestDecoderSurfacesStderr(t *testing.T) {
	dcraw := writeFakeDcraw(t, `echo "Cannot open file" >&2
exit 1
`)

	dec := raw.NewDecoder(dcraw)
	_, err := dec.Decode(context.Background(), "/photos/bad.orf")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "Cannot open file") {
		t.Errorf("error should carry stderr, got: %v", err)
	}
}

func TestDecoderHonorsContext(t *testing.T) {
	dcraw := writeFakeDcraw(t, "exec sleep 10\n")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	dec := raw.NewDecoder(dcraw)
	_, err := dec.Decode(ctx, "/photos/slow.orf")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context error, got: %v", err)
	}
}

func TestDecoderMissingBinary(t *testing.T) {
	dec := raw.NewDecoder(filepath.Join(t.TempDir(), "no-such-dcraw"))
	if _, err := dec.Decode(context.Background(), "/photos/a.orf"); err == nil {
		t.Error("expected an error for a missing binary")
	}
}
