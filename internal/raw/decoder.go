package raw

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"
)

// Decoder wraps dcraw demosaicing functionality
type Decoder struct {
	dcrawPath string
}

// NewDecoder creates a new Decoder with the given dcraw path
func NewDecoder(dcrawPath string) *Decoder {
	return &Decoder{dcrawPath: dcrawPath}
}

// Decode demosaics a RAW file into an RGB raster.
// dcraw writes a PPM to stdout (-c) using camera white balance (-w);
// the PPM is parsed in-process. The context kills dcraw on shutdown.
func (d *Decoder) Decode(ctx context.Context, path string) (image.Image, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, d.dcrawPath, "-c", "-w", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dcraw %s: %w%s", path, err, stderrTail(stderr.String()))
	}

	img, err := DecodePPM(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("parse dcraw output for %s: %w", path, err)
	}
	return img, nil
}

// stderrTail returns the last line of dcraw's stderr for error context.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	return ": " + strings.TrimSpace(lines[len(lines)-1])
}
