package raw

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// DecodePPM parses a binary PPM (P6) raster as emitted by dcraw -c.
// Both 8-bit and 16-bit sample depths are accepted; 16-bit samples are
// reduced to 8-bit since every supported output format is 8-bit anyway.
func DecodePPM(data []byte) (image.Image, error) {
	p := ppmParser{data: data}

	magic, err := p.token()
	if err != nil {
		return nil, err
	}
	if magic != "P6" {
		return nil, fmt.Errorf("unsupported PPM magic %q", magic)
	}

	width, err := p.intToken()
	if err != nil {
		return nil, fmt.Errorf("width: %w", err)
	}
	height, err := p.intToken()
	if err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}
	maxval, err := p.intToken()
	if err != nil {
		return nil, fmt.Errorf("maxval: %w", err)
	}

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if maxval <= 0 || maxval >= 65536 {
		return nil, fmt.Errorf("invalid maxval %d", maxval)
	}

	// Exactly one whitespace byte separates the header from the raster.
	if err := p.skipOne(); err != nil {
		return nil, err
	}

	bytesPerSample := 1
	if maxval > 255 {
		bytesPerSample = 2
	}
	need := width * height * 3 * bytesPerSample
	raster := p.rest()
	if len(raster) < need {
		return nil, fmt.Errorf("truncated raster: have %d bytes, need %d", len(raster), need)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	si := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var r, g, b uint8
			if bytesPerSample == 1 {
				r, g, b = raster[si], raster[si+1], raster[si+2]
				si += 3
			} else {
				// Big-endian 16-bit samples; keep the high byte.
				r, g, b = raster[si], raster[si+2], raster[si+4]
				si += 6
			}
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}

	return img, nil
}

// ppmParser reads whitespace-separated header tokens, honoring
// '#' comments, then hands over the remaining raster bytes.
type ppmParser struct {
	data []byte
	pos  int
}

func (p *ppmParser) token() (string, error) {
	// Skip whitespace and comments
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if c == '#' {
			for p.pos < len(p.data) && p.data[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		if !isSpace(c) {
			break
		}
		p.pos++
	}
	if p.pos >= len(p.data) {
		return "", errors.New("unexpected end of header")
	}

	start := p.pos
	for p.pos < len(p.data) && !isSpace(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos]), nil
}

func (p *ppmParser) intToken() (int, error) {
	tok, err := p.token()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a number: %q", tok)
		}
		n = n*10 + int(c-'0')
		if n > 1<<30 {
			return 0, fmt.Errorf("number too large: %q", tok)
		}
	}
	return n, nil
}

func (p *ppmParser) skipOne() error {
	if p.pos >= len(p.data) || !isSpace(p.data[p.pos]) {
		return errors.New("missing raster separator")
	}
	p.pos++
	return nil
}

func (p *ppmParser) rest() []byte {
	return p.data[p.pos:]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
