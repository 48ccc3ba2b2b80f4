// Package raw decodes camera RAW files into RGB rasters by driving the
// dcraw binary. Demosaicing itself is dcraw's problem; this package only
// shells out and parses the PPM it prints.
package raw

import (
	"path/filepath"
	"strings"
)

// rawExtensions lists the vendor RAW formats dcraw understands that we
// accept for conversion. Lowercase, with leading dot.
var rawExtensions = map[string]bool{
	".orf": true, // Olympus
	".cr2": true, // Canon
	".cr3": true,
	".nef": true, // Nikon
	".nrw": true,
	".arw": true, // Sony
	".dng": true, // Adobe
	".raf": true, // Fujifilm
	".rw2": true, // Panasonic
	".pef": true, // Pentax
	".srw": true, // Samsung
	".raw": true,
}

// IsRawFile reports whether the path has a recognized RAW extension.
func IsRawFile(path string) bool {
	return rawExtensions[strings.ToLower(filepath.Ext(path))]
}

// Extensions returns the accepted RAW extensions (lowercase, with dot).
func Extensions() []string {
	exts := make([]string, 0, len(rawExtensions))
	for ext := range rawExtensions {
		exts = append(exts, ext)
	}
	return exts
}
