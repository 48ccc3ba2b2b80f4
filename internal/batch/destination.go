package batch

import (
	"path/filepath"
	"strings"
)

// DestMode selects where converted images are written.
type DestMode string

const (
	// DestFixed writes all outputs into one directory, created if absent.
	DestFixed DestMode = "fixed"

	// DestSourceRelative writes each output beside its source file.
	DestSourceRelative DestMode = "source_relative"
)

// Destination is the output placement policy for a run. It is chosen at
// construction time and never changes for the run's duration.
type Destination struct {
	Mode DestMode `json:"mode"`
	Dir  string   `json:"dir,omitempty"`
}

// FixedDirectory returns a policy writing every output into dir.
func FixedDirectory(dir string) Destination {
	return Destination{Mode: DestFixed, Dir: dir}
}

// SourceRelative returns a policy writing each output beside its source.
func SourceRelative() Destination {
	return Destination{Mode: DestSourceRelative}
}

// OutputPath computes the output file path for a source file: the source's
// base name with the target extension, in the policy's directory. Two
// sources with the same base name land on the same path; the later write
// wins, matching the behavior photographers already rely on.
func (d Destination) OutputPath(inputPath, ext string) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	dir := d.Dir
	if d.Mode == DestSourceRelative {
		dir = filepath.Dir(inputPath)
	}
	return filepath.Join(dir, base+ext)
}
