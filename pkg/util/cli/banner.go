// Package cli holds terminal helpers shared by the command line tools.
package cli

import (
	"io"
	"os"
	"strings"

	"github.com/aybabtme/rgbterm"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	startColor = 0xffd651
	endColor   = 0xf64d3d
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// GradientBanner writes banner to w, shading its lines from yellow to red.
// Colors are skipped when w is not a terminal or color output is disabled.
func GradientBanner(banner string, w io.Writer) error {
	if color.NoColor || !IsTerminal(w) {
		_, err := io.WriteString(w, banner+"\n")
		return err
	}

	lines := strings.Split(banner, "\n")
	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		progress := 0.0
		if len(lines) > 1 {
			progress = float64(i) / float64(len(lines)-1)
		}
		r := gradient(startColor, endColor, 16, progress)
		g := gradient(startColor, endColor, 8, progress)
		b := gradient(startColor, endColor, 0, progress)
		if _, err := io.WriteString(w, rgbterm.FgString(line, r, g, b)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func gradient(start, end, offset int, progress float64) uint8 {
	start = (start >> offset) & 0xff
	end = (end >> offset) & 0xff
	return uint8(start + int(float64(end-start)*progress))
}
