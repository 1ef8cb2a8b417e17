// Package progress renders transfer progress bars on a terminal. It
// consumes the synchronous progress callbacks fired by the client package.
package progress

import (
	"fmt"
	"io"
	"path/filepath"
)

const barWidth = 40

// Bar renders a single-file progress bar like
//
//	Uploading: [====================--------------------] 50% (5.0/10.0 MB)
//
// redrawing in place and emitting a newline at 100%.
type Bar struct {
	w           io.Writer
	description string
	lastPercent int
}

// NewBar creates a bar writing to w with the given action label.
func NewBar(w io.Writer, description string) *Bar {
	return &Bar{w: w, description: description, lastPercent: -1}
}

// Update is a client.ProgressFunc.
func (b *Bar) Update(transferred, total int64) {
	if total <= 0 {
		return
	}
	percent := int(transferred * 100 / total)
	if percent == b.lastPercent {
		return
	}
	b.lastPercent = percent

	filled := int(int64(barWidth) * transferred / total)
	if filled > barWidth {
		filled = barWidth
	}
	bar := ""
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar += "="
		} else {
			bar += "-"
		}
	}

	fmt.Fprintf(b.w, "\r%s: [%s] %d%% (%.1f/%.1f MB)",
		b.description, bar, percent,
		float64(transferred)/(1024*1024), float64(total)/(1024*1024))
	if percent >= 100 {
		fmt.Fprintln(b.w)
	}
}

// DirBar renders per-file progress lines for directory transfers, showing
// the base name of the file currently moving.
type DirBar struct {
	w io.Writer
}

// NewDirBar creates a directory progress renderer writing to w.
func NewDirBar(w io.Writer) *DirBar {
	return &DirBar{w: w}
}

// Update is a client.DirProgressFunc.
func (d *DirBar) Update(path string, transferred, total int64) {
	if total < 0 {
		return
	}
	percent := 100
	if total > 0 {
		percent = int(transferred * 100 / total)
	}

	name := filepath.Base(path)
	if len(name) > 30 {
		name = name[:27] + "..."
	}

	fmt.Fprintf(d.w, "\r%s: %d%%   ", name, percent)
	if percent >= 100 {
		fmt.Fprintln(d.w)
	}
}
