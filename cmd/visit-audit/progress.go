package main

import (
	"fmt"
	"io"
	"strings"
)

const barWidth = 30

// progressBar renders a single-line text bar. It redraws only when the
// percentage changes.
type progressBar struct {
	w     io.Writer
	label string
	last  int
}

func newProgressBar(w io.Writer, label string) *progressBar {
	return &progressBar{w: w, label: label, last: -1}
}

func (p *progressBar) Update(done, total int) {
	if total <= 0 {
		return
	}
	pct := done * 100 / total
	if pct == p.last {
		return
	}
	p.last = pct

	filled := done * barWidth / total
	fmt.Fprintf(p.w, "\r%s [%s%s] %3d%% (%d/%d)",
		p.label, strings.Repeat("#", filled), strings.Repeat(" ", barWidth-filled), pct, done, total)
	if done >= total {
		fmt.Fprintln(p.w)
	}
}
