package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const (
	defaultPlotHeight   = 6
	minPlotWidth        = 10
	axisSeparator       = " │ "
	terminalWidthBackup = 80
)

// Eighth-block glyphs from empty to full.
var barGlyphs = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// PlotBars renders values as vertical bars scaled between their min and max.
// width 0 uses the terminal width.
func PlotBars(w io.Writer, title string, values []float64, width, height int) error {
	if len(values) == 0 {
		return nil
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	width = max(width, minPlotWidth)
	cols := resample(values, min(width, len(values)))

	lo, hi := cols[0], cols[0]
	for _, v := range cols[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	top := fmt.Sprintf("%.1f", hi)
	bottom := fmt.Sprintf("%.1f", lo)
	labelWidth := max(runewidth.StringWidth(top), runewidth.StringWidth(bottom))

	// Bars always get at least one eighth so the lowest value stays visible.
	levels := make([]int, len(cols))
	steps := height * (len(barGlyphs) - 1)
	for i, v := range cols {
		pos := 1.0
		if hi-lo > 1e-9 {
			pos = (v - lo) / (hi - lo)
		}
		levels[i] = max(1, int(math.Round(pos*float64(steps))))
	}

	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	for y := height - 1; y >= 0; y-- {
		label := ""
		switch y {
		case height - 1:
			label = top
		case 0:
			label = bottom
		}
		var row strings.Builder
		row.WriteString(runewidth.FillLeft(label, labelWidth))
		row.WriteString(axisSeparator)
		for _, level := range levels {
			fill := level - y*(len(barGlyphs)-1)
			fill = max(0, min(fill, len(barGlyphs)-1))
			row.WriteRune(barGlyphs[fill])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(row.String(), " ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	axisWidth := runewidth.StringWidth("100.0" + axisSeparator)
	return max(totalWidth-axisWidth, minPlotWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

// resample averages values into n buckets. n must not exceed len(values).
func resample(values []float64, n int) []float64 {
	if n >= len(values) {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * len(values) / n
		end := max((i+1)*len(values)/n, start+1)
		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}
