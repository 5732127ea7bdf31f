package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPlotBars(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotBars(&buf, "Rate", []float64{10, 50, 100}, 20, 3); err != nil {
		t.Fatalf("PlotBars failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected title and 3 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Rate" {
		t.Fatalf("unexpected title %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "100.0 │ ") {
		t.Fatalf("expected max label on top row, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[3], " 10.0 │ ") {
		t.Fatalf("expected min label on bottom row, got %q", lines[3])
	}
	if !strings.HasSuffix(lines[1], "█") {
		t.Fatalf("expected full bar for max value, got %q", lines[1])
	}
}

func TestPlotBarsConstant(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotBars(&buf, "", []float64{5, 5}, 10, 2); err != nil {
		t.Fatalf("PlotBars failed: %v", err)
	}
	if !strings.Contains(buf.String(), "██") {
		t.Fatalf("expected full bars for constant series:\n%s", buf.String())
	}
}

func TestPlotWidthFor(t *testing.T) {
	axisWidth := runewidth.StringWidth("100.0" + axisSeparator)
	if got := PlotWidthFor(80); got != 80-axisWidth {
		t.Fatalf("expected width %d, got %d", 80-axisWidth, got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
}

func TestResampleAverages(t *testing.T) {
	got := resample([]float64{1, 3, 5, 7}, 2)
	if len(got) != 2 || got[0] != 2 || got[1] != 6 {
		t.Fatalf("unexpected resample %v", got)
	}
}
