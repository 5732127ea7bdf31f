// Package stats renders the composite run history report.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/verte-zerg/lifelapse/internal/model"
)

const sparkChars = " .:-=+*#%@"

// SuccessRate returns the fraction of discovered captures that were used.
func SuccessRate(discovered, succeeded int) float64 {
	if discovered <= 0 {
		return 0
	}
	return float64(succeeded) / float64(discovered)
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 || len(values) == 0 {
		copy(out, values)
		return out
	}
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(min(i+1, window))
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints totals across runs and the latest output.
func RenderSummary(w io.Writer, runs []model.RunSummary, latest *model.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	var discovered, succeeded, written int
	var totalMs int64
	for _, r := range runs {
		discovered += r.Discovered
		succeeded += r.Succeeded
		totalMs += r.DurationMs
		if r.Status == model.StatusWritten {
			written++
		}
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Runs: %d (%d written)", len(runs), written),
		fmt.Sprintf("Captures used: %d of %d", succeeded, discovered),
		fmt.Sprintf("Success rate: %.2f%%", SuccessRate(discovered, succeeded)*100),
		fmt.Sprintf("Avg duration: %s", (time.Duration(totalMs/int64(len(runs))) * time.Millisecond).String()),
	}
	if latest != nil && len(latest.OutputPaths) > 0 {
		lines = append(lines, fmt.Sprintf("Last output: %s", strings.Join(latest.OutputPaths, ", ")))
	}
	lines = append(lines, "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderRunTable prints one row per run.
func RenderRunTable(w io.Writer, runs []model.RunSummary) error {
	if len(runs) == 0 {
		return nil
	}
	headers := []string{"Ended", "Range", "Status", "Used", "Found", "Rate", "Duration", "ID"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			r.RangeLabel,
			string(r.Status),
			fmt.Sprintf("%d", r.Succeeded),
			fmt.Sprintf("%d", r.Discovered),
			fmt.Sprintf("%.1f%%", SuccessRate(r.Discovered, r.Succeeded)*100),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			shortID(r.ID),
		})
	}
	if _, err := fmt.Fprintln(w, "Runs"); err != nil {
		return err
	}
	rightAlign := map[int]bool{3: true, 4: true, 5: true, 6: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RenderTrend prints a sparkline of captures used per run and the moving
// average of the success rate as a bar chart.
func RenderTrend(w io.Writer, runs []model.RunSummary, window, totalWidth, height int) error {
	if len(runs) < 2 {
		return nil
	}
	used := make([]float64, len(runs))
	rates := make([]float64, len(runs))
	for i, r := range runs {
		used[i] = float64(r.Succeeded)
		rates[i] = SuccessRate(r.Discovered, r.Succeeded) * 100
	}
	if _, err := fmt.Fprintf(w, "Captures used: %s\n", Sparkline(used)); err != nil {
		return err
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotBars(w, fmt.Sprintf("Success rate (%%, moving avg %d)", window), MovingAverage(rates, window), width, height)
}

// FailingDates returns the dates with the most failed loads, worst first.
// Dates without failures are omitted.
func FailingDates(aggs []model.DateAggregate, top int) []model.DateAggregate {
	out := make([]model.DateAggregate, 0, len(aggs))
	for _, agg := range aggs {
		if agg.Failed() > 0 {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failed() == out[j].Failed() {
			return out[i].Date < out[j].Date
		}
		return out[i].Failed() > out[j].Failed()
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}

// RenderFailingDates prints the dates with the most failed loads.
func RenderFailingDates(w io.Writer, aggs []model.DateAggregate, top int) error {
	failing := FailingDates(aggs, top)
	if len(failing) == 0 {
		_, err := fmt.Fprintln(w, "No failed loads.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Dates With Failed Loads"); err != nil {
		return err
	}
	headers := []string{"Date", "Failed", "Found", "Rate"}
	rows := make([][]string, 0, len(failing))
	for _, agg := range failing {
		rows = append(rows, []string{
			agg.Date,
			fmt.Sprintf("%d", agg.Failed()),
			fmt.Sprintf("%d", agg.Discovered),
			fmt.Sprintf("%.1f%%", SuccessRate(agg.Discovered, agg.Succeeded)*100),
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{1: true, 2: true, 3: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
