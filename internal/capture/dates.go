package capture

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// ErrNoDates is returned when a run enumerates no dates at all.
var ErrNoDates = errors.New("no dates to process")

// DateRange lists every day from start to end inclusive as YYYY-MM-DD.
// A start after end yields nil.
func DateRange(start, end time.Time) []string {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return nil
	}
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AllDates lists date-named folders under the screenshots root. With
// includeCamera only dates also present under the photos root are kept.
func AllDates(layout Layout, includeCamera bool) ([]string, error) {
	screens, err := dateDirs(layout.ScreenshotsRoot)
	if err != nil {
		return nil, err
	}
	if !includeCamera {
		return screens, nil
	}
	photos, err := dateDirs(layout.PhotosRoot)
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(photos))
	for _, d := range photos {
		present[d] = struct{}{}
	}
	out := screens[:0]
	for _, d := range screens {
		if _, ok := present[d]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func dateDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(dateLayout, e.Name()); err != nil {
			continue
		}
		dates = append(dates, e.Name())
	}
	sort.Strings(dates)
	return dates, nil
}
