package capture

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/verte-zerg/lifelapse/internal/model"
)

// Discover returns every qualifying capture for dates in shuffled order,
// along with the number discovered per date. Dates that cannot be listed
// contribute zero captures.
func Discover(logger zerolog.Logger, layout Layout, dates []string, includeCamera bool, rnd *rand.Rand) ([]model.Capture, []model.DateCount) {
	var captures []model.Capture
	counts := make([]model.DateCount, 0, len(dates))
	for _, date := range dates {
		stamps, err := qualifying(layout, date, includeCamera)
		if err != nil {
			logger.Warn().Err(err).Str("date", date).Msg("skipping date")
		}
		for _, ts := range stamps {
			captures = append(captures, model.Capture{Date: date, Timestamp: ts})
		}
		counts = append(counts, model.DateCount{Date: date, Discovered: len(stamps)})
		logger.Debug().Str("date", date).Int("captures", len(stamps)).Msg("scanned date")
	}
	Shuffle(captures, rnd)
	return captures, counts
}

// Shuffle permutes captures in place. A nil rnd uses the global source.
func Shuffle(captures []model.Capture, rnd *rand.Rand) {
	swap := func(i, j int) { captures[i], captures[j] = captures[j], captures[i] }
	if rnd == nil {
		rand.Shuffle(len(captures), swap)
		return
	}
	rnd.Shuffle(len(captures), swap)
}

// qualifying returns the sorted timestamps of date present in both display
// sets and, when includeCamera is set, in the camera set.
func qualifying(layout Layout, date string, includeCamera bool) ([]string, error) {
	d1, d2, err := displaySets(layout, date)
	if err != nil {
		return nil, err
	}
	var camera map[string]struct{}
	if includeCamera {
		camera, err = cameraSet(layout, date)
		if err != nil {
			return nil, err
		}
	}
	var stamps []string
	for ts := range d1 {
		if _, ok := d2[ts]; !ok {
			continue
		}
		if includeCamera {
			if _, ok := camera[ts]; !ok {
				continue
			}
		}
		stamps = append(stamps, ts)
	}
	sort.Strings(stamps)
	return stamps, nil
}

func displaySets(layout Layout, date string) (map[string]struct{}, map[string]struct{}, error) {
	names, err := listFiles(filepath.Join(layout.ScreenshotsRoot, date))
	if err != nil {
		return nil, nil, err
	}
	d1 := make(map[string]struct{})
	d2 := make(map[string]struct{})
	for _, name := range names {
		ts, role, ok := layout.ParseScreenshotName(name)
		if !ok {
			continue
		}
		if role == model.RoleDisplay1 {
			d1[ts] = struct{}{}
		} else {
			d2[ts] = struct{}{}
		}
	}
	return d1, d2, nil
}

func cameraSet(layout Layout, date string) (map[string]struct{}, error) {
	names, err := listFiles(filepath.Join(layout.PhotosRoot, date))
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if ts, ok := layout.ParseCameraName(name); ok {
			set[ts] = struct{}{}
		}
	}
	return set, nil
}

// listFiles returns the regular file names in dir. A missing dir is empty.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Frame is one browsable moment of a date: both displays are present, the
// camera photo may be missing.
type Frame struct {
	Timestamp string `json:"timestamp"`
	Camera    string `json:"camera,omitempty"`
	Display1  string `json:"display1"`
	Display2  string `json:"display2"`
}

// Frames lists the frames of date sorted by timestamp. Paths are relative to
// the photos and screenshots roots.
func Frames(layout Layout, date string) ([]Frame, error) {
	stamps, err := qualifying(layout, date, false)
	if err != nil {
		return nil, err
	}
	camera, err := cameraSet(layout, date)
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, len(stamps))
	for _, ts := range stamps {
		c := model.Capture{Date: date, Timestamp: ts}
		f := Frame{
			Timestamp: ts,
			Display1:  filepath.ToSlash(filepath.Join(date, ts+Separator+layout.displayName(model.RoleDisplay1))),
			Display2:  filepath.ToSlash(filepath.Join(date, ts+Separator+layout.displayName(model.RoleDisplay2))),
		}
		if _, ok := camera[ts]; ok {
			f.Camera = filepath.ToSlash(filepath.Join(date, filepath.Base(layout.CameraPath(c))))
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// CountDates returns the number of captures per date, ignoring the camera.
func CountDates(layout Layout, dates []string) ([]model.DateCount, error) {
	counts := make([]model.DateCount, 0, len(dates))
	var errs []error
	for _, date := range dates {
		stamps, err := qualifying(layout, date, false)
		if err != nil {
			errs = append(errs, err)
		}
		counts = append(counts, model.DateCount{Date: date, Discovered: len(stamps)})
	}
	return counts, errors.Join(errs...)
}
