package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/lifelapse/internal/model"
)

const (
	DefaultThreads       = 16
	MinThreads           = 1
	MaxThreads           = 32
	DefaultBatchSize     = 50
	MinBatchSize         = 10
	MaxBatchSize         = 200
	DefaultDisplay1Tag   = "DISPLAY1"
	DefaultDisplay2Tag   = "DISPLAY2"
	DefaultScreenshotExt = "png"
	DefaultCameraExt     = "jpg"
	DefaultPlayerAddr    = ":8080"
	DefaultCacheSize     = 64
	DateLayout           = "2006-01-02"
)

// DefaultStart is the first day of the default date range.
var DefaultStart = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.Local)

// DefaultPhotosRoot returns the default camera photo root.
func DefaultPhotosRoot() string {
	return filepath.Join(DefaultLogRoot(), "cameraCap")
}

// DefaultScreenshotsRoot returns the default screenshot root.
func DefaultScreenshotsRoot() string {
	return filepath.Join(DefaultLogRoot(), "screenCap")
}

// DefaultOutputRoot returns the default composite output directory.
func DefaultOutputRoot() string {
	return filepath.Join(DefaultLogRoot(), "composites")
}

// ClampThreads limits the worker count to the supported range.
// The second result reports whether the value was changed.
func ClampThreads(n int) (int, bool) {
	return clamp(n, MinThreads, MaxThreads)
}

// ClampBatchSize limits the batch size to the supported range.
func ClampBatchSize(n int) (int, bool) {
	return clamp(n, MinBatchSize, MaxBatchSize)
}

func clamp(n, lo, hi int) (int, bool) {
	switch {
	case n < lo:
		return lo, true
	case n > hi:
		return hi, true
	default:
		return n, false
	}
}

// ParseDate parses a YYYY-MM-DD date in local time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// ParseShapePolicy validates a shape policy name. Empty means resize.
func ParseShapePolicy(s string) (model.ShapePolicy, error) {
	switch model.ShapePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", model.ShapeResize:
		return model.ShapeResize, nil
	case model.ShapeStrict:
		return model.ShapeStrict, nil
	default:
		return "", fmt.Errorf("unknown shape policy %q (use resize or strict)", s)
	}
}

// ParseShape parses a WIDTHxHEIGHT string. Empty input yields the zero shape.
func ParseShape(s string) (model.Shape, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return model.Shape{}, nil
	}
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return model.Shape{}, fmt.Errorf("invalid shape %q (expected WIDTHxHEIGHT)", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return model.Shape{}, fmt.Errorf("invalid shape width %q", ws)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return model.Shape{}, fmt.Errorf("invalid shape height %q", hs)
	}
	return model.Shape{Height: h, Width: w}, nil
}
