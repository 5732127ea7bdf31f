// Package model defines shared data structures.
package model

import (
	"fmt"
	"time"
)

// Role identifies one of the three image sources of a capture.
type Role int

const (
	RoleCamera Role = iota
	RoleDisplay1
	RoleDisplay2
)

// RoleCount is the number of roles; arrays indexed by Role use it as length.
const RoleCount = 3

// Roles lists all roles in accumulator order.
var Roles = [RoleCount]Role{RoleCamera, RoleDisplay1, RoleDisplay2}

func (r Role) String() string {
	switch r {
	case RoleCamera:
		return "camera"
	case RoleDisplay1:
		return "display1"
	case RoleDisplay2:
		return "display2"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Shape is a raster size in pixels. Channel count is always 3.
type Shape struct {
	Height int
	Width  int
}

// IsZero reports whether the shape is unset.
func (s Shape) IsZero() bool {
	return s.Height <= 0 || s.Width <= 0
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ShapePolicy decides what happens to rasters whose shape differs from the target.
type ShapePolicy string

const (
	// ShapeResize resizes every raster to the target shape.
	ShapeResize ShapePolicy = "resize"
	// ShapeStrict rejects rasters whose shape differs from the role's expected shape.
	ShapeStrict ShapePolicy = "strict"
)

// Capture is one moment of the life log.
type Capture struct {
	Date      string
	Timestamp string
}

func (c Capture) String() string {
	return c.Date + " " + c.Timestamp
}

// RunConfig defines a composite run.
type RunConfig struct {
	Start         time.Time
	End           time.Time
	AllDates      bool
	IncludeCamera bool
	Threads       int
	BatchSize     int
	ShapePolicy   ShapePolicy
	Target        Shape
	Seed          int64
}

// RangeLabel returns the output prefix for the run.
func (c RunConfig) RangeLabel() string {
	if c.AllDates {
		return "all_dates"
	}
	return c.Start.Format("2006-01-02") + "_to_" + c.End.Format("2006-01-02")
}

// HistoryConfig defines filters for the run history report.
type HistoryConfig struct {
	Since *time.Time
	Last  int
	Top   int
}

// RunStatus is the terminal state of a recorded run.
type RunStatus string

const (
	StatusWritten     RunStatus = "written"
	StatusNoImages    RunStatus = "no_images"
	StatusInterrupted RunStatus = "interrupted"
	StatusWriteFailed RunStatus = "write_failed"
	StatusFailed      RunStatus = "failed"
)

// RunRecord captures a completed composite run.
type RunRecord struct {
	ID            string
	StartedAt     time.Time
	EndedAt       time.Time
	RangeLabel    string
	IncludeCamera bool
	Threads       int
	BatchSize     int
	ShapePolicy   ShapePolicy
	Target        Shape
	Discovered    int
	Succeeded     int
	Failed        int
	Status        RunStatus
	OutputPaths   []string
}

// DateCount stores per-date capture counts for a run.
type DateCount struct {
	Date       string
	Discovered int
	Succeeded  int
}

// DateAggregate aggregates per-date counts across runs.
type DateAggregate struct {
	Date       string
	Discovered int
	Succeeded  int
}

// Failed returns the number of discovered captures that did not load.
func (d DateAggregate) Failed() int {
	return d.Discovered - d.Succeeded
}

// RunSummary summarizes a run for reporting.
type RunSummary struct {
	ID         string
	EndedAt    time.Time
	RangeLabel string
	Discovered int
	Succeeded  int
	Status     RunStatus
	DurationMs int64
}
