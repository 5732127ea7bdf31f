// Package composite sums capture rasters into long-exposure composites.
package composite

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/verte-zerg/lifelapse/internal/model"
	"github.com/verte-zerg/lifelapse/internal/raster"
)

// ErrFrozen is returned by Add after the accumulator has been normalized.
var ErrFrozen = errors.New("accumulator already normalized")

// Triple holds the rasters of one capture indexed by role. A nil camera
// stands for an all-zero raster.
type Triple [model.RoleCount]*raster.Raster

// Accumulator keeps one running float64 sum per role.
type Accumulator struct {
	mu        sync.Mutex
	sums      [model.RoleCount]*raster.Raster
	succeeded int
	perDate   map[string]int
	frozen    bool
}

// NewAccumulator returns zeroed sums for the given per-role shapes.
func NewAccumulator(targets [model.RoleCount]model.Shape) *Accumulator {
	acc := &Accumulator{perDate: make(map[string]int)}
	for _, role := range model.Roles {
		acc.sums[role] = raster.New(targets[role])
	}
	return acc
}

// Add sums t into the accumulator on behalf of c. Either every role is added
// or none is.
func (a *Accumulator) Add(c model.Capture, t Triple) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return ErrFrozen
	}
	for _, role := range model.Roles {
		if t[role] == nil {
			if role == model.RoleCamera {
				continue
			}
			return fmt.Errorf("%w: %s", ErrMissingDisplay, role)
		}
		if t[role].Shape != a.sums[role].Shape {
			return fmt.Errorf("%s: %w: %s vs %s", role, raster.ErrShapeMismatch, t[role].Shape, a.sums[role].Shape)
		}
	}
	for _, role := range model.Roles {
		if t[role] == nil {
			continue
		}
		if err := a.sums[role].Add(t[role]); err != nil {
			return err
		}
	}
	a.succeeded++
	a.perDate[c.Date]++
	return nil
}

// Count returns the number of captures added so far.
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.succeeded
}

// DateCounts returns successful captures per date, sorted by date.
func (a *Accumulator) DateCounts() []model.DateCount {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.DateCount, 0, len(a.perDate))
	for date, n := range a.perDate {
		out = append(out, model.DateCount{Date: date, Succeeded: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Sum returns a copy of the running sum for role.
func (a *Accumulator) Sum(role model.Role) *raster.Raster {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sums[role].Clone()
}

// Normalize freezes the accumulator and stretches each role to 8 bits.
func (a *Accumulator) Normalize() [model.RoleCount]*image.NRGBA {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozen = true
	var out [model.RoleCount]*image.NRGBA
	for _, role := range model.Roles {
		out[role] = raster.Normalize(a.sums[role])
	}
	return out
}
