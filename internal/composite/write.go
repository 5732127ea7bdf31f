package composite

import (
	"errors"
	"fmt"

	"github.com/verte-zerg/lifelapse/internal/capture"
	"github.com/verte-zerg/lifelapse/internal/model"
	"github.com/verte-zerg/lifelapse/internal/raster"
)

// Write saves the three composite images under layout.OutputRoot and returns
// the paths written. Each file is written independently; a failure does not
// undo the others, and all failures are joined.
func Write(layout capture.Layout, out *Output) ([]string, error) {
	paths := layout.OutputPaths(out.Prefix)
	var (
		written []string
		errs    []error
	)
	for _, role := range model.Roles {
		if err := raster.Save(paths[role], out.Images[role]); err != nil {
			errs = append(errs, fmt.Errorf("%s composite: %w", role, err))
			continue
		}
		written = append(written, paths[role])
	}
	return written, errors.Join(errs...)
}
