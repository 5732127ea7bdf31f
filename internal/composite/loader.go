package composite

import (
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/verte-zerg/lifelapse/internal/capture"
	"github.com/verte-zerg/lifelapse/internal/model"
	"github.com/verte-zerg/lifelapse/internal/raster"
)

// ErrMissingDisplay is returned when a display image of a capture cannot be loaded.
var ErrMissingDisplay = errors.New("display image missing")

// Loader reads the rasters of one capture and fits them to the target shapes.
type Loader struct {
	Layout        capture.Layout
	IncludeCamera bool
	Policy        model.ShapePolicy
	Targets       [model.RoleCount]model.Shape
	Logger        zerolog.Logger
}

// Load returns the triple for c. The camera slot is nil when the camera is not
// requested or cannot be decoded. Any display failure excludes the capture.
func (l Loader) Load(c model.Capture) (Triple, error) {
	var t Triple
	for _, role := range []model.Role{model.RoleDisplay1, model.RoleDisplay2} {
		img, err := raster.Open(l.Layout.DisplayPath(c, role))
		if err != nil {
			return Triple{}, fmt.Errorf("%w: %s: %v", ErrMissingDisplay, role, err)
		}
		r, err := l.fit(img, role)
		if err != nil {
			return Triple{}, err
		}
		t[role] = r
	}
	if !l.IncludeCamera {
		return t, nil
	}
	img, err := raster.Open(l.Layout.CameraPath(c))
	if err != nil {
		l.Logger.Debug().Err(err).Str("date", c.Date).Str("timestamp", c.Timestamp).Msg("camera image unavailable, using zeros")
		return t, nil
	}
	r, err := l.fit(img, model.RoleCamera)
	if err != nil {
		return Triple{}, err
	}
	t[model.RoleCamera] = r
	return t, nil
}

func (l Loader) fit(img image.Image, role model.Role) (*raster.Raster, error) {
	target := l.Targets[role]
	shape := raster.ShapeOf(img)
	if shape == target {
		return raster.FromImage(img), nil
	}
	if l.Policy == model.ShapeStrict {
		return nil, fmt.Errorf("%s: %w: got %s, want %s", role, raster.ErrShapeMismatch, shape, target)
	}
	return raster.FromImage(raster.Resize(img, target)), nil
}

// ProbeTargets picks the target shape of every role.
//
// Under the resize policy all roles share one shape: configured when set,
// otherwise the display1 shape of the first capture whose display1 header
// decodes. Under the strict policy each role probes its own shape. The camera
// falls back to the display1 shape when it is not requested or never decodes.
func ProbeTargets(layout capture.Layout, captures []model.Capture, policy model.ShapePolicy, includeCamera bool, configured model.Shape) ([model.RoleCount]model.Shape, error) {
	var targets [model.RoleCount]model.Shape
	if !configured.IsZero() {
		for _, role := range model.Roles {
			targets[role] = configured
		}
		return targets, nil
	}

	probe := func(role model.Role) (model.Shape, bool) {
		for _, c := range captures {
			shape, err := raster.DecodeShape(layout.Path(c, role))
			if err == nil && !shape.IsZero() {
				return shape, true
			}
		}
		return model.Shape{}, false
	}

	d1, ok := probe(model.RoleDisplay1)
	if !ok {
		return targets, fmt.Errorf("%w: no readable display1 image", ErrNoValidImages)
	}
	if policy != model.ShapeStrict {
		for _, role := range model.Roles {
			targets[role] = d1
		}
		return targets, nil
	}

	targets[model.RoleDisplay1] = d1
	d2, ok := probe(model.RoleDisplay2)
	if !ok {
		return targets, fmt.Errorf("%w: no readable display2 image", ErrNoValidImages)
	}
	targets[model.RoleDisplay2] = d2
	targets[model.RoleCamera] = d1
	if includeCamera {
		if cam, ok := probe(model.RoleCamera); ok {
			targets[model.RoleCamera] = cam
		}
	}
	return targets, nil
}
