// Package capture locates life-log captures on disk.
package capture

import (
	"path/filepath"
	"strings"

	"github.com/verte-zerg/lifelapse/internal/model"
)

// Separator splits the timestamp from the display tag in screenshot names.
const Separator = "_____"

// Layout describes where captures live and how they are named.
type Layout struct {
	PhotosRoot      string
	ScreenshotsRoot string
	OutputRoot      string
	Display1Tag     string
	Display2Tag     string
	ScreenshotExt   string
	CameraExt       string
}

// CameraPath returns the camera photo path for c.
func (l Layout) CameraPath(c model.Capture) string {
	return filepath.Join(l.PhotosRoot, c.Date, c.Timestamp+"."+l.CameraExt)
}

// DisplayPath returns the screenshot path for c and a display role.
func (l Layout) DisplayPath(c model.Capture, role model.Role) string {
	return filepath.Join(l.ScreenshotsRoot, c.Date, c.Timestamp+Separator+l.displayName(role))
}

// Path returns the source path for any role.
func (l Layout) Path(c model.Capture, role model.Role) string {
	if role == model.RoleCamera {
		return l.CameraPath(c)
	}
	return l.DisplayPath(c, role)
}

// OutputPaths returns the composite file path per role for prefix.
func (l Layout) OutputPaths(prefix string) [model.RoleCount]string {
	var out [model.RoleCount]string
	out[model.RoleCamera] = filepath.Join(l.OutputRoot, prefix+"."+l.CameraExt)
	out[model.RoleDisplay1] = filepath.Join(l.OutputRoot, prefix+Separator+l.displayName(model.RoleDisplay1))
	out[model.RoleDisplay2] = filepath.Join(l.OutputRoot, prefix+Separator+l.displayName(model.RoleDisplay2))
	return out
}

func (l Layout) displayName(role model.Role) string {
	tag := l.Display1Tag
	if role == model.RoleDisplay2 {
		tag = l.Display2Tag
	}
	return tag + "." + l.ScreenshotExt
}

// ParseScreenshotName splits a screenshot file name into its timestamp and
// display role. ok is false for names that match neither display.
func (l Layout) ParseScreenshotName(name string) (ts string, role model.Role, ok bool) {
	ts, rest, found := strings.Cut(name, Separator)
	if !found || ts == "" {
		return "", 0, false
	}
	switch rest {
	case l.displayName(model.RoleDisplay1):
		return ts, model.RoleDisplay1, true
	case l.displayName(model.RoleDisplay2):
		return ts, model.RoleDisplay2, true
	default:
		return "", 0, false
	}
}

// ParseCameraName returns the timestamp of a camera photo file name.
func (l Layout) ParseCameraName(name string) (string, bool) {
	ts, ok := strings.CutSuffix(name, "."+l.CameraExt)
	if !ok || ts == "" {
		return "", false
	}
	return ts, true
}
