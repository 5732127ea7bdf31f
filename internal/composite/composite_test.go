package composite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/verte-zerg/lifelapse/internal/capture"
	"github.com/verte-zerg/lifelapse/internal/model"
	"github.com/verte-zerg/lifelapse/internal/raster"
)

func testLayout(t *testing.T) capture.Layout {
	t.Helper()
	root := t.TempDir()
	return capture.Layout{
		PhotosRoot:      filepath.Join(root, "cameraCap"),
		ScreenshotsRoot: filepath.Join(root, "screenCap"),
		OutputRoot:      filepath.Join(root, "out"),
		Display1Tag:     "DISPLAY1",
		Display2Tag:     "DISPLAY2",
		ScreenshotExt:   "png",
		CameraExt:       "jpg",
	}
}

// spotImage is black except for one gray pixel at (1,1).
func spotImage(w, h int, v uint8) image.Image {
	img := imaging.New(w, h, color.NRGBA{A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: v, G: v, B: v, A: 255})
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save %s: %v", path, err)
	}
}

func writeCapture(t *testing.T, layout capture.Layout, c model.Capture, d1, d2 image.Image) {
	t.Helper()
	writeImage(t, layout.DisplayPath(c, model.RoleDisplay1), d1)
	writeImage(t, layout.DisplayPath(c, model.RoleDisplay2), d2)
}

func day(s string) time.Time {
	d, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		panic(err)
	}
	return d
}

func threeDayFixture(t *testing.T) (capture.Layout, []model.Capture) {
	t.Helper()
	layout := testLayout(t)
	var caps []model.Capture
	for i, v := range []uint8{100, 150, 200} {
		c := model.Capture{Date: day("2025-01-01").AddDate(0, 0, i).Format("2006-01-02"), Timestamp: "12-00-00"}
		writeCapture(t, layout, c, spotImage(4, 3, v), spotImage(4, 3, v))
		caps = append(caps, c)
	}
	return layout, caps
}

func TestAccumulatorEndToEndSums(t *testing.T) {
	layout, caps := threeDayFixture(t)
	targets, err := ProbeTargets(layout, caps, model.ShapeResize, false, model.Shape{})
	if err != nil {
		t.Fatalf("ProbeTargets: %v", err)
	}
	if targets[model.RoleDisplay1] != (model.Shape{Height: 3, Width: 4}) {
		t.Fatalf("unexpected target %v", targets[model.RoleDisplay1])
	}
	loader := Loader{Layout: layout, Policy: model.ShapeResize, Targets: targets, Logger: zerolog.Nop()}
	acc := NewAccumulator(targets)
	for _, c := range caps {
		tr, err := loader.Load(c)
		if err != nil {
			t.Fatalf("Load %s: %v", c, err)
		}
		if err := acc.Add(c, tr); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	sum := acc.Sum(model.RoleDisplay1)
	if got := sum.At(1, 1, 0); got != 450 {
		t.Fatalf("spot sum = %v, want 450", got)
	}
	if got := sum.At(0, 0, 0); got != 0 {
		t.Fatalf("untouched sum = %v, want 0", got)
	}

	images := acc.Normalize()
	if c := images[model.RoleDisplay1].NRGBAAt(1, 1); c.R != 255 {
		t.Fatalf("spot normalized to %d, want 255", c.R)
	}
	if c := images[model.RoleDisplay1].NRGBAAt(2, 2); c.R != 0 {
		t.Fatalf("untouched normalized to %d, want 0", c.R)
	}
	cam := images[model.RoleCamera]
	for i := 0; i < len(cam.Pix); i += 4 {
		if cam.Pix[i] != 0 || cam.Pix[i+1] != 0 || cam.Pix[i+2] != 0 {
			t.Fatalf("camera composite should be black")
		}
	}
	if err := acc.Add(caps[0], Triple{}); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen after Normalize, got %v", err)
	}
}

func TestRunBatchInvariance(t *testing.T) {
	layout := testLayout(t)
	for d := 0; d < 5; d++ {
		date := day("2025-01-01").AddDate(0, 0, d).Format("2006-01-02")
		for i := 0; i < 5; i++ {
			c := model.Capture{Date: date, Timestamp: fmt.Sprintf("12-%02d-00", i)}
			v := uint8(20 + 9*(d*5+i))
			writeCapture(t, layout, c, spotImage(6, 4, v), spotImage(6, 4, 255-v))
			writeImage(t, layout.CameraPath(c), spotImage(6, 4, v/2))
		}
	}

	run := func(threads, batch int) Result {
		t.Helper()
		cfg := model.RunConfig{
			Start:         day("2025-01-01"),
			End:           day("2025-01-05"),
			IncludeCamera: true,
			Threads:       threads,
			BatchSize:     batch,
			ShapePolicy:   model.ShapeResize,
			Seed:          11,
		}
		res, err := Run(context.Background(), zerolog.Nop(), layout, cfg)
		if err != nil {
			t.Fatalf("Run(threads=%d, batch=%d): %v", threads, batch, err)
		}
		if res.Succeeded != 25 || res.Failed != 0 {
			t.Fatalf("Run(threads=%d, batch=%d): succeeded=%d failed=%d", threads, batch, res.Succeeded, res.Failed)
		}
		return res
	}

	small := run(1, 10)
	large := run(32, 200)
	for _, role := range []model.Role{model.RoleCamera, model.RoleDisplay1, model.RoleDisplay2} {
		if !bytes.Equal(small.Output.Images[role].Pix, large.Output.Images[role].Pix) {
			t.Fatalf("%s composite differs between batch sizes", role)
		}
	}
}

func TestRunWritesComposites(t *testing.T) {
	layout, _ := threeDayFixture(t)
	cfg := model.RunConfig{
		Start:       day("2025-01-01"),
		End:         day("2025-01-05"),
		Threads:     4,
		BatchSize:   10,
		ShapePolicy: model.ShapeResize,
		Seed:        3,
	}
	res, err := Run(context.Background(), zerolog.Nop(), layout, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Discovered != 3 || res.Succeeded != 3 || res.Failed != 0 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if len(res.Dates) != 5 || res.Dates[0].Succeeded != 1 || res.Dates[4].Discovered != 0 {
		t.Fatalf("unexpected date counts %+v", res.Dates)
	}
	if res.Output == nil || res.Output.Prefix != "2025-01-01_to_2025-01-05" {
		t.Fatalf("unexpected output %+v", res.Output)
	}

	paths, err := Write(layout, res.Output)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 files, got %v", paths)
	}
	img, err := imaging.Open(filepath.Join(layout.OutputRoot, "2025-01-01_to_2025-01-05_____DISPLAY2.png"))
	if err != nil {
		t.Fatalf("open composite: %v", err)
	}
	r, _, _, _ := img.At(1, 1).RGBA()
	if r>>8 != 255 {
		t.Fatalf("written spot = %d, want 255", r>>8)
	}
}

func TestRunSkipsBrokenCaptures(t *testing.T) {
	layout, _ := threeDayFixture(t)
	broken := model.Capture{Date: "2025-01-02", Timestamp: "13-00-00"}
	for _, role := range []model.Role{model.RoleDisplay1, model.RoleDisplay2} {
		path := layout.DisplayPath(broken, role)
		if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	cfg := model.RunConfig{Start: day("2025-01-01"), End: day("2025-01-03"), Threads: 2, BatchSize: 10, Seed: 9}
	res, err := Run(context.Background(), zerolog.Nop(), layout, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Discovered != 4 || res.Succeeded != 3 || res.Failed != 1 {
		t.Fatalf("unexpected counts %+v", res)
	}
}

func TestRunEmptyRange(t *testing.T) {
	layout := testLayout(t)
	cfg := model.RunConfig{Start: day("2025-02-01"), End: day("2025-01-01"), Threads: 4, BatchSize: 50}
	res, err := Run(context.Background(), zerolog.Nop(), layout, cfg)
	if !errors.Is(err, ErrNoValidImages) {
		t.Fatalf("expected ErrNoValidImages, got %v", err)
	}
	if res.Output != nil {
		t.Fatalf("expected no output")
	}

	cfg = model.RunConfig{Start: day("2025-01-01"), End: day("2025-01-03"), Threads: 4, BatchSize: 50}
	if _, err := Run(context.Background(), zerolog.Nop(), layout, cfg); !errors.Is(err, ErrNoValidImages) {
		t.Fatalf("expected ErrNoValidImages for dates without files, got %v", err)
	}
	if _, err := os.Stat(layout.OutputRoot); !os.IsNotExist(err) {
		t.Fatalf("output dir should not exist, stat err = %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	layout, _ := threeDayFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := model.RunConfig{Start: day("2025-01-01"), End: day("2025-01-03"), Threads: 2, BatchSize: 10}
	res, err := Run(ctx, zerolog.Nop(), layout, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Output != nil || res.Succeeded != 0 {
		t.Fatalf("expected nothing accumulated, got %+v", res)
	}
}

func TestLoaderShapePolicies(t *testing.T) {
	layout := testLayout(t)
	c := model.Capture{Date: "2025-01-01", Timestamp: "08-00-00"}
	writeCapture(t, layout, c, spotImage(8, 6, 200), spotImage(4, 3, 200))
	targets := [model.RoleCount]model.Shape{
		{Height: 3, Width: 4},
		{Height: 3, Width: 4},
		{Height: 3, Width: 4},
	}

	resize := Loader{Layout: layout, Policy: model.ShapeResize, Targets: targets, Logger: zerolog.Nop()}
	tr, err := resize.Load(c)
	if err != nil {
		t.Fatalf("resize Load: %v", err)
	}
	if tr[model.RoleDisplay1].Shape != targets[model.RoleDisplay1] {
		t.Fatalf("display1 not resized: %v", tr[model.RoleDisplay1].Shape)
	}
	if tr[model.RoleCamera] != nil {
		t.Fatalf("camera should be nil when not requested")
	}
	if err := NewAccumulator(targets).Add(c, tr); err != nil {
		t.Fatalf("Add resized triple: %v", err)
	}

	strict := Loader{Layout: layout, Policy: model.ShapeStrict, Targets: targets, Logger: zerolog.Nop()}
	if _, err := strict.Load(c); !errors.Is(err, raster.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch under strict policy, got %v", err)
	}
}

func TestLoaderMissingDisplay(t *testing.T) {
	layout := testLayout(t)
	c := model.Capture{Date: "2025-01-01", Timestamp: "08-00-00"}
	writeImage(t, layout.DisplayPath(c, model.RoleDisplay1), spotImage(4, 3, 10))
	loader := Loader{Layout: layout, Targets: [model.RoleCount]model.Shape{{Height: 3, Width: 4}, {Height: 3, Width: 4}, {Height: 3, Width: 4}}, Logger: zerolog.Nop()}
	if _, err := loader.Load(c); !errors.Is(err, ErrMissingDisplay) {
		t.Fatalf("expected ErrMissingDisplay, got %v", err)
	}
}

func TestLoaderCameraFallsBackToZeros(t *testing.T) {
	layout := testLayout(t)
	c := model.Capture{Date: "2025-01-01", Timestamp: "08-00-00"}
	writeCapture(t, layout, c, spotImage(4, 3, 10), spotImage(4, 3, 10))
	shape := model.Shape{Height: 3, Width: 4}
	loader := Loader{Layout: layout, IncludeCamera: true, Targets: [model.RoleCount]model.Shape{shape, shape, shape}, Logger: zerolog.Nop()}
	tr, err := loader.Load(c)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tr[model.RoleCamera] != nil {
		t.Fatalf("expected nil camera for missing photo")
	}

	writeImage(t, layout.CameraPath(c), imaging.New(8, 6, color.NRGBA{R: 50, G: 50, B: 50, A: 255}))
	tr, err = loader.Load(c)
	if err != nil {
		t.Fatalf("Load with camera: %v", err)
	}
	if tr[model.RoleCamera] == nil || tr[model.RoleCamera].Shape != shape {
		t.Fatalf("camera not loaded at target shape")
	}
}

func TestProbeTargetsStrict(t *testing.T) {
	layout := testLayout(t)
	c := model.Capture{Date: "2025-01-01", Timestamp: "08-00-00"}
	writeCapture(t, layout, c, spotImage(8, 6, 1), spotImage(4, 3, 1))
	targets, err := ProbeTargets(layout, []model.Capture{c}, model.ShapeStrict, false, model.Shape{})
	if err != nil {
		t.Fatalf("ProbeTargets: %v", err)
	}
	if targets[model.RoleDisplay1] != (model.Shape{Height: 6, Width: 8}) || targets[model.RoleDisplay2] != (model.Shape{Height: 3, Width: 4}) {
		t.Fatalf("unexpected strict targets %v", targets)
	}

	configured := model.Shape{Height: 10, Width: 20}
	targets, err = ProbeTargets(layout, nil, model.ShapeResize, true, configured)
	if err != nil {
		t.Fatalf("ProbeTargets configured: %v", err)
	}
	for _, role := range model.Roles {
		if targets[role] != configured {
			t.Fatalf("%s target = %v, want %v", role, targets[role], configured)
		}
	}
}

func TestAccumulatorOrderIndependent(t *testing.T) {
	shape := model.Shape{Height: 5, Width: 7}
	targets := [model.RoleCount]model.Shape{shape, shape, shape}
	rnd := rand.New(rand.NewSource(42))
	triples := make([]Triple, 40)
	for i := range triples {
		for _, role := range model.Roles {
			r := raster.New(shape)
			for j := range r.Pix {
				r.Pix[j] = rnd.Float64() * 255
			}
			triples[i][role] = r
		}
	}

	sequential := NewAccumulator(targets)
	for i, tr := range triples {
		if err := sequential.Add(model.Capture{Date: "d", Timestamp: string(rune('a' + i))}, tr); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	concurrent := NewAccumulator(targets)
	var wg sync.WaitGroup
	for _, i := range rnd.Perm(len(triples)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := concurrent.Add(model.Capture{Date: "d"}, triples[i]); err != nil {
				t.Errorf("Add: %v", err)
			}
		}()
	}
	wg.Wait()

	if concurrent.Count() != len(triples) {
		t.Fatalf("count = %d, want %d", concurrent.Count(), len(triples))
	}
	for _, role := range model.Roles {
		a, b := sequential.Sum(role), concurrent.Sum(role)
		for j := range a.Pix {
			if diff := math.Abs(a.Pix[j] - b.Pix[j]); diff > 1e-6*math.Abs(a.Pix[j]) {
				t.Fatalf("%s sample %d differs: %v vs %v", role, j, a.Pix[j], b.Pix[j])
			}
		}
	}
}

func TestAccumulatorRejectsWithoutPartialSum(t *testing.T) {
	shape := model.Shape{Height: 2, Width: 2}
	acc := NewAccumulator([model.RoleCount]model.Shape{shape, shape, shape})
	good := raster.New(shape)
	for i := range good.Pix {
		good.Pix[i] = 1
	}
	bad := raster.New(model.Shape{Height: 3, Width: 2})
	err := acc.Add(model.Capture{Date: "d"}, Triple{nil, good, bad})
	if !errors.Is(err, raster.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if acc.Count() != 0 {
		t.Fatalf("count changed after rejection")
	}
	for _, v := range acc.Sum(model.RoleDisplay1).Pix {
		if v != 0 {
			t.Fatalf("display1 partially summed")
		}
	}
}
