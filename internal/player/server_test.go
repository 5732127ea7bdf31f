package player

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/verte-zerg/lifelapse/internal/capture"
)

func newTestServer(t *testing.T) (*Server, capture.Layout) {
	t.Helper()
	root := t.TempDir()
	layout := capture.Layout{
		PhotosRoot:      filepath.Join(root, "cameraCap"),
		ScreenshotsRoot: filepath.Join(root, "screenCap"),
		OutputRoot:      filepath.Join(root, "out"),
		Display1Tag:     "DISPLAY1",
		Display2Tag:     "DISPLAY2",
		ScreenshotExt:   "png",
		CameraExt:       "jpg",
	}
	files := []string{
		filepath.Join(layout.ScreenshotsRoot, "2025-01-01", "10-00-00_____DISPLAY1.png"),
		filepath.Join(layout.ScreenshotsRoot, "2025-01-01", "10-00-00_____DISPLAY2.png"),
		filepath.Join(layout.PhotosRoot, "2025-01-01", "10-00-00.jpg"),
		filepath.Join(layout.ScreenshotsRoot, "2025-01-02", "09-00-00_____DISPLAY1.png"),
		filepath.Join(layout.OutputRoot, "all_dates.jpg"),
		filepath.Join(layout.OutputRoot, "notes.txt"),
		filepath.Join(root, "secret.png"),
	}
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(f, []byte("img:"+filepath.Base(f)), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	srv, err := NewServer(Config{CacheSize: 4}, layout, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local) }
	return srv, layout
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/frames") {
		t.Fatalf("unexpected index response %d", rec.Code)
	}
	rec = get(t, srv, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
}

func TestDatesAndFrames(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/api/dates")
	if diff := cmp.Diff([]string{"2025-01-01", "2025-01-02"}, decode[[]string](t, rec)); diff != "" {
		t.Fatalf("dates (-want +got):\n%s", diff)
	}

	rec = get(t, srv, "/api/frames?date=2025-01-01")
	want := []capture.Frame{{
		Timestamp: "10-00-00",
		Camera:    "2025-01-01/10-00-00.jpg",
		Display1:  "2025-01-01/10-00-00_____DISPLAY1.png",
		Display2:  "2025-01-01/10-00-00_____DISPLAY2.png",
	}}
	if diff := cmp.Diff(want, decode[[]capture.Frame](t, rec)); diff != "" {
		t.Fatalf("frames (-want +got):\n%s", diff)
	}

	rec = get(t, srv, "/api/frames?date=2025-01-02")
	if frames := decode[[]capture.Frame](t, rec); len(frames) != 0 {
		t.Fatalf("expected no complete frames, got %v", frames)
	}

	if rec := get(t, srv, "/api/frames?date=yesterday"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestFrameCache(t *testing.T) {
	srv, _ := newTestServer(t)
	get(t, srv, "/api/frames?date=2025-01-01")
	get(t, srv, "/api/frames?date=2025-01-01")
	if !srv.frames.Contains("2025-01-01") {
		t.Fatalf("expected cached listing")
	}
	get(t, srv, "/api/frames?date=2025-06-01")
	if srv.frames.Contains("2025-06-01") {
		t.Fatalf("current day must not be cached")
	}

	rec := get(t, srv, "/metrics")
	body := rec.Body.String()
	for _, want := range []string{
		"lifelapse_player_frame_cache_hits_total 1",
		"lifelapse_player_frame_cache_misses_total 2",
		`lifelapse_player_requests_total{route="/api/frames",status="200"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics:\n%s", want, body)
		}
	}
}

func TestServeImages(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/img/screen/2025-01-01/10-00-00_____DISPLAY1.png")
	if rec.Code != http.StatusOK || rec.Body.String() != "img:10-00-00_____DISPLAY1.png" {
		t.Fatalf("unexpected image response %d %q", rec.Code, rec.Body.String())
	}
	rec = get(t, srv, "/img/camera/2025-01-01/10-00-00.jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("camera image status %d", rec.Code)
	}
	rec = get(t, srv, "/img/composite/all_dates.jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("composite image status %d", rec.Code)
	}
	if rec := get(t, srv, "/img/composite/notes.txt"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-image, got %d", rec.Code)
	}
	if rec := get(t, srv, "/img/other/x.png"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown root, got %d", rec.Code)
	}
}

func TestResolveWithinRejectsTraversal(t *testing.T) {
	root := filepath.Join(t.TempDir(), "screenCap")
	for _, rel := range []string{"../secret.png", "2025-01-01/../../secret.png", "..", "", "a\\..\\b.png"} {
		if _, err := resolveWithin(root, rel); err == nil {
			t.Fatalf("expected rejection for %q", rel)
		}
	}
	got, err := resolveWithin(root, "2025-01-01/a.png")
	if err != nil || got != filepath.Join(root, "2025-01-01", "a.png") {
		t.Fatalf("resolveWithin = %q, %v", got, err)
	}
}

func TestCompositesListing(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/api/composites")
	if diff := cmp.Diff([]string{"all_dates.jpg"}, decode[[]string](t, rec)); diff != "" {
		t.Fatalf("composites (-want +got):\n%s", diff)
	}
}
