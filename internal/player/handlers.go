package player

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/verte-zerg/lifelapse/internal/capture"
)

var errOutsideRoot = errors.New("path escapes root")

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		s.logger.Error().Err(err).Msg("embedded page missing")
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDates(w http.ResponseWriter, _ *http.Request) {
	dates, err := capture.AllDates(s.layout, false)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list dates")
		http.Error(w, "failed to list dates", http.StatusInternalServerError)
		return
	}
	if dates == nil {
		dates = []string{}
	}
	s.writeJSON(w, http.StatusOK, dates)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	frames, err := s.framesFor(date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("failed to list frames")
		http.Error(w, "failed to list frames", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, frames)
}

// framesFor returns the cached frame listing of date. The current day is
// never cached because captures are still being added to it.
func (s *Server) framesFor(date string) ([]capture.Frame, error) {
	if frames, ok := s.frames.Get(date); ok {
		s.metrics.CacheHits.Inc()
		return frames, nil
	}
	s.metrics.CacheMisses.Inc()
	frames, err := capture.Frames(s.layout, date)
	if err != nil {
		return nil, err
	}
	if date != s.now().Format("2006-01-02") {
		s.frames.Add(date, frames)
	}
	return frames, nil
}

func (s *Server) handleComposites(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.layout.OutputRoot)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error().Err(err).Msg("failed to list composites")
		http.Error(w, "failed to list composites", http.StatusInternalServerError)
		return
	}
	names := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	root := s.rootFor(vars["root"])
	path, err := resolveWithin(root, vars["path"])
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if !imageExts[strings.ToLower(filepath.Ext(path))] {
		http.NotFound(w, r)
		return
	}
	file, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close after serving.
			_ = cerr
		}
	}()
	info, err := file.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	s.metrics.ImagesServed.WithLabelValues(vars["root"]).Inc()
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}

func (s *Server) rootFor(name string) string {
	switch name {
	case "camera":
		return s.layout.PhotosRoot
	case "composite":
		return s.layout.OutputRoot
	default:
		return s.layout.ScreenshotsRoot
	}
}

// resolveWithin joins rel onto root and rejects results outside root.
func resolveWithin(root, rel string) (string, error) {
	if rel == "" || strings.Contains(rel, "\\") || filepath.IsAbs(rel) {
		return "", errOutsideRoot
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	inner, err := filepath.Rel(root, full)
	if err != nil || inner == ".." || strings.HasPrefix(inner, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return full, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}
