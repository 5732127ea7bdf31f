package composite

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/lifelapse/internal/capture"
	"github.com/verte-zerg/lifelapse/internal/config"
	"github.com/verte-zerg/lifelapse/internal/model"
)

// ErrNoValidImages is returned when no capture could be accumulated.
var ErrNoValidImages = errors.New("no valid images")

// Output is the normalized composite of a run.
type Output struct {
	Prefix string
	Images [model.RoleCount]*image.NRGBA
}

// Result describes a finished run. Output is nil unless the run succeeded.
type Result struct {
	Prefix     string
	Discovered int
	Succeeded  int
	Failed     int
	Targets    [model.RoleCount]model.Shape
	Dates      []model.DateCount
	Output     *Output
}

// Run discovers captures for cfg, accumulates them with a bounded worker pool
// and returns the normalized composite. Per-capture failures are logged and
// counted. Only cancellation of ctx aborts the run early.
func Run(ctx context.Context, logger zerolog.Logger, layout capture.Layout, cfg model.RunConfig) (Result, error) {
	logger = logger.With().Str("component", "composite").Logger()
	res := Result{Prefix: cfg.RangeLabel()}

	threads, changed := config.ClampThreads(cfg.Threads)
	if changed {
		logger.Warn().Int("requested", cfg.Threads).Int("using", threads).Msg("thread count clamped")
	}
	batchSize, changed := config.ClampBatchSize(cfg.BatchSize)
	if changed {
		logger.Warn().Int("requested", cfg.BatchSize).Int("using", batchSize).Msg("batch size clamped")
	}

	dates, err := runDates(layout, cfg)
	if err != nil {
		return res, err
	}
	if len(dates) == 0 {
		logger.Info().Err(capture.ErrNoDates).Msg("empty date range")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	captures, counts := capture.Discover(logger, layout, dates, cfg.IncludeCamera, rand.New(rand.NewSource(seed)))
	res.Discovered = len(captures)
	res.Dates = counts
	logger.Info().Int("dates", len(dates)).Int("captures", len(captures)).Msg("discovery complete")
	if len(captures) == 0 {
		return res, ErrNoValidImages
	}

	targets, err := ProbeTargets(layout, captures, cfg.ShapePolicy, cfg.IncludeCamera, cfg.Target)
	if err != nil {
		res.Failed = res.Discovered
		return res, err
	}
	res.Targets = targets
	logger.Info().
		Str("policy", string(cfg.ShapePolicy)).
		Str("display1", targets[model.RoleDisplay1].String()).
		Str("display2", targets[model.RoleDisplay2].String()).
		Str("camera", targets[model.RoleCamera].String()).
		Msg("target shapes")

	loader := Loader{
		Layout:        layout,
		IncludeCamera: cfg.IncludeCamera,
		Policy:        cfg.ShapePolicy,
		Targets:       targets,
		Logger:        logger,
	}
	acc := NewAccumulator(targets)
	failed := accumulate(ctx, logger, loader, acc, captures, threads, batchSize)

	res.Succeeded = acc.Count()
	res.Failed = int(failed)
	res.Dates = mergeCounts(counts, acc.DateCounts())
	if err := ctx.Err(); err != nil {
		logger.Warn().Int("succeeded", res.Succeeded).Msg("run interrupted, nothing written")
		return res, err
	}
	if res.Succeeded == 0 {
		return res, ErrNoValidImages
	}
	res.Output = &Output{Prefix: res.Prefix, Images: acc.Normalize()}
	logger.Info().Int("succeeded", res.Succeeded).Int("failed", res.Failed).Msg("accumulation complete")
	return res, nil
}

func runDates(layout capture.Layout, cfg model.RunConfig) ([]string, error) {
	if cfg.AllDates {
		return capture.AllDates(layout, cfg.IncludeCamera)
	}
	return capture.DateRange(cfg.Start, cfg.End), nil
}

// accumulate loads captures batch by batch and returns the failure count.
func accumulate(ctx context.Context, logger zerolog.Logger, loader Loader, acc *Accumulator, captures []model.Capture, threads, batchSize int) int64 {
	var failed atomic.Int64
	total := len(captures)
	for start := 0; start < total; start += batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+batchSize, total)

		var g errgroup.Group
		g.SetLimit(threads)
		for _, c := range captures[start:end] {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				t, err := loader.Load(c)
				if err == nil {
					err = acc.Add(c, t)
				}
				if err != nil {
					failed.Add(1)
					logger.Warn().Err(err).Str("date", c.Date).Str("timestamp", c.Timestamp).Msg("skipping capture")
				}
				return nil
			})
		}
		_ = g.Wait()

		runtime.GC()
		logger.Info().
			Int("processed", end).
			Int("total", total).
			Int("succeeded", acc.Count()).
			Int64("failed", failed.Load()).
			Msg("batch complete")
	}
	return failed.Load()
}

func mergeCounts(discovered, succeeded []model.DateCount) []model.DateCount {
	ok := make(map[string]int, len(succeeded))
	for _, dc := range succeeded {
		ok[dc.Date] = dc.Succeeded
	}
	out := make([]model.DateCount, len(discovered))
	for i, dc := range discovered {
		dc.Succeeded = ok[dc.Date]
		out[i] = dc
	}
	return out
}
