// Package main provides the CLI entrypoint for lifelapse.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/lifelapse/internal/capture"
	"github.com/verte-zerg/lifelapse/internal/composite"
	"github.com/verte-zerg/lifelapse/internal/config"
	"github.com/verte-zerg/lifelapse/internal/logging"
	"github.com/verte-zerg/lifelapse/internal/model"
	"github.com/verte-zerg/lifelapse/internal/player"
	"github.com/verte-zerg/lifelapse/internal/prompt"
	"github.com/verte-zerg/lifelapse/internal/stats"
	"github.com/verte-zerg/lifelapse/internal/store"
)

const defaultFailingTop = 10

var (
	configPath string
	verbose    bool
	logFormat  string

	runStart       string
	runEnd         string
	runAllDates    bool
	runCamera      bool
	runThreads     int
	runBatchSize   int
	runShapePolicy string
	runTarget      string
	runInteractive bool
	runSeed        int64

	historySince string
	historyLast  int
	historyTop   int

	serveAddr string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lifelapse",
		Short:         "Long-exposure composites of a camera and screen life log",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE:          runCompositeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	rootCmd.Flags().StringVar(&runStart, "start", config.DefaultStart.Format(config.DateLayout), "first date (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&runEnd, "end", "", "last date (YYYY-MM-DD, default: today)")
	rootCmd.Flags().BoolVar(&runAllDates, "all-dates", false, "use every date folder on disk")
	rootCmd.Flags().BoolVar(&runCamera, "camera", false, "include camera photos")
	rootCmd.Flags().IntVar(&runThreads, "threads", config.DefaultThreads, fmt.Sprintf("worker count (%d-%d)", config.MinThreads, config.MaxThreads))
	rootCmd.Flags().IntVar(&runBatchSize, "batch-size", config.DefaultBatchSize, fmt.Sprintf("captures per batch (%d-%d)", config.MinBatchSize, config.MaxBatchSize))
	rootCmd.Flags().StringVar(&runShapePolicy, "shape-policy", string(model.ShapeResize), "resize or strict")
	rootCmd.Flags().StringVar(&runTarget, "target", "", "target shape WIDTHxHEIGHT (default: probed)")
	rootCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "edit run settings in a form first")
	rootCmd.Flags().Int64Var(&runSeed, "seed", 0, "shuffle seed (0: random)")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newDatesCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newServeCmd())

	return rootCmd
}

func runCompositeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	layout := buildLayout(fileCfg)
	logger := logging.WithComponent("cli")

	applyBoolConfig(cmd, "camera", &runCamera, fileCfg.Composite.IncludeCamera)
	applyIntConfig(cmd, "threads", &runThreads, fileCfg.Composite.Threads)
	applyIntConfig(cmd, "batch-size", &runBatchSize, fileCfg.Composite.BatchSize)
	applyStringConfig(cmd, "shape-policy", &runShapePolicy, fileCfg.Composite.ShapePolicy)
	if err := applyTargetConfig(cmd, &runTarget, fileCfg.Composite.TargetWidth, fileCfg.Composite.TargetHeight); err != nil {
		return err
	}

	cfg, err := buildRunConfig(time.Now())
	if err != nil {
		return err
	}
	if runInteractive {
		cfg, err = prompt.Run(cfg)
		if errors.Is(err, prompt.ErrCancelled) {
			logErrln("cancelled")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run prompt: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		logger.Warn().Err(err).Msg("run history unavailable")
	}
	if st != nil {
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logErrf("failed to close db: %v\n", cerr)
			}
		}()
	}

	startedAt := time.Now()
	res, runErr := composite.Run(ctx, log.Logger, layout, cfg)
	rec := newRunRecord(cfg, res, startedAt)

	var paths []string
	switch {
	case errors.Is(runErr, composite.ErrNoValidImages):
		rec.Status = model.StatusNoImages
		runErr = nil
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), "no valid images"); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	case errors.Is(runErr, context.Canceled):
		rec.Status = model.StatusInterrupted
	case runErr != nil:
		rec.Status = model.StatusFailed
	default:
		var writeErr error
		paths, writeErr = composite.Write(layout, res.Output)
		rec.OutputPaths = paths
		rec.Status = model.StatusWritten
		if writeErr != nil {
			rec.Status = model.StatusWriteFailed
			runErr = fmt.Errorf("failed to write composites: %w", writeErr)
		}
	}
	rec.EndedAt = time.Now()

	if st != nil {
		// Recording uses a fresh context so interrupted runs are still kept.
		if _, err := st.InsertRun(context.Background(), rec, res.Dates); err != nil {
			logger.Warn().Err(err).Msg("failed to record run")
		}
	}
	for _, p := range paths {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), p); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return runErr
}

// buildRunConfig assembles the run configuration from the resolved flags.
func buildRunConfig(now time.Time) (model.RunConfig, error) {
	start, err := config.ParseDate(runStart)
	if err != nil {
		return model.RunConfig{}, fmt.Errorf("invalid --start value: %w", err)
	}
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if strings.TrimSpace(runEnd) != "" {
		end, err = config.ParseDate(runEnd)
		if err != nil {
			return model.RunConfig{}, fmt.Errorf("invalid --end value: %w", err)
		}
	}
	policy, err := config.ParseShapePolicy(runShapePolicy)
	if err != nil {
		return model.RunConfig{}, err
	}
	target, err := config.ParseShape(runTarget)
	if err != nil {
		return model.RunConfig{}, fmt.Errorf("invalid --target value: %w", err)
	}
	return model.RunConfig{
		Start:         start,
		End:           end,
		AllDates:      runAllDates,
		IncludeCamera: runCamera,
		Threads:       runThreads,
		BatchSize:     runBatchSize,
		ShapePolicy:   policy,
		Target:        target,
		Seed:          runSeed,
	}, nil
}

func newRunRecord(cfg model.RunConfig, res composite.Result, startedAt time.Time) model.RunRecord {
	threads, _ := config.ClampThreads(cfg.Threads)
	batch, _ := config.ClampBatchSize(cfg.BatchSize)
	return model.RunRecord{
		StartedAt:     startedAt,
		RangeLabel:    cfg.RangeLabel(),
		IncludeCamera: cfg.IncludeCamera,
		Threads:       threads,
		BatchSize:     batch,
		ShapePolicy:   cfg.ShapePolicy,
		Target:        res.Targets[model.RoleDisplay1],
		Discovered:    res.Discovered,
		Succeeded:     res.Succeeded,
		Failed:        res.Failed,
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newDatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dates",
		Short: "List date folders with capture counts",
		Args:  cobra.NoArgs,
		RunE:  runDatesCmd,
	}
}

func runDatesCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	layout := buildLayout(fileCfg)
	dates, err := capture.AllDates(layout, false)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		logErrf("No date folders found in %s\n", layout.ScreenshotsRoot)
		return nil
	}
	counts, err := capture.CountDates(layout, dates)
	if err != nil {
		logger := logging.WithComponent("cli")
		logger.Warn().Err(err).Msg("some dates could not be listed")
	}
	total := 0
	for _, dc := range counts {
		total += dc.Discovered
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %6d\n", dc.Date, dc.Discovered); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-10s %6d\n", "total", total); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show composite run history",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N runs")
	cmd.Flags().IntVar(&historyTop, "top", defaultFailingTop, "dates with failed loads to show")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	var sinceTime *time.Time
	if historySince != "" {
		parsed, err := config.ParseDate(historySince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	report, err := stats.BuildReport(cmd.Context(), st, model.HistoryConfig{
		Since: sinceTime,
		Last:  historyLast,
		Top:   historyTop,
	})
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	return report.Render(cmd.OutOrStdout(), historyTop, 0)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the browser frame player",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", config.DefaultPlayerAddr, "listen address")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "addr", &serveAddr, fileCfg.Player.Addr)
	cacheSize := config.DefaultCacheSize
	if fileCfg.Player.CacheSize != nil {
		cacheSize = *fileCfg.Player.CacheSize
	}

	srv, err := player.NewServer(player.Config{ListenAddr: serveAddr, CacheSize: cacheSize}, buildLayout(fileCfg), log.Logger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx)
}

// loadConfig reads the config file and initializes logging from it.
func loadConfig(cmd *cobra.Command) (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	level := ""
	if fileCfg.Logging.Level != nil {
		level = *fileCfg.Logging.Level
	}
	applyStringConfig(cmd, "log-format", &logFormat, fileCfg.Logging.Format)
	logging.Init(level, verbose, logFormat)
	return fileCfg, nil
}

// applyTargetConfig sets target from the config file when both dimensions
// are present and the flag was not given. A half-set target is an error.
func applyTargetConfig(cmd *cobra.Command, target *string, width, height *int) error {
	if cmd.Flags().Changed("target") || (width == nil && height == nil) {
		return nil
	}
	if width == nil || height == nil {
		return errors.New("config: target_width and target_height must be set together")
	}
	*target = fmt.Sprintf("%dx%d", *width, *height)
	return nil
}

func buildLayout(fileCfg config.FileConfig) capture.Layout {
	return capture.Layout{
		PhotosRoot:      stringOr(fileCfg.Paths.Photos, config.DefaultPhotosRoot()),
		ScreenshotsRoot: stringOr(fileCfg.Paths.Screenshots, config.DefaultScreenshotsRoot()),
		OutputRoot:      stringOr(fileCfg.Paths.Output, config.DefaultOutputRoot()),
		Display1Tag:     stringOr(fileCfg.Capture.Display1Tag, config.DefaultDisplay1Tag),
		Display2Tag:     stringOr(fileCfg.Capture.Display2Tag, config.DefaultDisplay2Tag),
		ScreenshotExt:   stringOr(fileCfg.Capture.ScreenshotExt, config.DefaultScreenshotExt),
		CameraExt:       stringOr(fileCfg.Capture.CameraExt, config.DefaultCameraExt),
	}
}

func stringOr(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return *value
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# lifelapse configuration
# Uncomment a value to enable it. CLI flags override config values.

[paths]
# photos = %q
# screenshots = %q
# output = %q

[capture]
# display1_tag = %q
# display2_tag = %q
# screenshot_ext = %q
# camera_ext = %q

[composite]
# include_camera = false
# threads = %d             # %d-%d
# batch_size = %d          # %d-%d
# shape_policy = "resize"  # resize or strict
# target_width = 1920      # set both to skip probing
# target_height = 1080

[player]
# addr = %q
# cache_size = %d

[logging]
# level = "info"           # debug, info, warn, error
# format = "text"          # text or json
`,
		config.DefaultPhotosRoot(),
		config.DefaultScreenshotsRoot(),
		config.DefaultOutputRoot(),
		config.DefaultDisplay1Tag,
		config.DefaultDisplay2Tag,
		config.DefaultScreenshotExt,
		config.DefaultCameraExt,
		config.DefaultThreads, config.MinThreads, config.MaxThreads,
		config.DefaultBatchSize, config.MinBatchSize, config.MaxBatchSize,
		config.DefaultPlayerAddr,
		config.DefaultCacheSize,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
