// Command dsarun runs a drop shape analysis session headless: it loads the
// inputs of a session file, fits every frame of the range and exports the
// derived quantities.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"drop-analyzer/internal/app"
	"drop-analyzer/internal/config"
	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/export"
	"drop-analyzer/internal/fitting"
	"drop-analyzer/internal/logging"
	"drop-analyzer/internal/pipeline"
	"drop-analyzer/internal/quantity"
	"drop-analyzer/internal/store"
	"drop-analyzer/internal/telemetry"
	"drop-analyzer/internal/version"
	"drop-analyzer/internal/vision"
)

func main() {
	configPath := flag.String("config", "", "Path to the session file (YAML)")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *configPath == "" {
		fmt.Println("Usage: dsarun -config <session.yaml>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load session: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stopped, err := run(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
	if stopped {
		log.Warn().Msg("run was interrupted, exported results are partial")
		os.Exit(130)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) (bool, error) {
	metrics, shutdown, err := serveMetrics(cfg.Metrics, log)
	if err != nil {
		return false, err
	}
	defer shutdown()

	session, err := app.NewSession(cfg, app.Deps{
		Detector: vision.NewDetector(),
		Fitter:   fitting.New(),
		Logger:   log,
		Metrics:  metrics,
		Hook:     progressHook(log),
	})
	if err != nil {
		return false, err
	}
	defer session.Close()

	if err := session.Open(cfg.Inputs); err != nil {
		return false, fmt.Errorf("failed to open inputs: %w", err)
	}

	// SIGINT cancels ctx, which the bulk run polls before each frame
	res, err := session.Compute(ctx)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, errors.New("nothing computed, edge detection is disabled")
	}
	log.Info().Int("frames", res.Len()).Bool("stopped", res.Stopped).Msg("bulk fit done")

	session.Do(func(e *pipeline.Engine) {
		err = exportResults(context.Background(), cfg, e, res, log)
	})
	if err != nil {
		return res.Stopped, err
	}
	if cfg.Export.InfoFile {
		if err := session.SaveInfo(); err != nil {
			return res.Stopped, err
		}
	}
	return res.Stopped, nil
}

func exportResults(ctx context.Context, cfg *config.Config, e *pipeline.Engine, res *drop.BulkFitResult, log zerolog.Logger) error {
	names := cfg.Quantities
	if len(names) == 0 {
		names = e.Quantities().Names()
	}
	series := make([]quantity.Series, 0, len(names))
	for _, name := range names {
		q := e.Quantity(name, cfg.Smoothing)
		if q.Empty() {
			log.Warn().Str("quantity", name).Msg("quantity has no values, not exported")
			continue
		}
		series = append(series, q)
	}

	if path := cfg.Export.CSV; path != "" {
		if err := writeFile(path, func(f *os.File) error { return export.WriteQuantities(f, series) }); err != nil {
			return err
		}
		log.Info().Str("path", path).Int("quantities", len(series)).Msg("quantities exported")
	}
	if path := cfg.Export.Edges; path != "" {
		err := writeFile(path, func(f *os.File) error { return export.WriteEdges(f, e, res.Frames, res.Units) })
		if err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("edges exported")
	}
	if path := cfg.Export.Plot; path != "" {
		xLabel := fmt.Sprintf("Time [%s]", res.Units.Time)
		if err := export.SavePlot(path, filepath.Base(cfg.Inputs[0]), xLabel, res.Times, series, export.PlotSize{}); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("plot saved")
	}
	if dir := cfg.Export.Frames; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for _, index := range res.Frames {
			if err := export.SaveFrame(filepath.Join(dir, fmt.Sprintf("frame_%05d.png", index)), e, index); err != nil {
				return err
			}
		}
		log.Info().Str("dir", dir).Int("frames", len(res.Frames)).Msg("annotated frames saved")
	}
	if path := cfg.Export.Database; path != "" {
		db, err := store.NewDB(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := db.SaveRun(ctx, cfg.Inputs[0], res, series); err != nil {
			return err
		}
		log.Info().Str("path", path).Str("run", res.RunID.String()).Msg("run stored")
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// progressHook logs every tenth of a pass.
func progressHook(log zerolog.Logger) pipeline.Hook {
	return func(step, total int) {
		if total <= 0 {
			return
		}
		if step == total || step%max(total/10, 1) == 0 {
			log.Info().Int("step", step).Int("total", total).Msg("progress")
		}
	}
}

func serveMetrics(cfg config.MetricsConfig, log zerolog.Logger) (telemetry.Collector, func(), error) {
	if cfg.Listen == "" {
		return telemetry.Noop(), func() {}, nil
	}
	reg := prometheus.NewRegistry()
	collector, err := telemetry.NewPrometheusCollector(reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("listen", cfg.Listen).Msg("metrics server failed")
		}
	}()
	log.Info().Str("listen", cfg.Listen).Msg("serving metrics")

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return collector, shutdown, nil
}
