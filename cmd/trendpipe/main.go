// Command trendpipe runs the preprocessing pipeline as a one-shot batch
// job: read raw JSONL record files, clean, normalize, and merge them into
// the unified table, then export the result.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	service "github.com/okian/trendpipe/internal/app"
	"github.com/okian/trendpipe/internal/config"
	"github.com/okian/trendpipe/internal/domain/clean"
	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/internal/domain/normalize"
	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/internal/exporter"
	"github.com/okian/trendpipe/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	drainPoll         = 10 * time.Millisecond
	drainSettle       = 50 * time.Millisecond
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	granularity, err := merge.ParseGranularity(cfg.Granularity)
	if err != nil {
		os.Stderr.WriteString("invalid granularity: " + err.Error() + "\n")
		return
	}
	policy, err := clean.ParsePolicy(cfg.DuplicatePolicy)
	if err != nil {
		os.Stderr.WriteString("invalid duplicate_policy: " + err.Error() + "\n")
		return
	}
	scaling, err := normalize.ParseScaling(cfg.Scaling)
	if err != nil {
		os.Stderr.WriteString("invalid scaling: " + err.Error() + "\n")
		return
	}

	svc := service.New(
		service.WithLogger(log),
		service.WithGranularity(granularity),
		service.WithPolicy(policy),
		service.WithScaling(scaling),
		service.WithLinkage(cfg.Linkage),
		service.WithDimensions(cfg.Dimensions...),
		service.WithRefreshInterval(cfg.RefreshInterval()),
		service.WithRetention(cfg.Retention()),
		service.WithQueueSize(cfg.QueueSize),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, log)
		})
	}

	g.Go(func() error {
		defer stop()
		return runPipeline(gctx, cfg, svc, log)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		os.Stderr.WriteString("run failed: " + err.Error() + "\n")
	}
}

// runPipeline ingests the configured inputs, rebuilds the snapshot, and
// exports the unified table.
func runPipeline(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) error {
	for _, path := range cfg.Inputs {
		if err := ingestFile(ctx, path, svc, log); err != nil {
			return err
		}
	}

	if err := waitDrained(ctx, svc); err != nil {
		return err
	}
	if err := svc.Refresh(ctx); err != nil {
		return err
	}

	table := svc.Table(ctx)
	log.Info(ctx, "unified table built",
		logger.Int("rows", table.Len()),
		logger.String("granularity", string(table.Granularity())),
	)

	if cfg.OutCSV != "" {
		if err := exporter.WriteCSVFile(ctx, cfg.OutCSV, table, log); err != nil {
			return err
		}
	}
	if cfg.OutXLSX != "" {
		if err := exporter.WriteXLSXFile(ctx, cfg.OutXLSX, table, log); err != nil {
			return err
		}
	}
	return nil
}

// ingestFile decodes one JSONL file and enqueues its records, batched by
// the source each record declares. Undecodable lines are logged and
// skipped; they never abort the run.
func ingestFile(ctx context.Context, path string, svc *service.Service, log logger.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	recs, lineErrs := record.DecodeJSONL(f)
	if err := f.Close(); err != nil {
		return err
	}

	for _, le := range lineErrs {
		log.Warn(ctx, "skipping undecodable line",
			logger.String("path", path),
			logger.Int("line", le.Line),
			logger.Error(le),
		)
	}

	bySource := map[string][]record.Record{}
	for i := range recs {
		bySource[recs[i].Source] = append(bySource[recs[i].Source], recs[i])
	}
	for source, rs := range bySource {
		b := record.Batch{Source: source, Records: rs}
		if !svc.Ingest(ctx, b) {
			log.Warn(ctx, "batch not accepted",
				logger.String("path", path),
				logger.String("source", source),
				logger.Int("records", len(rs)),
			)
		}
	}

	log.Info(ctx, "input ingested",
		logger.String("path", path),
		logger.Int("records", len(recs)),
		logger.Int("bad_lines", len(lineErrs)),
	)
	return nil
}

// waitDrained blocks until the ingest queue has been fully staged. The
// queue drains in a background goroutine, so a rebuild issued immediately
// after ingest could otherwise miss the tail of the input.
func waitDrained(ctx context.Context, svc *service.Service) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats := svc.Stats()
		if n, ok := stats["queue_length"].(int); ok && n == 0 {
			time.Sleep(drainSettle)
			return nil
		}
		time.Sleep(drainPoll)
	}
}

// serveMetrics exposes Prometheus metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "metrics listener started", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
