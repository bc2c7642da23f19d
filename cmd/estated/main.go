// Command estated serves the estate record API and manages snapshot backups.
//
//	estated [-config path] serve
//	estated [-config path] backup
//	estated [-config path] backups
//	estated [-config path] restore <key>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"estatecore/internal/adapters/httpapi"
	"estatecore/internal/backup"
	"estatecore/internal/blob"
	"estatecore/internal/config"
	"estatecore/internal/core"
	"estatecore/internal/logging"
	"estatecore/internal/server"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: estated [-config path] serve|backup|backups|restore <key>")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("estated", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML configuration file")
	fs.Usage = func() {
		usage(stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "estated: %v\n", err)
		return 1
	}

	var cmd func(context.Context, *app) error
	switch rest[0] {
	case "serve":
		cmd = serve
	case "backup":
		cmd = func(ctx context.Context, a *app) error { return createBackup(ctx, a, stdout) }
	case "backups":
		cmd = func(ctx context.Context, a *app) error { return listBackups(ctx, a, stdout) }
	case "restore":
		if len(rest) != 2 {
			usage(stderr)
			return 2
		}
		key := rest[1]
		cmd = func(ctx context.Context, a *app) error { return restoreBackup(ctx, a, key, stdout) }
	default:
		fmt.Fprintf(stderr, "estated: unknown command %q\n", rest[0])
		usage(stderr)
		return 2
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "estated: %v\n", err)
		return 1
	}
	defer a.close()

	if err := cmd(ctx, a); err != nil {
		a.logger.Error("command failed", zap.String("command", rest[0]), zap.Error(err))
		fmt.Fprintf(stderr, "estated: %v\n", err)
		return 1
	}
	return 0
}

// app holds the wired process dependencies.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	service  *core.Service
	backups  *backup.Manager
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	adapter := logging.NewAdapter(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	store, err := core.OpenPersistentStore(ctx, core.StorageConfig{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	svc, err := core.NewService(store,
		core.WithLogger(adapter.Named("service")),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.NewLoggerAuditRecorder(adapter.Named("audit"))),
	)
	if err != nil {
		_ = store.Close()
		_ = logger.Sync()
		return nil, err
	}

	blobs, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          cfg.Blob.S3.Bucket,
			Region:          cfg.Blob.S3.Region,
			Endpoint:        cfg.Blob.S3.Endpoint,
			AccessKeyID:     cfg.Blob.S3.AccessKeyID,
			SecretAccessKey: cfg.Blob.S3.SecretAccessKey,
			PathStyle:       cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		_ = svc.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	manager := backup.NewManager(svc, blobs,
		backup.WithPrefix(cfg.Backup.Prefix),
		backup.WithLogger(adapter.Named("backup")),
	)

	logger.Info("estated initialised",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", cfg.Blob.Driver))
	return &app{cfg: cfg, logger: logger, registry: registry, service: svc, backups: manager}, nil
}

func (a *app) close() {
	if err := a.service.Close(); err != nil {
		a.logger.Error("close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func serve(ctx context.Context, a *app) error {
	cfg := server.Config{
		HTTPAddr:     a.cfg.Server.HTTPAddr,
		GRPCAddr:     a.cfg.Server.GRPCAddr,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}
	if a.cfg.Metrics.Enabled {
		cfg.MetricsPath = a.cfg.Metrics.Path
	}
	api := httpapi.WithRequestID(httpapi.NewHandler(a.service, a.backups, logging.NewAdapter(a.logger).Named("http")))
	srv := server.New(cfg, api, a.registry, a.logger)
	if err := srv.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case serveErr = <-srv.Errors():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}
	a.logger.Info("estated stopped")
	return serveErr
}

func createBackup(ctx context.Context, a *app, out io.Writer) error {
	info, err := a.backups.Create(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\t%s\n", info.Key, humanize.Bytes(uint64(info.Size)))
	return nil
}

func listBackups(ctx context.Context, a *app, out io.Writer) error {
	infos, err := a.backups.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tCREATED")
	for _, info := range infos {
		created := "-"
		if !info.LastModified.IsZero() {
			created = info.LastModified.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Key, humanize.Bytes(uint64(info.Size)), created)
	}
	return tw.Flush()
}

func restoreBackup(ctx context.Context, a *app, key string, out io.Writer) error {
	snap, err := a.backups.Restore(ctx, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "restored %d records from %s (counter %d)\n", snap.Records(), key, snap.Counter)
	return nil
}
