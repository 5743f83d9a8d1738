package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-errors/errors"
	"github.com/goccy/go-json"

	"github.com/BartekS5/ledgerbridge/internal/config"
	"github.com/BartekS5/ledgerbridge/internal/etl"
	"github.com/BartekS5/ledgerbridge/internal/metrics"
	"github.com/BartekS5/ledgerbridge/pkg/database"
	"github.com/BartekS5/ledgerbridge/pkg/logger"
)

const metricsJob = "ledgerbridge"

func runSync(ctx context.Context, opts *SyncOptions, out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.WrapPrefix(err, "load config", 0)
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, 0)
	}

	if err := logger.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return errors.WrapPrefix(err, "open log file", 0)
	}
	defer logger.Close()
	// stdout carries the summary
	logger.SetOutput(os.Stderr)

	registry, err := config.LoadRegistry(opts.SchemaFile)
	if err != nil {
		return errors.Wrap(&etl.ConfigurationError{Op: "load schemas", Err: err}, 0)
	}

	transport, err := etl.NewHTTPTransport(cfg.TransportConfig())
	if err != nil {
		return errors.Wrap(err, 0)
	}

	sink, closeSink, err := openSink(cfg)
	if err != nil {
		return errors.Wrap(&etl.ConfigurationError{Op: "connect sink", Err: err}, 0)
	}
	defer closeSink()

	recorder := metrics.NewRecorder()
	orchestrator := &etl.Orchestrator{
		Schemas: registry,
		Fetcher: transport,
		Importer: etl.NewImporter(sink, etl.ImportOptions{
			BatchSize: cfg.BatchSize,
			Retry:     cfg.RetryPolicy(),
			Workers:   cfg.Workers,
		}),
		Vars:        cfg.StaticVariables(),
		Retry:       cfg.RetryPolicy(),
		Parallelism: cfg.Parallelism,
		Metrics:     recorder,
	}

	if opts.DryRun {
		logger.Info("[DRY RUN] Records are written to an in-memory sink only")
	}

	summary, err := orchestrator.Run(ctx, etl.JobRequest{
		CompanyID:  opts.CompanyID,
		DivisionID: opts.DivisionID,
		Tables:     opts.Tables,
	})
	if err != nil {
		return errors.Wrap(err, 0)
	}

	health := etl.Assess(summary, etl.HealthThresholds{})
	for _, a := range health.Alerts {
		logger.WithFields(logger.Fields{"table": a.Table, "level": a.Level}).Warn(a.Message)
	}

	if err := writeJSON(out, summary); err != nil {
		return err
	}
	if err := writeJSON(out, health); err != nil {
		return err
	}

	if err := recorder.Push(cfg.PushgatewayURL, metricsJob); err != nil {
		logger.Warnf("Metrics push failed: %v", err)
	}
	return nil
}

func applyOverrides(cfg *config.Config, opts *SyncOptions) {
	if opts.Sink != "" {
		cfg.SinkType = opts.Sink
	}
	if opts.DryRun {
		cfg.SinkType = config.SinkMemory
	}
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	if opts.Parallelism > 0 {
		cfg.Parallelism = opts.Parallelism
	}
}

// openSink connects the configured sink and returns its cleanup function.
func openSink(cfg *config.Config) (etl.Sink, func(), error) {
	switch cfg.SinkType {
	case config.SinkMongo:
		client, err := database.ConnectMongo(cfg.MongoConnString)
		if err != nil {
			return nil, nil, err
		}
		return etl.NewMongoSink(client, cfg.MongoDatabase), func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}, nil
	case config.SinkMSSQL:
		db, err := database.ConnectSQL(cfg.SQLConnString)
		if err != nil {
			return nil, nil, err
		}
		return etl.NewSQLServerSink(db), func() { db.Close() }, nil
	case config.SinkPostgres:
		pool, err := database.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return etl.NewPostgresSink(pool), pool.Close, nil
	case config.SinkMemory:
		return etl.NewMemorySink(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown sink type %q", cfg.SinkType)
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, 0)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
