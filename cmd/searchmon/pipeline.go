package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/channel"
	"github.com/JakeFAU/period-search-monitor/internal/clock/system"
	"github.com/JakeFAU/period-search-monitor/internal/config"
	"github.com/JakeFAU/period-search-monitor/internal/control"
	"github.com/JakeFAU/period-search-monitor/internal/id/uuid"
	"github.com/JakeFAU/period-search-monitor/internal/monitor"
	"github.com/JakeFAU/period-search-monitor/internal/periods"
	"github.com/JakeFAU/period-search-monitor/internal/progress"
	"github.com/JakeFAU/period-search-monitor/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/period-search-monitor/internal/publisher/pubsub"
	"github.com/JakeFAU/period-search-monitor/internal/storage/gcs"
	"github.com/JakeFAU/period-search-monitor/internal/storage/local"
	"github.com/JakeFAU/period-search-monitor/internal/storage/memory"
	"github.com/JakeFAU/period-search-monitor/internal/storage/postgres"
	"github.com/JakeFAU/period-search-monitor/internal/store"
)

const shutdownTimeout = 10 * time.Second

// pipeline is the running event path: channel -> monitor -> hub -> sinks,
// plus the controller that feeds control outcomes into the same monitor.
type pipeline struct {
	hub        *progress.Hub
	monitor    *monitor.Monitor
	channel    *channel.Client
	controller *control.Controller
	runs       store.SessionRepository
	logger     *zap.Logger

	closers []func() error
	wg      sync.WaitGroup
}

// buildPipeline wires every component from cfg. extra sinks are appended to
// the configured ones.
func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger, extra ...progress.Sink) (*pipeline, error) {
	p := &pipeline{logger: logger}
	ok := false
	defer func() {
		if !ok {
			p.shutdown()
		}
	}()

	runs, err := p.buildRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.runs = runs

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	all := []progress.Sink{
		sinks.NewLogSink(logger),
		promSink,
		sinks.NewStoreSink(runs, logger),
	}
	archive, err := p.buildArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		all = append(all, archive)
	}
	publish, err := p.buildPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if publish != nil {
		all = append(all, publish)
	}
	all = append(all, extra...)

	batchWait, sinkTimeout := cfg.HubTimings()
	p.hub = progress.NewHub(progress.Config{
		BufferSize:   cfg.Hub.BufferSize,
		MaxBatchSize: cfg.Hub.BatchSize,
		MaxBatchWait: batchWait,
		SinkTimeout:  sinkTimeout,
		Logger:       logger,
	}, all...)

	agg := progress.NewAggregator(progress.WithLogCapacity(cfg.Aggregator.LogHistory))
	p.monitor = monitor.New(agg, p.hub, cfg.Channel.InboxSize, logger)

	clock := system.New()
	initial, maxDelay := cfg.ReconnectDelays()
	ch, err := channel.New(channel.Config{
		URL:                  cfg.Channel.URL,
		MaxReconnectAttempts: cfg.Channel.MaxReconnectAttempts,
		InitialDelay:         initial,
		MaxDelay:             maxDelay,
		HandshakeTimeout:     cfg.HandshakeTimeout(),
	}, p.monitor, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("init event channel: %w", err)
	}
	p.channel = ch

	backend, err := newControlClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	p.controller = control.NewController(
		backend,
		p.monitor,
		periods.NewPlanner(cfg.Periods.MaxSpanYears),
		clock,
		uuid.New(),
		logger,
	)
	ok = true
	return p, nil
}

func newControlClient(cfg config.Config, logger *zap.Logger) (*control.Client, error) {
	client, err := control.NewClient(control.ClientConfig{
		BaseURL:   cfg.Backend.BaseURL,
		StartPath: cfg.Backend.StartPath,
		StopPath:  cfg.Backend.StopPath,
		Timeout:   cfg.BackendTimeout(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init control client: %w", err)
	}
	return client, nil
}

func (p *pipeline) buildRepository(ctx context.Context, cfg config.Config) (store.SessionRepository, error) {
	if cfg.DB.DSN == "" {
		p.logger.Info("session history kept in memory")
		return memory.NewSessionStore(), nil
	}
	repo, err := postgres.NewSessionStore(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect session store: %w", err)
	}
	p.closers = append(p.closers, func() error { repo.Close(); return nil })
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure session schema: %w", err)
	}
	return repo, nil
}

func (p *pipeline) buildArchive(ctx context.Context, cfg config.Config) (progress.Sink, error) {
	var blobs sinks.BlobStore
	prefix := cfg.Archive.Prefix
	switch cfg.Archive.Backend {
	case config.ArchiveNone, "":
		return nil, nil
	case config.ArchiveMemory:
		blobs = memory.NewBlobStore()
	case config.ArchiveLocal:
		fs, err := local.New(local.Config{BaseDir: cfg.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		blobs = fs
	case config.ArchiveGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		p.closers = append(p.closers, client.Close)
		bucket, err := gcs.New(client, gcs.Config{Bucket: cfg.Archive.Bucket, Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		blobs = bucket
		prefix = ""
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
	p.logger.Info("session transcripts enabled", zap.String("backend", cfg.Archive.Backend))
	return sinks.NewArchiveSink(blobs, prefix, p.logger), nil
}

func (p *pipeline) buildPublisher(ctx context.Context, cfg config.Config) (progress.Sink, error) {
	if cfg.PubSub.ProjectID == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	p.closers = append(p.closers, pub.Close)
	p.logger.Info("session outcomes published", zap.String("topic", cfg.PubSub.TopicName))
	return sinks.NewPublishSink(pub, cfg.PubSub.TopicName, p.logger), nil
}

// start runs the monitor and the event channel until ctx ends. A channel
// that exhausts its reconnect budget leaves the monitor running so the last
// snapshot stays available.
func (p *pipeline) start(ctx context.Context) {
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		if err := p.monitor.Run(ctx); err != nil {
			p.logger.Error("monitor stopped", zap.Error(err))
		}
	}()
	go func() {
		defer p.wg.Done()
		err := p.channel.Run(ctx)
		switch {
		case err == nil:
		case errors.Is(err, channel.ErrReconnectExhausted):
			p.logger.Error("event channel gave up; progress is frozen", zap.Error(err))
		default:
			p.logger.Error("event channel stopped", zap.Error(err))
		}
	}()
}

// shutdown waits for the goroutines started by start, flushes the hub and
// releases clients. ctx must already be cancelled.
func (p *pipeline) shutdown() {
	p.wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if p.hub != nil {
		if err := p.hub.Close(ctx); err != nil {
			p.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	p.close()
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			p.logger.Warn("close failed", zap.Error(err))
		}
	}
	p.closers = nil
}
