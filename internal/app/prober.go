package app

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/pingwatch/internal/config"
	"github.com/samvad-hq/pingwatch/internal/logger"
	"github.com/samvad-hq/pingwatch/internal/probe"
	"github.com/samvad-hq/pingwatch/internal/storage"
	"github.com/samvad-hq/pingwatch/pkg/httpclient"
	"github.com/samvad-hq/pingwatch/pkg/publishers"
	"github.com/samvad-hq/pingwatch/pkg/targets"
)

// Prober represents the pingwatch runtime. It owns the probe loop and the
// storage and publisher resources it depends on.
type Prober struct {
	cfg      *config.Config
	targets  *targets.Registry
	fanout   *publishers.Fanout
	service  *probe.Service
	interval time.Duration
	log      logger.Logger
	store    storage.Store
}

// NewProber builds a prober runtime from config files.
func NewProber(ctx context.Context, cfg *config.Config, log logger.Logger) (*Prober, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	targetReg, err := targets.LoadRegistry(cfg.TargetsFile)
	if err != nil {
		return nil, fmt.Errorf("load targets registry: %w", err)
	}
	enabled := targetReg.Enabled()
	targetIDs := make([]string, 0, len(enabled))
	for _, t := range enabled {
		targetIDs = append(targetIDs, t.ID)
	}
	log.InfoObj("targets registry loaded", "targets_meta", map[string]any{
		"count": len(targetIDs),
		"ids":   targetIDs,
	})

	fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	storeOpts := storage.Options{
		OutcomeTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"outcome_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	var opts []httpclient.Option
	if zl, ok := log.(*logger.ZapLogger); ok {
		opts = append(opts, httpclient.WithLogger(zl.Sugar()))
	}
	service := probe.NewService(Defaults(cfg), fanout, store, log, opts...)

	return &Prober{
		cfg:      cfg,
		targets:  targetReg,
		fanout:   fanout,
		service:  service,
		interval: cfg.ProbeInterval,
		log:      log,
		store:    store,
	}, nil
}

// Defaults maps the configured timeout defaults onto target defaults.
func Defaults(cfg *config.Config) targets.Defaults {
	return targets.Defaults{
		ConnectTimeoutMs: cfg.DefaultConnectTimeoutMs,
		ReadTimeoutMs:    cfg.DefaultReadTimeoutMs,
		Strategy:         cfg.DefaultStrategy,
	}
}

// buildFanout loads the publishers file. An unset path yields an empty fanout.
func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if path == "" {
		log.WarnObj("no publishers file configured; outcome events are dropped", "publishers_file", path)
		return publishers.NewFanout(nil), nil
	}
	publisherCfgs, err := publishers.LoadConfigs(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers file: %w", err)
	}

	enabledPublishers := publisherCfgs.Enabled()
	pubClients, err := publishers.DefaultBuilders().BuildAll(ctx, enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})
	return publishers.NewFanout(pubClients), nil
}

// Run starts the probe loop until the context is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	if p == nil || p.service == nil {
		return fmt.Errorf("prober is not initialized")
	}
	defer p.close()

	tgts := p.targets.Enabled()
	if len(tgts) == 0 {
		p.log.WarnObj("no targets enabled; prober idle", "targets_file", p.cfg.TargetsFile)
		<-ctx.Done()
		return nil
	}

	p.log.InfoObj("probe loop starting", "prober_state", map[string]any{
		"targets_count":    len(tgts),
		"publishers_count": p.fanout.Size(),
		"probe_interval":   p.interval.String(),
	})

	if err := p.runOnce(ctx, tgts); err != nil {
		p.log.ErrorObj("initial probe failed", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.InfoObj("probe loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := p.runOnce(ctx, tgts); err != nil {
				p.log.ErrorObj("scheduled probe failed", "error", err)
			}
		}
	}
}

// RunOnce probes every enabled target a single time and releases resources.
func (p *Prober) RunOnce(ctx context.Context) error {
	if p == nil || p.service == nil {
		return fmt.Errorf("prober is not initialized")
	}
	defer p.close()
	return p.runOnce(ctx, p.targets.Enabled())
}

func (p *Prober) runOnce(ctx context.Context, tgts []targets.Target) error {
	start := time.Now()
	p.log.InfoObj("probe pass started", "probe_meta", map[string]any{
		"targets_count": len(tgts),
		"started_at":    start.UTC(),
	})
	if err := p.service.Run(ctx, tgts); err != nil {
		return err
	}
	p.log.InfoObj("probe pass completed", "probe_meta", map[string]any{
		"targets_count": len(tgts),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
	return nil
}

// close releases the storage backend and publisher clients, logging failures.
func (p *Prober) close() {
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			p.log.ErrorObj("storage close failed", "error", err)
		}
	}
	if err := p.fanout.Close(); err != nil {
		p.log.ErrorObj("publisher close failed", "error", err)
	}
}
