package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	inhttp "github.com/vasuans/sentinel-ai-gateway/internal/adapter/inbound/http"
	"github.com/vasuans/sentinel-ai-gateway/internal/adapter/outbound/memory"
	redisadapter "github.com/vasuans/sentinel-ai-gateway/internal/adapter/outbound/redis"
	"github.com/vasuans/sentinel-ai-gateway/internal/adapter/outbound/sink"
	"github.com/vasuans/sentinel-ai-gateway/internal/adapter/outbound/sqlstore"
	"github.com/vasuans/sentinel-ai-gateway/internal/adapter/outbound/webhook"
	"github.com/vasuans/sentinel-ai-gateway/internal/config"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/approval"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/audit"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/auth"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/decision"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/gatemode"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/pii"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/ratelimit"
	"github.com/vasuans/sentinel-ai-gateway/internal/port/outbound"
	"github.com/vasuans/sentinel-ai-gateway/internal/service"
)

// devAgentKey is the raw API key seeded in dev mode only.
const devAgentKey = "agent_sk_local_dev_0123456789abcdef0123"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the Sentinel gateway server.

The server evaluates agent actions at POST /api/v1/gateway/evaluate and
exposes the policy, approval, audit, mode, health, and metrics surfaces
around it. Backing stores are selected by COUNTER_STORE_URL (redis) and
AUDIT_STORE_URL (postgres or sqlite); with neither set the gateway runs
entirely in memory, suitable for a single instance.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	mode, err := gatemode.Parse(cfg.Mode)
	if err != nil {
		return err
	}
	thresholds := decision.Thresholds{Approval: cfg.ApprovalThreshold, Block: cfg.BlockThreshold}
	if err := thresholds.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared counter/cache store.
	var (
		counterStore ratelimit.CounterStore
		ruleCache    policy.Cache
		notifier     policy.ChangeNotifier
		modePub      gatemode.Publisher
		counterPing  inhttp.ComponentPing
	)
	if cfg.CounterStoreURL != "" {
		client, err := redisadapter.Open(cfg.CounterStoreURL)
		if err != nil {
			return fmt.Errorf("counter store: %w", err)
		}
		defer client.Close()
		counterStore = redisadapter.NewCounterStore(client)
		ruleCache = redisadapter.NewRuleCache(client)
		notifier = redisadapter.NewChangeNotifier(client)
		modePub = redisadapter.NewModePublisher(client)
		counterPing = func(ctx context.Context) bool { return redisadapter.Ping(ctx, client) }
		logger.Info("counter store connected", "url", cfg.CounterStoreURL)
	} else {
		counterStore = memory.NewCounterStore()
		ruleCache = memory.NewRuleCache()
		notifier = memory.NewChangeNotifier()
		modePub = memory.NewModePublisher(mode)
		logger.Warn("no counter store configured, using in-memory store (single instance only)")
	}

	// Relational store.
	var (
		policyStore   policy.Store
		approvalStore approval.Store
		auditStore    audit.Store
		storePing     inhttp.ComponentPing
	)
	if cfg.AuditStoreURL != "" {
		store, err := sqlstore.Open(cfg.AuditStoreURL)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		defer store.Close()
		migrateCtx, migrateCancel := context.WithTimeout(ctx, 10*time.Second)
		err = store.Migrate(migrateCtx)
		migrateCancel()
		if err != nil {
			return err
		}
		policyStore = sqlstore.NewPolicyStore(store)
		approvalStore = sqlstore.NewApprovalStore(store)
		auditStore = sqlstore.NewAuditStore(store)
		storePing = func(ctx context.Context) bool { return store.Ping(ctx) == nil }
		logger.Info("relational store connected", "url", cfg.AuditStoreURL)
	} else {
		policyStore = memory.NewPolicyStore()
		approvalStore = memory.NewApprovalStore()
		auditStore = memory.NewAuditStore()
		logger.Warn("no relational store configured, using in-memory stores")
	}

	// Agent credentials.
	authStore := memory.NewAuthStore()
	if cfg.AgentKeysFile != "" {
		if err := seedAgents(authStore, cfg.AgentKeysFile); err != nil {
			return err
		}
	}
	if cfg.DevMode {
		seedDevAgent(authStore, logger)
	}
	keys := auth.NewAPIKeyService(authStore)

	// Application services.
	modeSwitch := gatemode.NewSwitch(mode, modePub, logger)
	go modeSwitch.Watch(ctx)

	policies := service.NewPolicyService(policyStore, ruleCache, notifier, logger,
		service.WithRefreshInterval(cfg.PolicyRefreshInterval()))
	if err := policies.Start(ctx); err != nil {
		return err
	}

	auditw := service.NewAuditWriter(auditStore, logger)
	auditw.Start(ctx)

	var forward outbound.ForwardSink = sink.NoopSink{}
	if cfg.ForwardTargetURL != "" {
		forward = sink.NewHTTPSink(cfg.ForwardTargetURL)
	}

	approvals := service.NewApprovalCoordinator(approvalStore, webhook.NewPoster(logger),
		forward, auditw, cfg.ApprovalWebhookURL, logger,
		service.WithApprovalExpiry(cfg.ApprovalExpiry()))
	approvals.Start(ctx)

	gateway := service.NewGatewayService(pii.NewSanitizer(), policies,
		decision.NewEngine(thresholds), modeSwitch, approvals, auditw, forward, logger)

	limiter := ratelimit.NewFixedWindowLimiter(counterStore, logger)
	rateCfg := ratelimit.Config{Requests: cfg.RateLimitRequests, Window: cfg.RateLimitWindow()}

	// HTTP surface.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var handlerOpts []inhttp.Option
	if counterPing != nil {
		handlerOpts = append(handlerOpts, inhttp.WithCounterStorePing(counterPing))
	}
	if storePing != nil {
		handlerOpts = append(handlerOpts, inhttp.WithAuditStorePing(storePing))
	}
	handler := inhttp.NewHandler(gateway, policies, approvals, auditw, auditStore,
		keys, limiter, rateCfg, registry, logger, handlerOpts...)
	inhttp.RegisterStateMetrics(registry, policies, approvals, auditw)

	server := &stdhttp.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sentinel gateway listening",
			"addr", cfg.ListenAddr, "mode", string(mode))
		if err := server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", "error", err)
	}

	cancel()
	policies.Stop()
	approvals.Stop()
	auditw.Stop()
	logger.Info("shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func seedAgents(store *memory.AuthStore, path string) error {
	file, err := config.LoadAgentsFile(path)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, a := range file.Agents {
		store.AddAgent(&auth.Agent{
			ID:                a.AgentID,
			Name:              a.Name,
			Enabled:           a.Enabled,
			Scopes:            a.Scopes,
			RateLimitOverride: a.RateLimitOverride,
		})
		for _, k := range a.Keys {
			// Bare hex keys hit the direct-lookup fast path.
			keyHash := strings.TrimPrefix(k.KeyHash, "sha256:")
			store.AddAPIKey(&auth.APIKey{
				Key:       keyHash,
				AgentID:   a.AgentID,
				Name:      k.Name,
				CreatedAt: now,
			})
		}
	}
	return nil
}

func seedDevAgent(store *memory.AuthStore, logger *slog.Logger) {
	store.AddAgent(&auth.Agent{ID: "dev-agent", Name: "Development Agent", Enabled: true})
	store.AddAPIKey(&auth.APIKey{
		Key:       auth.HashKey(devAgentKey),
		AgentID:   "dev-agent",
		Name:      "dev key",
		CreatedAt: time.Now().UTC(),
	})
	logger.Warn("dev mode: seeded development agent key", "agent_id", "dev-agent")
}
