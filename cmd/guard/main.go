// guard hosts the trust-gate subsystem: it wires config, logging, telemetry,
// the audit log, the session manager, the security monitor, the device
// service, and the policy engine, then runs the maintenance loops until
// interrupted. The decision surface itself is a library boundary consumed by
// the authentication layer.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"account-trust-gate/internal/audit"
	auditrepo "account-trust-gate/internal/audit/repository"
	"account-trust-gate/internal/config"
	"account-trust-gate/internal/db"
	"account-trust-gate/internal/device"
	"account-trust-gate/internal/logging"
	"account-trust-gate/internal/monitor"
	"account-trust-gate/internal/monitor/notifier"
	"account-trust-gate/internal/security"
	"account-trust-gate/internal/session"
	atgotel "account-trust-gate/internal/telemetry/otel"
	"account-trust-gate/internal/threatintel"
)

const auditCleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	providers, err := atgotel.NewProviders(ctx, cfg.OTLPEndpoint, "account-trust-gate", cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	counters, err := atgotel.NewCounters(providers.MeterProvider)
	if err != nil {
		logger.Fatal("telemetry counters", zap.Error(err))
	}

	var sinks []audit.Sink
	if cfg.AuditConsoleSink {
		sinks = append(sinks, audit.NewConsoleSink(logger))
	}
	if cfg.AuditFilePath != "" {
		sinks = append(sinks, audit.NewFileSink(cfg.AuditFilePath))
	}
	var auditRepo *auditrepo.PostgresRepository
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer conn.Close()
		auditRepo = auditrepo.NewPostgresRepository(conn)
		sinks = append(sinks, audit.NewRepositorySink(auditRepo))
	}
	auditLog := audit.NewLogger(audit.Options{
		MaxEntries:    cfg.AuditMaxEntries,
		RetentionDays: cfg.AuditRetentionDays,
	}, logger, sinks...)
	if auditRepo != nil {
		// Reload the retained window from the durable mirror so queries and
		// stats survive a restart.
		loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		since := time.Now().UTC().AddDate(0, 0, -cfg.AuditRetentionDays)
		entries, err := auditRepo.ListSince(loadCtx, since, int32(cfg.AuditMaxEntries))
		cancel()
		if err != nil {
			logger.Warn("audit rehydrate", zap.Error(err))
		} else if n := auditLog.Rehydrate(entries); n > 0 {
			logger.Info("audit ring rehydrated", zap.Int("entries", n))
		}
	}

	hasher := security.NewIPHasher(cfg.IPHashSalt)
	tokens := security.NewTokenProvider(cfg.SessionTokenSecret, cfg.SessionTokenIssuer)

	sessions := session.NewManager(session.Options{
		TTL:           cfg.SessionTTLDuration(),
		MaxPerUser:    cfg.MaxSessionsPerUser,
		SweepInterval: cfg.SweepInterval(),
	}, hasher, tokens, session.MultiSink{
		session.NewLogSink(logger),
		session.NewAuditSink(auditLog),
	}, logger)

	var notify notifier.Notifier
	kn, err := notifier.NewKafkaNotifier(cfg.AlertKafkaBrokersList(), cfg.AlertKafkaTopic)
	if err != nil {
		logger.Fatal("alert notifier", zap.Error(err))
	}
	if kn != nil {
		defer func() { _ = kn.Close() }()
		notify = kn
	}

	mon := monitor.NewMonitor(monitor.Options{
		RapidFailureThreshold:  cfg.BruteForceThreshold,
		RapidBlockThreshold:    cfg.BruteForceBlockThreshold,
		RapidFailureWindow:     cfg.BruteForceWindowDuration(),
		MultiSourceThreshold:   cfg.MultiSourceThreshold,
		MultiSourceWindow:      cfg.MultiSourceWindowDuration(),
		OffHoursThreshold:      cfg.OffHoursThreshold,
		OffHoursWindow:         cfg.OffHoursWindowDuration(),
		OffHoursStart:          cfg.OffHoursStart,
		OffHoursEnd:            cfg.OffHoursEnd,
		RateLimitThreshold:     cfg.RateLimitThreshold,
		RateLimitWindow:        cfg.RateLimitWindowDuration(),
		StalledAttackThreshold: cfg.StalledAttackThreshold,
	}, hasher, notify, counters, auditLog, logger)

	intel := threatintel.Noop{}
	devices := device.NewService(intel, logger)

	gate := newGate(sessions, mon, devices, intel, auditLog, counters, logger)
	if err := gate.registerBaselinePolicies(); err != nil {
		logger.Fatal("baseline policies", zap.Error(err))
	}

	sessions.Start(ctx)
	mon.Start(ctx)

	cleanupStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(auditCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := auditLog.CleanupOld(); n > 0 {
					logger.Info("audit retention purge", zap.Int("removed", n))
				}
			case <-cleanupStop:
				return
			}
		}
	}()

	logger.Info("trust gate running",
		zap.String("env", cfg.Env),
		zap.Duration("session_ttl", cfg.SessionTTLDuration()),
		zap.Int("max_sessions_per_user", cfg.MaxSessionsPerUser),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	close(cleanupStop)
	mon.Stop()
	sessions.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
