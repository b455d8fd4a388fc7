// Command server is the vsurv game server entrypoint, grounded on the
// teacher's root main.go: flag-based debug override, LoadConfig, a
// human-readable Print() dump on startup, then NewServer/Start/Shutdown
// blocking on SIGINT/SIGTERM. Generalized from that teacher's
// WebSocket+Kafka wiring to the component order SPEC_FULL.md names: config
// -> logging -> metrics -> resource guard -> DB pool -> MQ drivers ->
// dispatcher -> session registry -> packet handler registry -> room
// manager -> network reactor.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/kybird/vsurv/internal/auth"
	"github.com/kybird/vsurv/internal/config"
	"github.com/kybird/vsurv/internal/dbpool"
	"github.com/kybird/vsurv/internal/dispatch"
	"github.com/kybird/vsurv/internal/eventbus"
	"github.com/kybird/vsurv/internal/handler"
	"github.com/kybird/vsurv/internal/logging"
	"github.com/kybird/vsurv/internal/metrics"
	"github.com/kybird/vsurv/internal/mq"
	"github.com/kybird/vsurv/internal/netio"
	"github.com/kybird/vsurv/internal/packet"
	"github.com/kybird/vsurv/internal/resourceguard"
	"github.com/kybird/vsurv/internal/roommanager"
	"github.com/kybird/vsurv/internal/session"
	"github.com/kybird/vsurv/internal/timer"
	"github.com/kybird/vsurv/internal/userdb"
)

const (
	dispatcherQueueSoftCapFraction = 0.75
	packetPoolMaxTotal             = 4096
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides VS_LOG_LEVEL)")
	flag.Parse()

	maxProcs := runtime.GOMAXPROCS(0)

	cfg, err := config.Load(nil)
	if err != nil {
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.Print()

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info().Int("gomaxprocs", maxProcs).Msg("starting vsurv server")
	cfg.LogConfig(logger)

	m := metrics.New()

	var activeConns int64
	guard := resourceguard.New(resourceguard.Config{
		MaxConnections:      cfg.MaxConnections,
		MaxGoroutines:       cfg.MaxConnections * 4,
		CPURejectThreshold:  cfg.CPURejectThreshold,
		CPUPauseThreshold:   cfg.CPUPauseThreshold,
		MQMessagesPerSecond: 1000,
	}, logger, &activeConns)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	guard.StartMonitoring(ctx, cfg.MetricsInterval)

	dbPool, err := dbpool.Open(cfg.DBPath, cfg.DBPoolSize)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open database pool")
		os.Exit(3)
	}
	defer dbPool.Close()

	mqSystem := mq.NewSystem(logger)
	if natsDriver, err := mq.NewNATSDriver(cfg.NATSURL, logger); err != nil {
		logger.Warn().Err(err).Msg("NATS driver unavailable, Fast QoS publishes will no-op")
	} else {
		mqSystem.Register(mq.Fast, natsDriver)
		defer natsDriver.Close()
	}
	if redisDriver, err := mq.NewRedisStreamDriver(cfg.RedisURL, logger); err != nil {
		logger.Warn().Err(err).Msg("Redis stream driver unavailable, Reliable QoS publishes will no-op")
	} else {
		mqSystem.Register(mq.Reliable, redisDriver)
		defer redisDriver.Close()
	}

	d := dispatch.New(cfg.DispatcherQueue, int(float64(cfg.DispatcherQueue)*dispatcherQueueSoftCapFraction), logger)
	d.Run()
	defer d.Stop()

	wheel := timer.New(d)
	bus := eventbus.New()
	sessions := session.NewRegistry()
	pool := packet.NewPool(packetPoolMaxTotal)

	handlers := handler.NewRegistry(logger)

	userDB := userdb.New(reserveConn(dbPool))
	authController := auth.New(bus, dbPool, sessions, pool, logger)
	authController.Init(d)
	authController.RegisterHandlers(handlers)

	envDebug := cfg.Environment != "production"
	rooms := roommanager.New(d, wheel, sessions, pool, m, bus, userDB, logger, envDebug, nil, roommanager.DefaultSkillCatalog())
	rooms.RegisterHandlers(handlers)

	listener := netio.New(netio.Config{
		Addr:            cfg.ListenAddr,
		MaxConnections:  cfg.MaxConnections,
		RecvBufferSize:  cfg.RecvBufferSize,
		RateLimitBurst:  float64(cfg.RateLimitBurst),
		RateLimitRefill: float64(cfg.RateLimitPerSec),
		SendQueueDepth:  128,
	}, sessions, handlers, d, pool, m, guard, &activeConns, logger)

	serveCtx, serveCancel := context.WithCancel(context.Background())
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- listener.Serve(serveCtx) }()

	logger.Info().Str("addr", cfg.ListenAddr).Msg("server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("listener stopped unexpectedly")
			exitCode = 2
		}
	}

	serveCancel()
	cancel()
	select {
	case <-serveErrCh:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("timed out waiting for listener to drain in-flight connections")
	}

	if exitCode != 0 {
		logger.Error().Int("exit_code", exitCode).Msg("server shut down after listener failure")
		os.Exit(exitCode)
	}
	logger.Info().Msg("server shut down cleanly")
}

// reserveConn permanently holds one of the pool's admission slots for
// UserDB, which issues its own queries directly against the shared
// *sql.DB rather than going through a per-call Acquire/Release, matching
// how internal/userdb's own tests obtain their connection.
func reserveConn(p *dbpool.Pool) *sql.DB {
	conn, ok := p.Acquire()
	if !ok {
		os.Stderr.WriteString("db pool unavailable reserving UserDB's connection at startup\n")
		os.Exit(3)
	}
	return conn
}
