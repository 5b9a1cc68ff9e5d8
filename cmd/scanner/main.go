// Command scanner runs moderation scans over the ad inventory: one-shot
// incremental, priority and full scans, plus a long-running daemon mode
// with an operational HTTP endpoint.
//
// Usage:
//
//	scanner incremental [limit]
//	scanner priority [limit]
//	scanner full [limit]
//	scanner start [--daemon]
//	scanner stop
//	scanner status
//	scanner restart
//
// Exit codes: 0 on success and on lock contention (an expected concurrent
// invocation outcome), 1 on scan error, 2 on fatal startup failure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openlistings/moderation/internal/analytics"
	"github.com/openlistings/moderation/internal/api"
	"github.com/openlistings/moderation/internal/config"
	"github.com/openlistings/moderation/internal/db"
	"github.com/openlistings/moderation/internal/inventory"
	"github.com/openlistings/moderation/internal/models"
	"github.com/openlistings/moderation/internal/moderation"
	"github.com/openlistings/moderation/internal/observability"
	"github.com/openlistings/moderation/internal/rules"
	"github.com/openlistings/moderation/internal/scanner"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: scanner <incremental|priority|full> [limit] | start [--daemon] | stop | status | restart")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() {
		_ = logger.Sync()
	}()

	cmd := os.Args[1]
	args := os.Args[2:]

	var code int
	switch cmd {
	case "incremental", "priority", "full":
		code = runOneShot(logger, cfg, cmd, args)
	case "start":
		code = runStart(logger, cfg, args)
	case "stop":
		code = runStop(logger, cfg)
	case "status":
		code = runStatus(logger, cfg)
	case "restart":
		if c := runStop(logger, cfg); c != 0 {
			code = c
			break
		}
		code = runStart(logger, cfg, args)
	default:
		usage()
		code = 2
	}
	os.Exit(code)
}

// deps holds everything a scan run needs. Close releases the optional
// backends.
type deps struct {
	sched *scanner.Scheduler
	pg    *db.Postgres
	rs    *db.RedisStore
	ch    *analytics.Analytics
}

func (d *deps) Close() {
	if d.ch != nil {
		d.ch.Close()
	}
	if d.rs != nil {
		d.rs.Close()
	}
	if d.pg != nil {
		d.pg.Close()
	}
}

// buildDeps wires the scheduler and its stores. Postgres is mandatory;
// Redis and ClickHouse degrade to nil with a warning.
func buildDeps(logger *zap.Logger, cfg config.Config, metrics observability.MetricsRegistry) (*deps, error) {
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rs, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, priority signals and scan cursor disabled", zap.Error(err))
		rs = nil
	}

	var ch *analytics.Analytics
	if cfg.AnalyticsOn {
		ch, err = analytics.InitClickHouse(cfg.ClickHouseDSN)
		if err != nil {
			logger.Warn("clickhouse unavailable, scan event log disabled", zap.Error(err))
			ch = nil
		}
	}

	var signals inventory.PrioritySignals
	if rs != nil {
		signals = rs
	}
	inv := inventory.NewDirStore(cfg.InventoryDir, signals, logger)

	engine := rules.NewEngine()
	var client moderation.RealtimeModerator
	if cfg.AIModerationEnabled {
		client = moderation.NewClient(cfg.AIModerationURL, cfg.AIModerationTimeout, logger, metrics)
	}
	orch := moderation.NewOrchestrator(client, engine, logger, metrics)

	coord := scanner.NewCoordinator(cfg.LockPath, cfg.LockStaleAfter, logger)

	var cursor scanner.CursorStore
	var scores scanner.ScoreCache
	if rs != nil {
		cursor = rs
		scores = rs
	}
	var events analytics.ScanEventLogger
	if ch != nil {
		events = ch
	}

	sched := scanner.NewScheduler(orch, inv, pg, cursor, scores, events, coord, logger, metrics, scanner.Options{
		Interval:         cfg.ScanInterval,
		IncrementalHours: cfg.IncrementalHours,
		BatchLimit:       cfg.ScanBatchLimit,
		StatsEveryCycles: cfg.StatsEveryCycles,
	})
	return &deps{sched: sched, pg: pg, rs: rs, ch: ch}, nil
}

func parseLimit(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", args[0])
	}
	return n, nil
}

func runOneShot(logger *zap.Logger, cfg config.Config, scanType string, args []string) int {
	limit, err := parseLimit(args, cfg.ScanBatchLimit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	d, err := buildDeps(logger, cfg, observability.NewNoOpRegistry())
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 2
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *models.ScanResult
	switch scanType {
	case models.ScanTypeIncremental:
		result, err = d.sched.RunIncremental(ctx, cfg.IncrementalHours, limit)
	case models.ScanTypePriority:
		result, err = d.sched.RunPriority(ctx, limit)
	case models.ScanTypeFull:
		result, err = d.sched.RunFull(ctx, limit)
	}
	if err != nil {
		if errors.Is(err, scanner.ErrAlreadyRunning) {
			logger.Info("scan already running, exiting")
			return 0
		}
		logger.Error("scan failed", zap.Error(err))
		return 1
	}

	if err := d.pg.SaveScanHistory(ctx, result); err != nil {
		logger.Error("save scan history", zap.Error(err))
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return 0
}

func runStart(logger *zap.Logger, cfg config.Config, args []string) int {
	if len(args) > 0 && args[0] == "--daemon" {
		return detach(logger)
	}

	observability.MustRegister()
	d, err := buildDeps(logger, cfg, observability.NewPrometheusRegistry())
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 2
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops := api.NewServer(logger, d.sched, d.pg)
	srv := &http.Server{
		Addr:         ":" + cfg.OpsPort,
		Handler:      ops.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.String("port", cfg.OpsPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := d.sched.Run(ctx); err != nil {
		if errors.Is(err, scanner.ErrAlreadyRunning) {
			logger.Info("scan daemon already running, exiting")
			return 0
		}
		logger.Error("daemon failed", zap.Error(err))
		return 1
	}
	return 0
}

// detach re-execs the process in the background as `scanner start` and
// returns immediately.
func detach(logger *zap.Logger) int {
	exe, err := os.Executable()
	if err != nil {
		logger.Error("resolve executable", zap.Error(err))
		return 2
	}
	cmd := exec.Command(exe, "start")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		logger.Error("start daemon", zap.Error(err))
		return 2
	}
	fmt.Printf("scan daemon started, pid %d\n", cmd.Process.Pid)
	return 0
}

// runStop signals the daemon recorded in the lock file with SIGTERM.
func runStop(logger *zap.Logger, cfg config.Config) int {
	coord := scanner.NewCoordinator(cfg.LockPath, cfg.LockStaleAfter, logger)
	st, err := coord.Status()
	if err != nil {
		logger.Error("read lock", zap.Error(err))
		return 1
	}
	if !st.Held {
		fmt.Println("no scan daemon running")
		return 0
	}
	if err := syscall.Kill(st.PID, syscall.SIGTERM); err != nil {
		logger.Error("signal daemon", zap.Int("pid", st.PID), zap.Error(err))
		return 1
	}
	fmt.Printf("sent SIGTERM to pid %d\n", st.PID)
	return 0
}

func runStatus(logger *zap.Logger, cfg config.Config) int {
	coord := scanner.NewCoordinator(cfg.LockPath, cfg.LockStaleAfter, logger)
	st, err := coord.Status()
	if err != nil {
		logger.Error("read lock", zap.Error(err))
		return 1
	}
	if !st.Held {
		fmt.Println("scanner: stopped")
	} else if st.Stale {
		fmt.Printf("scanner: stale lock (pid %d, age %s)\n", st.PID, st.Age.Round(time.Second))
	} else {
		fmt.Printf("scanner: running (pid %d, since %s)\n", st.PID, st.AcquiredAt.Format(time.RFC3339))
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Warn("postgres unavailable, skipping scan history", zap.Error(err))
		return 0
	}
	defer pg.Close()

	entries, err := pg.RecentScanHistory(context.Background(), 5)
	if err != nil {
		logger.Warn("load scan history", zap.Error(err))
		return 0
	}
	for _, e := range entries {
		fmt.Printf("%s  %-11s scanned=%d flagged=%d clean=%d took=%dms\n",
			e.CreatedAt.Format(time.RFC3339), e.ScanType, e.TotalScanned, e.FlaggedCount, e.CleanCount, e.ProcessingMs)
	}
	return 0
}
