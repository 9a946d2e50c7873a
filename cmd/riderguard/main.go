// riderguard serves the courier safety API: alert lifecycle, live location
// feeds for operators and the courier presence board.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"RiderGuard/internal/alerting"
	"RiderGuard/internal/auth"
	handlers "RiderGuard/internal/handler"
	"RiderGuard/internal/listeners"
	"RiderGuard/internal/models"
	"RiderGuard/internal/presence"
	"RiderGuard/internal/routing"
	"RiderGuard/internal/session"
	"RiderGuard/internal/trajectory"
	"RiderGuard/pkg/backup"
	"RiderGuard/pkg/cache"
	"RiderGuard/pkg/config"
	"RiderGuard/pkg/i18n"
	"RiderGuard/pkg/logger"
	"RiderGuard/pkg/metrics"
	"RiderGuard/pkg/middleware"
	"RiderGuard/pkg/notification"
	"RiderGuard/pkg/scheduler"
	"RiderGuard/pkg/sse"
	"RiderGuard/pkg/storage"
	"RiderGuard/pkg/util"
	"RiderGuard/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		env        string
		addr       string
		migrate    bool
		issueToken uint
	)
	flags := pflag.NewFlagSet("riderguard", pflag.ContinueOnError)
	flags.StringVar(&env, "env", "", "environment name, selects .env.<env> (overrides APP_ENV)")
	flags.StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	flags.BoolVar(&migrate, "migrate", false, "migrate the database schema and exit")
	flags.UintVar(&issueToken, "issue-token", 0, "print an access token for the given user id and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if env != "" {
		_ = os.Setenv("APP_ENV", env)
	}
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.GlobalConfig
	if addr != "" {
		cfg.Addr = addr
	}

	log, err := logger.Init(cfg.Log, "riderguard")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	gormLevel := gormlogger.Warn
	if cfg.Mode == gin.DebugMode {
		gormLevel = gormlogger.Info
	}
	db, err := util.OpenDatabase(cfg.DBDriver, cfg.DSN, gormLevel)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if migrate {
		log.Info("schema migrated", zap.String("driver", cfg.DBDriver))
		return nil
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if issueToken != 0 {
		return printToken(db, tokens, issueToken)
	}

	return serve(cfg, db, tokens, log)
}

func printToken(db *gorm.DB, tokens *auth.TokenManager, userID uint) error {
	user, err := models.GetUser(db, userID)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(user.ID, user.Role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func serve(cfg *config.Config, db *gorm.DB, tokens *auth.TokenManager, log *zap.Logger) error {
	m := metrics.NewMetrics()
	if err := db.Use(metrics.NewDBPlugin(m, cfg.DBSlowThreshold, log)); err != nil {
		return fmt.Errorf("db metrics: %w", err)
	}

	store, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	hub := websocket.NewHub(cfg.WebSocket)
	hub.SetObserver(m)

	proj := presence.New(db, store, hub, cfg.Presence.SnapshotTTL, log)

	alerts := alerting.NewService(db, hub, proj, newNotifier(cfg.Notification, log), alerting.Options{
		NotifyTimeout: cfg.Notification.Timeout,
		TrackingURL:   cfg.Notification.TrackingURL,
	}, log)
	alerts.SetObserver(m)

	ingest, err := trajectory.NewIngestor(db, hub, proj, cfg.Ingestion.MonitoringRate, log)
	if err != nil {
		return fmt.Errorf("ingestor: %w", err)
	}
	ingest.SetObserver(m)
	ingest.SetLocker(alerts)

	var planner routing.Planner
	if cfg.Routing.PlannerURL != "" {
		planner = routing.NewHTTPPlanner(cfg.Routing.PlannerURL, cfg.Routing.Timeout)
	}

	tr, err := i18n.NewI18nSupport(cfg.DefaultLanguage)
	if err != nil {
		return err
	}

	locationLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.Ingestion.HTTPRate,
		Identifier: "user",
		UserKey: func(c *gin.Context) string {
			if id := auth.Current(c); id != nil {
				return strconv.FormatUint(uint64(id.UserID), 10)
			}
			return ""
		},
		AddHeaders: true,
	}, nil).WithObserver(m)

	h := handlers.NewHandlers(handlers.Deps{
		DB:              db,
		Alerts:          alerts,
		Ingest:          ingest,
		Presence:        proj,
		Sessions:        session.NewManager(hub, db, ingest, alerts, log),
		Routes:          routing.NewService(db, planner, log),
		Hub:             hub,
		Streamer:        sse.NewStreamer(hub, 30*time.Second),
		Tokens:          tokens,
		I18n:            tr,
		Metrics:         m,
		Cache:           store,
		LocationLimiter: locationLimiter,
		IdempotencyTTL:  cfg.IdempotencyTTL,
		Log:             log,
	})

	gin.SetMode(cfg.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery(), m.Middleware(), middleware.AccessLog(log.Named("access"), func(c *gin.Context) string {
		if id := auth.Current(c); id != nil {
			return id.Role + ":" + strconv.FormatUint(uint64(id.UserID), 10)
		}
		return ""
	}))
	h.Register(engine, cfg.APIPrefix)

	cron := scheduler.NewCron(time.Local, log)
	jobs := listeners.Jobs{
		SweepSpec: cfg.Presence.SweepSpec,
		Sweeper: &listeners.PresenceSweeper{
			Presence:     proj,
			OfflineAfter: cfg.Presence.OfflineAfter,
			Log:          log.Named("presence"),
		},
	}
	if cfg.Backup.Enabled {
		if cfg.DBDriver == util.DriverSQLite {
			b := backup.New(db, cfg.Backup.Path, cfg.Backup.Keep, log)
			if cfg.Backup.S3.Enabled() {
				store, err := storage.NewMinioStore(cfg.Backup.S3)
				if err != nil {
					return err
				}
				b.WithUploader(store)
			}
			jobs.BackupSpec = cfg.Backup.Schedule
			jobs.Backup = &listeners.BackupJob{Backuper: b, Log: log}
		} else {
			log.Warn("backup is only available for sqlite, skipping", zap.String("driver", cfg.DBDriver))
		}
	}
	if err := listeners.Register(cron, jobs); err != nil {
		return fmt.Errorf("schedule jobs: %w", err)
	}
	cron.Start()
	defer cron.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// websocket sessions are hijacked and not tracked by Shutdown
	hub.Close()
	return srv.Shutdown(shutdownCtx)
}

// newNotifier returns nil when no channel is configured so alerts skip the
// notification step entirely.
func newNotifier(cfg config.NotificationConfig, log *zap.Logger) alerting.Notifier {
	var (
		sms  notification.SMSClient
		push notification.PushClient
	)
	if cfg.SMSGatewayURL != "" {
		sms = notification.NewGatewaySMS(notification.SMSConfig{
			GatewayURL: cfg.SMSGatewayURL,
			Token:      cfg.SMSToken,
			Sender:     cfg.SMSSender,
			Timeout:    cfg.Timeout,
		})
	}
	if cfg.PushURL != "" {
		push = notification.NewHTTPPush(notification.PushConfig{
			URL:     cfg.PushURL,
			Token:   cfg.PushToken,
			Timeout: cfg.Timeout,
		})
	}
	if sms == nil && push == nil {
		log.Warn("no notification channel configured, trusted contacts will not be warned")
		return nil
	}
	return notification.NewContactNotifier(sms, push, log)
}
