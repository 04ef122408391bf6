package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/auth"
	"github.com/iliyamo/cinema-seat-sync/internal/config"
	"github.com/iliyamo/cinema-seat-sync/internal/database"
	"github.com/iliyamo/cinema-seat-sync/internal/expiry"
	"github.com/iliyamo/cinema-seat-sync/internal/handler"
	"github.com/iliyamo/cinema-seat-sync/internal/logger"
	"github.com/iliyamo/cinema-seat-sync/internal/metrics"
	"github.com/iliyamo/cinema-seat-sync/internal/middleware"
	"github.com/iliyamo/cinema-seat-sync/internal/queue"
	"github.com/iliyamo/cinema-seat-sync/internal/realtime"
	"github.com/iliyamo/cinema-seat-sync/internal/repository"
	"github.com/iliyamo/cinema-seat-sync/internal/router"
	"github.com/iliyamo/cinema-seat-sync/internal/seatlock"
	"github.com/iliyamo/cinema-seat-sync/internal/service"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	port := pflag.String("port", "", "override APP_PORT")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load %s: %v", *envFile, err)
	}
	if *port != "" {
		_ = os.Setenv("APP_PORT", *port)
	}
	cfg := config.Load()

	zl := logger.New(cfg.IsProduction())
	logger.Set(zl)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := config.LoadRedisConfig()
	rdb, err := config.NewRedisClient(rc)
	if err != nil {
		logger.Get().Fatal("redis unavailable", zap.Error(err))
	}
	defer rdb.Close()

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		logger.Get().Fatal("mysql unavailable", zap.Error(err))
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Get().Fatal("migrate", zap.Error(err))
		}
	}

	m := metrics.New()
	store := seatlock.New(rdb, cfg.SeatLockTTL, seatlock.WithMetrics(m))
	rooms := realtime.NewRoomManager(m)

	var bus realtime.Broadcaster = rooms
	if cfg.BroadcastBackend == config.BroadcastRedis {
		rb := realtime.NewRedisBus(rdb, cfg.BroadcastChannel, rooms, m)
		if err := rb.Start(ctx); err != nil {
			logger.Get().Fatal("broadcast bus", zap.Error(err))
		}
		bus = rb
	}

	var (
		sched    expiry.Scheduler
		timers   *expiry.TimerScheduler
		tasks    *expiry.TaskScheduler
		asynqSrv *asynq.Server
	)
	if cfg.ExpiryBackend == config.ExpiryAsynq {
		client := asynq.NewClient(rc.AsynqOpt())
		defer client.Close()
		inspector := asynq.NewInspector(rc.AsynqOpt())
		defer inspector.Close()
		tasks = expiry.NewTaskScheduler(client, inspector, cfg.ExpiryQueue)
		sched = tasks
	} else {
		timers = expiry.NewTimerScheduler()
		defer timers.Stop()
		sched = timers
	}

	seatSync := service.NewSeatSync(store, rooms, bus, sched, m)
	reaper := service.NewReaper(store, rooms, bus, sched, m)

	if timers != nil {
		timers.Bind(seatSync.Lapsed)
	}
	if tasks != nil {
		asynqSrv = asynq.NewServer(rc.AsynqOpt(), asynq.Config{
			Concurrency: 10,
			Queues:      map[string]int{cfg.ExpiryQueue: 1},
			Logger:      zl.Sugar(),
		})
		mux := asynq.NewServeMux()
		mux.Handle(expiry.TaskTypeLapse, expiry.NewTaskHandler(seatSync.Lapsed, tasks))
		if err := asynqSrv.Start(mux); err != nil {
			logger.Get().Fatal("asynq server", zap.Error(err))
		}
	}

	var events service.EventPublisher
	if cfg.RabbitURL != "" {
		events = queue.NewPublisher(cfg.RabbitURL)
		if cfg.RunConsumer {
			consumer := queue.NewConsumer(cfg.RabbitURL, cfg.BookingLogPath)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("booking consumer stopped", zap.Error(err))
				}
			}()
		}
	}
	bookings := service.NewBookingService(repository.NewBookingRepo(db), bus, events, cfg.MaxSeatsPerBooking, m)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover(), middleware.Metrics(m), middleware.RequestLogger())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORS(cfg.AllowedOrigins))
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	router.RegisterRoutes(e, rdb, db, prometheus.DefaultGatherer)
	router.RegisterBooking(e, handler.NewBookingHandler(bookings, seatSync), verifier,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterRealtime(e, handler.NewRealtimeHandler(verifier, seatSync, reaper, cfg.ClientBuffer, cfg.AllowedOrigins))

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening",
			zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.String("expiry", cfg.ExpiryBackend), zap.String("broadcast", cfg.BroadcastBackend))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Get().Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if asynqSrv != nil {
		asynqSrv.Shutdown()
	}
}
