package main

import (
	"Campus/internal/api/config"
	"Campus/internal/pkg/database"
	"Campus/internal/pkg/es"
	"Campus/internal/pkg/logger"
	"Campus/internal/pkg/mongo"
	"Campus/internal/pkg/redis"
	"Campus/internal/pkg/security"
	"Campus/internal/wire"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := config.LoadConfig(); err != nil {
		fatal("failed to load configuration", err)
	}
	cfg := config.Cfg

	logger.InitLogger()
	security.Init(cfg.JWT)

	dbCfg := cfg.DB
	db, err := database.NewGormDB(&dbCfg)
	if err != nil {
		fatal("failed to create database connection", err)
	}
	if err = redis.InitRedis(cfg.Redis); err != nil {
		fatal("failed to create redis connection", err)
	}
	mongoDB, err := mongo.InitMongo(cfg.Mongo)
	if err != nil {
		fatal("failed to create mongo connection", err)
	}
	// 检索不可用时降级运行，search 接口返回 ErrSearchUnavailable
	if err = es.InitClient(cfg.Elastic); err != nil {
		log.Warn("ElasticSearch unavailable, message search disabled", "err", err)
	}

	app, err := wire.BuildApplication(db, mongoDB, cfg)
	if err != nil {
		fatal("failed to create application", err)
	}
	if err = app.CronMgr.Run(); err != nil {
		fatal("failed to start cron jobs", err)
	}

	if err = serve(app, cfg); err != nil {
		log.Error("App exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("App exited successfully.")
}

// serve 运行 HTTP 与 Kafka 消费，收到信号或任一组件失败后按顺序退出：
// 先停止接收请求，再停定时任务，最后排空出站投递队列
func serve(app *wire.ApplicationContainer, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("HTTP Server starting...", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("Kafka Consumers starting...")
		return app.KafkaManager.Start(ctx, cfg)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down...", "cause", context.Cause(ctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP Server shutdown failed", "err", err)
		}
		app.CronMgr.Stop()
		app.CommService.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func fatal(msg string, err error) {
	log.Error("Fatal error: "+msg, "err", err)
	os.Exit(1)
}
