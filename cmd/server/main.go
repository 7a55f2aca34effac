package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lessontalk/internal/config"
	"lessontalk/internal/db"
	"lessontalk/internal/lock"
	"lessontalk/internal/router"
	"lessontalk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func main() {
	app := &cli.App{
		Name:   "lessontalk",
		Usage:  "remarks, replies and votes on courses and lessons",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file to load before reading the environment",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database tables",
				Action: migrate,
			},
			{
				Name:   "recount",
				Usage:  "rebuild cached vote counters from the vote rows",
				Action: recount,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "remark", Usage: "only recount this remark id"},
					&cli.IntFlag{Name: "batch", Value: 200, Usage: "remarks per batch"},
					&cli.BoolFlag{Name: "dry-run", Usage: "report drift without repairing it"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// setup loads configuration, installs the default logger and opens the database.
func setup(c *cli.Context) (config.Config, *slog.Logger, *gorm.DB, error) {
	var envFiles []string
	if f := c.String("env-file"); f != "" {
		envFiles = append(envFiles, f)
	}
	cfg := config.Load(envFiles...)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return cfg, logger, nil, err
	}
	return cfg, logger, conn, nil
}

func closeDB(conn *gorm.DB) {
	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.Close()
	}
}

func migrate(c *cli.Context) error {
	_, _, conn, err := setup(c)
	if err != nil {
		return err
	}
	defer closeDB(conn)
	return db.Migrate(conn)
}

func recount(c *cli.Context) error {
	_, logger, conn, err := setup(c)
	if err != nil {
		return err
	}
	defer closeDB(conn)

	tally := services.NewTally(conn, logger)
	ctx := c.Context

	if id := c.String("remark"); id != "" {
		var drift services.Drift
		if c.Bool("dry-run") {
			drift, err = tally.Verify(ctx, id)
		} else {
			drift, err = tally.Recount(ctx, id)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s stored=%d/%d actual=%d/%d consistent=%t\n", id,
			drift.Stored.Upvotes, drift.Stored.Downvotes,
			drift.Actual.Upvotes, drift.Actual.Downvotes, drift.Consistent())
		return nil
	}

	if c.Bool("dry-run") {
		return errors.New("--dry-run needs --remark")
	}
	repaired, err := tally.RecountAll(ctx, c.Int("batch"))
	if err != nil {
		return err
	}
	for _, d := range repaired {
		fmt.Printf("%s repaired %d/%d -> %d/%d\n", d.RemarkID,
			d.Stored.Upvotes, d.Stored.Downvotes, d.Actual.Upvotes, d.Actual.Downvotes)
	}
	return nil
}

func serve(c *cli.Context) error {
	cfg, logger, conn, err := setup(c)
	if err != nil {
		return err
	}
	defer closeDB(conn)

	if err := db.Migrate(conn); err != nil {
		return err
	}

	var locker lock.Locker
	if cfg.RedisURL != "" {
		redisLock, err := lock.NewRedis(cfg.RedisURL, cfg.LockTTL, cfg.LockWait)
		if err != nil {
			return err
		}
		defer redisLock.Close()
		locker = redisLock
		logger.Info("vote pair lock", "backend", "redis")
	} else {
		locker = lock.NewLocal(cfg.LockWait)
		logger.Info("vote pair lock", "backend", "local")
	}

	store := services.NewRemarkStore(conn, cfg.ContentMaxLength, logger)
	tally := services.NewTally(conn, logger)
	ledger := services.NewVoteLedger(conn, tally, locker, cfg.VoteMaxAttempts, logger)
	labeler, err := services.NewCatalogLabeler(conn, cfg.LabelCacheSize, cfg.LabelCacheTTL, logger)
	if err != nil {
		return err
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.New(router.Services{
		DB:      conn,
		Remarks: store,
		Votes:   ledger,
		Tree:    services.NewTreeAssembler(store, ledger, logger),
		Feed:    services.NewAggregator(conn, labeler, ledger, cfg.FeedDefaultLimit, cfg.FeedMaxLimit, logger),
	}, router.Options{
		SessionName:   cfg.SessionName,
		SessionSecret: cfg.SessionSecret,
		ElevatedRoles: cfg.ElevatedRoles,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown incomplete", "error", err)
		}
	}()

	logger.Info("lessontalk server starting", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server closed")
	return nil
}
