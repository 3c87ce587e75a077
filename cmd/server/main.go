package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"orchestrator/internal/api"
	"orchestrator/internal/config"
	"orchestrator/internal/engine"
	"orchestrator/internal/models"
	"orchestrator/internal/monitor"
	"orchestrator/internal/placement"
	"orchestrator/internal/policy"
	"orchestrator/internal/repository"
	"orchestrator/internal/websocket"
	"orchestrator/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()
	utils.SetGlobalLogger(logger)

	logger.Info("starting orchestrator",
		utils.String("db", cfg.Database.DSNWithoutPassword()),
		utils.String("state_file", cfg.Placement.StateFile))

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		logger.Error("open database", utils.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Error("ping database", utils.Err(err))
		os.Exit(1)
	}

	// Репозитории
	instanceRepo := repository.NewInstanceRepository(db)
	actionLogRepo := repository.NewActionLogRepository(db, cfg.Monitor.ActionLogLimit)
	positionRepo := repository.NewPositionStateRepository(db)

	// Размещение по пулам
	store := placement.NewStore(cfg.Placement.StateFile)
	manager, err := placement.NewManager(store, cfg.Placement.PoolCapacity, nil, logger)
	if err != nil {
		logger.Error("init placement manager", utils.Err(err))
		os.Exit(1)
	}
	controller := placement.NewHTTPPoolController(cfg.Placement.SupervisorURL, cfg.Monitor.RequestTimeout)
	sweeper := placement.NewSweeper(manager, controller, logger)

	// WebSocket hub для операторских событий
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Клиенты движков: общий HTTP пул, пер-инстансный rate limit
	httpClient := engine.NewHTTPClient(engine.DefaultHTTPClientConfig(cfg.Monitor.RequestTimeout))
	factory := engine.NewFactory(httpClient, cfg.Security.EncryptionKey,
		cfg.Monitor.TokenTTL, cfg.Monitor.APIRate, cfg.Monitor.APIBurst, logger)

	// Контур управления
	crashDetector := monitor.NewCrashDetector(cfg.Crash.ReferencePair,
		cfg.Crash.Window, cfg.Crash.Lookback, cfg.Crash.SeverityPercent, logger)
	settingsLoader := policy.NewSettingsLoader(cfg.Placement.InstancesDir, logger)
	priceCache := monitor.NewPriceCache(cfg.Monitor.PriceTTL)

	// Рабочий список инстансов: обход размещения + каталог старого формата
	discovery := monitor.NewDiscovery(manager, instanceRepo, cfg.Placement.LegacyDir, logger)

	loop := monitor.NewMonitor(
		monitor.Config{
			CheckInterval:        cfg.Monitor.CheckInterval,
			PriceRefreshInterval: cfg.Monitor.PriceRefreshInterval,
			BatchSize:            cfg.Monitor.BatchSize,
			RetryThreshold:       cfg.Monitor.RetryThreshold,
		},
		discovery,
		func(inst *models.BotInstance) (monitor.EngineAPI, error) {
			return factory.ClientFor(inst)
		},
		settingsLoader,
		positionRepo,
		actionLogRepo,
		priceCache,
		crashDetector,
		hub,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)

	// Наблюдение за файлами политик: логируем изменения между циклами;
	// сами настройки и так перечитываются каждый цикл
	watcher, err := monitor.NewWatcher(cfg.Monitor.DebounceWindow, logger)
	if err != nil {
		logger.Warn("init settings watcher", utils.Err(err))
	} else {
		defer watcher.Close()
		if err := watcher.Add(cfg.Placement.InstancesDir); err != nil {
			logger.Warn("watch instances dir", utils.Err(err))
		}
		go watcher.Run(ctx)
		go func() {
			for path := range watcher.Events() {
				logger.Info("feature settings changed", utils.String("path", path))
			}
		}()
	}

	// Периодическая сверка размещения
	go func() {
		ticker := time.NewTicker(cfg.Monitor.CheckInterval * 10)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := sweeper.Sweep(ctx)
				if err != nil {
					logger.Error("reconcile sweep", utils.Err(err))
					continue
				}
				if report.Changed {
					hub.BroadcastReconcileReport(report)
				}
			}
		}
	}()

	router := api.SetupRoutes(api.Deps{
		Manager:         manager,
		Controller:      controller,
		Reconciler:      sweeper,
		Monitor:         loop,
		Instances:       instanceRepo,
		ActionLog:       actionLogRepo,
		Hub:             hub,
		Logger:          logger,
		OperatorKeyHash: cfg.Security.OperatorKeyHash,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second, // сверка по запросу может идти долго
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("http server listening", utils.String("addr", server.Addr))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server", utils.Err(err))
			cancel()
		}
	}()

	// Graceful shutdown по SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", utils.String("signal", sig.String()))
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", utils.Err(err))
	}

	logger.Info("orchestrator stopped")
}
