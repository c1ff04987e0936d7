// Command gateway serves a running RTGS/LSM simulation over HTTP: a
// read-mostly REST surface plus a live event-tail websocket, fronted by
// the same env-driven config, Redis-backed rate limiting, and JWT admin
// auth the retrieval pack's payment backend uses for its own API gateway.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aerugo/simcash/internal/gateway"
	"github.com/aerugo/simcash/internal/orchestrator"
	"github.com/aerugo/simcash/internal/policytree"
	"github.com/aerugo/simcash/internal/rngseed"
	"github.com/aerugo/simcash/internal/runconfig"
	"github.com/aerugo/simcash/internal/scenario"
	"github.com/aerugo/simcash/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()
	log := logger.New("simcash-gateway")
	cfg := gateway.LoadConfig()

	log.Info("starting simcash gateway", map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	})

	runCfg, err := runconfig.LoadConfig(cfg.Run.ConfigPath)
	if err != nil {
		log.Fatal("loading run configuration", map[string]interface{}{"error": err.Error()})
	}
	trees, err := runconfig.LoadTrees(runCfg)
	if err != nil {
		log.Fatal("loading policy trees", map[string]interface{}{"error": err.Error()})
	}

	var sched *scenario.Schedule
	if cfg.Run.ScenarioPath != "" {
		sched, err = runconfig.LoadScenario(cfg.Run.ScenarioPath)
		if err != nil {
			log.Fatal("loading scenario", map[string]interface{}{"error": err.Error()})
		}
	}

	seeds := rngseed.NewManager(runCfg.RNGSeed)
	orch, err := orchestrator.New(runCfg, trees, policytree.ScenarioConstraints{}, sched, nil, seeds)
	if err != nil {
		log.Fatal("constructing orchestrator", map[string]interface{}{"error": err.Error()})
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Warn("redis unreachable, rate limiting and checkpoint caching disabled", map[string]interface{}{"error": err.Error()})
		redisClient = nil
	}

	srv := gateway.NewServer(cfg, orch, redisClient, log)
	if err := srv.StartScheduler(); err != nil {
		log.Fatal("starting checkpoint scheduler", map[string]interface{}{"error": err.Error()})
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      srv.WithMiddleware(srv.Router()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("gateway listening", map[string]interface{}{"address": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gateway", nil)
	srv.StopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatal("gateway forced to shutdown", map[string]interface{}{"error": err.Error()})
	}
	log.Info("gateway stopped gracefully", nil)
}
