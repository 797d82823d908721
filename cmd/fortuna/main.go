package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/XavierBriggs/fortuna/internal/adminhttp"
	"github.com/XavierBriggs/fortuna/internal/calculator"
	"github.com/XavierBriggs/fortuna/internal/config"
	"github.com/XavierBriggs/fortuna/internal/dedup"
	"github.com/XavierBriggs/fortuna/internal/dispatcher"
	"github.com/XavierBriggs/fortuna/internal/feed"
	"github.com/XavierBriggs/fortuna/internal/logging"
	"github.com/XavierBriggs/fortuna/internal/message"
	"github.com/XavierBriggs/fortuna/internal/orchestrator"
	"github.com/XavierBriggs/fortuna/internal/poller"
	"github.com/XavierBriggs/fortuna/internal/validate"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the pipeline's YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("fortuna: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("fortuna: invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		fmt.Printf("fortuna: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("fortuna: starting ingest-to-delivery pipeline",
		zap.Strings("sharp_bookmakers", cfg.Feed.SharpBookmakers),
		zap.Strings("target_bookies", cfg.Targets.TargetBookies))

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Dedup.Addr,
		Password:     cfg.Dedup.Password,
		DB:           cfg.Dedup.DB,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
	})
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		logger.Fatal("fortuna: failed to connect to dedup store", zap.Error(err))
	}
	pingCancel()

	store := dedup.NewTwoLevelStore(dedup.NewRedisStore(redisClient))

	parser := feed.NewParser(cfg.Feed.SharpBookmakers, cfg.Targets.BookmakerChannels)

	feedLimiter := rate.NewLimiter(rate.Limit(2), 2)
	feedClient := poller.NewHTTPClient(
		cfg.Feed.APIBase,
		cfg.Feed.APIToken,
		cfg.AllBookmakers(),
		cfg.Feed.Sports,
		cfg.Filter.MinOdds,
		cfg.Filter.MaxOdds,
		cfg.Filter.MinProfit,
		cfg.Filter.MaxProfit,
		feedLimiter,
	)

	calcRegistry := calculator.NewRegistry()

	chain := validate.Default(cfg.Filter.MinOdds, cfg.Filter.MaxOdds, cfg.Filter.MinProfit, cfg.Filter.MaxProfit, time.Now)

	builder := message.New(cfg.MessageCache.TTL, cfg.MessageCache.MaxEntries, time.Now)

	bots := make([]dispatcher.Identity, len(cfg.Dispatcher.BotTokens))
	for i, token := range cfg.Dispatcher.BotTokens {
		bots[i] = dispatcher.Identity{ID: fmt.Sprintf("bot-%d", i+1), Token: token}
	}
	sender := dispatcher.NewHTTPBotSender(cfg.Dispatcher.ChatAPIURL)
	dispatch := dispatcher.New(bots, dispatcher.DefaultBotRate, cfg.Dispatcher.MaxQueue, sender, logger)

	orch := orchestrator.New(chain, store, calcRegistry, builder, dispatch, logger, cfg.ConcurrentPicks, time.Now)

	p := poller.New(feedClient, parser, store, orch.HandleBatch, logger, poller.Config{
		BaseInterval: cfg.Polling.BaseInterval,
		MaxInterval:  cfg.Polling.MaxInterval,
	}, time.Now)

	// The poller and the dispatcher's consumers get independent cancellation:
	// shutdown stops the poller immediately (no new picks enter the
	// pipeline) but must let the dispatcher's consumers keep draining the
	// heap for the configured grace period before cutting them off.
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())

	var dispatcherDone = make(chan struct{})
	go func() {
		dispatch.Run(dispatchCtx)
		close(dispatcherDone)
	}()

	var pollerDone = make(chan struct{})
	go func() {
		p.Run(pollerCtx)
		close(pollerDone)
	}()

	adminServer := &http.Server{
		Addr:    cfg.Admin.Addr,
		Handler: adminhttp.NewRouter(orch, dispatch),
	}
	go func() {
		logger.Info("fortuna: admin HTTP listening", zap.String("addr", cfg.Admin.Addr))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("fortuna: admin server error", zap.Error(err))
		}
	}()

	statsTicker := time.NewTicker(cfg.StatsInterval)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-dispatchCtx.Done():
				return
			case <-statsTicker.C:
				logStats(logger, orch.Snapshot(), dispatch.Stats(), dispatch.Len())
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("fortuna: shutting down")
	pollerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("fortuna: admin server shutdown error", zap.Error(err))
	}

	// Drain while dispatchCtx is still live, so the consumer goroutines
	// spawned by dispatch.Run keep delivering from the heap throughout the
	// grace period. Only once the grace period elapses (or the heap empties
	// sooner) do we cancel the dispatcher's own context and let it stop.
	dispatch.Drain(context.Background(), cfg.ShutdownGrace)
	dispatchCancel()

	<-pollerDone
	<-dispatcherDone

	logger.Info("fortuna: stopped")
}

func logStats(logger *zap.Logger, o orchestrator.Stats, d dispatcher.Stats, queueDepth int) {
	logger.Info("fortuna: periodic stats",
		zap.Int64("received", o.Received),
		zap.Int64("parsed", o.Parsed),
		zap.Int64("discarded_parse", o.DiscardedParse),
		zap.Int64("validated", o.Validated),
		zap.Int64("sent", o.Sent),
		zap.Any("dropped_by_reason", o.DroppedByReason),
		zap.Int64("dispatcher_sent", d.Sent),
		zap.Int64("dispatcher_dropped_overflow", d.DroppedOverflow),
		zap.Int64("dispatcher_dropped_permanent", d.DroppedPermanent),
		zap.Int64("dispatcher_dropped_exhausted", d.DroppedExhausted),
		zap.Int("queue_depth", queueDepth),
	)
}
