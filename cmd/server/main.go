package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mteoong/quickscope-sub000/internal/cache"
	"github.com/mteoong/quickscope-sub000/internal/config"
	"github.com/mteoong/quickscope-sub000/internal/domain"
	"github.com/mteoong/quickscope-sub000/internal/handler"
	"github.com/mteoong/quickscope-sub000/internal/job"
	"github.com/mteoong/quickscope-sub000/internal/oracle"
	"github.com/mteoong/quickscope-sub000/internal/provider"
	"github.com/mteoong/quickscope-sub000/internal/request"
	"github.com/mteoong/quickscope-sub000/internal/service"
	"github.com/mteoong/quickscope-sub000/internal/stream"
	"github.com/mteoong/quickscope-sub000/pkg/tracing"

	_ "github.com/mteoong/quickscope-sub000/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initTracerFunc         = tracing.InitTracer
	newRedisStoreFunc      = cache.NewRedis
	newRouterFunc          = gin.Default
	startStreamFunc        = func(c *stream.Client, ctx context.Context) { go c.Run(ctx) }
	startRefresherFunc     = func(r *job.OracleRefresher, ctx context.Context) { go r.Start(ctx) }
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Quickscope Market Data API
// @version         1.0
// @description     Resilient multi-source token market data acquisition and normalization engine.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Cache tier: Redis when configured and reachable, in-process otherwise.
	var store cache.Store
	var sweeper job.Sweepable
	if cfg.RedisURL != "" {
		if redis := newRedisStoreFunc(ctx, cfg.RedisURL); redis != nil {
			store = redis
		}
	}
	if store == nil {
		mem := cache.NewMemory()
		store = mem
		sweeper = mem
	}

	opts := request.DefaultOptions()
	opts.MaxAttempts = cfg.RetryMaxAttempts
	coord := request.New(opts)

	// Provider priority order. Birdeye joins the candle chain only with a
	// key; it still backs the token endpoints, where a missing key surfaces
	// as a provider error.
	birdeye := provider.NewBirdeye(tracer, cfg.BirdeyeAPIKey, cfg.Chain)
	gecko := provider.NewGeckoTerminal(tracer, cfg.Chain)
	coingecko := provider.NewCoinGecko(tracer, cfg.Chain)

	var sources []service.CandleSource
	if cfg.BirdeyeAPIKey != "" {
		sources = append(sources, birdeye)
	}
	sources = append(sources, gecko, coingecko)

	market := service.NewMarketData(tracer, store, coord, sources, birdeye,
		time.Duration(cfg.CacheTTLSecs)*time.Second)

	oracleCache := oracle.New(tracer, gecko, coingecko,
		time.Duration(cfg.OracleTTLSecs)*time.Second)
	refresher := job.NewOracleRefresher(tracer, oracleCache, sweeper, cfg.OracleRefreshSecs)
	startRefresherFunc(refresher, ctx)

	if cfg.StreamEnabled {
		decoder := stream.NewDecoder(cfg.TrackedMint, cfg.DustThreshold, oracleCache)
		client := stream.NewClient(cfg.StreamWSURL, cfg.TrackedMint, decoder,
			func(ev domain.TradeEvent) {
				log.Printf("trade %s %s %.6f @ %.8f ($%.2f) %s",
					ev.Side, cfg.TrackedMint, ev.Amount, ev.PricePerUnit, ev.USDValue, ev.TxID)
			},
			func(s domain.StreamStatus) {
				log.Printf("stream status: %s", s)
			})
		startStreamFunc(client, ctx)
	}

	h := handler.New(tracer, market)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("quickscope"))
	r.Use(cors.Default())

	h.RegisterRoutes(r, handler.APIKeyAuth(cfg.APIKey))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
