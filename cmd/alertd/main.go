package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	scorerclient "stockalert/internal/client/scorer"
	sourceclient "stockalert/internal/client/source"
	tokenizerclient "stockalert/internal/client/tokenizer"
	"stockalert/internal/config"
	cronrunner "stockalert/internal/cron"
	"stockalert/internal/db"
	"stockalert/internal/dictionary"
	"stockalert/internal/handler"
	"stockalert/internal/ingest"
	"stockalert/internal/logger"
	"stockalert/internal/matcher"
	gormrepository "stockalert/internal/repository/gorm"
	"stockalert/internal/sentiment"
	"stockalert/internal/spike"
)

func main() {
	cfgPath := os.Getenv("SA_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SA_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Ingest.Timezone)
	if err != nil {
		logger.Fatal("invalid ingest timezone", zap.String("timezone", cfg.Ingest.Timezone), zap.Error(err))
	}

	dict, err := dictionary.Load(cfg.Dictionary.StocksPath, cfg.Dictionary.IndustriesPath)
	if err != nil {
		logger.Fatal("dictionary load failed", zap.Error(err))
	}
	logger.Info("dictionary loaded",
		zap.Int("stocks", len(dict.Stocks())),
		zap.Int("industries", len(dict.Industries())),
	)

	sourceHTTP := &http.Client{Timeout: cfg.Source.Timeout}
	source := sourceclient.NewClient(sourceHTTP, sourceclient.Options{
		BaseURL:    cfg.Source.BaseURL,
		PageLimit:  cfg.Source.PageLimit,
		RatePerSec: cfg.Source.RatePerSec,
		RateBurst:  cfg.Source.RateBurst,
	})

	var nounTokenizer matcher.Tokenizer
	if cfg.Tokenizer.Enabled && cfg.Tokenizer.BaseURL != "" {
		tokenizerHTTP := &http.Client{Timeout: cfg.Tokenizer.Timeout}
		nounTokenizer = tokenizerclient.NewClient(tokenizerHTTP, cfg.Tokenizer.BaseURL)
	}

	scorerHTTP := &http.Client{Timeout: cfg.Scorer.Timeout}
	scorer := scorerclient.NewClient(scorerHTTP, cfg.Scorer.BaseURL)

	store := gormrepository.New(dbConn.Gorm)

	entityMatcher := &matcher.Matcher{
		Dict:      dict,
		Tokenizer: nounTokenizer,
		Logger:    logger,
	}
	aggregator := &sentiment.Aggregator{
		Scorer:   scorer,
		MaxChars: cfg.Scorer.MaxChars,
		Logger:   logger,
	}
	runner := &ingest.Runner{
		Source:      source,
		Matcher:     entityMatcher,
		Sentiment:   aggregator,
		Repo:        store,
		Logger:      logger,
		Location:    loc,
		Concurrency: cfg.Ingest.Concurrency,
	}
	detector := &spike.Detector{Repo: store}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	mentionHandler := &handler.MentionHandler{Repo: store}
	mentionHandler.Register(engine)
	spikeHandler := &handler.SpikeHandler{
		Detector:         detector,
		DefaultThreshold: cfg.Spike.RatioThreshold,
		DefaultChannels:  cfg.Ingest.Channels,
	}
	spikeHandler.Register(engine)
	runHandler := &handler.RunHandler{Repo: store}
	runHandler.Register(engine)
	ingestHandler := &handler.IngestHandler{
		Runner:       runner,
		Channels:     cfg.Ingest.Channels,
		Logger:       logger,
		BaseCtx:      ctx,
		BackfillDays: cfg.Ingest.BackfillDays,
		Location:     loc,
	}
	ingestHandler.Register(engine)

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add(cfg.Cron.DailyIngest, func(ctx context.Context) {
			// Routine mode: exactly the prior calendar day.
			windowEnd := ingest.DayStart(time.Now(), loc)
			windowStart := windowEnd.AddDate(0, 0, -1)
			results := runner.RunAll(ctx, cfg.Ingest.Channels, windowStart, windowEnd)
			for _, res := range results {
				if res.Err != nil {
					logger.Warn("daily ingest channel failed", zap.Error(res.Err))
				}
			}
		})
		if err != nil {
			logger.Warn("cron register daily ingest failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.Ingest.BackfillOnStart && cfg.Ingest.BackfillDays > 0 {
		go func() {
			windowEnd := ingest.DayStart(time.Now(), loc)
			windowStart := windowEnd.AddDate(0, 0, -cfg.Ingest.BackfillDays)
			logger.Info("initial backfill starting",
				zap.Time("window_start", windowStart),
				zap.Time("window_end", windowEnd),
			)
			results := runner.RunAll(ctx, cfg.Ingest.Channels, windowStart, windowEnd)
			for _, res := range results {
				if res.Err != nil {
					logger.Warn("backfill channel failed", zap.Error(res.Err))
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
