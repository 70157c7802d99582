package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/okafor/smc_ranger_bot/internal/domain"
	"github.com/okafor/smc_ranger_bot/internal/infrastructure/exchange"
	"github.com/okafor/smc_ranger_bot/internal/infrastructure/logger"
	"github.com/okafor/smc_ranger_bot/internal/infrastructure/storage"
	"github.com/okafor/smc_ranger_bot/internal/infrastructure/trend"
	"github.com/okafor/smc_ranger_bot/internal/usecase"
	"github.com/okafor/smc_ranger_bot/internal/web"
)

type Config struct {
	Exchange struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"exchange"`
	Trading struct {
		Symbol             string  `yaml:"symbol"`
		Interval           string  `yaml:"interval"`
		Lookback           int     `yaml:"lookback"`
		Backfill           int     `yaml:"backfill"`
		Margin             float64 `yaml:"margin"`
		RiskFraction       float64 `yaml:"risk_fraction"`
		RangerRiskFraction float64 `yaml:"ranger_risk_fraction"`
		Leverage           int     `yaml:"leverage"`
		LadderStep         float64 `yaml:"ladder_step"`
		ZoneSeparation     float64 `yaml:"zone_separation"`
		MaxZoneLosses      int     `yaml:"max_zone_losses"`
		CooldownHours      int     `yaml:"cooldown_hours"`
		PollMs             int     `yaml:"poll_ms"`
	} `yaml:"trading"`
	Features struct {
		OrderBlocks     bool `yaml:"order_blocks"`
		LiquiditySweeps bool `yaml:"liquidity_sweeps"`
		StrongLevels    bool `yaml:"strong_levels"`
		TrendFilter     bool `yaml:"trend_filter"`
	} `yaml:"features"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Every detector and filter is on unless the config says otherwise.
	var cfg Config
	cfg.Features.OrderBlocks = true
	cfg.Features.LiquiditySweeps = true
	cfg.Features.StrongLevels = true
	cfg.Features.TrendFilter = true

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// Credentials come from the environment, everything else from yaml.
	_ = godotenv.Load()

	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.Level, cfg.Logging.File)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	journal, err := storage.NewSQLiteStore("trades.db")
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer journal.Close()

	hot, err := storage.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect redis", zap.Error(err))
	}
	defer hot.Close()

	bitget := exchange.NewBitgetAdapter(
		os.Getenv("BITGET_API_KEY"),
		os.Getenv("BITGET_API_SECRET"),
		os.Getenv("BITGET_PASSPHRASE"),
		cfg.Exchange.RESTEndpoint,
		cfg.Exchange.WSEndpoint,
		log,
	)

	symbol := cfg.Trading.Symbol
	interval := exchange.NormalizeInterval(cfg.Trading.Interval)
	sepFraction := decimal.NewFromFloat(cfg.Trading.ZoneSeparation)

	pipeline := usecase.NewStructurePipelineWithFeatures(cfg.Trading.Lookback, sepFraction, usecase.CatalogFeatures{
		OrderBlocks:     cfg.Features.OrderBlocks,
		LiquiditySweeps: cfg.Features.LiquiditySweeps,
		StrongLevels:    cfg.Features.StrongLevels,
	})
	tracker := usecase.NewStructureTracker(symbol, interval, cfg.Trading.Backfill, bitget, pipeline, hot, log)

	guard := usecase.NewZoneGuard(
		cfg.Trading.MaxZoneLosses,
		time.Duration(cfg.Trading.CooldownHours)*time.Hour,
		sepFraction,
		nil,
	)
	sizer := usecase.NewRiskSizer(
		decimal.NewFromFloat(cfg.Trading.RiskFraction),
		decimal.NewFromFloat(cfg.Trading.RangerRiskFraction),
		decimal.NewFromInt(int64(cfg.Trading.Leverage)),
	)
	manager := usecase.NewPositionManager(symbol, bitget, hot, journal, sizer,
		decimal.NewFromFloat(cfg.Trading.LadderStep), log)

	var filter domain.TrendFilter
	if cfg.Features.TrendFilter {
		filter = trend.NewIchimokuFilter(hot.Client())
	}

	svc := usecase.NewRangerService(
		symbol,
		time.Duration(cfg.Trading.PollMs)*time.Millisecond,
		decimal.NewFromFloat(cfg.Trading.Margin),
		bitget,
		hot,
		filter,
		guard,
		manager,
		tracker,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Restore(ctx); err != nil {
		log.Error("Failed to restore state", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tracker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		svc.Run(ctx)
	}()

	server := web.NewServer(cfg.Server.Port, svc, journal, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Web server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	// The loops finish their current cycle before returning; join them so
	// no order or persistence call is cut off mid-transition.
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown error", zap.Error(err))
	}
}
