package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/okafor/smc_ranger_bot/internal/infrastructure/exchange"
	"github.com/okafor/smc_ranger_bot/internal/infrastructure/logger"
	"github.com/okafor/smc_ranger_bot/internal/usecase"
)

// analyzer replays public candle history through the structure pipeline and
// prints the resulting zones, useful for eyeballing zone quality before
// trading a symbol live.
func main() {
	symbol := flag.String("symbol", "BTCUSDT", "futures symbol")
	interval := flag.String("interval", "1h", "candle interval")
	limit := flag.Int("limit", 500, "candles to fetch")
	lookback := flag.Int("lookback", 3, "pivot lookback")
	separation := flag.Float64("separation", 0.002, "zone separation fraction")
	flag.Parse()

	log, err := logger.NewLogger("warn")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Market data endpoints need no credentials.
	bitget := exchange.NewBitgetAdapter("", "", "", "", "", log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	candles, err := bitget.GetCandles(ctx, *symbol, exchange.NormalizeInterval(*interval), *limit)
	if err != nil {
		log.Fatal("fetch candles", zap.Error(err))
	}

	pipeline := usecase.NewStructurePipeline(*lookback, decimal.NewFromFloat(*separation))
	for _, c := range candles {
		pipeline.Push(c)
	}

	out := struct {
		Symbol  string      `json:"symbol"`
		Candles int         `json:"candles"`
		Trend   string      `json:"trend"`
		Zones   interface{} `json:"zones"`
	}{
		Symbol:  *symbol,
		Candles: pipeline.Series().Len(),
		Trend:   string(pipeline.Trend()),
		Zones:   pipeline.Zones(),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal("encode output", zap.Error(err))
	}
}
