package trend

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

const biasPrefix = "ichimoku_bias::"

// IchimokuFilter reads the higher-timeframe bias published to Redis by the
// external Ichimoku tracker. A missing key means the tracker has no
// opinion, which maps to neutral and suppresses entries.
type IchimokuFilter struct {
	client *redis.Client
}

func NewIchimokuFilter(client *redis.Client) *IchimokuFilter {
	return &IchimokuFilter{client: client}
}

func (f *IchimokuFilter) Bias(ctx context.Context, symbol string) (domain.Bias, error) {
	val, err := f.client.Get(ctx, biasPrefix+symbol).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BiasNeutral, nil
		}
		return domain.BiasNeutral, err
	}
	switch strings.ToUpper(strings.TrimSpace(val)) {
	case "LONG", "BULLISH", "BUY":
		return domain.BiasLong, nil
	case "SHORT", "BEARISH", "SELL":
		return domain.BiasShort, nil
	default:
		return domain.BiasNeutral, nil
	}
}

// Static is a fixed-bias filter for replay tooling and tests.
type Static domain.Bias

func (s Static) Bias(ctx context.Context, symbol string) (domain.Bias, error) {
	return domain.Bias(s), nil
}
