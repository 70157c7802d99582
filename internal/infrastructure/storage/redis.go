package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/okafor/smc_ranger_bot/internal/domain"
)

const (
	zoneStatePrefix = "zone_stats::"
	zonesKey        = "trading_bot:zones"
	positionPrefix  = "trading_bot:position::"
)

// RedisStore holds the hot trading state: zone records, the latest zone
// snapshot and the open position. Everything is JSON so the bot and
// external tooling can read the same keys.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) SaveZoneState(ctx context.Context, zoneID string, state domain.ZoneState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, zoneStatePrefix+zoneID, data, 0).Err()
}

func (s *RedisStore) LoadAllZoneState(ctx context.Context) (map[string]domain.ZoneState, error) {
	states := make(map[string]domain.ZoneState)
	iter := s.client.Scan(ctx, 0, zoneStatePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var st domain.ZoneState
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("decode zone state %s: %w", key, err)
		}
		states[strings.TrimPrefix(key, zoneStatePrefix)] = st
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

func (s *RedisStore) SaveZones(ctx context.Context, zones domain.Zones) error {
	data, err := json.Marshal(zones)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, zonesKey, data, 0).Err()
}

func (s *RedisStore) LoadZones(ctx context.Context) (domain.Zones, error) {
	data, err := s.client.Get(ctx, zonesKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Zones{}, nil
		}
		return domain.Zones{}, err
	}
	var zones domain.Zones
	if err := json.Unmarshal(data, &zones); err != nil {
		return domain.Zones{}, err
	}
	return zones, nil
}

func (s *RedisStore) SavePosition(ctx context.Context, pos *domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, positionPrefix+pos.Symbol, data, 0).Err()
}

func (s *RedisStore) LoadPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	data, err := s.client.Get(ctx, positionPrefix+symbol).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var pos domain.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *RedisStore) ClearPosition(ctx context.Context, symbol string) error {
	return s.client.Del(ctx, positionPrefix+symbol).Err()
}

// Client exposes the underlying connection for readers of keys written by
// external processes, such as the trend tracker.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
