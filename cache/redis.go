// Package cache mirrors live vehicle positions into Redis so other services
// can read them by id and look vehicles up by geohash cell.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"fleet-tracking-system/config"
	"fleet-tracking-system/geohash"
	"fleet-tracking-system/models"
)

// NewClient connects to Redis, retrying the ping up to attempts times so the
// service can start alongside a Redis that is still booting.
func NewClient(ctx context.Context, cfg config.RedisConfig, attempts int, wait time.Duration, logger *slog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			logger.Info("connected to Redis", slog.String("addr", cfg.Addr))
			return rdb, nil
		}
		logger.Info("waiting for Redis", slog.String("addr", cfg.Addr), slog.Int("attempt", i+1))
		select {
		case <-ctx.Done():
			rdb.Close()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	rdb.Close()
	return nil, fmt.Errorf("failed to connect to Redis: %w", err)
}

func VehicleKey(id string) string { return "vehicle:" + id }

func CellKey(cell string) string { return fmt.Sprintf("vehicles:%s", cell) }

// PositionCache writes each vehicle as JSON under VehicleKey and keeps the
// set of vehicle ids in every geohash cell. A vehicle that changes cell is
// removed from its old set.
type PositionCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cells map[string]string // vehicle id -> cell
}

func NewPositionCache(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *PositionCache {
	return &PositionCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
		cells:  make(map[string]string),
	}
}

type cellMove struct {
	VehicleID string
	From, To  string
}

// planMoves returns the cell changes needed to bring known up to date with
// vehicles and applies them to known.
func planMoves(known map[string]string, vehicles []models.Vehicle) []cellMove {
	var moves []cellMove
	for _, v := range vehicles {
		cell := geohash.Cell(v.Latitude, v.Longitude)
		if prev, ok := known[v.ID]; !ok || prev != cell {
			moves = append(moves, cellMove{VehicleID: v.ID, From: prev, To: cell})
			known[v.ID] = cell
		}
	}
	return moves
}

// Sync writes the given vehicle list in one transaction.
func (c *PositionCache) Sync(ctx context.Context, vehicles []models.Vehicle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]string, len(c.cells))
	for k, v := range c.cells {
		pending[k] = v
	}
	moves := planMoves(pending, vehicles)

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, v := range vehicles {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			pipe.Set(ctx, VehicleKey(v.ID), data, c.ttl)
		}
		for _, m := range moves {
			if m.From != "" {
				pipe.SRem(ctx, CellKey(m.From), m.VehicleID)
			}
			pipe.SAdd(ctx, CellKey(m.To), m.VehicleID)
			if c.ttl > 0 {
				pipe.Expire(ctx, CellKey(m.To), c.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sync %d vehicles: %w", len(vehicles), err)
	}
	c.cells = pending
	return nil
}

// Listener adapts Sync for fleet.Store.Subscribe. Failures are logged.
func (c *PositionCache) Listener(ctx context.Context) func([]models.Vehicle) {
	return func(vehicles []models.Vehicle) {
		if err := c.Sync(ctx, vehicles); err != nil {
			c.logger.Warn("redis position sync failed", slog.String("error", err.Error()))
		}
	}
}

// Nearby returns the ids of vehicles in the cell containing the point and in
// its neighbours.
func (c *PositionCache) Nearby(ctx context.Context, lat, lon float64) ([]string, error) {
	var ids []string
	for _, cell := range geohash.CellAndNeighbors(lat, lon) {
		members, err := c.rdb.SMembers(ctx, CellKey(cell)).Result()
		if err != nil {
			return nil, err
		}
		ids = append(ids, members...)
	}
	return ids, nil
}
