package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sbilibin2017/gw-settlement-validator/internal/logger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
	"github.com/shopspring/decimal"
)

// LatestRunKey points at the run whose balances were cached last.
const LatestRunKey = "balances:latest"

// ErrBalanceNotCached is returned when the cache holds no balance for the user.
var ErrBalanceNotCached = errors.New("balance not found in cache")

// BalanceCacheRepository keeps the balance snapshot of a run in a Redis hash.
type BalanceCacheRepository struct {
	client *redis.Client
	exp    time.Duration // expiration of the snapshot and the latest pointer
}

func NewBalanceCacheRepository(client *redis.Client, expiration time.Duration) *BalanceCacheRepository {
	return &BalanceCacheRepository{
		client: client,
		exp:    expiration,
	}
}

func balancesKey(runID string) string {
	return "balances:" + runID
}

// SetBalances stores balances under balances:<run> and moves the latest pointer to the run.
func (r *BalanceCacheRepository) SetBalances(ctx context.Context, runID uuid.UUID, balances []models.Balance) error {
	key := balancesKey(runID.String())

	values := make(map[string]any, len(balances))
	for _, b := range balances {
		values[b.UserID] = b.Balance.String()
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
			pipe.Expire(ctx, key, r.exp)
		}
		pipe.Set(ctx, LatestRunKey, runID.String(), r.exp)
		return nil
	})

	logger.Log.Infow("balances cached",
		"key", key,
		"count", len(values),
		"error", err,
	)

	if err != nil {
		return fmt.Errorf("cache balances of run %s: %w", runID, err)
	}
	return nil
}

// LatestRunID returns the run cached last.
func (r *BalanceCacheRepository) LatestRunID(ctx context.Context) (uuid.UUID, error) {
	val, err := r.client.Get(ctx, LatestRunKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrBalanceNotCached
		}
		return uuid.Nil, err
	}
	return uuid.Parse(val)
}

// GetBalance returns the cached balance of userID in the given run.
func (r *BalanceCacheRepository) GetBalance(ctx context.Context, runID uuid.UUID, userID string) (decimal.Decimal, error) {
	key := balancesKey(runID.String())

	val, err := r.client.HGet(ctx, key, userID).Result()
	if err != nil {
		logger.Log.Debugw("balance cache miss",
			"key", key,
			"field", userID,
			"error", err,
		)
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, ErrBalanceNotCached
		}
		return decimal.Zero, err
	}

	return decimal.NewFromString(val)
}
