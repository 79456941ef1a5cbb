package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tylerheishman/manifold/internal/domain"
)

const contractTTL = 5 * time.Minute

// ContractCache implements domain.ContractCache with JSON-serialized
// contracts under string keys.
//
// Key schema:
//
//	contract:{id} - JSON-encoded contract
type ContractCache struct {
	rdb *redis.Client
}

// NewContractCache creates a ContractCache backed by the given Client.
func NewContractCache(c *Client) *ContractCache {
	return &ContractCache{rdb: c.Underlying()}
}

func contractKey(id string) string { return "contract:" + id }

// Set stores a contract with a 5-minute TTL.
func (cc *ContractCache) Set(ctx context.Context, contract domain.Contract) error {
	data, err := json.Marshal(contract)
	if err != nil {
		return fmt.Errorf("redis: marshal contract %s: %w", contract.ID, err)
	}
	if err := cc.rdb.Set(ctx, contractKey(contract.ID), data, contractTTL).Err(); err != nil {
		return fmt.Errorf("redis: set contract %s: %w", contract.ID, err)
	}
	return nil
}

// Get retrieves a contract by id. It returns domain.ErrNotFound when the key
// does not exist.
func (cc *ContractCache) Get(ctx context.Context, id string) (domain.Contract, error) {
	data, err := cc.rdb.Get(ctx, contractKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Contract{}, domain.ErrNotFound
		}
		return domain.Contract{}, fmt.Errorf("redis: get contract %s: %w", id, err)
	}

	var contract domain.Contract
	if err := json.Unmarshal(data, &contract); err != nil {
		return domain.Contract{}, fmt.Errorf("redis: unmarshal contract %s: %w", id, err)
	}
	return contract, nil
}

// Invalidate removes a contract from the cache.
func (cc *ContractCache) Invalidate(ctx context.Context, id string) error {
	if err := cc.rdb.Del(ctx, contractKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate contract %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ContractCache = (*ContractCache)(nil)
