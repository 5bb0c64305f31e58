package registry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetbeam/tracker-hub/internal/config"
	"github.com/fleetbeam/tracker-hub/pkg/log"
)

// RedisRegistry keeps one TTL key per active bus room. A heartbeat
// refreshes the keys this instance owns; if the hub dies the keys
// simply expire.
type RedisRegistry struct {
	client            *redis.Client
	instanceID        string
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration
	managedKeys       map[string]struct{}
	mu                sync.RWMutex
	cancel            context.CancelFunc
}

func NewRedisRegistry(cfg config.RedisConfig) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	instanceID, err := os.Hostname()
	if err != nil {
		instanceID = "tracker-hub"
	}

	return &RedisRegistry{
		client:            client,
		instanceID:        instanceID,
		prefix:            cfg.RegistryPrefix,
		keyTTL:            cfg.KeyTTL,
		heartbeatInterval: cfg.HeartbeatInterval,
		managedKeys:       make(map[string]struct{}),
	}, nil
}

func (r *RedisRegistry) keyFor(busID string) string {
	return fmt.Sprintf("%s:bus:%s", r.prefix, busID)
}

func (r *RedisRegistry) RegisterBus(ctx context.Context, busID string) error {
	key := r.keyFor(busID)

	if err := r.client.Set(ctx, key, r.instanceID, r.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to register bus: %w", err)
	}

	r.mu.Lock()
	r.managedKeys[key] = struct{}{}
	r.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldBusID, busID).Msg("registered active bus")
	return nil
}

func (r *RedisRegistry) DeregisterBus(ctx context.Context, busID string) error {
	key := r.keyFor(busID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to deregister bus: %w", err)
	}

	r.mu.Lock()
	delete(r.managedKeys, key)
	r.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldBusID, busID).Msg("deregistered bus")
	return nil
}

// ActiveBuses scans the registry namespace and returns the bus ids with
// a live key, regardless of which hub instance registered them.
func (r *RedisRegistry) ActiveBuses(ctx context.Context) ([]string, error) {
	pattern := r.keyFor("*")
	keyPrefix := r.keyFor("")

	var buses []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		buses = append(buses, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan active buses: %w", err)
	}
	return buses, nil
}

func (r *RedisRegistry) StartHeartbeat(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.heartbeatLoop(ctx)
	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("registry heartbeat started")
	return nil
}

func (r *RedisRegistry) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshKeys(ctx)
		}
	}
}

func (r *RedisRegistry) refreshKeys(ctx context.Context) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.managedKeys))
	for k := range r.managedKeys {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	for _, key := range keys {
		if err := r.client.Set(ctx, key, r.instanceID, r.keyTTL).Err(); err != nil {
			l := log.L()
			l.Error().Str("key", key).Err(err).Msg("failed to refresh registry key")
		}
	}
}

func (r *RedisRegistry) StopHeartbeat() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *RedisRegistry) Close() error {
	r.StopHeartbeat()
	return r.client.Close()
}
