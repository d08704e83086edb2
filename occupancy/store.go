package occupancy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store persists combined scored output to Redis. Pushes retry a bounded
// number of times, refreshing the connection between attempts, since the
// scored table is the batch's only durable artifact.
type Store struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewStore connects to Redis and verifies the connection. An empty
// address is a configuration decision to run without persistence; callers
// check that before constructing a Store.
func NewStore(cfg RedisConfig) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address not configured")
	}
	s := &Store{cfg: cfg, client: newRedisClient(cfg)}
	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return s, nil
}

func newRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// PushCombined stores a run's combined output table under
// "scored:{runID}" and points "scored:latest" at it. Transient failures
// are retried up to the configured count with a fresh connection each
// attempt.
func (s *Store) PushCombined(ctx context.Context, runID string, rows []CombinedRow) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshaling combined output: %w", err)
	}

	attempts := s.cfg.Retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = s.pushOnce(ctx, runID, payload); lastErr == nil {
			return nil
		}
		log.Printf("[store] push attempt %d/%d failed: %v", attempt, attempts, lastErr)
		if attempt == attempts {
			break
		}
		s.refresh()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return fmt.Errorf("pushing run %s after %d attempts: %w", runID, attempts, lastErr)
}

func (s *Store) pushOnce(ctx context.Context, runID string, payload []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, "scored:"+runID, payload, 0)
	pipe.Set(ctx, "scored:latest", runID, 0)
	_, err := pipe.Exec(ctx)
	return err
}

// refresh replaces the client so the next attempt starts from a clean
// connection.
func (s *Store) refresh() {
	if err := s.client.Close(); err != nil {
		log.Printf("[store] closing stale client: %v", err)
	}
	s.client = newRedisClient(s.cfg)
}

// FetchCombined loads a run's combined output. An empty runID resolves
// through "scored:latest". A missing run returns nil rows and no error.
func (s *Store) FetchCombined(ctx context.Context, runID string) ([]CombinedRow, error) {
	if runID == "" {
		latest, err := s.client.Get(ctx, "scored:latest").Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolving latest run: %w", err)
		}
		runID = latest
	}

	payload, err := s.client.Get(ctx, "scored:"+runID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", runID, err)
	}

	var rows []CombinedRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("parsing run %s: %w", runID, err)
	}
	return rows, nil
}
