package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// keyPrefix matches the key scheme other consumers of the store expect.
const keyPrefix = "robot_"

// saveScript writes the record only when it carries a newer version than the
// one already stored, keeping versions monotonic even with concurrent writers.
var saveScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, rec = pcall(cjson.decode, cur)
  if ok and rec.version and tonumber(rec.version) >= tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// RedisStore is a Store backed by a shared Redis instance, keyed robot_<id>
// with a JSON record per robot.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the given Redis endpoint and verifies it is
// reachable. An unreachable store is a startup-fatal condition for callers.
func NewRedisStore(ctx context.Context, addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to store at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Save implements Store.Save.
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record for %s: %w", rec.RobotID, err)
	}
	err = saveScript.Run(ctx, s.client, []string{keyPrefix + rec.RobotID}, payload, rec.Version).Err()
	if err != nil {
		return fmt.Errorf("save record for %s: %w", rec.RobotID, err)
	}
	return nil
}

// Load implements Store.Load.
func (s *RedisStore) Load(ctx context.Context, robotID string) (Record, error) {
	payload, err := s.client.Get(ctx, keyPrefix+robotID).Bytes()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load record for %s: %w", robotID, err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record for %s: %w", robotID, err)
	}
	rec.RobotID = robotID
	return rec, nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
