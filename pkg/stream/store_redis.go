package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a StateStore for multi-node deployments. The revision
// check runs inside a Lua script so concurrent writers on different
// nodes cannot both win.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

const redisActiveSet = "uep:streams:active"

// redisPutScript compares the stored revision, writes the new document,
// and keeps the active-stream set in sync. Returns -1 on conflict.
var redisPutScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local expected = tonumber(ARGV[1])
if not cur then
	if expected ~= 0 then return -1 end
else
	local rev = tonumber(cjson.decode(cur)['revision'])
	if rev ~= expected then return -1 end
end
redis.call('SET', KEYS[1], ARGV[2])
if ARGV[3] == 'active' then
	redis.call('SADD', KEYS[2], KEYS[1])
else
	redis.call('SREM', KEYS[2], KEYS[1])
end
return expected + 1
`)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, keyPrefix: "uep:stream:"}
}

func (r *RedisStore) key(tenantID, streamID string) string {
	return r.keyPrefix + stateKey(tenantID, streamID)
}

func (r *RedisStore) Get(ctx context.Context, tenantID, streamID string) (*State, error) {
	doc, err := r.client.Get(ctx, r.key(tenantID, streamID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stream: redis get: %w", err)
	}
	var st State
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return nil, fmt.Errorf("stream: decode state: %w", err)
	}
	return &st, nil
}

func (r *RedisStore) Put(ctx context.Context, state *State, expectedRevision int64) error {
	next := state.Clone()
	next.Revision = expectedRevision + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("stream: encode state: %w", err)
	}

	res, err := redisPutScript.Run(ctx, r.client,
		[]string{r.key(state.TenantID, state.StreamID), redisActiveSet},
		expectedRevision, string(doc), string(next.Phase)).Int64()
	if err != nil {
		return fmt.Errorf("stream: redis put: %w", err)
	}
	if res < 0 {
		return ErrConflict
	}
	state.Revision = next.Revision
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, tenantID, streamID string) error {
	key := r.key(tenantID, streamID)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, redisActiveSet, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stream: redis delete: %w", err)
	}
	return nil
}

func (r *RedisStore) ListActive(ctx context.Context) ([]*State, error) {
	keys, err := r.client.SMembers(ctx, redisActiveSet).Result()
	if err != nil {
		return nil, fmt.Errorf("stream: redis list active: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	docs, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("stream: redis mget: %w", err)
	}
	var out []*State
	for _, doc := range docs {
		s, ok := doc.(string)
		if !ok {
			continue // key expired between SMEMBERS and MGET
		}
		var st State
		if err := json.Unmarshal([]byte(s), &st); err != nil {
			return nil, fmt.Errorf("stream: decode state: %w", err)
		}
		if st.Phase == PhaseActive {
			out = append(out, &st)
		}
	}
	return out, nil
}
