package internal

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available at %v: %v", redisAddr, err)
	}

	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestPresenceWithoutRedis(t *testing.T) {
	ctx := context.Background()

	for _, p := range []*Presence{nil, NewPresence(nil, "inst")} {
		assert.NoError(t, p.Join(ctx, "a"))
		assert.NoError(t, p.Touch(ctx, "a"))
		assert.NoError(t, p.Received(ctx, "a"))
		assert.NoError(t, p.Sent(ctx, "a"))
		assert.NoError(t, p.Leave(ctx, "a"))
	}
}

func TestPresence(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)

	id := ksuid.New().String()
	p := NewPresence(rdb, "inst")

	require.NoError(t, p.Join(ctx, id))
	require.NoError(t, p.Received(ctx, id))
	require.NoError(t, p.Sent(ctx, id))
	require.NoError(t, p.Sent(ctx, id))

	stats, err := rdb.HGetAll(ctx, presenceKey(id)).Result()
	require.NoError(t, err)
	assert.Equal(t, "inst", stats["inst"])
	assert.Equal(t, "1", stats["recv"])
	assert.Equal(t, "2", stats["sent"])

	ttl, err := rdb.TTL(ctx, presenceKey(id)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0, "presence key should expire")

	require.NoError(t, rdb.Expire(ctx, presenceKey(id), time.Second).Err())
	require.NoError(t, p.Touch(ctx, id))

	ttl, err = rdb.TTL(ctx, presenceKey(id)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > presenceTTL-5*time.Second, "touch should restore the full ttl, got %v", ttl)

	require.NoError(t, p.Leave(ctx, id))

	n, err := rdb.Exists(ctx, presenceKey(id)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscribeEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb := testRedis(t)
	instanceID := ksuid.New().String()

	state := NewState()
	h := runTestHub(t, state)

	conn, _ := newTestConnection(8)
	state.Add("a", conn)

	go SubscribeEvents(ctx, discardLogger(), state, h, rdb, instanceID)

	b, err := json.Marshal(ControlEvent{Type: ControlEventDrop, ID: "a"})
	require.NoError(t, err)

	// the subscription is established asynchronously
	require.Eventually(t, func() bool {
		if err := rdb.Publish(ctx, instanceID, string(b)).Err(); err != nil {
			return false
		}

		select {
		case msg := <-conn.Messages:
			return msg.Drop
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 4*time.Second, 100*time.Millisecond)
}
