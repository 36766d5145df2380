package internal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceTTL outlives two ping intervals so a single missed ping does not expire
// a live connection.
const presenceTTL = 90 * time.Second

// Presence mirrors connection stats into redis. A nil client turns every method
// into a no-op so the service can run without redis.
type Presence struct {
	rdb        *redis.Client
	instanceID string
}

func NewPresence(rdb *redis.Client, instanceID string) *Presence {
	return &Presence{rdb: rdb, instanceID: instanceID}
}

func presenceKey(id string) string {
	return fmt.Sprintf("conn:%v", id)
}

func (p *Presence) Join(ctx context.Context, id string) error {
	if p == nil || p.rdb == nil {
		return nil
	}

	rid := presenceKey(id)
	data := map[string]string{
		"inst": p.instanceID,
		"join": strconv.Itoa(int(time.Now().Unix())),
		"recv": "0",
		"sent": "0",
	}

	if err := p.rdb.HSet(ctx, rid, data).Err(); err != nil {
		return err
	}

	return p.rdb.Expire(ctx, rid, presenceTTL).Err()
}

func (p *Presence) Touch(ctx context.Context, id string) error {
	if p == nil || p.rdb == nil {
		return nil
	}

	return p.rdb.Expire(ctx, presenceKey(id), presenceTTL).Err()
}

func (p *Presence) Received(ctx context.Context, id string) error {
	return p.incr(ctx, id, "recv")
}

func (p *Presence) Sent(ctx context.Context, id string) error {
	return p.incr(ctx, id, "sent")
}

func (p *Presence) incr(ctx context.Context, id, field string) error {
	if p == nil || p.rdb == nil {
		return nil
	}

	return p.rdb.HIncrBy(ctx, presenceKey(id), field, 1).Err()
}

func (p *Presence) Leave(ctx context.Context, id string) error {
	if p == nil || p.rdb == nil {
		return nil
	}

	return p.rdb.Del(ctx, presenceKey(id)).Err()
}
