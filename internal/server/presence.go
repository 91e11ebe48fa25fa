package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks online users in redis and carries the pubsub channel used
// to mirror room broadcasts across relay instances. It is optional; a nil
// *Presence keeps everything in-process.
type Presence struct {
	client *redis.Client
	prefix string
}

func NewPresence(client *redis.Client, prefix string) *Presence {
	return &Presence{client: client, prefix: prefix}
}

func (p *Presence) key(parts ...string) string {
	k := p.prefix
	for _, part := range parts {
		k += ":" + part
	}
	return k
}

func (p *Presence) SetOnline(ctx context.Context, userID int) error {
	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, p.key("online"), userID)
	pipe.Del(ctx, p.key("last_seen", fmt.Sprint(userID)))
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Presence) SetOffline(ctx context.Context, userID int, lastSeen time.Time) error {
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, p.key("online"), userID)
	pipe.Set(ctx, p.key("last_seen", fmt.Sprint(userID)), lastSeen.Unix(), 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Presence) IsOnline(ctx context.Context, userID int) (bool, error) {
	return p.client.SIsMember(ctx, p.key("online"), userID).Result()
}

func (p *Presence) LastSeen(ctx context.Context, userID int) (time.Time, error) {
	unix, err := p.client.Get(ctx, p.key("last_seen", fmt.Sprint(userID))).Int64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(unix, 0), nil
}

// Publish mirrors a frame to peer instances.
func (p *Presence) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, p.key(channel), payload).Err()
}

// Subscribe listens for frames published by peer instances and hands each
// one to fn along with the room it belongs to. Blocks until ctx is done.
func (p *Presence) Subscribe(ctx context.Context, fn func(room string, payload []byte)) error {
	sub := p.client.PSubscribe(ctx, p.key("room", "*"))
	defer sub.Close()

	roomPrefix := p.key("room") + ":"
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			room := msg.Channel[len(roomPrefix):]
			fn(room, []byte(msg.Payload))
		}
	}
}
