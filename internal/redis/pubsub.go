package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// TicketChange is broadcast whenever a ticket is minted or moves along its
// lifecycle. Subscribers use it to refresh live views and drop cached state.
type TicketChange struct {
	Type     string `json:"type"`
	EventID  int64  `json:"event_id"`
	TicketID int64  `json:"ticket_id"`
	Status   string `json:"status"`
	TsUnix   int64  `json:"ts_unix"`
}

type TicketsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewTicketsPubSub(rdb *redis.Client) *TicketsPubSub {
	return &TicketsPubSub{
		rdb:     rdb,
		channel: ChannelTicketsChanged(),
	}
}

func (p *TicketsPubSub) Publish(ctx context.Context, c TicketChange) error {
	if c.TsUnix == 0 {
		c.TsUnix = time.Now().Unix()
	}

	b, err := json.Marshal(c)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe blocks delivering changes to handler until ctx is cancelled or
// the subscription channel closes.
func (p *TicketsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, c TicketChange)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var c TicketChange
			if err := json.Unmarshal([]byte(m.Payload), &c); err == nil &&
				c.TicketID != 0 {
				handler(ctx, c)
			}
		}
	}
}
