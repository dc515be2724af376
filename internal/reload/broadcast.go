package reload

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/login-gate/internal/logging"
)

// Message は Pub/Sub で配信する再読み込み通知です。
type Message struct {
	Origin   string `json:"origin"`
	ReloadID string `json:"reloadId"`
}

// Broadcaster は再読み込み完了を他のインスタンスへ通知します。
type Broadcaster struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	logger     *zap.Logger
}

// NewBroadcaster は Broadcaster を作成します。instanceID は自分の通知を無視するために使います。
func NewBroadcaster(rdb *redis.Client, channel, instanceID string, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		rdb:        rdb,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger,
	}
}

// InstanceID はこのインスタンスの識別子を返します。
func (b *Broadcaster) InstanceID() string {
	return b.instanceID
}

// Publish は reloadID の完了を通知します。
func (b *Broadcaster) Publish(ctx context.Context, reloadID string) error {
	body, err := json.Marshal(Message{Origin: b.instanceID, ReloadID: reloadID})
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish reload notification: %w", err)
	}
	return nil
}

// Listen はチャンネルを購読し、他のインスタンスからの通知ごとに fn を呼びます。
// ctx がキャンセルされるまでブロックします。
func (b *Broadcaster) Listen(ctx context.Context, fn func(context.Context, Message)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// 購読が確立するまで待つ
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("listening for reload notifications",
		logging.Event("reload_listen_started"),
		zap.String("channel", b.channel),
	)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.Warn("ignored malformed reload notification",
					logging.Event("reload_notification_invalid"),
					zap.Error(err),
				)
				continue
			}
			if m.Origin == b.instanceID {
				continue
			}
			fn(ctx, m)
		}
	}
}
