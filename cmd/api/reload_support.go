package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/login-gate/internal/config"
	"github.com/yourusername/login-gate/internal/credentials"
	"github.com/yourusername/login-gate/internal/logging"
	"github.com/yourusername/login-gate/internal/reload"
)

type reloadStack struct {
	manager *reload.Manager
	rdb     *redis.Client
}

// Close はワーカーと Redis 接続を閉じます。
func (s *reloadStack) Close() {
	s.manager.Shutdown()
	_ = s.rdb.Close()
}

func setupReload(ctx context.Context, cfg *config.Config, store *credentials.Store, logger *zap.Logger) (*reloadStack, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)

	ttlMinutes := cfg.ReloadRecordTTLMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	records := reload.NewStore(rdb, time.Duration(ttlMinutes)*time.Minute)
	broadcaster := reload.NewBroadcaster(rdb, cfg.ReloadChannel, uuid.NewString(), logger)

	manager, err := reload.NewManager(cfg, store, records, broadcaster, logger)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	if cfg.ReloadSchedule != "" {
		if err := manager.RegisterSchedule(cfg.ReloadSchedule); err != nil {
			_ = rdb.Close()
			return nil, err
		}
	}
	if err := manager.Start(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	go func() {
		err := broadcaster.Listen(ctx, func(ctx context.Context, msg reload.Message) {
			if _, err := store.Reload(ctx); err != nil {
				logger.Warn("peer-triggered reload failed",
					logging.Event("reload_failed"),
					zap.String("reload_id", msg.ReloadID),
					zap.String("origin", msg.Origin),
					zap.String("trigger", string(reload.TriggerPeer)),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			logger.Error("reload listener stopped", zap.Error(err))
		}
	}()

	return &reloadStack{manager: manager, rdb: rdb}, nil
}

// watchReloadSignal は hup にシグナルが届くたびにローカルのストアを再読み込みします。
// hup は呼び出し側で signal.Notify 済みのチャネルで、終了時に登録を解除します。
func watchReloadSignal(ctx context.Context, hup chan os.Signal, store *credentials.Store, logger *zap.Logger) {
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := store.Reload(ctx); err != nil {
				logger.Warn("signal-triggered reload failed",
					logging.Event("reload_failed"),
					zap.String("trigger", string(reload.TriggerSignal)),
					zap.Error(err),
				)
			}
		}
	}
}
