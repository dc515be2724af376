package reload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/login-gate/internal/config"
	"github.com/yourusername/login-gate/internal/credentials"
	"github.com/yourusername/login-gate/internal/logging"
)

const (
	// TaskTypeReload は再読み込みタスクの種別です。
	TaskTypeReload = "credentials:reload"

	queueName   = "reload"
	taskTimeout = time.Minute
)

// Reloader はローカルの資格情報ストアを再読み込みします。
type Reloader interface {
	Reload(ctx context.Context) (credentials.LoadResult, error)
}

// TaskPayload は再読み込みタスクのペイロードです。
// 定期実行のタスクは ReloadID を持たず、処理時に採番します。
type TaskPayload struct {
	ReloadID string  `json:"reloadId,omitempty"`
	Trigger  Trigger `json:"trigger"`
}

// Manager は再読み込みタスクの投入・実行・定期登録を担います。
type Manager struct {
	client      *asynq.Client
	server      *asynq.Server
	scheduler   *asynq.Scheduler
	mux         *asynq.ServeMux
	redisOpt    asynq.RedisConnOpt
	store       *Store
	reloader    Reloader
	broadcaster *Broadcaster
	logger      *zap.Logger
}

// NewManager は Manager を初期化します。broadcaster は nil でも構いません。
func NewManager(cfg *config.Config, reloader Reloader, store *Store, broadcaster *Broadcaster, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if reloader == nil {
		return nil, errors.New("reloader is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger: logger.Named("asynq").Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client:      client,
		server:      server,
		mux:         mux,
		redisOpt:    opt,
		store:       store,
		reloader:    reloader,
		broadcaster: broadcaster,
		logger:      logger,
	}
	mux.HandleFunc(TaskTypeReload, manager.handleReloadTask)
	return manager, nil
}

// RegisterSchedule は cron 式 spec で定期再読み込みを登録します。Start の前に呼びます。
func (m *Manager) RegisterSchedule(spec string) error {
	if m.scheduler == nil {
		m.scheduler = asynq.NewScheduler(m.redisOpt, &asynq.SchedulerOpts{
			Logger: m.logger.Named("asynq.scheduler").Sugar(),
		})
	}
	body, err := json.Marshal(&TaskPayload{Trigger: TriggerSchedule})
	if err != nil {
		return err
	}
	entryID, err := m.scheduler.Register(spec, asynq.NewTask(TaskTypeReload, body), scheduleOptions()...)
	if err != nil {
		return fmt.Errorf("failed to register reload schedule %q: %w", spec, err)
	}
	m.logger.Info("registered reload schedule",
		logging.Event("reload_schedule_registered"),
		zap.String("spec", spec),
		zap.String("entry_id", entryID),
	)
	return nil
}

// scheduleOptions は定期実行タスクの投入オプションです。
// 複数インスタンスが同じ spec を登録していても、Unique により各回1件だけ投入されます。
func scheduleOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
		asynq.Timeout(taskTimeout),
		asynq.Unique(taskTimeout),
	}
}

// Start はワーカーと（登録済みなら）スケジューラーをバックグラウンドで起動します。
func (m *Manager) Start() error {
	if err := m.server.Start(m.mux); err != nil {
		return fmt.Errorf("failed to start reload worker: %w", err)
	}
	if m.scheduler != nil {
		if err := m.scheduler.Start(); err != nil {
			m.server.Shutdown()
			return fmt.Errorf("failed to start reload scheduler: %w", err)
		}
	}
	return nil
}

// Shutdown はスケジューラー・サーバー・クライアントを閉じます。
func (m *Manager) Shutdown() {
	if m.scheduler != nil {
		m.scheduler.Shutdown()
	}
	m.server.Shutdown()
	if err := m.client.Close(); err != nil {
		m.logger.Warn("failed to close asynq client", zap.Error(err))
	}
}

// Enqueue は再読み込みをキューに投入し、追跡用の reloadID を返します。
func (m *Manager) Enqueue(ctx context.Context, trigger Trigger) (string, error) {
	reloadID := uuid.NewString()
	record := &Record{
		ReloadID: reloadID,
		Trigger:  trigger,
		Status:   StatusQueued,
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{ReloadID: reloadID, Trigger: trigger})
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskTypeReload, body)
	if _, err := m.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.TaskID(reloadID),
		asynq.MaxRetry(1),
		asynq.Timeout(taskTimeout),
	); err != nil {
		_ = m.store.MarkFailed(ctx, reloadID, &ErrorInfo{Code: "ENQUEUE_FAILED", Message: err.Error()})
		return "", err
	}
	return reloadID, nil
}

// GetRecord は再読み込みの記録を取得します。
func (m *Manager) GetRecord(ctx context.Context, reloadID string) (*Record, error) {
	return m.store.Get(ctx, reloadID)
}

func (m *Manager) handleReloadTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid reload payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Trigger == "" {
		payload.Trigger = TriggerSchedule
	}
	if payload.ReloadID == "" {
		payload.ReloadID = uuid.NewString()
	}

	instance := m.instanceID()
	if err := m.store.MarkRunning(ctx, payload.ReloadID, instance); err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			return err
		}
		// 定期実行分、または記録が期限切れになったものはここで作り直す
		if err := m.store.Upsert(ctx, &Record{
			ReloadID: payload.ReloadID,
			Trigger:  payload.Trigger,
			Instance: instance,
			Status:   StatusRunning,
		}); err != nil {
			return err
		}
	}

	logger := m.logger.With(
		zap.String("reload_id", payload.ReloadID),
		zap.String("trigger", string(payload.Trigger)),
	)

	result, err := m.reloader.Reload(ctx)
	if err != nil {
		logger.Error("credentials reload failed", logging.Event("reload_failed"), zap.Error(err))
		if markErr := m.store.MarkFailed(ctx, payload.ReloadID, &ErrorInfo{
			Code:    "RELOAD_FAILED",
			Message: err.Error(),
		}); markErr != nil {
			logger.Warn("failed to record reload failure", zap.Error(markErr))
		}
		return fmt.Errorf("reload %s failed: %v: %w", payload.ReloadID, err, asynq.SkipRetry)
	}

	if err := m.store.MarkDone(ctx, payload.ReloadID, result); err != nil {
		return err
	}
	logger.Info("credentials reloaded",
		logging.Event("reload_completed"),
		zap.Int("credentials_count", result.Count),
		zap.Int("skipped_lines", result.Skipped),
	)

	if m.broadcaster != nil {
		if err := m.broadcaster.Publish(ctx, payload.ReloadID); err != nil {
			logger.Warn("failed to notify peers", logging.Event("reload_broadcast_failed"), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) instanceID() string {
	if m.broadcaster == nil {
		return ""
	}
	return m.broadcaster.InstanceID()
}
