package reload

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/login-gate/internal/config"
	"github.com/yourusername/login-gate/internal/credentials"
)

type stubReloader struct {
	result credentials.LoadResult
	err    error
	calls  int
}

func (s *stubReloader) Reload(context.Context) (credentials.LoadResult, error) {
	s.calls++
	return s.result, s.err
}

func newTestManager(t *testing.T, reloader Reloader, broadcaster func(*redis.Client) *Broadcaster) (*Manager, *Store) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	store := NewStore(rdb, time.Minute)

	var b *Broadcaster
	if broadcaster != nil {
		b = broadcaster(rdb)
	}
	cfg := &config.Config{QueueRedisURL: "redis://" + mr.Addr()}
	manager, err := NewManager(cfg, reloader, store, b, nil)
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)
	return manager, store
}

func reloadTask(t *testing.T, payload TaskPayload) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(&payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeReload, body)
}

func TestNewManagerValidation(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, time.Minute)

	_, err := NewManager(nil, &stubReloader{}, store, nil, nil)
	require.Error(t, err)
	_, err = NewManager(&config.Config{QueueRedisURL: "redis://127.0.0.1:6379/0"}, nil, store, nil, nil)
	require.Error(t, err)
	_, err = NewManager(&config.Config{QueueRedisURL: "redis://127.0.0.1:6379/0"}, &stubReloader{}, nil, nil, nil)
	require.Error(t, err)
	_, err = NewManager(&config.Config{QueueRedisURL: "::not a url::"}, &stubReloader{}, store, nil, nil)
	require.Error(t, err)
}

func TestEnqueueCreatesQueuedRecord(t *testing.T) {
	manager, _ := newTestManager(t, &stubReloader{}, nil)
	ctx := context.Background()

	reloadID, err := manager.Enqueue(ctx, TriggerAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, reloadID)

	record, err := manager.GetRecord(ctx, reloadID)
	require.NoError(t, err)
	require.Equal(t, reloadID, record.ReloadID)
	require.Equal(t, StatusQueued, record.Status)
	require.Equal(t, TriggerAdmin, record.Trigger)

	other, err := manager.Enqueue(ctx, TriggerAdmin)
	require.NoError(t, err)
	require.NotEqual(t, reloadID, other)
}

func TestRegisterSchedule(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "every", spec: "@every 5m"},
		{name: "cron", spec: "*/10 * * * *"},
		{name: "invalid", spec: "not a cron", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, _ := newTestManager(t, &stubReloader{}, nil)
			err := manager.RegisterSchedule(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, manager.scheduler)
		})
	}
}

func TestScheduleOptionsAreUnique(t *testing.T) {
	types := make(map[asynq.OptionType]any)
	for _, opt := range scheduleOptions() {
		types[opt.Type()] = opt.Value()
	}
	require.Equal(t, queueName, types[asynq.QueueOpt])
	require.Equal(t, 0, types[asynq.MaxRetryOpt])
	require.Contains(t, types, asynq.UniqueOpt)
	require.Equal(t, taskTimeout, types[asynq.UniqueOpt])
}

func TestHandleReloadTaskSuccess(t *testing.T) {
	reloader := &stubReloader{result: credentials.LoadResult{Count: 2, Skipped: 1}}
	manager, store := newTestManager(t, reloader, func(rdb *redis.Client) *Broadcaster {
		return NewBroadcaster(rdb, "credentials:reload", "instance-a", nil)
	})
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &Record{ReloadID: "r1", Trigger: TriggerAdmin, Status: StatusQueued}))
	require.NoError(t, manager.handleReloadTask(ctx, reloadTask(t, TaskPayload{ReloadID: "r1", Trigger: TriggerAdmin})))
	require.Equal(t, 1, reloader.calls)

	record, err := manager.GetRecord(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, record.Status)
	require.Equal(t, 2, record.CredentialsCount)
	require.Equal(t, 1, record.SkippedLines)
	require.Equal(t, "instance-a", record.Instance)
}

func TestHandleReloadTaskScheduled(t *testing.T) {
	reloader := &stubReloader{result: credentials.LoadResult{Count: 5}}
	manager, _ := newTestManager(t, reloader, nil)

	require.NoError(t, manager.handleReloadTask(context.Background(), reloadTask(t, TaskPayload{Trigger: TriggerSchedule})))
	require.Equal(t, 1, reloader.calls)
}

func TestHandleReloadTaskFailure(t *testing.T) {
	reloader := &stubReloader{err: errors.New("file vanished")}
	manager, store := newTestManager(t, reloader, nil)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &Record{ReloadID: "r1", Status: StatusQueued}))
	err := manager.handleReloadTask(ctx, reloadTask(t, TaskPayload{ReloadID: "r1", Trigger: TriggerAdmin}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	record, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, record.Status)
	require.Equal(t, "RELOAD_FAILED", record.Error.Code)
	require.Contains(t, record.Error.Message, "file vanished")
}

func TestHandleReloadTaskInvalidPayload(t *testing.T) {
	manager, _ := newTestManager(t, &stubReloader{}, nil)

	err := manager.handleReloadTask(context.Background(), asynq.NewTask(TaskTypeReload, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
