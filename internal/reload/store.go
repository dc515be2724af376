package reload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/login-gate/internal/credentials"
)

const (
	recordKeyPrefix  = "reload:"
	maxUpdateRetries = 5
)

// ErrRecordNotFound は指定IDの記録が存在しない（期限切れを含む）場合のエラーです。
var ErrRecordNotFound = errors.New("reload record not found")

// Store は再読み込みの記録を Redis に保存します。資格情報そのものは保存しません。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get は記録を取得します。存在しない場合は nil, nil を返します。
func (s *Store) Get(ctx context.Context, reloadID string) (*Record, error) {
	if reloadID == "" {
		return nil, fmt.Errorf("reloadID is required")
	}
	data, err := s.rdb.Get(ctx, recordKey(reloadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert は記録を保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.ReloadID == "" {
		return fmt.Errorf("record.ReloadID is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, recordKey(record.ReloadID), payload, s.ttl).Err()
}

// MarkRunning は実行開始を記録します。
func (s *Store) MarkRunning(ctx context.Context, reloadID, instance string) error {
	return s.updatePartial(ctx, reloadID, func(record *Record) {
		record.Status = StatusRunning
		record.Instance = instance
	})
}

// MarkDone は完了時の件数を記録します。
func (s *Store) MarkDone(ctx context.Context, reloadID string, result credentials.LoadResult) error {
	return s.updatePartial(ctx, reloadID, func(record *Record) {
		record.Status = StatusSucceeded
		record.CredentialsCount = result.Count
		record.SkippedLines = result.Skipped
		record.Error = nil
	})
}

// MarkFailed は失敗時の情報を記録します。
func (s *Store) MarkFailed(ctx context.Context, reloadID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, reloadID, func(record *Record) {
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

// updatePartial は WATCH による楽観ロックで記録を更新します。
func (s *Store) updatePartial(ctx context.Context, reloadID string, mutate func(*Record)) error {
	key := recordKey(reloadID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrRecordNotFound, reloadID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		mutate(&record)
		record.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("reload record %s: too many concurrent updates", reloadID)
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}
