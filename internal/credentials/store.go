package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/login-gate/internal/logging"
)

// ErrUnavailable は資格情報が読み込まれていない状態で参照された場合のエラーです。
var ErrUnavailable = errors.New("credential store unavailable")

var errClosed = fmt.Errorf("%w: store closed", ErrUnavailable)

const reloadKey = "reload"

// State はストアのライフサイクル状態です。
type State int32

const (
	StateNew State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LoadResult は1回の読み込み結果です。
type LoadResult struct {
	Count    int           `json:"credentialsCount"`
	Skipped  int           `json:"skippedLines"`
	Duration time.Duration `json:"-"`
}

type snapshot struct {
	creds    map[string]string
	loadedAt time.Time
}

// Store はプロセス内で共有する資格情報ストアです。
// 読み込み済みのマップは変更せず、再読み込み時は参照ごと差し替えます。
type Store struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[snapshot]
	state   atomic.Int32
	group   singleflight.Group
}

// NewStore は path を読み込み元とする Store を作成します。ファイルはまだ読みません。
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   path,
		logger: logger.With(zap.String("credentials_file", path)),
	}
}

// Path は読み込み元のファイルパスを返します。
func (s *Store) Path() string {
	return s.path
}

// State は現在のライフサイクル状態を返します。
func (s *Store) State() State {
	return State(s.state.Load())
}

// Load は起動時の初回読み込みを行います。
//
// 読み込みに失敗してもプロセスは止めず、空のストアを設定して StateReady に遷移します。
// その場合 Lookup は ErrUnavailable を返します。返されるエラーは報告用です。
func (s *Store) Load() (LoadResult, error) {
	if s.State() == StateClosed {
		return LoadResult{}, errClosed
	}
	res, err := s.read()
	if err != nil {
		s.current.Store(&snapshot{creds: map[string]string{}, loadedAt: time.Now()})
	}
	s.state.CompareAndSwap(int32(StateNew), int32(StateReady))
	return res, err
}

// Reload はファイルを再読み込みし、成功した場合のみストアを差し替えます。
// 失敗時は直前の内容を保持します。同時に呼ばれた場合は1回の読み込みにまとめます。
func (s *Store) Reload(ctx context.Context) (LoadResult, error) {
	if s.State() == StateClosed {
		return LoadResult{}, errClosed
	}

	ch := s.group.DoChan(reloadKey, func() (any, error) {
		return s.read()
	})
	select {
	case <-ctx.Done():
		return LoadResult{}, ctx.Err()
	case r := <-ch:
		res, _ := r.Val.(LoadResult)
		if r.Err == nil {
			s.state.CompareAndSwap(int32(StateNew), int32(StateReady))
		}
		return res, r.Err
	}
}

// read はファイルを読み込み、成功した場合にストアを差し替えます。
func (s *Store) read() (LoadResult, error) {
	start := time.Now()
	creds, stats, err := LoadFile(s.path)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, fs.ErrNotExist) {
			reason = "credentials_file_not_found"
		}
		s.logger.Error("failed to load credentials",
			logging.Event("credentials_load_error"),
			zap.String("error", reason),
		)
		return LoadResult{}, err
	}

	for _, line := range stats.Malformed {
		s.logger.Warn("skipped malformed credentials line",
			logging.Event("credentials_line_skipped"),
			zap.Int("line", line),
		)
	}

	if s.State() == StateClosed {
		return LoadResult{}, errClosed
	}
	s.current.Store(&snapshot{creds: creds, loadedAt: time.Now()})

	res := LoadResult{
		Count:    len(creds),
		Skipped:  len(stats.Malformed),
		Duration: time.Since(start),
	}
	s.logger.Info("credentials loaded",
		logging.Event("credentials_loaded"),
		zap.Int("credentials_count", res.Count),
		zap.Int("skipped_lines", res.Skipped),
		logging.DurationMS("load_duration_ms", res.Duration),
	)
	return res, nil
}

func (s *Store) loaded() (*snapshot, error) {
	if s.State() == StateClosed {
		return nil, errClosed
	}
	snap := s.current.Load()
	if snap == nil || len(snap.creds) == 0 {
		return nil, ErrUnavailable
	}
	return snap, nil
}

// Lookup はユーザー名に対応するパスワードを返します。
// ストアが空・未読み込み・クローズ済みの場合は ErrUnavailable を返します。
func (s *Store) Lookup(username string) (string, bool, error) {
	snap, err := s.loaded()
	if err != nil {
		return "", false, err
	}
	password, ok := snap.creds[username]
	return password, ok, nil
}

// Exists はユーザー名が登録されているかを返します。
func (s *Store) Exists(username string) (bool, error) {
	_, found, err := s.Lookup(username)
	return found, err
}

// Len は現在の登録件数を返します。
func (s *Store) Len() int {
	snap := s.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.creds)
}

// LoadedAt は現在の内容を読み込んだ時刻を返します。未読み込みの場合はゼロ値です。
func (s *Store) LoadedAt() time.Time {
	snap := s.current.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.loadedAt
}

// Close はストアを破棄し、以降の参照を ErrUnavailable にします。
func (s *Store) Close() {
	s.state.Store(int32(StateClosed))
	s.current.Store(nil)
}
