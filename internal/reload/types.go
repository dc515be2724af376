// Package reload は資格情報ストアの再読み込みをクラスタ全体へ配信します。
//
// 再読み込みは Asynq のタスクとして実行され、結果は Redis に記録されます。
// タスクを処理したインスタンスは Redis Pub/Sub で他のインスタンスへ通知します。
package reload

import "time"

// Status は再読み込みの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// Trigger は再読み込みの起点を表します。
type Trigger string

const (
	TriggerAdmin    Trigger = "admin"
	TriggerSchedule Trigger = "schedule"
	TriggerSignal   Trigger = "signal"
	TriggerPeer     Trigger = "peer"
)

// ErrorInfo は失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は再読み込み1回分の状態を表します。
type Record struct {
	ReloadID         string     `json:"reloadId"`
	Trigger          Trigger    `json:"trigger"`
	Instance         string     `json:"instance,omitempty"`
	Status           Status     `json:"status"`
	CredentialsCount int        `json:"credentialsCount"`
	SkippedLines     int        `json:"skippedLines"`
	Error            *ErrorInfo `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
}
