package reload

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Enqueuer は再読み込みを非同期キューに投入します。
type Enqueuer interface {
	Enqueue(ctx context.Context, trigger Trigger) (string, error)
}

// RecordGetter は再読み込みの記録を取得します。
type RecordGetter interface {
	GetRecord(ctx context.Context, reloadID string) (*Record, error)
}

// Handler は POST /admin/reload のハンドラーを返します。
// enqueuer が nil の場合はその場で再読み込みし、結果を返します。
func Handler(reloader Reloader, enqueuer Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if enqueuer != nil {
			reloadID, err := enqueuer.Enqueue(c.Request.Context(), TriggerAdmin)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":    "RELOAD_FAILED",
					"message": "再読み込みジョブの登録に失敗しました。",
				})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"reloadId": reloadID})
			return
		}

		result, err := reloader.Reload(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "RELOAD_FAILED",
				"message": "資格情報ファイルの再読み込みに失敗しました。",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           StatusSucceeded,
			"credentialsCount": result.Count,
			"skippedLines":     result.Skipped,
		})
	}
}

// StatusHandler は GET /admin/reload/:id のハンドラーを返します。
func StatusHandler(records RecordGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		reloadID := c.Param("id")
		if strings.TrimSpace(reloadID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "reloadId を指定してください。",
			})
			return
		}

		record, err := records.GetRecord(c.Request.Context(), reloadID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "再読み込み情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "RELOAD_NOT_FOUND",
				"message": "指定された再読み込みは存在しません。",
			})
			return
		}

		c.JSON(http.StatusOK, record)
	}
}
