// Package auth はログインAPIとその周辺のHTTPハンドラーを提供します。
package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/login-gate/internal/credentials"
	"github.com/yourusername/login-gate/internal/logging"
)

const (
	welcomeMessage = "Welcome to the login API. Use POST /login to authenticate."

	// パスワードリセットはプレースホルダーで、実際の変更は行わない。
	passwordResetDetail = "password reset is not implemented; no changes were made"
)

// Root は GET / のハンドラーです。
func (m *Manager) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": welcomeMessage})
}

type passwordResetRequest struct {
	Username *string `json:"username"`
}

// PasswordReset は POST /password-reset のハンドラーです。
//
// ユーザー名の存在だけを確認して success / fail を返します。パスワードは変更しません。
func (m *Manager) PasswordReset(c *gin.Context) {
	logger := logging.FromContext(c, m.logger)

	var req passwordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username を JSON で送ってください",
		})
		return
	}
	username := *req.Username

	found, err := m.checker.Exists(username)
	if err != nil {
		logger.Error("password reset lookup failed",
			logging.Event("password_reset_requested"),
			zap.String("username", username),
			zap.Error(err),
		)
		if errors.Is(err, credentials.ErrUnavailable) {
			respondUnavailable(c)
			return
		}
		respondInternalError(c)
		return
	}

	logger.Info("password reset requested",
		logging.Event("password_reset_requested"),
		zap.String("username", username),
		zap.Bool("found", found),
	)

	message := "fail"
	if found {
		message = "success"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  message,
		"username": username,
		"detail":   passwordResetDetail,
	})
}
