package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/login-gate/internal/credentials"
	"github.com/yourusername/login-gate/internal/logging"
)

const (
	loginSuccessMessage       = "login success"
	invalidCredentialsMessage = "Invalid credentials"
)

// CredentialChecker はログイン判定とユーザー存在確認を提供します。
type CredentialChecker interface {
	Validate(username, password string) (credentials.Outcome, error)
	Exists(username string) (bool, error)
}

// Manager はログイン関連のHTTPハンドラーをまとめた構造体です。
type Manager struct {
	checker CredentialChecker
	logger  *zap.Logger
}

// NewManager は認証マネージャーを作成します。
func NewManager(checker CredentialChecker, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		checker: checker,
		logger:  logger,
	}
}

// loginRequest のフィールドは省略と空文字を区別するためポインタで受ける。
type loginRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

// Login は POST /login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	start := time.Now()
	logger := logging.FromContext(c, m.logger)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == nil || req.Password == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username と password を JSON で送ってください",
		})
		return
	}
	username, password := *req.Username, *req.Password

	logger.Info("login request received",
		logging.Event("login_request_received"),
		zap.String("username", username),
	)

	outcome, err := m.checker.Validate(username, password)
	fields := []zap.Field{
		logging.Event("login_result"),
		zap.String("username", username),
		zap.String("outcome", outcome.String()),
		logging.DurationMS("duration_ms", time.Since(start)),
	}

	switch outcome {
	case credentials.OutcomeAccepted:
		logger.Info("login succeeded", fields...)
		c.JSON(http.StatusOK, gin.H{"message": loginSuccessMessage})
	case credentials.OutcomeRejected:
		// 認証失敗は業務上の結果なので error レベルでは記録しない
		logger.Info("login rejected", fields...)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "INVALID_CREDENTIALS",
			"message": invalidCredentialsMessage,
		})
	case credentials.OutcomeUnavailable:
		logger.Error("login failed: credential store unavailable", append(fields, zap.Error(err))...)
		respondUnavailable(c)
	default:
		logger.Error("login failed", append(fields, zap.Error(err))...)
		respondInternalError(c)
	}
}

func respondUnavailable(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "STORE_UNAVAILABLE",
		"message": "Credential store unavailable",
	})
}

func respondInternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "Internal server error",
	})
}
