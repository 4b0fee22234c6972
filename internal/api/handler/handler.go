package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/vertex-tips/internal/service"
	"github.com/d60-Lab/vertex-tips/pkg/response"
)

// Handler 聚合全部 HTTP 处理函数
type Handler struct {
	auth          service.AuthService
	predictions   service.PredictionService
	notifications service.NotificationService
	users         service.UserService
}

func New(auth service.AuthService, predictions service.PredictionService, notifications service.NotificationService, users service.UserService) *Handler {
	return &Handler{auth: auth, predictions: predictions, notifications: notifications, users: users}
}

// fail 统一把服务层错误映射为状态码
func (h *Handler) fail(c *gin.Context, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		response.BadRequest(c, ve.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrLoginThrottled):
		response.TooManyRequests(c, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrAlreadyFollowing):
		// 重复关注沿用 400，错误类别标记为冲突
		response.Fail(c, http.StatusBadRequest, response.KindConflict, err.Error())
	case errors.Is(err, service.ErrTerminalStatus):
		response.Conflict(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// paramID 解析路径中的正整数 ID，失败时已写入 400
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}
