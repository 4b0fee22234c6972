package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health 健康检查，不走统一响应结构
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "message": "Server is running"})
}
