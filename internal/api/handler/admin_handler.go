package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/vertex-tips/pkg/response"
)

type roleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

// AdminListPredictions 管理端预测列表
// @Summary 管理端预测列表
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]model.Prediction}
// @Router /api/admin/predictions [get]
func (h *Handler) AdminListPredictions(c *gin.Context) {
	list, err := h.predictions.ListForAdmin(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, list)
}

// ListUsers 用户列表
// @Summary 用户列表
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]model.User}
// @Router /api/admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, users)
}

// SetRole 修改用户角色
// @Summary 修改用户角色
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Param request body roleRequest true "角色"
// @Success 200 {object} response.Response{data=model.User}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/admin/users/{id} [patch]
func (h *Handler) SetRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	u, err := h.users.SetRole(c.Request.Context(), id, req.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, u)
}
