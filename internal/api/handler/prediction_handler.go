package handler

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/internal/service"
	"github.com/d60-Lab/vertex-tips/pkg/middleware"
	"github.com/d60-Lab/vertex-tips/pkg/response"
)

// createPredictionRequest odds 可以是数字或字符串；兼容旧字段名
type createPredictionRequest struct {
	Match       string `json:"match"`
	MatchName   string `json:"match_name"`
	Sport       string `json:"sport"`
	Odds        any    `json:"odds" swaggertype:"string"`
	Date        string `json:"date"`
	EventDate   string `json:"event_date"`
	Tipster     string `json:"tipster"`
	TipsterName string `json:"tipster_name"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func oddsString(v any) string {
	switch o := v.(type) {
	case string:
		return o
	case float64:
		return strconv.FormatFloat(o, 'f', -1, 64)
	case json.Number:
		return o.String()
	default:
		return ""
	}
}

func (r createPredictionRequest) input() service.CreatePredictionInput {
	return service.CreatePredictionInput{
		Match:   firstNonEmpty(r.Match, r.MatchName),
		Sport:   r.Sport,
		Odds:    oddsString(r.Odds),
		Date:    firstNonEmpty(r.Date, r.EventDate),
		Tipster: firstNonEmpty(r.Tipster, r.TipsterName),
	}
}

type followRequest struct {
	PredictionID uint `json:"predictionId" binding:"required"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// allPrediction /predictions/all 使用 isFollowed 字段名
type allPrediction struct {
	model.Prediction
	IsFollowed bool `json:"isFollowed"`
}

// ListUpcoming 未开赛的预测
// @Summary 预测列表（仅未来赛事）
// @Tags 预测
// @Produce json
// @Param userId query int false "用户ID，用于标记是否已关注"
// @Success 200 {object} response.Response{data=[]model.PredictionView}
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/predictions [get]
func (h *Handler) ListUpcoming(c *gin.Context) {
	var userID uint
	if raw := c.Query("userId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "userId must be a positive integer")
			return
		}
		userID = uint(id)
	}
	list, err := h.predictions.ListUpcoming(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, list)
}

// GetPrediction 单条预测
// @Summary 预测详情
// @Tags 预测
// @Produce json
// @Param id path int true "预测ID"
// @Success 200 {object} response.Response{data=model.Prediction}
// @Failure 404 {object} response.Response
// @Router /api/predictions/{id} [get]
func (h *Handler) GetPrediction(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.predictions.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, p)
}

// CreatePrediction 创建预测（管理员）
// @Summary 创建预测
// @Tags 预测
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createPredictionRequest true "预测信息"
// @Success 201 {object} response.Response{data=model.Prediction}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /api/predictions/create [post]
func (h *Handler) CreatePrediction(c *gin.Context) {
	var req createPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	p, err := h.predictions.Create(c.Request.Context(), req.input(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, p)
}

// Follow 关注预测
// @Summary 关注预测
// @Tags 预测
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body followRequest true "预测ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/predictions/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	if err := h.predictions.Follow(c.Request.Context(), middleware.UserID(c), req.PredictionID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"predictionId": req.PredictionID, "followed": true})
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 预测
// @Produce json
// @Security BearerAuth
// @Param id path int true "预测ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/predictions/{id}/follow [delete]
func (h *Handler) Unfollow(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.predictions.Unfollow(c.Request.Context(), middleware.UserID(c), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"predictionId": id, "followed": false})
}

// ListFollowed 已关注的预测
// @Summary 我关注的预测
// @Tags 预测
// @Produce json
// @Security BearerAuth
// @Param status query string false "all, pending, won, lost"
// @Success 200 {object} response.Response{data=[]model.FollowedPrediction}
// @Failure 400 {object} response.Response
// @Router /api/predictions/followed [get]
func (h *Handler) ListFollowed(c *gin.Context) {
	list, err := h.predictions.ListFollowed(c.Request.Context(), middleware.UserID(c), c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, list)
}

// ListAll 全部预测，附带关注状态
// @Summary 全部预测
// @Tags 预测
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]allPrediction}
// @Router /api/predictions/all [get]
func (h *Handler) ListAll(c *gin.Context) {
	views, err := h.predictions.ListAll(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]allPrediction, len(views))
	for i, v := range views {
		out[i] = allPrediction{Prediction: v.Prediction, IsFollowed: v.IsFollowed}
	}
	response.Success(c, out)
}

// Latest 最新创建的 10 条预测（管理员）
// @Summary 最新预测
// @Tags 预测
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]model.Prediction}
// @Router /api/predictions/latest [get]
func (h *Handler) Latest(c *gin.Context) {
	list, err := h.predictions.Latest(c.Request.Context(), 10)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, list)
}

// SetStatus 结算预测（管理员）
// @Summary 更新预测状态
// @Description 只允许 pending -> won/lost，终态再次修改返回 409
// @Tags 预测
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "预测ID"
// @Param request body statusRequest true "状态"
// @Success 200 {object} response.Response{data=model.Prediction}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/predictions/{id}/status [patch]
func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	p, err := h.predictions.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, p)
}

// ROI 收益汇总
// @Summary 用户 ROI
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.ROISummary}
// @Router /api/user/roi [get]
func (h *Handler) ROI(c *gin.Context) {
	summary, err := h.predictions.ROI(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, summary)
}
