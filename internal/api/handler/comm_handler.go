package handler

import (
	"Campus/internal/api/dto"
	"Campus/internal/api/middleware"
	"Campus/internal/pkg/response"
	"Campus/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type CommHandler struct {
	commService service.CommService
}

func NewCommHandler(commService service.CommService) *CommHandler {
	return &CommHandler{commService: commService}
}

// ListConversations 会话列表
func (h *CommHandler) ListConversations(c *gin.Context) {
	var q dto.ConversationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if !allowBranch(c, q.BranchID) {
		return
	}

	res, err := h.commService.ListConversations(c.Request.Context(), &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetConversation 单个会话
func (h *CommHandler) GetConversation(c *gin.Context) {
	convID, ok := parseConvID(c)
	if !ok {
		return
	}
	var q dto.BranchReq
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if !allowBranch(c, q.BranchID) {
		return
	}

	res, err := h.commService.GetConversation(c.Request.Context(), q.BranchID, convID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetTotalUnread 未读总数
func (h *CommHandler) GetTotalUnread(c *gin.Context) {
	var q dto.BranchReq
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if !allowBranch(c, q.BranchID) {
		return
	}

	res, err := h.commService.GetTotalUnread(c.Request.Context(), q.BranchID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ListMessages 历史消息
func (h *CommHandler) ListMessages(c *gin.Context) {
	convID, ok := parseConvID(c)
	if !ok {
		return
	}
	var q dto.MessageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if !allowBranch(c, q.BranchID) {
		return
	}
	q.ConversationID = convID

	res, err := h.commService.ListMessages(c.Request.Context(), &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SyncMessages 增量同步
func (h *CommHandler) SyncMessages(c *gin.Context) {
	convID, ok := parseConvID(c)
	if !ok {
		return
	}
	var q dto.SyncQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if !allowBranch(c, q.BranchID) {
		return
	}
	q.ConversationID = convID

	res, err := h.commService.SyncMessages(c.Request.Context(), &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// OpenConversation 打开会话
func (h *CommHandler) OpenConversation(c *gin.Context) {
	convID, ok := parseConvID(c)
	if !ok {
		return
	}
	var req dto.BranchReq
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if !allowBranch(c, req.BranchID) {
		return
	}

	res, err := h.commService.OpenConversation(c.Request.Context(), req.BranchID, convID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SendMessage 发送消息
func (h *CommHandler) SendMessage(c *gin.Context) {
	convID, ok := parseConvID(c)
	if !ok {
		return
	}
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if !allowBranch(c, req.BranchID) {
		return
	}

	senderID := c.GetUint64(middleware.CtxUserID)
	res, err := h.commService.SendMessage(c.Request.Context(), senderID, convID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SetActive 停用 / 启用会话
func (h *CommHandler) SetActive(c *gin.Context) {
	convID, ok := parseConvID(c)
	if !ok {
		return
	}
	var req dto.SetActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if !allowBranch(c, req.BranchID) {
		return
	}

	res, err := h.commService.SetActive(c.Request.Context(), convID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Search 消息检索
func (h *CommHandler) Search(c *gin.Context) {
	branchID, _ := strconv.ParseUint(c.Query("branch_id"), 10, 64)
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if branchID == 0 {
		response.Error(c, service.ErrBranchRequired)
		return
	}
	if !allowBranch(c, branchID) {
		return
	}

	res, err := h.commService.SearchMessages(c.Request.Context(), branchID, c.Query("q"), size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
