package handler

import (
	"Campus/internal/api/dto"
	"Campus/internal/api/middleware"
	"Campus/internal/pkg/response"
	"Campus/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type NoticeHandler struct {
	noticeService service.NoticeService
}

func NewNoticeHandler(s service.NoticeService) *NoticeHandler {
	return &NoticeHandler{
		noticeService: s,
	}
}

// GetNoticeList 获取提醒列表
func (h *NoticeHandler) GetNoticeList(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	userID := c.GetUint64(middleware.CtxUserID)

	list, err := h.noticeService.GetNoticeList(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, list)
}

// GetUnreadCount 获取未读数
func (h *NoticeHandler) GetUnreadCount(c *gin.Context) {
	userID := c.GetUint64(middleware.CtxUserID)

	unread, err := h.noticeService.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, unread)
}

// MarkRead 标记单条已读
func (h *NoticeHandler) MarkRead(c *gin.Context) {
	var req dto.NoticeReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64(middleware.CtxUserID)
	if err := h.noticeService.MarkRead(c.Request.Context(), userID, req.NoticeID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// MarkAllRead 一键已读
func (h *NoticeHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetUint64(middleware.CtxUserID)
	if err := h.noticeService.MarkAllRead(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}
