package handler

import (
	"Campus/internal/api/dto"
	"Campus/internal/pkg/response"
	"Campus/internal/service"

	"github.com/gin-gonic/gin"
)

// WebhookHandler 外部通道直接推送的入站消息与回执
type WebhookHandler struct {
	commService service.CommService
}

func NewWebhookHandler(commService service.CommService) *WebhookHandler {
	return &WebhookHandler{commService: commService}
}

func (h *WebhookHandler) Inbound(c *gin.Context) {
	var req dto.InboundMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := h.commService.ReceiveIncoming(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (h *WebhookHandler) Receipt(c *gin.Context) {
	var req dto.DeliveryReceiptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	if err := h.commService.ApplyReceipt(c.Request.Context(), &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
