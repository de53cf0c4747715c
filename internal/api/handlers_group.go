package api

import "Campus/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	CommHandler    *handler.CommHandler
	WebhookHandler *handler.WebhookHandler
	NoticeHandler  *handler.NoticeHandler
	WSHandler      *handler.WsHandler
	WebhookSecret  string
	AllowOrigins   []string
}
