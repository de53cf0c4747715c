package api

import (
	"Campus/internal/api/middleware"
	"Campus/internal/pkg/consts"
	"Campus/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware(group.AllowOrigins))
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		commGroup := apiGroup.Group("/comm")
		{
			// 外部通道回调：共享密钥，不走 JWT
			webhookGroup := commGroup.Group("/webhook")
			webhookGroup.Use(middleware.WebhookSecretMiddleware(group.WebhookSecret))
			{
				webhookGroup.POST("/inbound", group.WebhookHandler.Inbound)
				webhookGroup.POST("/receipt", group.WebhookHandler.Receipt)
			}

			// 需要登录 & 可查看通讯记录
			viewGroup := commGroup.Group("")
			viewGroup.Use(middleware.AuthMiddleware(), middleware.CheckRoles(consts.RoleAdmin, consts.RoleCommView))
			{
				viewGroup.GET("/ws", group.WSHandler.Connect)
				viewGroup.GET("/search", group.CommHandler.Search)
				viewGroup.GET("/conversations", group.CommHandler.ListConversations)
				viewGroup.GET("/conversations/unread", group.CommHandler.GetTotalUnread)
				viewGroup.GET("/conversations/:id", group.CommHandler.GetConversation)
				viewGroup.GET("/conversations/:id/messages", group.CommHandler.ListMessages)
				viewGroup.GET("/conversations/:id/sync", group.CommHandler.SyncMessages)
			}

			// 需要发送权限
			sendGroup := viewGroup.Group("")
			sendGroup.Use(middleware.CheckRoles(consts.RoleAdmin, consts.RoleCommSend))
			{
				sendGroup.POST("/conversations/:id/open", group.CommHandler.OpenConversation)
				sendGroup.POST("/conversations/:id/messages", group.CommHandler.SendMessage)
			}

			// 停用 / 启用仅管理员
			adminGroup := viewGroup.Group("")
			adminGroup.Use(middleware.CheckRoles(consts.RoleAdmin))
			{
				adminGroup.PUT("/conversations/:id/active", group.CommHandler.SetActive)
			}

			noticeGroup := commGroup.Group("/notices")
			noticeGroup.Use(middleware.AuthMiddleware())
			{
				noticeGroup.GET("/list", group.NoticeHandler.GetNoticeList)
				noticeGroup.GET("/unread", group.NoticeHandler.GetUnreadCount)
				noticeGroup.POST("/read", group.NoticeHandler.MarkRead)
				noticeGroup.POST("/read/all", group.NoticeHandler.MarkAllRead)
			}
		}
	}

	return r
}
