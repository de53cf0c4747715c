package handler

import (
	"Campus/internal/api/middleware"
	"Campus/internal/pkg/redis"
	"Campus/internal/pkg/response"
	"Campus/internal/service"
	log "log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WsHandler 将分校频道上的变更事件转推给浏览器，轮询仍是兜底
type WsHandler struct{}

func NewWsHandler() *WsHandler {
	return &WsHandler{}
}

func (s *WsHandler) Connect(c *gin.Context) {
	branchID, _ := strconv.ParseUint(c.Query("branch_id"), 10, 64)
	if branchID == 0 {
		response.Error(c, service.ErrBranchRequired)
		return
	}
	if !allowBranch(c, branchID) {
		return
	}
	userID := c.GetUint64(middleware.CtxUserID)

	// 升级 Websocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx := c.Request.Context()
	channel := service.BranchChannel(branchID)
	pubsub := redis.Subscribe(ctx, channel)
	defer func() {
		_ = pubsub.Close()
	}()

	log.InfoContext(ctx, "用户 WS 连接已建立", "userID", userID, "channel", channel)

	stopChan := make(chan struct{})

	// 读循环：监听客户端主动断开与心跳
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(stopChan)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	// 写循环：监听 Redis 并推送至客户端
	redisCh := pubsub.Channel()
	for {
		select {
		case msg, ok := <-redisCh:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.WarnContext(ctx, "WS 推送失败", "userID", userID, "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stopChan:
			log.InfoContext(ctx, "用户 WS 连接已断开", "userID", userID)
			return
		}
	}
}
