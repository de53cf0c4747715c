package job

import (
	"Campus/internal/pkg/consts"
	"Campus/internal/pkg/logger"
	"Campus/internal/pkg/redis"
	"Campus/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	repairBatch   = 500
	repairTimeout = 5 * time.Minute
)

// ConversationRepairJob 定期以消息明细为准校准会话缓存字段 (未读数、最后一条消息、总数)
type ConversationRepairJob struct {
	commSvc service.CommService
	window  time.Duration
}

func NewConversationRepairJob(commSvc service.CommService, windowMinutes int) *ConversationRepairJob {
	window := time.Duration(windowMinutes) * time.Minute
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &ConversationRepairJob{
		commSvc: commSvc,
		window:  window,
	}
}

func (s *ConversationRepairJob) Run() {
	traceID := "job-comm-repair-" + uuid.NewString()
	ctx, cancel := context.WithTimeout(logger.WithTraceID(context.Background(), traceID), repairTimeout)
	defer cancel()

	// 多实例部署时只允许一个实例执行
	token := uuid.NewString()
	ok, err := redis.TryLock(ctx, consts.CommRepairLock, token, repairTimeout, 1)
	if err != nil {
		log.ErrorContext(ctx, "acquire repair lock error", "err", err)
		return
	}
	if !ok {
		log.InfoContext(ctx, "repair job skipped, lock held elsewhere")
		return
	}
	defer func() {
		if err := redis.UnLock(context.Background(), consts.CommRepairLock, token); err != nil {
			log.WarnContext(ctx, "release repair lock error", "err", err)
		}
	}()

	since := time.Now().Add(-s.window)
	n, err := s.commSvc.RepairRecent(ctx, since, repairBatch)
	if err != nil {
		log.ErrorContext(ctx, "conversation repair error", "repaired", n, "err", err)
		return
	}
	log.InfoContext(ctx, "conversation repair success", "repaired", n, "since", since)
}
