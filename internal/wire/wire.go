package wire

import (
	"Campus/internal/api"
	"Campus/internal/api/config"
	"Campus/internal/api/handler"
	"Campus/internal/job"
	"Campus/internal/pkg/cron"
	"Campus/internal/pkg/es"
	"Campus/internal/pkg/kafka"
	"Campus/internal/pkg/mongo"
	"Campus/internal/pkg/whatsapp"
	"Campus/internal/repository"
	"Campus/internal/service"

	"github.com/gin-gonic/gin"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager
	CommService  service.CommService
}

func BuildApplication(db *gorm.DB, mongoDatabase *mongoDB.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	msgRepo := repository.NewMessageRepo(db)
	noticeRepo := mongo.NewNoticeRepo(mongoDatabase)
	var searchRepo es.MessageRepo
	if es.Client != nil {
		searchRepo = es.NewMessageRepo(es.Client)
	}

	sender := whatsapp.NewClient(cfg.WhatsApp)
	dispatcher := service.NewDeliveryDispatcher(sender, msgRepo, cfg.Comm)

	noticeService := service.NewNoticeService(noticeRepo)
	commService := service.NewCommService(convRepo, msgRepo, searchRepo, dispatcher, noticeService, cfg.Comm)

	handlers := &api.HandlersGroup{
		CommHandler:    handler.NewCommHandler(commService),
		WebhookHandler: handler.NewWebhookHandler(commService),
		NoticeHandler:  handler.NewNoticeHandler(noticeService),
		WSHandler:      handler.NewWsHandler(),
		WebhookSecret:  cfg.WhatsApp.WebhookSecret,
		AllowOrigins:   cfg.Server.AllowOrigins,
	}

	router := api.SetupRouter(handlers)

	kafkaMgr, err := kafka.NewConsumerManager(cfg, commService)
	if err != nil {
		commService.Close()
		return nil, err
	}

	repairJob := job.NewConversationRepairJob(commService, cfg.Comm.RepairWindow)
	cronMgr := cron.NewCronManager(repairJob, cfg.Comm.RepairSpec)

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
		CommService:  commService,
	}, nil
}
