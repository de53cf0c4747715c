package cron

import (
	"Campus/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

const defaultRepairSpec = "@every 10m"

type Manager struct {
	engine     *cron.Cron
	repairJob  *job.ConversationRepairJob
	repairSpec string
}

func NewCronManager(repairJob *job.ConversationRepairJob, repairSpec string) *Manager {
	if repairSpec == "" {
		repairSpec = defaultRepairSpec
	}
	return &Manager{
		engine:     cron.New(cron.WithSeconds()),
		repairJob:  repairJob,
		repairSpec: repairSpec,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.repairSpec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(s.repairJob)); err != nil {
		return err
	}
	return nil
}

// Run 注册任务并启动引擎，返回后任务在后台调度
func (s *Manager) Run() error {
	if err := s.RegisterJobs(); err != nil {
		return err
	}
	log.Info("Cron 定时任务引擎启动", "repair_spec", s.repairSpec)
	s.engine.Start()
	return nil
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
