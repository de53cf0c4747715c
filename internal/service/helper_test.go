package service

import (
	"Campus/internal/api/config"
	"Campus/internal/pkg/database"
	"Campus/internal/pkg/es"
	"Campus/internal/pkg/mongo"
	"Campus/internal/pkg/redis"
	"Campus/internal/pkg/whatsapp"
	"Campus/internal/repository"
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []*whatsapp.OutboundMessage
	errs  []error // 依次返回，用尽后成功
	calls int
}

func (f *fakeSender) Send(_ context.Context, msg *whatsapp.OutboundMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	f.sent = append(f.sent, msg)
	return "wamid." + strconv.Itoa(f.calls), nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNoticeRepo struct {
	mu      sync.Mutex
	notices []*mongo.NoticeModel
}

func (f *fakeNoticeRepo) CreateNotice(_ context.Context, n *mongo.NoticeModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = primitive.NewObjectID()
	f.notices = append(f.notices, n)
	return nil
}

func (f *fakeNoticeRepo) GetNoticeList(_ context.Context, receiverID uint64, limit, offset int64) ([]*mongo.NoticeModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*mongo.NoticeModel
	for _, n := range f.notices {
		if n.ReceiverID == receiverID {
			res = append(res, n)
		}
	}
	if offset >= int64(len(res)) {
		return nil, nil
	}
	res = res[offset:]
	if int64(len(res)) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (f *fakeNoticeRepo) GetByID(_ context.Context, id primitive.ObjectID) (*mongo.NoticeModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notices {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, mongoDB.ErrNoDocuments
}

func (f *fakeNoticeRepo) MarkAsRead(_ context.Context, receiverID uint64, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notices {
		if n.ID == id && n.ReceiverID == receiverID {
			n.IsRead = true
		}
	}
	return nil
}

func (f *fakeNoticeRepo) MarkAllAsRead(_ context.Context, receiverID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notices {
		if n.ReceiverID == receiverID {
			n.IsRead = true
		}
	}
	return nil
}

func (f *fakeNoticeRepo) GetUnreadCount(_ context.Context, receiverID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.notices {
		if n.ReceiverID == receiverID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeNoticeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notices)
}

type fakeSearchRepo struct {
	mu      sync.Mutex
	indexed map[uint64]*es.MessageES
}

func (f *fakeSearchRepo) IndexMessage(_ context.Context, doc *es.MessageES, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[uint64]*es.MessageES{}
	}
	f.indexed[doc.ID] = doc
	return nil
}

func (f *fakeSearchRepo) Search(_ context.Context, branchID uint64, _ uint64, keyword string, _ int) ([]*es.MessageES, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*es.MessageES
	for _, d := range f.indexed {
		if d.BranchID == branchID && d.Content == keyword {
			res = append(res, d)
		}
	}
	return res, nil
}

func (f *fakeSearchRepo) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

type testEnv struct {
	db         *gorm.DB
	mr         *miniredis.Miniredis
	sender     *fakeSender
	notices    *fakeNoticeRepo
	search     *fakeSearchRepo
	dispatcher *DeliveryDispatcher
	svc        CommService
	convRepo   repository.ConversationRepo
	msgRepo    repository.MessageRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "comm.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	redis.Rdb = redis.NewClient(config.RedisConfig{Addr: mr.Addr()})

	env := &testEnv{
		db:       db,
		mr:       mr,
		sender:   &fakeSender{},
		notices:  &fakeNoticeRepo{},
		search:   &fakeSearchRepo{},
		convRepo: repository.NewConversationRepo(db),
		msgRepo:  repository.NewMessageRepo(db),
	}

	cfg := configForTest()
	env.dispatcher = NewDeliveryDispatcher(env.sender, env.msgRepo, cfg)
	env.dispatcher.backoff = time.Millisecond
	env.svc = NewCommService(env.convRepo, env.msgRepo, env.search, env.dispatcher,
		NewNoticeService(env.notices), cfg)

	t.Cleanup(func() {
		env.svc.Close()
		_ = redis.Rdb.Close()
		_ = sqlDB.Close()
	})
	return env
}

func configForTest() config.CommConfig {
	return config.CommConfig{DeliveryWorkers: 2, DeliveryQueueSize: 8, DeliveryRetries: 3}
}
