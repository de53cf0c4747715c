package syncclient

import (
	"Campus/internal/api/config"
	"Campus/internal/api/dto"
	"Campus/internal/pkg/consts"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const commPrefix = "/api/comm"

var ErrNoSelection = errors.New("syncclient: no conversation selected")

// APIError 服务端返回的业务错误 (Code != 200)
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("comm api error: code=%d msg=%s", e.Code, e.Message)
}

type envelope[T any] struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
	Data    T      `json:"Data"`
}

// State 当前视图快照
type State struct {
	Conversations []*dto.ConversationDTO
	SelectedID    uint64
	Messages      []*dto.MessageDTO
	// 仅在对应视图首次加载失败时设置，之后的轮询失败只记日志
	ListErr   error
	ThreadErr error
}

// Options 客户端参数
type Options struct {
	BaseURL        string
	Token          string
	BranchID       uint64
	ListInterval   time.Duration
	ThreadInterval time.Duration
	PageSize       int
	Timeout        time.Duration
}

// OptionsFromConfig 使用通讯模块的轮询配置
func OptionsFromConfig(baseURL, token string, branchID uint64, cfg config.CommConfig) Options {
	return Options{
		BaseURL:        baseURL,
		Token:          token,
		BranchID:       branchID,
		ListInterval:   time.Duration(cfg.ListPollInterval) * time.Second,
		ThreadInterval: time.Duration(cfg.ThreadPollInterval) * time.Second,
	}
}

// Client 轮询式同步客户端：定时拉取会话列表与当前线程
type Client struct {
	http *resty.Client
	opts Options

	mu            sync.Mutex
	state         State
	generation    uint64 // 每次切换会话 +1
	listIssued    uint64
	listApplied   uint64
	listLoaded    bool
	threadIssued  uint64
	threadApplied uint64
	threadLoaded  bool
	onChange      func(State)
}

func New(opts Options) *Client {
	if opts.ListInterval <= 0 {
		opts.ListInterval = consts.DefaultListPollInterval
	}
	if opts.ThreadInterval <= 0 {
		opts.ThreadInterval = consts.DefaultThreadPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetAuthToken(opts.Token).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &Client{http: httpClient, opts: opts}
}

// OnChange 注册状态变更回调，回调在锁外执行
func (c *Client) OnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// State 返回当前状态的拷贝
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Client) snapshot() State {
	s := c.state
	s.Conversations = append([]*dto.ConversationDTO(nil), c.state.Conversations...)
	s.Messages = append([]*dto.MessageDTO(nil), c.state.Messages...)
	return s
}

// update 在锁内修改状态并通知
func (c *Client) update(fn func() bool) {
	c.mu.Lock()
	if !fn() {
		c.mu.Unlock()
		return
	}
	s := c.snapshot()
	cb := c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}

// Run 阻塞运行两个定时器直到 ctx 结束
// 线程定时器只在选中会话时拉取
func (c *Client) Run(ctx context.Context) error {
	listTicker := time.NewTicker(c.opts.ListInterval)
	defer listTicker.Stop()
	threadTicker := time.NewTicker(c.opts.ThreadInterval)
	defer threadTicker.Stop()

	c.RefreshList(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-listTicker.C:
			c.RefreshList(ctx)
		case <-threadTicker.C:
			if c.selected() != 0 {
				c.RefreshThread(ctx)
			}
		}
	}
}

func (c *Client) selected() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SelectedID
}

// Select 切换到指定会话：先标记已读，再立即刷新列表与线程
func (c *Client) Select(ctx context.Context, convID uint64) error {
	c.update(func() bool {
		c.generation++
		c.state.SelectedID = convID
		c.state.Messages = nil
		c.state.ThreadErr = nil
		c.threadLoaded = false
		return true
	})

	openErr := c.open(ctx, convID)
	if openErr != nil {
		log.WarnContext(ctx, "open conversation failed", "conversation_id", convID, "err", openErr)
	}

	c.RefreshList(ctx)
	c.RefreshThread(ctx)
	return openErr
}

// Deselect 关闭当前线程，线程轮询随之停止
func (c *Client) Deselect() {
	c.update(func() bool {
		c.generation++
		c.state.SelectedID = 0
		c.state.Messages = nil
		c.state.ThreadErr = nil
		c.threadLoaded = false
		return true
	})
}

// Send 向当前会话发送文本，成功后立即刷新线程与列表
func (c *Client) Send(ctx context.Context, content string) (*dto.SendResultDTO, error) {
	convID := c.selected()
	if convID == 0 {
		return nil, ErrNoSelection
	}

	var env envelope[*dto.SendResultDTO]
	err := c.do(ctx, c.http.R().
		SetBody(&dto.SendMessageReq{BranchID: c.opts.BranchID, Content: content}).
		SetResult(&env), "POST", c.threadPath(convID, "/messages"), &env.Code, &env.Message)
	if err != nil {
		return nil, err
	}

	c.RefreshThread(ctx)
	c.RefreshList(ctx)
	return env.Data, nil
}

// RefreshList 拉取会话列表；乱序到达的旧响应被丢弃
func (c *Client) RefreshList(ctx context.Context) {
	c.mu.Lock()
	c.listIssued++
	reqID := c.listIssued
	c.mu.Unlock()

	var env envelope[[]*dto.ConversationDTO]
	err := c.do(ctx, c.http.R().
		SetQueryParam("branch_id", strconv.FormatUint(c.opts.BranchID, 10)).
		SetResult(&env), "GET", commPrefix+"/conversations", &env.Code, &env.Message)

	c.update(func() bool {
		if reqID < c.listApplied {
			return false
		}
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if !c.listLoaded {
				c.state.ListErr = err
				return true
			}
			log.WarnContext(ctx, "poll conversation list failed", "err", err)
			return false
		}
		c.listApplied = reqID
		c.listLoaded = true
		c.state.Conversations = env.Data
		c.state.ListErr = nil
		return true
	})
}

// RefreshThread 拉取当前线程最新一页 (viewing=true 维持在线标记)
// 发出请求后切换过会话，或更晚发出的请求已先生效，响应都会被丢弃
func (c *Client) RefreshThread(ctx context.Context) {
	c.mu.Lock()
	convID := c.state.SelectedID
	gen := c.generation
	c.threadIssued++
	reqID := c.threadIssued
	c.mu.Unlock()
	if convID == 0 {
		return
	}

	req := c.http.R().
		SetQueryParam("branch_id", strconv.FormatUint(c.opts.BranchID, 10)).
		SetQueryParam("viewing", "true")
	if c.opts.PageSize > 0 {
		req.SetQueryParam("limit", strconv.Itoa(c.opts.PageSize))
	}
	var env envelope[*dto.MessagePageDTO]
	err := c.do(ctx, req.SetResult(&env), "GET", c.threadPath(convID, "/messages"), &env.Code, &env.Message)

	c.update(func() bool {
		if gen != c.generation || convID != c.state.SelectedID || reqID < c.threadApplied {
			log.DebugContext(ctx, "drop stale thread response", "conversation_id", convID, "request", reqID)
			return false
		}
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if !c.threadLoaded {
				c.state.ThreadErr = err
				return true
			}
			log.WarnContext(ctx, "poll thread failed", "conversation_id", convID, "err", err)
			return false
		}
		c.threadApplied = reqID
		c.threadLoaded = true
		if env.Data != nil {
			c.state.Messages = env.Data.Messages
		} else {
			c.state.Messages = nil
		}
		c.state.ThreadErr = nil
		return true
	})
}

func (c *Client) open(ctx context.Context, convID uint64) error {
	var env envelope[json.RawMessage]
	return c.do(ctx, c.http.R().
		SetBody(&dto.BranchReq{BranchID: c.opts.BranchID}).
		SetResult(&env), "POST", c.threadPath(convID, "/open"), &env.Code, &env.Message)
}

func (c *Client) threadPath(convID uint64, suffix string) string {
	return commPrefix + "/conversations/" + strconv.FormatUint(convID, 10) + suffix
}

// do 执行请求并把 HTTP / 业务错误统一成 error
func (c *Client) do(ctx context.Context, req *resty.Request, method, path string, code *int, msg *string) error {
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &APIError{Code: resp.StatusCode(), Message: resp.Status()}
	}
	if *code != 200 {
		return &APIError{Code: *code, Message: *msg}
	}
	return nil
}
