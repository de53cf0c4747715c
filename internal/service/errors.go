package service

import (
	"errors"
	"fmt"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrValidation           = errors.New("消息内容不能为空")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrMessageNotFound      = errors.New("消息不存在")
	ErrConversationInactive = errors.New("会话已停用")
	ErrBranchRequired       = errors.New("分校不能为空")
	ErrNoticeNotFound       = errors.New("提醒不存在")
	ErrDeliveryFailed       = errors.New("消息已保存但未送达")
	ErrSearchUnavailable    = errors.New("检索服务不可用")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrValidation:           BadRequest,
	ErrConversationNotFound: NotFound,
	ErrMessageNotFound:      NotFound,
	ErrConversationInactive: Conflict,
	ErrBranchRequired:       BadRequest,
	ErrNoticeNotFound:       NotFound,
	ErrDeliveryFailed:       InternalServerError,
	ErrSearchUnavailable:    InternalServerError,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}

// paramError 保留校验细节，调用方仍可用 errors.Is 判断 ErrParamInvalid
func paramError(cause error) error {
	return fmt.Errorf("%w: %v", ErrParamInvalid, cause)
}

// DeliveryError 外部通道投递失败，只记录与提醒，不回滚本地消息
type DeliveryError struct {
	MessageID uint64
	Attempts  int
	Err       error
}

func (e *DeliveryError) Error() string {
	return ErrDeliveryFailed.Error() + ": " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDeliveryFailed, e.Err}
}
