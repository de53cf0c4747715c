package response

import (
	"Campus/internal/api/dto"
	"Campus/internal/service"
	"errors"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const (
	Ok                  = 200
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
)

// Success 成功返回封装
func Success(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusOK, dto.Response{
		Code:    Ok,
		Message: "success",
		Data:    data,
	})
}

// Fail 失败返回封装，HTTP 状态恒为 200，业务码放在 Code
func Fail(c *gin.Context, businessCode int, message string) {
	c.JSON(http.StatusOK, dto.Response{
		Code:    businessCode,
		Message: message,
		Data:    nil,
	})
}

// Error 已知业务错误按 ErrorMap 映射；4xx 带上包装的细节，5xx 只给通用文案
func Error(c *gin.Context, err error) {
	if isBindError(err) {
		Fail(c, BadRequest, service.ErrParamInvalid.Error())
		return
	}

	known, code, ok := lookup(err)
	if !ok {
		log.ErrorContext(c.Request.Context(), "Unhandled error", "err", err)
		Fail(c, InternalServerError, service.UnExpectedError.Error())
		return
	}

	if code >= InternalServerError {
		log.ErrorContext(c.Request.Context(), "Request failed", "err", err)
		Fail(c, code, known.Error())
		return
	}
	Fail(c, code, err.Error())
}

func isBindError(err error) bool {
	var ve validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	return errors.As(err, &ve) || errors.As(err, &typeErr) || errors.As(err, &syntaxErr)
}

// lookup 深度优先遍历包装链，返回第一个登记过的业务错误
func lookup(err error) (error, int, bool) {
	if err == nil {
		return nil, 0, false
	}
	if code, ok := service.ErrorMap[err]; ok {
		return err, code, true
	}
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return lookup(x.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if known, code, ok := lookup(inner); ok {
				return known, code, true
			}
		}
	}
	return nil, 0, false
}
