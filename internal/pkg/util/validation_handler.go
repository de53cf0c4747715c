package util

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// 错误信息里使用请求中的字段名 (json / form)，而不是 Go 字段名
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
}

// ValidateDTO 结构体校验，只返回第一条失败信息
func ValidateDTO(dto any) error {
	err := validate.Struct(dto)
	if err == nil {
		return nil
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return err
	}
	first := vErrs[0]
	if first.Param() != "" {
		return fmt.Errorf("字段 [%s] 校验失败，规则 [%s=%s]", first.Field(), first.Tag(), first.Param())
	}
	return fmt.Errorf("字段 [%s] 校验失败，规则 [%s]", first.Field(), first.Tag())
}

// IsBlank 内容为空或仅含空白字符
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
