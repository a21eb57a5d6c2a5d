package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOrderNotFound 对不存在的订单尝试迁移（不允许静默 no-op）。
	ErrOrderNotFound = errors.New("order not found")
	// ErrPermissionDenied 操作者没有该迁移要求的授权。
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError 必填明细缺失或取值非法。
// 三类守卫错误都可恢复：回给发起交互的人，绝不打挂进程。
type ValidationError struct {
	Missing []string // 缺失的规范字段名
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Missing, ", "))
	}
	return e.Reason
}

// NewValidationError 非法取值类校验失败。
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
