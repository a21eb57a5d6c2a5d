package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 目标订单在当前后端不存在。
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateOrder 订单号唯一约束冲突，拒绝而不是覆盖。
	ErrDuplicateOrder = errors.New("duplicate order id")
)

// StorageError 标记某个后端的 I/O 或约束失败，写失败绝不静默吞掉。
type StorageError struct {
	Backend string // "local" / "remote"
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrapStorage(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Backend: backend, Op: op, Err: err}
}
