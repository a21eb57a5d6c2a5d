// Package platform 定义状态机与调度器依赖的聊天平台原语。
// 网关会话、embed/按钮渲染、斜杠命令注册都属于平台胶水层，
// 核心只通过这里的窄接口触达。
package platform

import (
	"context"
	"fmt"
)

// Permission 频道权限位（平台无关的抽象名）。
type Permission string

const (
	PermViewChannel        Permission = "view_channel"
	PermSendMessages       Permission = "send_messages"
	PermReadMessageHistory Permission = "read_message_history"
	PermManageMessages     Permission = "manage_messages"
	PermManageChannels     Permission = "manage_channels"
)

// PrincipalKind 权限主体类别。
type PrincipalKind string

const (
	PrincipalUser     PrincipalKind = "user"
	PrincipalRole     PrincipalKind = "role"
	PrincipalEveryone PrincipalKind = "everyone"
)

// Principal 权限主体。
type Principal struct {
	Kind PrincipalKind
	ID   string // everyone 时为空
}

// PermissionOverwrite 单个主体的 allow/deny 覆写。
type PermissionOverwrite struct {
	Principal Principal
	Allow     []Permission
	Deny      []Permission
}

// ChannelSpec 建频道参数。
type ChannelSpec struct {
	Name       string
	Parent     string // 分组（category）ref，可空
	Overwrites []PermissionOverwrite
}

// UserRef 平台侧用户引用。
type UserRef struct {
	ID  string
	Tag string
}

// Collaborator 核心消费的平台操作集合。
// 实现方（胶水层）负责把这些调用翻译成具体平台 API。
type Collaborator interface {
	SendMessage(ctx context.Context, channelRef, content string) error
	SendDirectMessage(ctx context.Context, userID, content string) error

	CreateChannel(ctx context.Context, spec ChannelSpec) (string, error)
	DeleteChannel(ctx context.Context, channelRef string) error
	SetChannelParent(ctx context.Context, channelRef, categoryRef string) error
	SetPermission(ctx context.Context, channelRef string, p Principal, allow, deny []Permission) error

	// 分组（category）管理：归档轮转需要按名字找分组并统计占用。
	FindCategory(ctx context.Context, name string) (string, bool, error)
	CreateCategory(ctx context.Context, name string) (string, error)
	CategorySize(ctx context.Context, categoryRef string) (int, error)

	HasRole(ctx context.Context, userID, roleName string) (bool, error)
	FetchUser(ctx context.Context, userID string) (UserRef, error)
}

// ExternalError 平台操作失败（缺权限、目标已不存在等）。
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("platform %s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// WrapExternal 统一包装平台侧错误。
func WrapExternal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Op: op, Err: err}
}
